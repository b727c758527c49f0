package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/swingdag/internal/contracts"
	"github.com/wonny/swingdag/internal/feed"
)

var barsCmd = &cobra.Command{
	Use:   "bars",
	Short: "바 데이터 관리",
}

var barsImportCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "CSV 바를 PostgreSQL 로 적재",
	Long: `CSV 파일의 바를 검증한 뒤 swing.bars 테이블에 upsert 합니다.

이 명령어는:
- 각 바의 가격 검증 (NaN, high < low 등)
- 인덱스/타임스탬프 단조 증가 확인
- --batch 단위 트랜잭션으로 적재

Example:
  go run ./cmd/swingdag bars import data/es_1m.csv --instrument ES --timeframe 1m`,
	Args: cobra.ExactArgs(1),
	RunE: runBarsImport,
}

var (
	importInstrument string
	importTimeframe  string
	importBatch      int
)

func init() {
	rootCmd.AddCommand(barsCmd)
	barsCmd.AddCommand(barsImportCmd)

	barsImportCmd.Flags().StringVar(&importInstrument, "instrument", "ES", "instrument name")
	barsImportCmd.Flags().StringVar(&importTimeframe, "timeframe", "1m", "bar timeframe")
	barsImportCmd.Flags().IntVar(&importBatch, "batch", 1000, "bars per transaction")
}

func runBarsImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	rt, err := newRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.close()

	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	stream := contracts.Stream{Instrument: importInstrument, Timeframe: importTimeframe}
	repo := feed.NewBarRepository(rt.db.Pool)
	src := feed.NewCSVSource(file)

	var (
		batch []contracts.Bar
		prev  *contracts.Bar
		total int
	)
	flush := func() error {
		if err := repo.SaveBatch(ctx, stream, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	bars, err := feed.ReadAll(ctx, src)
	if err != nil {
		return err
	}
	for i := range bars {
		b := bars[i]
		if err := b.Validate(); err != nil {
			return fmt.Errorf("❌ %w", err)
		}
		if prev != nil && !prev.Precedes(b) {
			return fmt.Errorf("❌ bar %d does not follow bar %d", b.Index, prev.Index)
		}
		prev = &bars[i]

		batch = append(batch, b)
		if len(batch) >= importBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printHeader(out, "Import "+stream.Key())
	printField(out, "Bars", total)
	printField(out, "Duration", time.Since(start).Round(time.Millisecond))
	fmt.Fprintln(out, ruleHeavy)
	return nil
}
