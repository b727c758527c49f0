package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wonny/swingdag/internal/swing"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "스냅샷 조회",
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "스냅샷 파일 요약 출력",
	Long: `replay --snapshot-out 으로 저장한 스냅샷을 읽고 요약합니다.

이 명령어는:
- 스키마 / 알고리즘 버전 확인
- 현재 탐지기 설정과의 호환성 확인 (--detector-config)
- 활성 레그 테이블 출력 (--legs)

Example:
  go run ./cmd/swingdag snapshot inspect snapshot.json --legs`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotInspect,
}

var snapshotLegs bool

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
	snapshotInspectCmd.Flags().BoolVar(&snapshotLegs, "legs", false, "print the active legs")
}

func runSnapshotInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	snap, err := swing.UnmarshalSnapshot(data)
	if err != nil {
		return err
	}

	cfg := swing.DefaultConfig()
	if detectorConfig != "" {
		if cfg, _, err = swing.LoadConfig(detectorConfig); err != nil {
			return err
		}
	}
	compat := "✅ compatible"
	if err := snap.CheckCompatible(cfg); err != nil {
		compat = "⚠️  " + err.Error()
	}

	// Restore validates lineage and invariants
	det, err := swing.Restore(snap, zerolog.Nop())
	if err != nil {
		return fmt.Errorf("❌ snapshot does not restore: %w", err)
	}

	out := cmd.OutOrStdout()
	printHeader(out, "Snapshot "+args[0])
	printField(out, "schema", snap.SchemaVersion)
	printField(out, "algorithm", snap.AlgorithmVersion)
	printField(out, "config hash", snap.ConfigHash)
	printField(out, "bars", snap.BarsProcessed)
	if last, ok := det.LastBar(); ok {
		printField(out, "last bar", fmt.Sprintf("#%d %s", last.Index, last.Timestamp.Format("2006-01-02 15:04:05")))
	}
	printField(out, "last event", snap.LastEventSeq)
	printField(out, "active legs", len(snap.Legs))
	printField(out, "formed", snap.Distribution.Count())
	printField(out, "current cfg", compat)
	fmt.Fprintln(out, ruleHeavy)

	if snapshotLegs {
		printLegTable(out, det.ActiveLegs())
	}
	return nil
}
