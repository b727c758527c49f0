package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/swingdag/internal/eventbus"
	"github.com/wonny/swingdag/internal/session"
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "바 히스토리 재생 및 이벤트 출력",
	Long: `CSV 파일 또는 PostgreSQL 의 바를 순서대로 탐지기에 넣고
레그 이벤트를 JSON Lines 로 출력합니다.

이 명령어는:
- 바 소스 열기 (--csv 또는 swing.bars 테이블)
- 체크포인트에서 이어서 시작 (--resume)
- 이벤트를 stdout / Kafka 로 발행
- 종료 시 체크포인트 저장 (--checkpoint)

Example:
  go run ./cmd/swingdag replay --csv data/es_1m.csv
  go run ./cmd/swingdag replay --instrument ES --timeframe 1m --resume --checkpoint
  go run ./cmd/swingdag replay --csv data/es_1m.csv --kafka --quiet`,
	RunE: runReplay,
}

var (
	replaySource     sourceFlags
	replayResume     bool
	replayCheckpoint bool
	replayKafka      bool
	replayQuiet      bool
	replayRate       float64
	replaySnapshot   string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	addSourceFlags(replayCmd, &replaySource)
	replayCmd.Flags().BoolVar(&replayResume, "resume", false, "resume from the latest checkpoint")
	replayCmd.Flags().BoolVar(&replayCheckpoint, "checkpoint", false, "save a checkpoint when the replay ends")
	replayCmd.Flags().BoolVar(&replayKafka, "kafka", false, "publish events to KAFKA_TOPIC")
	replayCmd.Flags().BoolVarP(&replayQuiet, "quiet", "q", false, "do not print events to stdout")
	replayCmd.Flags().Float64Var(&replayRate, "rate", -1, "bars per second (default: REPLAY_RATE, 0 = unthrottled)")
	replayCmd.Flags().StringVar(&replaySnapshot, "snapshot-out", "", "write the final snapshot JSON to this file")
}

func addSourceFlags(cmd *cobra.Command, f *sourceFlags) {
	cmd.Flags().StringVar(&f.csvPath, "csv", "", "CSV file with index,timestamp,open,high,low,close")
	cmd.Flags().StringVar(&f.instrument, "instrument", "ES", "instrument name")
	cmd.Flags().StringVar(&f.timeframe, "timeframe", "1m", "bar timeframe")
	cmd.Flags().StringVar(&f.sessionID, "session", "", "session id (default: <instrument>-<timeframe>)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.close()

	sessionID := replaySource.session()
	det, last, err := rt.openDetector(ctx, &replaySource, replayResume)
	if err != nil {
		return err
	}

	var sinks eventbus.Fanout
	if !replayQuiet {
		sinks = append(sinks, eventbus.NewWriterSink(os.Stdout))
	}
	if replayKafka || rt.cfg.Kafka.Enabled {
		ks, err := eventbus.NewKafkaSink(rt.cfg.Kafka, rt.log.Zerolog())
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		defer ks.Close()
		sinks = append(sinks, ks)
	}

	s, err := session.New(session.Options{
		ID:       sessionID,
		Stream:   replaySource.stream(),
		Detector: det,
		Sink:     sinks,
		Metrics:  rt.metrics,
		Logger:   rt.log.Zerolog(),
	})
	if err != nil {
		return err
	}

	src, closeSrc, err := replaySource.open(rt, last)
	if err != nil {
		return err
	}
	defer closeSrc()

	rate := rt.cfg.Detector.ReplayRate
	if replayRate >= 0 {
		rate = replayRate
	}
	stats, replayErr := session.NewRunner(s, rate, rt.cfg.Detector.ReplayBurst, rt.log.Zerolog()).Replay(ctx, src)

	// a checkpoint is still useful after an interrupted replay
	if replayCheckpoint && s.Err() == nil {
		rec, err := rt.checkpoints().Checkpoint(context.Background(), s)
		if err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		rt.log.WithFields(map[string]interface{}{
			"checkpoint": rec.ID.String(),
			"bar":        rec.BarIndex,
		}).Info("Checkpoint saved")
	}
	if replaySnapshot != "" && s.Err() == nil {
		if err := writeSnapshot(s, replaySnapshot); err != nil {
			return err
		}
	}

	printReplaySummary(os.Stderr, sessionID, stats, s.View())
	return replayErr
}

func writeSnapshot(s *session.Session, path string) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	data, err := snap.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
