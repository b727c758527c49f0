package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/swingdag/internal/api"
	"github.com/wonny/swingdag/internal/api/handlers"
	"github.com/wonny/swingdag/internal/checkpoint"
	"github.com/wonny/swingdag/internal/eventbus"
	"github.com/wonny/swingdag/internal/scheduler"
	"github.com/wonny/swingdag/internal/scheduler/jobs"
	"github.com/wonny/swingdag/internal/session"
	"github.com/wonny/swingdag/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "세션 실행 + 조회 API 서버 시작",
	Long: `바를 재생하는 세션을 띄우고 조회 전용 REST/WebSocket API 를 제공합니다.

이 명령어는:
- 체크포인트에서 세션 복원 (없거나 stale 이면 처음부터 재생)
- 바 재생 (REPLAY_RATE 로 속도 제한)
- 주기적 체크포인트 (CHECKPOINT_SCHEDULE)
- HTTP API / WebSocket 스트림 제공

Endpoints:
  GET  /health
  GET  /metrics
  GET  /api/sessions
  GET  /api/sessions/{id}
  GET  /api/sessions/{id}/legs?direction=bull&formed=true
  GET  /api/sessions/{id}/legs/{leg}
  GET  /api/sessions/{id}/pending
  GET  /api/sessions/{id}/distribution?range=12.5
  GET  /api/sessions/{id}/events?after=0&limit=500
  GET  /api/sessions/{id}/stream          (websocket)

Example:
  go run ./cmd/swingdag serve --csv data/es_1m.csv --rate 20
  go run ./cmd/swingdag serve --instrument ES --timeframe 1m --port 9090`,
	RunE: runServe,
}

var (
	serveSource  sourceFlags
	servePort    string
	serveBacklog int
	serveKeep    int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	addSourceFlags(serveCmd, &serveSource)
	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트 (default: PORT)")
	serveCmd.Flags().IntVar(&serveBacklog, "backlog", 10000, "events kept per session for /events")
	serveCmd.Flags().IntVar(&serveKeep, "keep-checkpoints", 24, "checkpoints kept per session")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.close()
	if servePort != "" {
		rt.cfg.Port = servePort
	}
	log := rt.log

	// 1. Sinks
	backlog := eventbus.NewMemorySink(serveBacklog)
	hub := eventbus.NewHub(log.Zerolog(), rt.metrics)
	sinks := eventbus.Fanout{backlog, hub}
	if rt.cfg.Kafka.Enabled {
		ks, err := eventbus.NewKafkaSink(rt.cfg.Kafka, log.Zerolog())
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		defer ks.Close()
		sinks = append(sinks, ks)
	}

	// 2. Session (resumed when a compatible checkpoint exists)
	sessionID := serveSource.session()
	det, last, err := rt.openDetector(ctx, &serveSource, true)
	if err != nil {
		return err
	}
	s, err := session.New(session.Options{
		ID:       sessionID,
		Stream:   serveSource.stream(),
		Detector: det,
		Sink:     sinks,
		Metrics:  rt.metrics,
		Logger:   log.Zerolog(),
	})
	if err != nil {
		return err
	}
	sessions := session.NewManager()
	if err := sessions.Add(s); err != nil {
		return err
	}

	// 3. Scheduler
	ckpt := rt.checkpoints()
	sched := scheduler.New(log)
	if rt.cfg.Checkpoint.Enabled {
		if err := sched.AddJob(jobs.NewCheckpointJob(sessions, ckpt, rt.cfg.Checkpoint.Schedule, log)); err != nil {
			return err
		}
	}
	if rt.db != nil {
		if err := sched.AddJob(jobs.NewCheckpointPruneJob(sessions, checkpoint.NewRepository(rt.db.Pool), serveKeep, log)); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	// 4. API server
	deps := api.RouterDeps{
		Sessions: handlers.NewSessionHandler(sessions, backlog, hub, log),
		Logger:   log,
	}
	if rt.cfg.MetricsEnabled {
		deps.Metrics = rt.metrics
	}
	if rt.redis.Enabled() {
		deps.Limiter = redis.NewRateLimiter(rt.redis, "swingdag")
	}
	server := api.New(rt.cfg, log, api.NewRouter(deps))
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Error("API server stopped")
			stop()
		}
	}()
	fmt.Printf("\n✅ Server running on http://localhost:%s (session %s)\n", rt.cfg.Port, sessionID)
	fmt.Println("\nPress Ctrl+C to stop")

	// 5. Replay in the background; the API keeps serving the final state
	src, closeSrc, err := serveSource.open(rt, last)
	if err != nil {
		return err
	}
	defer closeSrc()
	go func() {
		runner := session.NewRunner(s, rt.cfg.Detector.ReplayRate, rt.cfg.Detector.ReplayBurst, log.Zerolog())
		stats, err := runner.Replay(ctx, src)
		if err != nil && !errors.Is(err, context.Canceled) {
			return
		}
		printReplaySummary(os.Stderr, sessionID, stats, s.View())
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	if rt.cfg.Checkpoint.Enabled && s.Err() == nil {
		if _, err := ckpt.Checkpoint(context.Background(), s); err != nil {
			log.WithError(err).Warn("Final checkpoint failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
