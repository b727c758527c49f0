package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wonny/swingdag/internal/checkpoint"
	"github.com/wonny/swingdag/internal/contracts"
	"github.com/wonny/swingdag/internal/feed"
	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/config"
	"github.com/wonny/swingdag/pkg/database"
	"github.com/wonny/swingdag/pkg/logger"
	"github.com/wonny/swingdag/pkg/metrics"
	"github.com/wonny/swingdag/pkg/redis"
)

// runtime bundles the process-wide dependencies a command needs.
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB // nil without DATABASE_URL
	redis   *redis.Client
	metrics *metrics.Recorder
}

// newRuntime loads config, logger and the optional backends.
func newRuntime(ctx context.Context, needDB bool) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if detectorConfig != "" {
		cfg.Detector.ConfigPath = detectorConfig
	}

	rt := &runtime{
		cfg:     cfg,
		log:     logger.New(cfg),
		metrics: metrics.New(),
	}

	rt.db, err = database.New(ctx, cfg)
	switch {
	case errors.Is(err, database.ErrNotConfigured):
		if needDB {
			return nil, err
		}
		rt.db = nil
	case err != nil:
		return nil, fmt.Errorf("connect to database: %w", err)
	default:
		if err := rt.db.Migrate(ctx); err != nil {
			rt.db.Close()
			return nil, err
		}
	}

	rt.redis, err = redis.New(ctx, cfg)
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.redis != nil {
		rt.redis.Close()
	}
}

// thresholds loads the detector config from the configured YAML, or defaults.
func (rt *runtime) thresholds() (swing.Config, error) {
	if rt.cfg.Detector.ConfigPath == "" {
		return swing.DefaultConfig(), nil
	}
	cfg, _, err := swing.LoadConfig(rt.cfg.Detector.ConfigPath)
	return cfg, err
}

// checkpoints builds a manager over whatever backends are configured.
func (rt *runtime) checkpoints() *checkpoint.Manager {
	var store checkpoint.Store
	if rt.db != nil {
		store = checkpoint.NewRepository(rt.db.Pool)
	}
	var cache checkpoint.Cache
	if rt.redis.Enabled() {
		cache = checkpoint.NewRedisCache(redis.NewCache(rt.redis, "swingdag"), rt.cfg.Checkpoint.CacheTTL)
	}
	return checkpoint.NewManager(store, cache, rt.metrics, rt.log.Zerolog())
}

// openDetector resumes from the latest checkpoint when asked and possible,
// otherwise starts fresh. The returned index is the last bar already applied
// (-1 for a fresh detector).
func (rt *runtime) openDetector(ctx context.Context, src *sourceFlags, resume bool) (*swing.Detector, int64, error) {
	sessionID := src.session()
	cfg, err := rt.thresholds()
	if err != nil {
		return nil, 0, err
	}

	if resume {
		det, err := rt.checkpoints().Resume(ctx, sessionID, cfg)
		switch {
		case err == nil:
			last, _ := det.LastBar()
			return det, last.Index, nil
		case checkpoint.IsRebuildRequired(err):
			rt.log.WithError(err).Warn("No usable checkpoint, rebuilding from history")
		default:
			return nil, 0, err
		}
	}

	det, err := swing.New(cfg, rt.log.WithStream(src.stream().Key()).Zerolog())
	if err != nil {
		return nil, 0, err
	}
	return det, -1, nil
}

// sourceFlags selects where bars come from.
type sourceFlags struct {
	csvPath    string
	instrument string
	timeframe  string
	sessionID  string
}

func (f *sourceFlags) stream() contracts.Stream {
	return contracts.Stream{Instrument: f.instrument, Timeframe: f.timeframe}
}

func (f *sourceFlags) session() string {
	if f.sessionID != "" {
		return f.sessionID
	}
	return strings.ToLower(f.instrument + "-" + f.timeframe)
}

// open returns the bar source and a closer. Without --csv bars come from Postgres.
func (f *sourceFlags) open(rt *runtime, after int64) (contracts.BarSource, func(), error) {
	if f.csvPath != "" {
		file, err := os.Open(f.csvPath)
		if err != nil {
			return nil, nil, err
		}
		src := contracts.BarSource(feed.NewCSVSource(file))
		if after >= 0 {
			src = feed.SkipThrough(src, after)
		}
		return src, func() { file.Close() }, nil
	}

	if rt.db == nil {
		return nil, nil, fmt.Errorf("no --csv given and %w", database.ErrNotConfigured)
	}
	return feed.NewBarRepository(rt.db.Pool).Source(f.stream(), after), func() {}, nil
}
