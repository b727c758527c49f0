package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/wonny/swingdag/internal/contracts"
)

// ReplayStats summarises one Replay call.
type ReplayStats struct {
	Bars     int64         `json:"bars"`
	Events   int           `json:"events"`
	LastBar  int64         `json:"last_bar"`
	Duration time.Duration `json:"duration"`
}

// Runner pulls bars from a source into a session.
type Runner struct {
	session *Session
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewRunner creates a runner. barsPerSecond <= 0 replays as fast as possible.
func NewRunner(s *Session, barsPerSecond float64, burst int, log zerolog.Logger) *Runner {
	r := &Runner{
		session: s,
		log:     log.With().Str("component", "session.runner").Str("session", s.ID()).Logger(),
	}
	if barsPerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(barsPerSecond), burst)
	}
	return r
}

// Replay feeds bars until the source is exhausted, the context is cancelled
// or the session fails. Cancellation is only observed between bars, so the
// detector never sees a partially applied bar.
func (r *Runner) Replay(ctx context.Context, src contracts.BarSource) (ReplayStats, error) {
	var stats ReplayStats
	start := time.Now()

	r.log.Info().Msg("replay started")
	for {
		if err := ctx.Err(); err != nil {
			return r.finish(stats, start, err)
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return r.finish(stats, start, err)
			}
		}

		bar, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return r.finish(stats, start, nil)
		}
		if err != nil {
			return r.finish(stats, start, err)
		}

		events, err := r.session.ProcessBar(ctx, bar)
		if events != nil {
			// the detector accepted the bar even if publishing failed
			stats.Bars++
			stats.LastBar = bar.Index
			stats.Events += len(events)
		}
		if err != nil {
			return r.finish(stats, start, err)
		}
	}
}

func (r *Runner) finish(stats ReplayStats, start time.Time, err error) (ReplayStats, error) {
	stats.Duration = time.Since(start)
	ev := r.log.Info()
	if err != nil && !errors.Is(err, context.Canceled) {
		ev = r.log.Error().Err(err)
	}
	ev.Int64("bars", stats.Bars).
		Int("events", stats.Events).
		Dur("duration", stats.Duration).
		Msg("replay finished")
	return stats, err
}
