package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/swingdag/internal/contracts"
	"github.com/wonny/swingdag/internal/eventbus"
	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/metrics"
)

// View is an immutable read model of a session, rebuilt after every bar.
// Readers may hold on to it; nothing inside is mutated afterwards.
type View struct {
	SessionID     string               `json:"session_id"`
	Stream        contracts.Stream     `json:"stream"`
	BarsProcessed int64                `json:"bars_processed"`
	LastEventSeq  uint64               `json:"last_event_seq"`
	LastBar       *contracts.Bar       `json:"last_bar,omitempty"`
	Legs          []swing.Leg          `json:"legs"`
	Pending       swing.PendingOrigins `json:"pending"`
	Distribution  swing.Distribution   `json:"distribution"`
	Halted        string               `json:"halted,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Options configures a Session.
type Options struct {
	ID       string
	Stream   contracts.Stream
	Detector *swing.Detector
	Sink     eventbus.Sink     // optional
	Metrics  *metrics.Recorder // optional
	Logger   zerolog.Logger
}

// Session drives one detector for one stream and publishes its results.
// ProcessBar must be called from a single goroutine; View and Snapshot are
// safe to call from anywhere.
// ⭐ SSOT: 탐지기 접근은 세션을 통해서만
type Session struct {
	id      string
	stream  contracts.Stream
	sink    eventbus.Sink
	metrics *metrics.Recorder
	log     zerolog.Logger

	detMu sync.Mutex
	det   *swing.Detector

	viewMu sync.RWMutex
	view   View
}

// New wraps a detector in a session.
func New(opts Options) (*Session, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if opts.Detector == nil {
		return nil, fmt.Errorf("session %s: detector is required", opts.ID)
	}

	s := &Session{
		id:      opts.ID,
		stream:  opts.Stream,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		det:     opts.Detector,
		log: opts.Logger.With().
			Str("component", "session").
			Str("session", opts.ID).
			Logger(),
	}
	s.refreshView(nil)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Stream returns the instrument/timeframe the session follows.
func (s *Session) Stream() contracts.Stream { return s.stream }

// ProcessBar feeds one bar to the detector, forwards the resulting batch to
// the sink and refreshes the read view.
//
// A detector error is fatal for the session. A sink error is returned after
// the detector has already advanced; the events are still in the view's
// sequence range, so consumers can recover via LastEventSeq.
func (s *Session) ProcessBar(ctx context.Context, bar contracts.Bar) ([]swing.Event, error) {
	start := time.Now()

	s.detMu.Lock()
	events, err := s.det.ProcessBar(bar)
	s.detMu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Int64("bar", bar.Index).Msg("detector halted")
		s.recordError("detector")
		s.refreshView(nil)
		return nil, err
	}

	s.refreshView(&bar)
	s.observe(events, time.Since(start))

	if s.sink != nil && len(events) > 0 {
		if err := s.sink.Publish(ctx, s.id, events); err != nil {
			s.log.Error().Err(err).Int64("bar", bar.Index).Int("events", len(events)).Msg("event publish failed")
			s.recordError("sink")
			return events, fmt.Errorf("publish events: %w", err)
		}
	}
	return events, nil
}

// View returns the latest read model.
func (s *Session) View() View {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

// Snapshot captures the detector state between bars.
func (s *Session) Snapshot() (*swing.Snapshot, error) {
	s.detMu.Lock()
	defer s.detMu.Unlock()
	return s.det.Snapshot()
}

// Err returns the detector's fatal error, if any.
func (s *Session) Err() error {
	s.detMu.Lock()
	defer s.detMu.Unlock()
	return s.det.Err()
}

func (s *Session) refreshView(bar *contracts.Bar) {
	s.detMu.Lock()
	v := View{
		SessionID:     s.id,
		Stream:        s.stream,
		BarsProcessed: s.det.BarsProcessed(),
		LastEventSeq:  s.det.LastEventSeq(),
		Legs:          s.det.ActiveLegs(),
		Pending:       s.det.Pending(),
		Distribution:  s.det.Distribution(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := s.det.Err(); err != nil {
		v.Halted = err.Error()
	}
	s.detMu.Unlock()

	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	if bar != nil {
		b := *bar
		v.LastBar = &b
	} else {
		v.LastBar = s.view.LastBar
	}
	s.view = v
}

func (s *Session) observe(events []swing.Event, took time.Duration) {
	if s.metrics == nil {
		return
	}
	key := s.stream.Key()
	s.metrics.ObserveBar(key, took)
	for _, e := range events {
		s.metrics.RecordEvent(key, string(e.Type), string(e.Reason))
	}
	s.metrics.SetActiveLegs(key, len(s.View().Legs))
}

func (s *Session) recordError(kind string) {
	if s.metrics != nil {
		s.metrics.RecordError(kind)
	}
}
