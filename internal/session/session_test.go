package session

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/swingdag/internal/contracts"
	"github.com/wonny/swingdag/internal/eventbus"
	"github.com/wonny/swingdag/internal/feed"
	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/metrics"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

var es1m = contracts.Stream{Instrument: "ES", Timeframe: "1m"}

func bars() []contracts.Bar {
	prices := [][4]float64{
		{100, 101, 99, 100.5},
		{100.5, 103, 100, 102.5},
		{102.5, 102.75, 98, 98.5},
		{98.5, 99, 96, 96.25},
		{96.25, 104, 96, 103.75},
		{103.75, 106, 103, 105.5},
	}
	out := make([]contracts.Bar, len(prices))
	for i, p := range prices {
		out[i] = contracts.Bar{
			Index:     int64(i),
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      p[0], High: p[1], Low: p[2], Close: p[3],
		}
	}
	return out
}

func newSession(t *testing.T, sink eventbus.Sink, rec *metrics.Recorder) *Session {
	t.Helper()
	det, err := swing.New(swing.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	s, err := New(Options{
		ID:       "es-1m",
		Stream:   es1m,
		Detector: det,
		Sink:     sink,
		Metrics:  rec,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Logger: zerolog.Nop()})
	assert.Error(t, err)

	_, err = New(Options{ID: "x", Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestReplay_FeedsEverything(t *testing.T) {
	mem := eventbus.NewMemorySink(0)
	rec := metrics.New()
	s := newSession(t, mem, rec)

	stats, err := NewRunner(s, 0, 0, zerolog.Nop()).Replay(context.Background(), feed.NewSliceSource(bars()))
	require.NoError(t, err)

	assert.Equal(t, int64(6), stats.Bars)
	assert.Equal(t, int64(5), stats.LastBar)

	v := s.View()
	assert.Equal(t, int64(6), v.BarsProcessed)
	require.NotNil(t, v.LastBar)
	assert.Equal(t, int64(5), v.LastBar.Index)
	assert.Empty(t, v.Halted)
	assert.NotEmpty(t, v.Legs)

	// every event reached the sink, in order
	assert.Equal(t, stats.Events, mem.Len("es-1m"))
	got := mem.Since("es-1m", 0, 0)
	require.NotEmpty(t, got)
	assert.Equal(t, v.LastEventSeq, got[len(got)-1].Seq)

	// metrics follow the session
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, w.Body.String(), `swingdag_bars_processed_total{stream="ES:1m"} 6`)
}

func TestReplay_MatchesDirectDetector(t *testing.T) {
	s := newSession(t, nil, nil)
	_, err := NewRunner(s, 0, 0, zerolog.Nop()).Replay(context.Background(), feed.NewSliceSource(bars()))
	require.NoError(t, err)

	det, err := swing.New(swing.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	_, err = det.Process(bars()...)
	require.NoError(t, err)

	assert.Equal(t, det.ActiveLegs(), s.View().Legs)
	assert.Equal(t, det.LastEventSeq(), s.View().LastEventSeq)
}

func TestReplay_CancelledBetweenBars(t *testing.T) {
	s := newSession(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := NewRunner(s, 0, 0, zerolog.Nop()).Replay(ctx, feed.NewSliceSource(bars()))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Bars)
	assert.Zero(t, s.View().BarsProcessed)
}

func TestReplay_RateLimited(t *testing.T) {
	s := newSession(t, nil, nil)
	stats, err := NewRunner(s, 1000, 2, zerolog.Nop()).Replay(context.Background(), feed.NewSliceSource(bars()))
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Bars)
}

func TestProcessBar_MalformedHaltsSession(t *testing.T) {
	rec := metrics.New()
	s := newSession(t, nil, rec)

	b := bars()
	_, err := s.ProcessBar(context.Background(), b[0])
	require.NoError(t, err)

	bad := b[1]
	bad.High = math.NaN()
	_, err = s.ProcessBar(context.Background(), bad)
	require.ErrorIs(t, err, swing.ErrInvalidPrice)

	v := s.View()
	assert.NotEmpty(t, v.Halted)
	assert.Equal(t, int64(1), v.BarsProcessed)
	assert.Equal(t, int64(0), v.LastBar.Index)

	_, err = s.ProcessBar(context.Background(), b[1])
	assert.ErrorIs(t, err, swing.ErrDetectorHalted)
	assert.Error(t, s.Err())

	_, err = s.Snapshot()
	assert.ErrorIs(t, err, swing.ErrDetectorHalted)
}

type brokenSink struct{}

func (brokenSink) Publish(context.Context, string, []swing.Event) error {
	return errors.New("broker unavailable")
}

func TestReplay_SinkFailureStops(t *testing.T) {
	s := newSession(t, brokenSink{}, nil)
	stats, err := NewRunner(s, 0, 0, zerolog.Nop()).Replay(context.Background(), feed.NewSliceSource(bars()))
	require.ErrorContains(t, err, "broker unavailable")

	// the first bar was applied before publishing failed
	assert.Equal(t, int64(1), stats.Bars)
	assert.Equal(t, int64(1), s.View().BarsProcessed)
}

type failingSource struct{ n int }

func (f *failingSource) Next(context.Context) (contracts.Bar, error) {
	if f.n >= 2 {
		return contracts.Bar{}, io.ErrUnexpectedEOF
	}
	b := bars()[f.n]
	f.n++
	return b, nil
}

func TestReplay_SourceError(t *testing.T) {
	s := newSession(t, nil, nil)
	stats, err := NewRunner(s, 0, 0, zerolog.Nop()).Replay(context.Background(), &failingSource{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, int64(2), stats.Bars)
}

func TestManager(t *testing.T) {
	m := NewManager()
	a := newSession(t, nil, nil)
	require.NoError(t, m.Add(a))
	assert.Error(t, m.Add(a))

	got, ok := m.Get("es-1m")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Len(t, m.List(), 1)

	m.Remove("es-1m")
	_, ok = m.Get("es-1m")
	assert.False(t, ok)
}
