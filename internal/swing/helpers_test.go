package swing

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/wonny/swingdag/internal/contracts"
)

var t0 = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func bar(i int64, o, h, l, c float64) contracts.Bar {
	return contracts.Bar{
		Index:     i,
		Timestamp: t0.Add(time.Duration(i) * time.Minute),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
	}
}

func newTestDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	return d
}

// randomWalk builds a reproducible bar series.
func randomWalk(seed int64, n int) []contracts.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]contracts.Bar, 0, n)
	price := 1000.0
	for i := 0; i < n; i++ {
		open := price
		cl := open + rng.NormFloat64()*8
		hi := math.Max(open, cl) + math.Abs(rng.NormFloat64())*4
		lo := math.Min(open, cl) - math.Abs(rng.NormFloat64())*4
		bars = append(bars, bar(int64(i), round(open), round(hi), round(lo), round(cl)))
		price = cl
	}
	return bars
}

// round snaps to a 0.25 tick so equal prices actually occur.
func round(v float64) float64 {
	return math.Round(v*4) / 4
}

func findEvent(events []Event, typ EventType, id LegID) (Event, bool) {
	for _, e := range events {
		if e.Type == typ && e.LegID == id {
			return e, true
		}
	}
	return Event{}, false
}

func eventIndex(events []Event, typ EventType, id LegID) int {
	for i, e := range events {
		if e.Type == typ && e.LegID == id {
			return i
		}
	}
	return -1
}

func zeroLogger() zerolog.Logger { return zerolog.Nop() }
