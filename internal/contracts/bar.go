package contracts

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Bar is one OHLC price bar from the feed.
// ⭐ SSOT: 모든 바 입력은 이 타입으로만 들어온다
type Bar struct {
	Index     int64     `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
}

// Validate checks the bar's own prices. Ordering against the previous bar is
// the consumer's job.
func (b Bar) Validate() error {
	prices := []struct {
		name  string
		value float64
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
	}
	for _, p := range prices {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) {
			return fmt.Errorf("bar %d: %s is not a finite number", b.Index, p.name)
		}
	}

	if b.High < b.Low {
		return fmt.Errorf("bar %d: high %.8g below low %.8g", b.Index, b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low {
		return fmt.Errorf("bar %d: open %.8g outside [%.8g, %.8g]", b.Index, b.Open, b.Low, b.High)
	}
	if b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("bar %d: close %.8g outside [%.8g, %.8g]", b.Index, b.Close, b.Low, b.High)
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("bar %d: timestamp is required", b.Index)
	}

	return nil
}

// Precedes reports whether b comes strictly before next in both index and time.
func (b Bar) Precedes(next Bar) bool {
	return b.Index < next.Index && b.Timestamp.Before(next.Timestamp)
}

// BarSource supplies bars one at a time in feed order.
// Next returns io.EOF once the source is exhausted.
type BarSource interface {
	Next(ctx context.Context) (Bar, error)
}

// Stream identifies one instrument/timeframe series.
type Stream struct {
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
}

// Key returns a stable string form used for cache keys and message keys.
func (s Stream) Key() string {
	return s.Instrument + ":" + s.Timeframe
}
