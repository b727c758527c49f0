package feed

import (
	"context"
	"io"

	"github.com/wonny/swingdag/internal/contracts"
)

// SliceSource serves bars from memory.
type SliceSource struct {
	bars []contracts.Bar
	pos  int
}

// NewSliceSource returns a source over bars. The slice is not copied.
func NewSliceSource(bars []contracts.Bar) *SliceSource {
	return &SliceSource{bars: bars}
}

// Next implements contracts.BarSource.
func (s *SliceSource) Next(ctx context.Context) (contracts.Bar, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Bar{}, err
	}
	if s.pos >= len(s.bars) {
		return contracts.Bar{}, io.EOF
	}
	b := s.bars[s.pos]
	s.pos++
	return b, nil
}

// ReadAll drains src into a slice.
func ReadAll(ctx context.Context, src contracts.BarSource) ([]contracts.Bar, error) {
	var out []contracts.Bar
	for {
		b, err := src.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
}

// SkipThrough drops every bar with Index <= last, e.g. bars already covered by
// a restored checkpoint.
func SkipThrough(src contracts.BarSource, last int64) contracts.BarSource {
	return &skipSource{src: src, last: last}
}

type skipSource struct {
	src  contracts.BarSource
	last int64
}

func (s *skipSource) Next(ctx context.Context) (contracts.Bar, error) {
	for {
		b, err := s.src.Next(ctx)
		if err != nil || b.Index > s.last {
			return b, err
		}
	}
}
