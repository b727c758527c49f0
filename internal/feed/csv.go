package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/swingdag/internal/contracts"
)

// csvColumns is the expected header, in order.
var csvColumns = []string{"index", "timestamp", "open", "high", "low", "close"}

// CSVSource reads bars from `index,timestamp,open,high,low,close` rows.
// The header row is optional. Timestamps are RFC3339 or unix seconds.
// When the index column is empty the row number is used.
type CSVSource struct {
	r    *csv.Reader
	line int
	next int64
}

// NewCSVSource wraps r. The caller owns closing the underlying reader.
func NewCSVSource(r io.Reader) *CSVSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvColumns)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return &CSVSource{r: cr}
}

// Next implements contracts.BarSource.
func (s *CSVSource) Next(ctx context.Context) (contracts.Bar, error) {
	for {
		if err := ctx.Err(); err != nil {
			return contracts.Bar{}, err
		}

		rec, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			return contracts.Bar{}, io.EOF
		}
		if err != nil {
			return contracts.Bar{}, fmt.Errorf("csv: %w", err)
		}
		s.line++

		if s.line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), csvColumns[0]) {
			continue // header
		}

		bar, err := s.parse(rec)
		if err != nil {
			return contracts.Bar{}, fmt.Errorf("csv line %d: %w", s.line, err)
		}
		s.next = bar.Index + 1
		return bar, nil
	}
}

func (s *CSVSource) parse(rec []string) (contracts.Bar, error) {
	var b contracts.Bar

	if idx := strings.TrimSpace(rec[0]); idx == "" {
		b.Index = s.next
	} else {
		v, err := strconv.ParseInt(idx, 10, 64)
		if err != nil {
			return b, fmt.Errorf("index %q: %w", idx, err)
		}
		b.Index = v
	}

	ts, err := parseTimestamp(strings.TrimSpace(rec[1]))
	if err != nil {
		return b, err
	}
	b.Timestamp = ts

	prices := []*float64{&b.Open, &b.High, &b.Low, &b.Close}
	for i, dst := range prices {
		raw := strings.TrimSpace(rec[2+i])
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return b, fmt.Errorf("%s %q: %w", csvColumns[2+i], raw, err)
		}
		*dst = v
	}
	return b, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q: unsupported format", raw)
}

// WriteCSV writes bars in the format CSVSource reads.
func WriteCSV(w io.Writer, bars []contracts.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			strconv.FormatInt(b.Index, 10),
			b.Timestamp.UTC().Format(time.RFC3339Nano),
			formatF(b.Open), formatF(b.High), formatF(b.Low), formatF(b.Close),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
