package contracts

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBar_Validate(t *testing.T) {
	ts := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		bar     Bar
		wantErr bool
	}{
		{
			name: "valid bar",
			bar:  Bar{Index: 1, Timestamp: ts, Open: 100, High: 105, Low: 99, Close: 104},
		},
		{
			name: "flat bar",
			bar:  Bar{Index: 1, Timestamp: ts, Open: 100, High: 100, Low: 100, Close: 100},
		},
		{
			name:    "nan close",
			bar:     Bar{Index: 1, Timestamp: ts, Open: 100, High: 105, Low: 99, Close: math.NaN()},
			wantErr: true,
		},
		{
			name:    "inf high",
			bar:     Bar{Index: 1, Timestamp: ts, Open: 100, High: math.Inf(1), Low: 99, Close: 100},
			wantErr: true,
		},
		{
			name:    "high below low",
			bar:     Bar{Index: 1, Timestamp: ts, Open: 100, High: 98, Low: 99, Close: 100},
			wantErr: true,
		},
		{
			name:    "open above high",
			bar:     Bar{Index: 1, Timestamp: ts, Open: 106, High: 105, Low: 99, Close: 100},
			wantErr: true,
		},
		{
			name:    "close below low",
			bar:     Bar{Index: 1, Timestamp: ts, Open: 100, High: 105, Low: 99, Close: 98},
			wantErr: true,
		},
		{
			name:    "missing timestamp",
			bar:     Bar{Index: 1, Open: 100, High: 105, Low: 99, Close: 100},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bar.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBar_Precedes(t *testing.T) {
	ts := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	a := Bar{Index: 1, Timestamp: ts}

	assert.True(t, a.Precedes(Bar{Index: 2, Timestamp: ts.Add(time.Minute)}))
	assert.False(t, a.Precedes(Bar{Index: 2, Timestamp: ts}), "same timestamp")
	assert.False(t, a.Precedes(Bar{Index: 1, Timestamp: ts.Add(time.Minute)}), "same index")
	assert.False(t, a.Precedes(Bar{Index: 0, Timestamp: ts.Add(time.Minute)}), "index goes back")
}

func TestStream_Key(t *testing.T) {
	s := Stream{Instrument: "ES", Timeframe: "5m"}
	assert.Equal(t, "ES:5m", s.Key())
}
