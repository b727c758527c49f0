package swing

import (
	"math"
	"sort"
)

// Distribution is the all-time record of formed-leg ranges and impulses, kept
// sorted for percentile lookups.
type Distribution struct {
	Ranges   []float64 `json:"ranges"`
	Impulses []float64 `json:"impulses"`
}

// Count returns the number of formed legs recorded.
func (d Distribution) Count() int { return len(d.Ranges) }

func (d *Distribution) add(rng, impulse float64) {
	d.Ranges = insertSorted(d.Ranges, rng)
	d.Impulses = insertSorted(d.Impulses, impulse)
}

// RangePercentile returns the share (0..100) of recorded ranges <= v.
func (d Distribution) RangePercentile(v float64) float64 {
	return percentileRank(d.Ranges, v)
}

// ImpulsePercentile returns the share (0..100) of recorded impulses <= v.
func (d Distribution) ImpulsePercentile(v float64) float64 {
	return percentileRank(d.Impulses, v)
}

// RangeQuantile returns the q-quantile (0..1) of recorded ranges, NaN when empty.
func (d Distribution) RangeQuantile(q float64) float64 {
	return quantile(d.Ranges, q)
}

// ImpulseQuantile returns the q-quantile (0..1) of recorded impulses, NaN when empty.
func (d Distribution) ImpulseQuantile(q float64) float64 {
	return quantile(d.Impulses, q)
}

func (d Distribution) clone() Distribution {
	var c Distribution
	if d.Ranges != nil {
		c.Ranges = append([]float64(nil), d.Ranges...)
	}
	if d.Impulses != nil {
		c.Impulses = append([]float64(nil), d.Impulses...)
	}
	return c
}

func insertSorted(xs []float64, v float64) []float64 {
	i := sort.SearchFloat64s(xs, v)
	xs = append(xs, 0)
	copy(xs[i+1:], xs[i:])
	xs[i] = v
	return xs
}

func percentileRank(sorted []float64, v float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	n := sort.Search(len(sorted), func(i int) bool { return sorted[i] > v })
	return 100 * float64(n) / float64(len(sorted))
}

// quantile uses linear interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 || math.IsNaN(q) {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
