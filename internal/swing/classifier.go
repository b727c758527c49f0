package swing

import "github.com/wonny/swingdag/internal/contracts"

// BarRelation classifies a bar against the previous bar's extremes. It decides
// which prices are causally usable on this bar.
type BarRelation int

const (
	// RelationFirst is the first bar of a stream; it has no previous bar.
	RelationFirst BarRelation = iota
	// Inside: no new extreme on either side.
	Inside
	// BullContinuation: higher high, no lower low.
	BullContinuation
	// BearContinuation: lower low, no higher high.
	BearContinuation
	// Outside: higher high and lower low. Intra-bar order is unknown.
	Outside
)

// Classify compares cur against prev.
func Classify(prev, cur contracts.Bar) BarRelation {
	hh := cur.High > prev.High
	ll := cur.Low < prev.Low
	switch {
	case hh && ll:
		return Outside
	case hh:
		return BullContinuation
	case ll:
		return BearContinuation
	default:
		return Inside
	}
}

// HigherHigh reports whether the bar made a new high over the previous bar.
func (r BarRelation) HigherHigh() bool {
	return r == BullContinuation || r == Outside
}

// LowerLow reports whether the bar made a new low under the previous bar.
func (r BarRelation) LowerLow() bool {
	return r == BearContinuation || r == Outside
}

// NewExtreme reports whether the bar made a new extreme in direction d.
func (r BarRelation) NewExtreme(d Direction) bool {
	if d == Bull {
		return r.HigherHigh()
	}
	return r.LowerLow()
}

func (r BarRelation) String() string {
	switch r {
	case RelationFirst:
		return "first"
	case Inside:
		return "inside"
	case BullContinuation:
		return "bull_continuation"
	case BearContinuation:
		return "bear_continuation"
	case Outside:
		return "outside"
	default:
		return "unknown"
	}
}

// favourable is the bar's extreme in d's trend direction.
func favourable(d Direction, b contracts.Bar) float64 {
	if d == Bull {
		return b.High
	}
	return b.Low
}

// adverse is the bar's extreme against d's trend direction.
func adverse(d Direction, b contracts.Bar) float64 {
	if d == Bull {
		return b.Low
	}
	return b.High
}
