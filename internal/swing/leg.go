package swing

import "math"

// LegID identifies a leg for its whole lifetime. IDs are never reused.
type LegID string

// LegStatus is the lifecycle status of a leg.
type LegStatus string

const (
	StatusActive LegStatus = "active"
	StatusPruned LegStatus = "pruned"
)

// Leg is a directional move from a fixed origin to an extending pivot.
//
// A bull leg's origin is a low and its pivot a high; a bear leg is the mirror.
// The pivot extends while the origin holds and freezes on the first origin
// breach. MaxPivotBreach is only tracked once MaxOriginBreach is set.
type Leg struct {
	ID        LegID      `json:"id"`
	Seq       uint64     `json:"seq"`
	Direction Direction  `json:"direction"`
	Origin    PricePoint `json:"origin"`
	Pivot     PricePoint `json:"pivot"`
	Status    LegStatus  `json:"status"`

	Range    float64 `json:"range"`
	BarCount int64   `json:"bar_count"`
	Impulse  float64 `json:"impulse"`

	MaxOriginBreach *float64 `json:"max_origin_breach,omitempty"`
	MaxPivotBreach  *float64 `json:"max_pivot_breach,omitempty"`

	FormedReferenceID string `json:"formed_reference_id,omitempty"`
	FormedAt          *int64 `json:"formed_bar_index,omitempty"`

	ParentID       LegID      `json:"parent_id,omitempty"`
	Depth          int        `json:"depth"`
	SegmentDeepest PricePoint `json:"segment_deepest"`

	CreatedAt       int64  `json:"created_bar_index"`
	PivotExtendedAt int64  `json:"pivot_extended_bar_index"`
	InvalidatedAt   *int64 `json:"invalidated_bar_index,omitempty"`
	PruneReason     Reason `json:"prune_reason,omitempty"`
}

func newLeg(id LegID, seq uint64, dir Direction, origin, pivot PricePoint, barIndex int64) *Leg {
	l := &Leg{
		ID:              id,
		Seq:             seq,
		Direction:       dir,
		Origin:          origin,
		Pivot:           pivot,
		Status:          StatusActive,
		SegmentDeepest:  pivot,
		CreatedAt:       barIndex,
		PivotExtendedAt: barIndex,
	}
	l.recompute()
	return l
}

func (l *Leg) recompute() {
	l.Range = math.Abs(l.Pivot.Price - l.Origin.Price)
	l.BarCount = l.Pivot.Index - l.Origin.Index
	if l.BarCount < 1 {
		l.BarCount = 1
	}
	l.Impulse = l.Range / float64(l.BarCount)
}

// IsActive reports whether the leg is still part of the active population.
func (l *Leg) IsActive() bool { return l.Status == StatusActive }

// IsFormed reports whether the leg has been confirmed as a formed swing.
func (l *Leg) IsFormed() bool { return l.FormedReferenceID != "" }

// OriginBreached reports whether price has crossed the origin adversely.
func (l *Leg) OriginBreached() bool { return l.MaxOriginBreach != nil }

// Retracement returns how far price has travelled from the pivot back toward
// the origin, as a fraction of range. 0 at the pivot, 1 at the origin,
// above 1 past the origin. A zero-range leg always reports 0.
func (l *Leg) Retracement(price float64) float64 {
	if l.Range == 0 {
		return 0
	}
	return -l.Direction.excursion(l.Pivot.Price, price) / l.Range
}

// CounterTrendRange is the size of the opposing move that produced this leg's
// origin: |origin - parent.segment_deepest|. ok is false for root legs.
func (l *Leg) CounterTrendRange(parent *Leg) (float64, bool) {
	if parent == nil {
		return 0, false
	}
	return math.Abs(l.Origin.Price - parent.SegmentDeepest.Price), true
}

// extendPivot moves the pivot to p if p is beyond it and the origin holds.
func (l *Leg) extendPivot(p PricePoint) bool {
	if l.OriginBreached() || !l.Direction.beyond(p.Price, l.Pivot.Price) {
		return false
	}
	l.Pivot = p
	l.PivotExtendedAt = p.Index
	l.recompute()
	return true
}

// recordOriginBreach grows MaxOriginBreach. Returns true on the first breach.
func (l *Leg) recordOriginBreach(excursion float64) bool {
	if excursion <= 0 {
		return false
	}
	if l.MaxOriginBreach == nil {
		v := excursion
		l.MaxOriginBreach = &v
		return true
	}
	if excursion > *l.MaxOriginBreach {
		*l.MaxOriginBreach = excursion
	}
	return false
}

// recordPivotBreach grows MaxPivotBreach. No-op until the origin is breached.
func (l *Leg) recordPivotBreach(excursion float64) {
	if !l.OriginBreached() || excursion <= 0 {
		return
	}
	if l.MaxPivotBreach == nil {
		v := excursion
		l.MaxPivotBreach = &v
		return
	}
	if excursion > *l.MaxPivotBreach {
		*l.MaxPivotBreach = excursion
	}
}

// markFormed assigns the reference id once. Returns false if already formed.
func (l *Leg) markFormed(referenceID string, barIndex int64) bool {
	if l.IsFormed() {
		return false
	}
	l.FormedReferenceID = referenceID
	at := barIndex
	l.FormedAt = &at
	return true
}

func (l *Leg) markPruned(reason Reason) {
	l.Status = StatusPruned
	l.PruneReason = reason
}

// pivotKey groups legs that share the same pivot anchor.
type pivotKey struct {
	dir   Direction
	price float64
	index int64
}

func (l *Leg) pivotKey() pivotKey {
	return pivotKey{dir: l.Direction, price: l.Pivot.Price, index: l.Pivot.Index}
}

// clone returns a deep copy safe to hand to readers.
func (l *Leg) clone() Leg {
	c := *l
	if l.MaxOriginBreach != nil {
		v := *l.MaxOriginBreach
		c.MaxOriginBreach = &v
	}
	if l.MaxPivotBreach != nil {
		v := *l.MaxPivotBreach
		c.MaxPivotBreach = &v
	}
	if l.FormedAt != nil {
		v := *l.FormedAt
		c.FormedAt = &v
	}
	if l.InvalidatedAt != nil {
		v := *l.InvalidatedAt
		c.InvalidatedAt = &v
	}
	return c
}
