package swing

// EventType names a leg lifecycle transition.
type EventType string

const (
	EventLegCreated     EventType = "leg_created"
	EventLegFormed      EventType = "leg_formed"
	EventLegPruned      EventType = "leg_pruned"
	EventLegInvalidated EventType = "leg_invalidated"
)

// Reason is the machine-readable cause attached to pruned and invalidated events.
type Reason string

const (
	ReasonOriginBreached     Reason = "origin_breached"
	ReasonEngulfed           Reason = "engulfed"
	ReasonStale              Reason = "stale"
	ReasonPivotCap           Reason = "pivot_cap"
	ReasonProximityDuplicate Reason = "proximity_duplicate"
	ReasonParentInvalidated  Reason = "parent_invalidated"
	ReasonParentEngulfed     Reason = "parent_engulfed"
)

// Cascades reports whether pruning for this reason also prunes descendants.
func (r Reason) Cascades() bool {
	return r == ReasonEngulfed
}

// Event is one entry of the append-only lifecycle stream.
//
// Seq increases by one per event across the whole life of a detector, so a
// consumer can resume from the last sequence it saw.
type Event struct {
	Seq      uint64    `json:"seq"`
	BarIndex int64     `json:"bar_index"`
	Type     EventType `json:"type"`
	LegID    LegID     `json:"leg_id"`

	// LegCreated
	Direction Direction   `json:"direction,omitempty"`
	Origin    *PricePoint `json:"origin,omitempty"`
	Pivot     *PricePoint `json:"pivot,omitempty"`
	ParentID  LegID       `json:"parent_id,omitempty"`

	// LegFormed
	ReferenceID string `json:"reference_id,omitempty"`

	// LegPruned, LegInvalidated
	Reason Reason `json:"reason,omitempty"`
}

// eventLog assigns sequence numbers and collects the events of one bar.
type eventLog struct {
	next  uint64
	batch []Event
	bar   int64
}

func (l *eventLog) begin(barIndex int64) {
	l.bar = barIndex
	l.batch = nil
}

func (l *eventLog) emit(e Event) {
	l.next++
	e.Seq = l.next
	e.BarIndex = l.bar
	l.batch = append(l.batch, e)
}

func (l *eventLog) created(leg *Leg) {
	origin, pivot := leg.Origin, leg.Pivot
	l.emit(Event{
		Type:      EventLegCreated,
		LegID:     leg.ID,
		Direction: leg.Direction,
		Origin:    &origin,
		Pivot:     &pivot,
		ParentID:  leg.ParentID,
	})
}

func (l *eventLog) formed(leg *Leg) {
	l.emit(Event{Type: EventLegFormed, LegID: leg.ID, Direction: leg.Direction, ReferenceID: leg.FormedReferenceID})
}

func (l *eventLog) pruned(leg *Leg, reason Reason) {
	l.emit(Event{Type: EventLegPruned, LegID: leg.ID, Direction: leg.Direction, Reason: reason})
}

func (l *eventLog) invalidated(leg *Leg) {
	l.emit(Event{Type: EventLegInvalidated, LegID: leg.ID, Direction: leg.Direction, Reason: ReasonOriginBreached})
}
