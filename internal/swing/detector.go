package swing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/swingdag/internal/contracts"
)

// formationEpsilon absorbs float rounding at the exact threshold price.
const formationEpsilon = 1e-9

// formedNamespace seeds the deterministic reference ids of formed legs.
var formedNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/wonny/swingdag/formed-leg"))

// Detector incrementally maintains legs over one instrument/timeframe stream.
//
// A Detector is not safe for concurrent use. One goroutine drives it through
// ProcessBar; readers that need a consistent view take a Snapshot or copy the
// results of the query methods.
type Detector struct {
	cfg    Config
	log    zerolog.Logger
	state  *State
	events eventLog
	pruner pruner

	// halted holds the fatal cause once the stream is unusable.
	halted error
}

// New creates a detector with an empty state. The config is validated here,
// before any bar is processed.
func New(cfg Config, log zerolog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}
	return newDetector(cfg, log, newState(), 0), nil
}

func newDetector(cfg Config, log zerolog.Logger, st *State, lastEventSeq uint64) *Detector {
	l := log.With().Str("component", "swing.detector").Logger()
	return &Detector{
		cfg:    cfg,
		log:    l,
		state:  st,
		events: eventLog{next: lastEventSeq},
		pruner: pruner{cfg: cfg, log: log.With().Str("component", "swing.pruner").Logger()},
	}
}

// ProcessBar feeds one bar and returns the events it produced, in order.
//
// A bar that fails validation or does not advance past the previous bar is
// fatal for the stream: the state is left as it was and every later call
// returns ErrDetectorHalted.
func (d *Detector) ProcessBar(bar contracts.Bar) ([]Event, error) {
	if d.halted != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectorHalted, d.halted)
	}
	if err := bar.Validate(); err != nil {
		return nil, d.halt(fmt.Errorf("%w: %v", ErrInvalidPrice, err))
	}

	s := d.state
	rel := RelationFirst
	if s.prevBar != nil {
		if !s.prevBar.Precedes(bar) {
			return nil, d.halt(fmt.Errorf("%w: bar %d (%s) does not follow bar %d (%s)",
				ErrNonMonotonicBar, bar.Index, bar.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				s.prevBar.Index, s.prevBar.Timestamp.Format("2006-01-02T15:04:05Z07:00")))
		}
		rel = Classify(*s.prevBar, bar)
	}

	d.events.begin(bar.Index)

	// 1. pivot extension
	extended := d.extendPivots(rel, bar)
	// 2. breach detection
	d.detectBreaches(bar)
	// 3. formation
	d.checkFormation(bar, extended)
	// 4. leg creation + pending origins
	d.createLegs(rel, bar)
	// 5. pruning
	d.pruner.run(s, &d.events, bar.Index)
	// 6. segment tracking
	d.refreshSegments()

	b := bar
	s.prevBar = &b
	s.barsProcessed++

	if err := s.checkInvariants(); err != nil {
		return nil, d.halt(fmt.Errorf("bar %d: %w", bar.Index, err))
	}

	d.log.Debug().
		Int64("bar", bar.Index).
		Str("relation", rel.String()).
		Int("active_legs", len(s.order)).
		Int("events", len(d.events.batch)).
		Msg("bar processed")

	out := make([]Event, len(d.events.batch))
	copy(out, d.events.batch)
	return out, nil
}

// Process feeds bars in order. It is observably identical to calling
// ProcessBar once per bar. On error the events produced so far are returned
// together with the error.
func (d *Detector) Process(bars ...contracts.Bar) ([]Event, error) {
	var all []Event
	for _, bar := range bars {
		evs, err := d.ProcessBar(bar)
		all = append(all, evs...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

func (d *Detector) halt(err error) error {
	d.halted = err
	d.log.Debug().Err(err).Msg("detector halted")
	return err
}

// Err returns the fatal cause if the detector has halted, nil otherwise.
func (d *Detector) Err() error {
	return d.halted
}

func (d *Detector) extendPivots(rel BarRelation, bar contracts.Bar) map[LegID]bool {
	extended := make(map[LegID]bool)
	if rel == RelationFirst {
		return extended
	}
	for _, l := range d.state.active() {
		if l.extendPivot(PricePoint{Price: favourable(l.Direction, bar), Index: bar.Index}) {
			extended[l.ID] = true
		}
	}
	return extended
}

func (d *Detector) detectBreaches(bar contracts.Bar) {
	for _, l := range d.state.active() {
		past := -l.Direction.excursion(l.Origin.Price, adverse(l.Direction, bar))
		if l.recordOriginBreach(past) {
			at := bar.Index
			l.InvalidatedAt = &at
			d.log.Debug().Str("leg", string(l.ID)).Float64("breach", past).Msg("origin breached")
		}
		// 순서 중요: origin breach가 기록된 뒤에만 pivot breach를 추적
		l.recordPivotBreach(l.Direction.excursion(l.Pivot.Price, favourable(l.Direction, bar)))
	}
}

func (d *Detector) checkFormation(bar contracts.Bar, extended map[LegID]bool) {
	for _, l := range d.state.active() {
		if l.IsFormed() || l.Range == 0 {
			continue
		}
		// The bar's own high/low order is unknown when it moved the pivot.
		price := adverse(l.Direction, bar)
		if extended[l.ID] {
			price = bar.Close
		}
		if l.Retracement(price) < d.cfg.FormationThreshold(l.Direction)-formationEpsilon {
			continue
		}
		if !l.markFormed(uuid.NewSHA1(formedNamespace, []byte(l.ID)).String(), bar.Index) {
			continue
		}
		d.state.dist.add(l.Range, l.Impulse)
		d.events.formed(l)
		d.log.Debug().Str("leg", string(l.ID)).Float64("range", l.Range).Msg("leg formed")
	}
}

func (d *Detector) createLegs(rel BarRelation, bar contracts.Bar) {
	s := d.state

	switch {
	case rel == RelationFirst:
		// Only open and close have a known order on the first bar.
		open := PricePoint{Price: bar.Open, Index: bar.Index}
		cl := PricePoint{Price: bar.Close, Index: bar.Index}
		switch {
		case bar.Close > bar.Open:
			d.addLeg(Bull, open, cl, bar.Index)
		case bar.Close < bar.Open:
			d.addLeg(Bear, open, cl, bar.Index)
		}
		s.pending.offer(Bull, PricePoint{Price: bar.Low, Index: bar.Index})
		s.pending.offer(Bear, PricePoint{Price: bar.High, Index: bar.Index})
		return

	case rel == Inside && s.barsProcessed == 1:
		prev := *s.prevBar
		d.seed(Bull, PricePoint{Price: prev.Low, Index: prev.Index}, PricePoint{Price: bar.High, Index: bar.Index}, bar.Index)
		d.seed(Bear, PricePoint{Price: prev.High, Index: prev.Index}, PricePoint{Price: bar.Low, Index: bar.Index}, bar.Index)
		s.pending.clear(Bull)
		s.pending.clear(Bear)
		return
	}

	if rel.HigherHigh() {
		d.createFromPending(Bull, bar)
	}
	if rel.LowerLow() {
		d.createFromPending(Bear, bar)
	}

	// An inside bar's low is known to follow the previous high (and its high
	// the previous low), so a pullback made of inside bars still leaves an origin.
	if rel.LowerLow() || rel == Inside {
		s.pending.offer(Bull, PricePoint{Price: bar.Low, Index: bar.Index})
	}
	if rel.HigherHigh() || rel == Inside {
		s.pending.offer(Bear, PricePoint{Price: bar.High, Index: bar.Index})
	}
}

func (d *Detector) seed(dir Direction, origin, pivot PricePoint, barIndex int64) {
	if dir.excursion(origin.Price, pivot.Price) <= 0 || d.state.hasOrigin(dir, origin) {
		return
	}
	d.addLeg(dir, origin, pivot, barIndex)
}

// createFromPending pairs the pending origin with this bar's new extreme.
func (d *Detector) createFromPending(dir Direction, bar contracts.Bar) {
	s := d.state
	p := s.pending.Get(dir)
	if p == nil {
		return
	}
	origin := *p
	if origin.Index >= bar.Index {
		return
	}
	// The same bar also undercut the origin; which came first is unknown.
	if dir.excursion(origin.Price, adverse(dir, bar)) < 0 {
		return
	}
	pivot := PricePoint{Price: favourable(dir, bar), Index: bar.Index}
	if dir.excursion(origin.Price, pivot.Price) <= 0 {
		return
	}
	if !s.hasOrigin(dir, origin) {
		d.addLeg(dir, origin, pivot, bar.Index)
	}
	s.pending.clear(dir)
}

func (d *Detector) addLeg(dir Direction, origin, pivot PricePoint, barIndex int64) *Leg {
	s := d.state
	seq := s.nextLegSeq
	s.nextLegSeq++

	id := LegID(fmt.Sprintf("%s-%d-%d", dir, origin.Index, seq))
	l := newLeg(id, seq, dir, origin, pivot, barIndex)
	if parent := d.findParent(l); parent != nil {
		l.ParentID = parent.ID
		l.Depth = parent.Depth + 1
	}
	s.add(l)
	d.events.created(l)

	d.log.Debug().
		Str("leg", string(id)).
		Str("parent", string(l.ParentID)).
		Float64("origin", origin.Price).
		Float64("pivot", pivot.Price).
		Msg("leg created")
	return l
}

// findParent returns the innermost unbroken leg of the same direction whose
// span contains the child's origin.
func (d *Detector) findParent(child *Leg) *Leg {
	var best *Leg
	for _, p := range d.state.active() {
		if p.Direction != child.Direction || p.OriginBreached() {
			continue
		}
		if p.Origin.Index >= child.Origin.Index {
			continue
		}
		if !child.Direction.beyond(child.Origin.Price, p.Origin.Price) ||
			!child.Direction.beyond(p.Pivot.Price, child.Origin.Price) {
			continue
		}
		if best == nil || p.Origin.Index > best.Origin.Index ||
			(p.Origin.Index == best.Origin.Index && p.Seq > best.Seq) {
			best = p
		}
	}
	return best
}

// refreshSegments lets childless legs track their pivot as segment_deepest.
func (d *Detector) refreshSegments() {
	parents := make(map[LegID]bool)
	for _, l := range d.state.active() {
		if l.ParentID != "" {
			parents[l.ParentID] = true
		}
	}
	for _, l := range d.state.active() {
		if !parents[l.ID] {
			l.SegmentDeepest = l.Pivot
		}
	}
}

// Config returns a copy of the detector's thresholds.
func (d *Detector) Config() Config { return d.cfg }

// BarsProcessed returns the number of bars accepted so far.
func (d *Detector) BarsProcessed() int64 { return d.state.barsProcessed }

// LastBar returns the most recently accepted bar.
func (d *Detector) LastBar() (contracts.Bar, bool) {
	if d.state.prevBar == nil {
		return contracts.Bar{}, false
	}
	return *d.state.prevBar, true
}

// LastEventSeq returns the sequence number of the most recent event.
func (d *Detector) LastEventSeq() uint64 { return d.events.next }

// ActiveLegs returns copies of the active legs in creation order.
func (d *Detector) ActiveLegs() []Leg {
	active := d.state.active()
	out := make([]Leg, 0, len(active))
	for _, l := range active {
		out = append(out, l.clone())
	}
	return out
}

// Leg returns a copy of the active leg with the given id.
func (d *Detector) Leg(id LegID) (Leg, bool) {
	l := d.state.leg(id)
	if l == nil {
		return Leg{}, false
	}
	return l.clone(), true
}

// CounterTrendRange returns the leg's counter-trend range against its
// current parent. ok is false for roots and unknown ids.
func (d *Detector) CounterTrendRange(id LegID) (float64, bool) {
	l := d.state.leg(id)
	if l == nil {
		return 0, false
	}
	return l.CounterTrendRange(d.state.leg(l.ParentID))
}

// Pending returns a copy of the pending origins.
func (d *Detector) Pending() PendingOrigins { return d.state.pending.clone() }

// Distribution returns a copy of the formed-leg distribution.
func (d *Detector) Distribution() Distribution { return d.state.dist.clone() }
