package swing

import (
	"math"

	"github.com/wonny/swingdag/internal/contracts"
)

// State is the mutable structure owned by one detector instance.
// Legs live in an arena keyed by id; parent links are ids resolved through it.
type State struct {
	legs  map[LegID]*Leg
	order []LegID // creation order of active legs

	pending PendingOrigins
	dist    Distribution

	prevBar       *contracts.Bar
	barsProcessed int64
	nextLegSeq    uint64
}

func newState() *State {
	return &State{legs: make(map[LegID]*Leg)}
}

func (s *State) leg(id LegID) *Leg {
	if id == "" {
		return nil
	}
	return s.legs[id]
}

// active returns the active legs in creation order.
func (s *State) active() []*Leg {
	out := make([]*Leg, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.legs[id])
	}
	return out
}

func (s *State) add(l *Leg) {
	s.legs[l.ID] = l
	s.order = append(s.order, l.ID)
}

// remove drops pruned legs from the arena.
func (s *State) remove(ids map[LegID]bool) {
	if len(ids) == 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if ids[id] {
			delete(s.legs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func (s *State) hasChild(id LegID) bool {
	for _, other := range s.order {
		if s.legs[other].ParentID == id {
			return true
		}
	}
	return false
}

// descendants returns every active transitive child of id in creation order.
// Children are always created after their ancestors, so one ordered pass is enough.
func (s *State) descendants(id LegID) []*Leg {
	set := map[LegID]bool{id: true}
	var out []*Leg
	for _, other := range s.order {
		l := s.legs[other]
		if l.ParentID != "" && set[l.ParentID] && !set[l.ID] {
			set[l.ID] = true
			out = append(out, l)
		}
	}
	return out
}

// hasOrigin reports whether an active leg already starts at origin in direction d.
func (s *State) hasOrigin(d Direction, origin PricePoint) bool {
	for _, id := range s.order {
		l := s.legs[id]
		if l.Direction == d && l.Origin == origin {
			return true
		}
	}
	return false
}

// checkInvariants validates the structural rules after every bar.
func (s *State) checkInvariants() error {
	if len(s.order) != len(s.legs) {
		return invariantf("arena holds %d legs, order holds %d", len(s.legs), len(s.order))
	}
	for _, id := range s.order {
		l, ok := s.legs[id]
		if !ok {
			return invariantf("leg %s in order but not in arena", id)
		}
		if !l.IsActive() {
			return invariantf("pruned leg %s still in active set", id)
		}
		if math.IsNaN(l.Range) || l.Range < 0 {
			return invariantf("leg %s has range %v", id, l.Range)
		}
		if l.Origin.Index > l.Pivot.Index {
			return invariantf("leg %s origin bar %d after pivot bar %d", id, l.Origin.Index, l.Pivot.Index)
		}
		if l.Direction.beyond(l.Origin.Price, l.Pivot.Price) {
			return invariantf("leg %s origin %.8g beyond pivot %.8g", id, l.Origin.Price, l.Pivot.Price)
		}
		if l.MaxPivotBreach != nil && l.MaxOriginBreach == nil {
			return invariantf("leg %s has pivot breach without origin breach", id)
		}
		if l.ParentID != "" {
			p, ok := s.legs[l.ParentID]
			if !ok {
				return invariantf("leg %s references missing parent %s", id, l.ParentID)
			}
			if p.Seq >= l.Seq {
				return invariantf("leg %s parent %s was created later", id, p.ID)
			}
		}
	}
	return nil
}

func (s *State) clone() *State {
	c := &State{
		legs:          make(map[LegID]*Leg, len(s.legs)),
		order:         append([]LegID(nil), s.order...),
		pending:       s.pending.clone(),
		dist:          s.dist.clone(),
		barsProcessed: s.barsProcessed,
		nextLegSeq:    s.nextLegSeq,
	}
	for id, l := range s.legs {
		cl := l.clone()
		c.legs[id] = &cl
	}
	if s.prevBar != nil {
		b := *s.prevBar
		c.prevBar = &b
	}
	return c
}
