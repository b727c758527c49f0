package swing

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// pruner keeps the active population bounded. It runs once per bar, after
// the detector's own steps, in a fixed rule order:
// invalidation cascade, engulfment, staleness, proximity dedup, pivot cap.
type pruner struct {
	cfg Config
	log zerolog.Logger

	// per-run scratch
	state   *State
	events  *eventLog
	removed map[LegID]bool
	counts  map[Reason]int
}

func (p *pruner) run(s *State, events *eventLog, barIndex int64) {
	p.state = s
	p.events = events
	p.removed = make(map[LegID]bool)
	p.counts = make(map[Reason]int)

	p.invalidations(barIndex)
	p.engulfment()
	p.staleness()
	p.proximity()
	p.pivotCap()

	s.remove(p.removed)

	if len(p.removed) > 0 {
		ev := p.log.Debug().Int64("bar", barIndex).Int("pruned", len(p.removed))
		for _, r := range sortedReasons(p.counts) {
			ev = ev.Int(string(r), p.counts[r])
		}
		ev.Msg("pruning pass")
	}

	p.state, p.events, p.removed, p.counts = nil, nil, nil, nil
}

// live returns active legs not yet pruned in this pass, in creation order.
func (p *pruner) live() []*Leg {
	var out []*Leg
	for _, l := range p.state.active() {
		if !p.removed[l.ID] {
			out = append(out, l)
		}
	}
	return out
}

func (p *pruner) prune(l *Leg, reason Reason) {
	l.markPruned(reason)
	p.removed[l.ID] = true
	p.counts[reason]++
	p.events.pruned(l, reason)
}

// cascade prunes every live descendant of l.
func (p *pruner) cascade(l *Leg, reason Reason) {
	for _, child := range p.state.descendants(l.ID) {
		if !p.removed[child.ID] {
			p.prune(child, reason)
		}
	}
}

// detach moves l's children up to l's parent so no reference dangles.
func (p *pruner) detach(l *Leg) {
	for _, other := range p.state.active() {
		if other.ParentID == l.ID && !p.removed[other.ID] {
			other.ParentID = l.ParentID
		}
	}
}

// invalidations: a leg whose origin broke this bar stays active with a frozen
// pivot, but everything derived from it goes.
func (p *pruner) invalidations(barIndex int64) {
	for _, l := range p.live() {
		if l.InvalidatedAt == nil || *l.InvalidatedAt != barIndex || p.removed[l.ID] {
			continue
		}
		p.events.invalidated(l)
		p.cascade(l, ReasonParentInvalidated)
	}
}

func (p *pruner) engulfment() {
	thr := p.cfg.EngulfedBreachThreshold
	for _, l := range p.live() {
		if p.removed[l.ID] || l.MaxOriginBreach == nil || l.MaxPivotBreach == nil {
			continue
		}
		limit := thr * l.Range
		if *l.MaxOriginBreach > limit && *l.MaxPivotBreach > limit {
			p.prune(l, ReasonEngulfed)
			p.cascade(l, ReasonParentEngulfed)
		}
	}
}

func (p *pruner) staleness() {
	limit := func(l *Leg) float64 { return p.cfg.StaleExtensionThreshold * l.Range }
	for _, l := range p.live() {
		if !l.OriginBreached() {
			continue
		}
		stale := *l.MaxOriginBreach > limit(l) ||
			(l.MaxPivotBreach != nil && *l.MaxPivotBreach > limit(l))
		if stale {
			p.detach(l)
			p.prune(l, ReasonStale)
		}
	}
}

// proximity keeps one leg per cluster of near-identical origins within each
// pivot group.
func (p *pruner) proximity() {
	for _, group := range p.pivotGroups() {
		if len(group) < 2 {
			continue
		}
		for _, cluster := range p.clusters(group) {
			if len(cluster) < 2 {
				continue
			}
			ranked := p.rank(cluster)
			for _, l := range inCreationOrder(ranked[1:]) {
				p.detach(l)
				p.prune(l, ReasonProximityDuplicate)
			}
		}
	}
}

func (p *pruner) pivotCap() {
	n := p.cfg.MaxLegsPerPivot
	for _, group := range p.pivotGroups() {
		if len(group) <= n {
			continue
		}
		ranked := p.rank(group)
		for _, l := range inCreationOrder(ranked[n:]) {
			p.detach(l)
			p.prune(l, ReasonPivotCap)
		}
	}
}

// pivotGroups groups live legs by shared pivot anchor, in order of first appearance.
func (p *pruner) pivotGroups() [][]*Leg {
	index := make(map[pivotKey]int)
	var groups [][]*Leg
	for _, l := range p.live() {
		k := l.pivotKey()
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], l)
	}
	return groups
}

// near reports whether two legs' origins sit within both tolerances.
func (p *pruner) near(a, b *Leg) bool {
	dp := math.Abs(a.Origin.Price - b.Origin.Price)
	di := a.Origin.Index - b.Origin.Index
	if di < 0 {
		di = -di
	}
	maxRange := math.Max(a.Range, b.Range)
	maxBars := a.BarCount
	if b.BarCount > maxBars {
		maxBars = b.BarCount
	}
	return dp <= p.cfg.ProximityRangeTolerance*maxRange &&
		float64(di) <= p.cfg.ProximityTimeTolerance*float64(maxBars)
}

// clusters returns the connected components of the "near" relation.
func (p *pruner) clusters(group []*Leg) [][]*Leg {
	parent := make([]int, len(group))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range group {
		for j := i + 1; j < len(group); j++ {
			if p.near(group[i], group[j]) {
				ri, rj := find(i), find(j)
				if ri != rj {
					if rj < ri {
						ri, rj = rj, ri
					}
					parent[rj] = ri
				}
			}
		}
	}

	byRoot := make(map[int]int)
	var out [][]*Leg
	for i, l := range group {
		r := find(i)
		k, ok := byRoot[r]
		if !ok {
			k = len(out)
			byRoot[r] = k
			out = append(out, nil)
		}
		out[k] = append(out[k], l)
	}
	return out
}

// rank orders legs by counter-trend range, largest first. Roots rank above
// any child. Ties go to the earliest origin, then the earliest creation.
func (p *pruner) rank(legs []*Leg) []*Leg {
	ctr := make(map[LegID]float64, len(legs))
	for _, l := range legs {
		v, ok := l.CounterTrendRange(p.state.leg(l.ParentID))
		if !ok {
			v = math.Inf(1)
		}
		ctr[l.ID] = v
	}
	out := append([]*Leg(nil), legs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ctr[a.ID] != ctr[b.ID] {
			return ctr[a.ID] > ctr[b.ID]
		}
		if a.Origin.Index != b.Origin.Index {
			return a.Origin.Index < b.Origin.Index
		}
		return a.Seq < b.Seq
	})
	return out
}

func inCreationOrder(legs []*Leg) []*Leg {
	out := append([]*Leg(nil), legs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func sortedReasons(m map[Reason]int) []Reason {
	out := make([]Reason, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
