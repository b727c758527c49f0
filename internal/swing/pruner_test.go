package swing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type legSpec struct {
	dir     Direction
	origin  PricePoint
	pivot   PricePoint
	parent  int // index into the built slice, -1 for root
	segment *PricePoint
}

// buildState creates legs in slice order, so slice index == seq.
func buildState(t *testing.T, specs []legSpec) (*State, []*Leg) {
	t.Helper()
	st := newState()
	legs := make([]*Leg, 0, len(specs))
	for i, s := range specs {
		id := LegID(fmt.Sprintf("%s-%d-%d", s.dir, s.origin.Index, i))
		l := newLeg(id, uint64(i), s.dir, s.origin, s.pivot, s.pivot.Index)
		if s.parent >= 0 {
			require.Less(t, s.parent, i)
			l.ParentID = legs[s.parent].ID
			l.Depth = legs[s.parent].Depth + 1
		}
		if s.segment != nil {
			l.SegmentDeepest = *s.segment
		}
		st.add(l)
		legs = append(legs, l)
	}
	st.nextLegSeq = uint64(len(specs))
	require.NoError(t, st.checkInvariants())
	return st, legs
}

func runPruner(cfg Config, st *State, barIndex int64) []Event {
	var log eventLog
	log.begin(barIndex)
	p := pruner{cfg: cfg, log: zeroLogger()}
	p.run(st, &log, barIndex)
	return log.batch
}

func activeIDs(st *State) []LegID {
	return append([]LegID(nil), st.order...)
}

func ptr(p PricePoint) *PricePoint { return &p }

func fptr(v float64) *float64 { return &v }

func TestPruner_ProximityDedupKeepsLargestCounterTrend(t *testing.T) {
	pivot := PricePoint{6166.5, 300}
	st, legs := buildState(t, []legSpec{
		// parents: segment_deepest chosen so the children's counter-trend
		// ranges are 24.25, 65.75 and 10.75
		{Bull, PricePoint{4000, 10}, PricePoint{4800, 60}, -1, ptr(PricePoint{4723.75, 60})},
		{Bull, PricePoint{4010, 11}, PricePoint{4810, 61}, -1, ptr(PricePoint{4737.5, 61})},
		{Bull, PricePoint{4020, 12}, PricePoint{4820, 62}, -1, ptr(PricePoint{4646.75, 62})},
		{Bull, PricePoint{4699.50, 100}, pivot, 0, nil},
		{Bull, PricePoint{4671.75, 105}, pivot, 1, nil},
		{Bull, PricePoint{4636.00, 110}, pivot, 2, nil},
	})

	for i, want := range []float64{24.25, 65.75, 10.75} {
		ctr, ok := legs[3+i].CounterTrendRange(legs[i])
		require.True(t, ok)
		assert.InDelta(t, want, ctr, 1e-9)
	}

	events := runPruner(DefaultConfig(), st, 300)

	assert.ElementsMatch(t, []LegID{legs[0].ID, legs[1].ID, legs[2].ID, legs[4].ID}, activeIDs(st))
	require.Len(t, events, 2)
	assert.Equal(t, legs[3].ID, events[0].LegID)
	assert.Equal(t, legs[5].ID, events[1].LegID)
	for _, e := range events {
		assert.Equal(t, EventLegPruned, e.Type)
		assert.Equal(t, ReasonProximityDuplicate, e.Reason)
	}
}

func TestPruner_ProximityRequiresBothTolerances(t *testing.T) {
	pivot := PricePoint{200, 100}
	st, _ := buildState(t, []legSpec{
		{Bull, PricePoint{100, 0}, pivot, -1, nil},
		// within 5% of range on price, 50 bars apart in time
		{Bull, PricePoint{101, 50}, pivot, -1, nil},
	})

	events := runPruner(DefaultConfig(), st, 100)
	assert.Empty(t, events)
	assert.Len(t, st.order, 2)
}

func TestPruner_PivotCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLegsPerPivot = 2
	cfg.ProximityRangeTolerance = 0
	cfg.ProximityTimeTolerance = 0

	pivot := PricePoint{300, 100}
	st, legs := buildState(t, []legSpec{
		{Bull, PricePoint{100, 0}, PricePoint{250, 5}, -1, ptr(PricePoint{200, 5})},
		{Bull, PricePoint{105, 1}, PricePoint{260, 6}, -1, ptr(PricePoint{210, 6})},
		{Bull, PricePoint{120, 30}, pivot, 0, nil}, // ctr 80
		{Bull, PricePoint{150, 20}, pivot, 0, nil}, // ctr 50, later origin
		{Bull, PricePoint{160, 10}, pivot, 1, nil}, // ctr 50, earliest origin wins the tie
		{Bull, PricePoint{180, 40}, pivot, 0, nil}, // ctr 20
	})

	events := runPruner(cfg, st, 100)

	assert.Equal(t, []LegID{legs[0].ID, legs[1].ID, legs[2].ID, legs[4].ID}, activeIDs(st))
	require.Len(t, events, 2)
	assert.Equal(t, legs[3].ID, events[0].LegID)
	assert.Equal(t, legs[5].ID, events[1].LegID)
	assert.Equal(t, ReasonPivotCap, events[0].Reason)
	assert.Equal(t, ReasonPivotCap, events[1].Reason)
}

func TestPruner_RootsOutrankChildren(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLegsPerPivot = 1
	cfg.ProximityRangeTolerance = 0

	pivot := PricePoint{300, 100}
	st, legs := buildState(t, []legSpec{
		{Bull, PricePoint{50, 0}, PricePoint{250, 5}, -1, nil},
		{Bull, PricePoint{150, 20}, pivot, 0, nil},
		{Bull, PricePoint{120, 30}, pivot, -1, nil},
	})

	runPruner(cfg, st, 100)
	assert.Equal(t, []LegID{legs[0].ID, legs[2].ID}, activeIDs(st))
}

func TestPruner_EngulfmentCascades(t *testing.T) {
	st, legs := buildState(t, []legSpec{
		{Bear, PricePoint{200, 0}, PricePoint{100, 10}, -1, nil},
		{Bear, PricePoint{180, 12}, PricePoint{120, 14}, 0, nil},
		{Bear, PricePoint{170, 15}, PricePoint{130, 16}, 1, nil},
		{Bull, PricePoint{90, 1}, PricePoint{150, 9}, -1, nil},
	})
	legs[0].MaxOriginBreach = fptr(30) // > 0.236 * 100
	legs[0].MaxPivotBreach = fptr(25)

	events := runPruner(DefaultConfig(), st, 20)

	assert.Equal(t, []LegID{legs[3].ID}, activeIDs(st))
	require.Len(t, events, 3)
	assert.Equal(t, legs[0].ID, events[0].LegID)
	assert.Equal(t, ReasonEngulfed, events[0].Reason)
	assert.Equal(t, ReasonParentEngulfed, events[1].Reason)
	assert.Equal(t, ReasonParentEngulfed, events[2].Reason)
	assert.Equal(t, StatusPruned, legs[2].Status)
}

func TestPruner_EngulfmentNeedsBothSides(t *testing.T) {
	st, legs := buildState(t, []legSpec{
		{Bull, PricePoint{100, 0}, PricePoint{135, 1}, -1, nil},
	})
	legs[0].MaxOriginBreach = fptr(1.5)
	legs[0].MaxPivotBreach = fptr(60)

	assert.Empty(t, runPruner(DefaultConfig(), st, 5))
	assert.Len(t, st.order, 1)
}

func TestPruner_StalenessReparentsChildren(t *testing.T) {
	st, legs := buildState(t, []legSpec{
		{Bull, PricePoint{100, 0}, PricePoint{200, 10}, -1, nil},
		{Bull, PricePoint{120, 12}, PricePoint{190, 14}, 0, nil},
		{Bull, PricePoint{150, 16}, PricePoint{195, 18}, 1, nil},
	})
	// leg 1 broke its origin long ago and price ran far past its frozen pivot
	legs[1].MaxOriginBreach = fptr(1)
	legs[1].MaxPivotBreach = fptr(250) // > 3.0 * 70

	events := runPruner(DefaultConfig(), st, 30)

	require.Len(t, events, 1)
	assert.Equal(t, legs[1].ID, events[0].LegID)
	assert.Equal(t, ReasonStale, events[0].Reason)
	assert.Equal(t, []LegID{legs[0].ID, legs[2].ID}, activeIDs(st))
	assert.Equal(t, legs[0].ID, legs[2].ParentID)
	require.NoError(t, st.checkInvariants())
}

func TestPruner_InvalidationCascade(t *testing.T) {
	st, legs := buildState(t, []legSpec{
		{Bull, PricePoint{100, 0}, PricePoint{200, 10}, -1, nil},
		{Bull, PricePoint{120, 12}, PricePoint{210, 14}, 0, nil},
		{Bull, PricePoint{150, 16}, PricePoint{220, 18}, 1, nil},
	})
	legs[0].recordOriginBreach(2)
	at := int64(25)
	legs[0].InvalidatedAt = &at

	events := runPruner(DefaultConfig(), st, 25)

	require.Len(t, events, 3)
	assert.Equal(t, EventLegInvalidated, events[0].Type)
	assert.Equal(t, ReasonOriginBreached, events[0].Reason)
	assert.Equal(t, legs[1].ID, events[1].LegID)
	assert.Equal(t, legs[2].ID, events[2].LegID)
	assert.Equal(t, ReasonParentInvalidated, events[2].Reason)
	assert.Equal(t, []LegID{legs[0].ID}, activeIDs(st))

	// a later bar does not repeat the invalidation
	assert.Empty(t, runPruner(DefaultConfig(), st, 26))
}
