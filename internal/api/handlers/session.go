package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/swingdag/internal/eventbus"
	"github.com/wonny/swingdag/internal/session"
	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/logger"
)

const (
	defaultEventLimit = 500
	maxEventLimit     = 5000
)

// SessionHandler serves the read-only session endpoints.
// ⭐ SSOT: 세션 조회 API 핸들러는 이 구조체에서만
type SessionHandler struct {
	sessions *session.Manager
	backlog  *eventbus.MemorySink
	hub      *eventbus.Hub
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler. backlog and hub may be nil.
func NewSessionHandler(sessions *session.Manager, backlog *eventbus.MemorySink, hub *eventbus.Hub, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		backlog:  backlog,
		hub:      hub,
		logger:   log,
	}
}

// SessionSummary is the list form of a session.
type SessionSummary struct {
	ID            string    `json:"id"`
	Instrument    string    `json:"instrument"`
	Timeframe     string    `json:"timeframe"`
	BarsProcessed int64     `json:"bars_processed"`
	LastEventSeq  uint64    `json:"last_event_seq"`
	ActiveLegs    int       `json:"active_legs"`
	Halted        string    `json:"halted,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LegResponse is a leg plus values derived from its hierarchy.
type LegResponse struct {
	swing.Leg
	CounterTrendRange *float64 `json:"counter_trend_range,omitempty"`
	RangePercentile   float64  `json:"range_percentile"`
}

// DistributionResponse summarises the range/impulse distribution.
type DistributionResponse struct {
	Count     int                `json:"count"`
	Ranges    map[string]float64 `json:"range_quantiles"`
	Impulses  map[string]float64 `json:"impulse_quantiles"`
	RangeRank *float64           `json:"range_percentile,omitempty"`
}

// EventsResponse is one page of the event backlog.
type EventsResponse struct {
	Events  []swing.Event `json:"events"`
	Oldest  uint64        `json:"oldest"`
	LastSeq uint64        `json:"last_seq"`
}

// ListSessions returns all sessions
// GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list := h.sessions.List()
	out := make([]SessionSummary, 0, len(list))
	for _, s := range list {
		out = append(out, summarize(s.View()))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": out,
		"count":    len(out),
	})
}

// GetSession returns one session summary
// GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, summarize(s.View()))
}

// GetLegs returns the active legs
// GET /api/sessions/{id}/legs?direction=bull&formed=true
func (h *SessionHandler) GetLegs(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var dir swing.Direction
	if raw := r.URL.Query().Get("direction"); raw != "" {
		dir = swing.Direction(raw)
		if !dir.Valid() {
			respondError(w, http.StatusBadRequest, "direction must be bull or bear")
			return
		}
	}
	var formed *bool
	if raw := r.URL.Query().Get("formed"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "formed must be a boolean")
			return
		}
		formed = &b
	}

	v := s.View()
	byID := indexLegs(v.Legs)
	out := make([]LegResponse, 0, len(v.Legs))
	for i := range v.Legs {
		leg := v.Legs[i]
		if dir != "" && leg.Direction != dir {
			continue
		}
		if formed != nil && leg.IsFormed() != *formed {
			continue
		}
		out = append(out, legResponse(leg, byID, &v.Distribution))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session":  v.SessionID,
		"last_bar": v.LastBar,
		"legs":     out,
		"count":    len(out),
	})
}

// GetLeg returns a single active leg
// GET /api/sessions/{id}/legs/{leg}
func (h *SessionHandler) GetLeg(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	v := s.View()
	byID := indexLegs(v.Legs)
	leg, found := byID[swing.LegID(mux.Vars(r)["leg"])]
	if !found {
		respondError(w, http.StatusNotFound, "leg not found or no longer active")
		return
	}
	respondJSON(w, http.StatusOK, legResponse(*leg, byID, &v.Distribution))
}

// GetPending returns the pending origins
// GET /api/sessions/{id}/pending
func (h *SessionHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.View().Pending)
}

// GetDistribution returns range and impulse quantiles
// GET /api/sessions/{id}/distribution?range=12.5
func (h *SessionHandler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	dist := s.View().Distribution

	resp := DistributionResponse{
		Count:    dist.Count(),
		Ranges:   map[string]float64{},
		Impulses: map[string]float64{},
	}
	if dist.Count() > 0 {
		for _, q := range []struct {
			name string
			q    float64
		}{{"p25", 0.25}, {"p50", 0.5}, {"p75", 0.75}, {"p90", 0.9}} {
			resp.Ranges[q.name] = dist.RangeQuantile(q.q)
			resp.Impulses[q.name] = dist.ImpulseQuantile(q.q)
		}
	}
	if raw := r.URL.Query().Get("range"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			respondError(w, http.StatusBadRequest, "range must be a non-negative number")
			return
		}
		rank := dist.RangePercentile(v)
		resp.RangeRank = &rank
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetEvents returns events after a sequence number
// GET /api/sessions/{id}/events?after=120&limit=500
func (h *SessionHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.backlog == nil {
		respondError(w, http.StatusNotImplemented, "event backlog is disabled")
		return
	}

	q := r.URL.Query()
	var after uint64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "after must be a sequence number")
			return
		}
		after = v
	}
	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	oldest := h.backlog.Oldest(s.ID())
	if oldest > 0 && after+1 < oldest {
		respondError(w, http.StatusGone, "events before "+strconv.FormatUint(oldest, 10)+" are no longer retained; rebuild from a snapshot")
		return
	}

	events := h.backlog.Since(s.ID(), after, limit)
	respondJSON(w, http.StatusOK, EventsResponse{
		Events:  events,
		Oldest:  oldest,
		LastSeq: s.View().LastEventSeq,
	})
}

// Stream upgrades to a websocket carrying event batches
// GET /api/sessions/{id}/stream
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if h.hub == nil {
		respondError(w, http.StatusNotImplemented, "streaming is disabled")
		return
	}
	h.hub.Serve(w, r, s.ID())
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := mux.Vars(r)["id"]
	s, ok := h.sessions.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func summarize(v session.View) SessionSummary {
	return SessionSummary{
		ID:            v.SessionID,
		Instrument:    v.Stream.Instrument,
		Timeframe:     v.Stream.Timeframe,
		BarsProcessed: v.BarsProcessed,
		LastEventSeq:  v.LastEventSeq,
		ActiveLegs:    len(v.Legs),
		Halted:        v.Halted,
		UpdatedAt:     v.UpdatedAt,
	}
}

func indexLegs(legs []swing.Leg) map[swing.LegID]*swing.Leg {
	byID := make(map[swing.LegID]*swing.Leg, len(legs))
	for i := range legs {
		byID[legs[i].ID] = &legs[i]
	}
	return byID
}

func legResponse(leg swing.Leg, byID map[swing.LegID]*swing.Leg, dist *swing.Distribution) LegResponse {
	resp := LegResponse{Leg: leg}
	if dist.Count() > 0 {
		resp.RangePercentile = dist.RangePercentile(leg.Range)
	}
	// roots have no counter-trend range
	if parent, ok := byID[leg.ParentID]; ok && leg.ParentID != "" {
		if ctr, ok := leg.CounterTrendRange(parent); ok {
			resp.CounterTrendRange = &ctr
		}
	}
	return resp
}
