package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.ObserveBar("ES:1m", 150*time.Microsecond)
	r.ObserveBar("ES:1m", 90*time.Microsecond)
	r.RecordEvent("ES:1m", "leg_pruned", "engulfed")
	r.SetActiveLegs("ES:1m", 7)
	r.RecordCheckpoint(nil)
	r.RecordCheckpoint(errors.New("boom"))
	r.ClientConnected()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.barsTotal.WithLabelValues("ES:1m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventsTotal.WithLabelValues("ES:1m", "leg_pruned", "engulfed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.activeLegs.WithLabelValues("ES:1m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.checkpoints.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.wsClients))
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordError("feed")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.errorsTotal.WithLabelValues("feed")))
}

func TestHandler(t *testing.T) {
	r := New()
	r.SetActiveLegs("NQ:5m", 3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `swingdag_active_legs{stream="NQ:5m"} 3`)
}
