package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the detector session metrics.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Recorder struct {
	registry *prometheus.Registry

	barsTotal   *prometheus.CounterVec
	eventsTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	activeLegs  *prometheus.GaugeVec
	barLatency  *prometheus.HistogramVec
	checkpoints *prometheus.CounterVec
	wsClients   prometheus.Gauge
}

// New creates a Recorder on its own registry, so several recorders (tests,
// multiple servers) never collide on registration.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		barsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swingdag_bars_processed_total",
				Help: "Total number of bars accepted by the detector",
			},
			[]string{"stream"},
		),
		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swingdag_leg_events_total",
				Help: "Leg lifecycle events by type and reason",
			},
			[]string{"stream", "type", "reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swingdag_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"kind"},
		),
		activeLegs: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swingdag_active_legs",
				Help: "Active legs per stream",
			},
			[]string{"stream"},
		),
		barLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swingdag_bar_processing_seconds",
				Help:    "Time spent processing one bar",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"stream"},
		),
		checkpoints: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swingdag_checkpoints_total",
				Help: "Checkpoint writes by result",
			},
			[]string{"result"},
		),
		wsClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "swingdag_ws_clients",
				Help: "Connected websocket clients",
			},
		),
	}
}

// ObserveBar records one processed bar and its latency.
func (r *Recorder) ObserveBar(stream string, d time.Duration) {
	r.barsTotal.WithLabelValues(stream).Inc()
	r.barLatency.WithLabelValues(stream).Observe(d.Seconds())
}

// RecordEvent counts one lifecycle event.
func (r *Recorder) RecordEvent(stream, eventType, reason string) {
	r.eventsTotal.WithLabelValues(stream, eventType, reason).Inc()
}

// SetActiveLegs records the current active population.
func (r *Recorder) SetActiveLegs(stream string, n int) {
	r.activeLegs.WithLabelValues(stream).Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordCheckpoint records a checkpoint attempt.
func (r *Recorder) RecordCheckpoint(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.checkpoints.WithLabelValues(result).Inc()
}

// ClientConnected / ClientDisconnected track websocket subscribers.
func (r *Recorder) ClientConnected()    { r.wsClients.Inc() }
func (r *Recorder) ClientDisconnected() { r.wsClients.Dec() }

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
