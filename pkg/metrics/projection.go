package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProjectionMetrics records how the projector disposes of cart events.
type ProjectionMetrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pushes   *prometheus.CounterVec
	stale    prometheus.Counter
}

// NewProjectionMetrics registers the projector metrics on the provided registerer.
func NewProjectionMetrics(reg prometheus.Registerer) *ProjectionMetrics {
	if reg == nil {
		return &ProjectionMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_events_total",
		Help: "Cart events processed by the projector, by handler and outcome.",
	}, []string{"handler", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "projection_handler_duration_seconds",
		Help:    "Duration of projection handler invocations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})
	pushes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_push_total",
		Help: "Push notification attempts, by result.",
	}, []string{"result"})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "projection_stale_quotes_total",
		Help: "Quote updates dropped because a newer quote was already applied.",
	})
	reg.MustRegister(outcomes, duration, pushes, stale)
	return &ProjectionMetrics{
		outcomes: outcomes,
		duration: duration,
		pushes:   pushes,
		stale:    stale,
	}
}

// ObserveHandler records one handler invocation.
func (m *ProjectionMetrics) ObserveHandler(handler, outcome string, d time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	handler = normalizeLabel(handler)
	m.outcomes.WithLabelValues(handler, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(handler).Observe(d.Seconds())
}

// IncPush counts a push attempt by result (sent, failed, skipped).
func (m *ProjectionMetrics) IncPush(result string) {
	if m == nil || m.pushes == nil {
		return
	}
	m.pushes.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncStaleQuote counts a dropped out-of-order quote.
func (m *ProjectionMetrics) IncStaleQuote() {
	if m == nil || m.stale == nil {
		return
	}
	m.stale.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
