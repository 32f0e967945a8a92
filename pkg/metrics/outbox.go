package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records relay batches from the outbox table to Pub/Sub.
type OutboxMetrics struct {
	batch     prometheus.Histogram
	published prometheus.Counter
	failed    prometheus.Counter
	dlq       *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox relay metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of outbox publish batches in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox rows published to Pub/Sub.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed and will be retried.",
	})
	dlq := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dlq_total",
		Help: "Outbox rows moved to the dead letter table, by reason.",
	}, []string{"reason"})
	reg.MustRegister(batch, published, failed, dlq)
	return &OutboxMetrics{batch: batch, published: published, failed: failed, dlq: dlq}
}

func (m *OutboxMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(d.Seconds())
}

func (m *OutboxMetrics) IncPublished() {
	if m == nil || m.published == nil {
		return
	}
	m.published.Inc()
}

func (m *OutboxMetrics) IncFailed() {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.Inc()
}

func (m *OutboxMetrics) IncDLQ(reason string) {
	if m == nil || m.dlq == nil {
		return
	}
	m.dlq.WithLabelValues(normalizeLabel(reason)).Inc()
}
