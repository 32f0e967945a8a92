package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records housekeeping job runs.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	rows     *prometheus.CounterVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "housekeeping_job_duration_seconds",
		Help:    "Duration of housekeeping jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeping_job_runs_total",
		Help: "Housekeeping job executions, by job and result.",
	}, []string{"job", "result"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "housekeeping_rows_deleted_total",
		Help: "Rows removed by retention jobs.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, rows)
	return &JobMetrics{duration: duration, runs: runs, rows: rows}
}

func (m *JobMetrics) ObserveRun(job string, d time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(d.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.runs.WithLabelValues(job, result).Inc()
}

func (m *JobMetrics) AddDeleted(job string, rows int64) {
	if m == nil || m.rows == nil || rows <= 0 {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(job)).Add(float64(rows))
}
