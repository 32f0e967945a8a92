package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestProjectionMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProjectionMetrics(reg)
	m.ObserveHandler("cart_view_item_added", "applied", 20*time.Millisecond)
	m.ObserveHandler("cart_view_item_added", "skipped", time.Millisecond)
	m.IncPush("sent")
	m.IncStaleQuote()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "projection_events_total", "outcome", "applied"); err != nil {
		t.Fatalf("fetch applied: %v", err)
	} else if got != 1 {
		t.Fatalf("expected applied=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "projection_handler_duration_seconds", "handler", "cart_view_item_added"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "projection_push_total", "result", "sent"); err != nil || got != 1 {
		t.Fatalf("expected push sent=1, got %f err=%v", got, err)
	}
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished()
	m.IncPublished()
	m.IncFailed()
	m.IncDLQ("")
	m.ObserveBatch(time.Second)

	if got := testutil.ToFloat64(m.published); got != 2 {
		t.Fatalf("expected published=2 got %f", got)
	}
	if got := testutil.ToFloat64(m.dlq.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected blank reason to normalize to unknown, got %f", got)
	}
}

func TestJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveRun("ledger-retention", time.Second, nil)
	m.ObserveRun("ledger-retention", time.Second, errors.New("boom"))
	m.AddDeleted("ledger-retention", 12)
	m.AddDeleted("ledger-retention", 0)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("ledger-retention", "success")); got != 1 {
		t.Fatalf("expected one success, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("ledger-retention", "failure")); got != 1 {
		t.Fatalf("expected one failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.rows.WithLabelValues("ledger-retention")); got != 12 {
		t.Fatalf("expected 12 rows deleted, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	m := NewProjectionMetrics(nil)
	m.ObserveHandler("h", "applied", time.Second)
	m.IncPush("sent")
	m.IncStaleQuote()

	var o *OutboxMetrics
	o.IncPublished()
	o.ObserveBatch(time.Second)

	j := NewJobMetrics(nil)
	j.ObserveRun("job", time.Second, nil)
	j.AddDeleted("job", 3)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
