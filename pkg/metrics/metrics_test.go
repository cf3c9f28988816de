package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRegisterMetricsExportsGaugeCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegisterMetrics(reg)
	m.SetPending(3)
	m.SetPending(2)
	m.SetQueued(5)
	m.IncOutcome(OutcomeConfirmed)
	m.IncOutcome(OutcomeConfirmed)
	m.IncOutcome(OutcomeRejected)
	m.ObserveSyncLatency(1500 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	mf := findMetricFamily(mfs, "register_pending_sales")
	if mf == nil || len(mf.GetMetric()) != 1 {
		t.Fatalf("pending gauge missing")
	}
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 2 {
		t.Fatalf("expected pending=2, got %f", got)
	}

	if mf := findMetricFamily(mfs, "register_queued_sales"); mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 5 {
		t.Fatalf("expected queued=5, got %v", mf)
	}

	if got, err := fetchCounterValue(mfs, "register_sale_outcomes_total", "outcome", OutcomeConfirmed); err != nil {
		t.Fatalf("fetch confirmed: %v", err)
	} else if got != 2 {
		t.Fatalf("expected confirmed=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "register_sale_outcomes_total", "outcome", OutcomeRejected); err != nil {
		t.Fatalf("fetch rejected: %v", err)
	} else if got != 1 {
		t.Fatalf("expected rejected=1, got %f", got)
	}

	latency := findMetricFamily(mfs, "register_sale_sync_seconds")
	if latency == nil {
		t.Fatal("latency histogram missing")
	}
	if got := latency.GetMetric()[0].GetHistogram().GetSampleSum(); got != 1.5 {
		t.Fatalf("expected latency sum 1.5, got %f", got)
	}
}

func TestReplayMetricsLabelsByCollection(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReplayMetrics(reg)
	m.IncPushed("sales")
	m.IncRetried("sales")
	m.IncRetried("sales")
	m.IncRejected("")
	m.ObserveBatch(10 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "localstore_retried_total", "collection", "sales"); err != nil {
		t.Fatalf("fetch retried: %v", err)
	} else if got != 2 {
		t.Fatalf("expected retried=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "localstore_rejected_total", "collection", "unknown"); err != nil {
		t.Fatalf("fetch rejected: %v", err)
	} else if got != 1 {
		t.Fatalf("expected rejected=1, got %f", got)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var r *RegisterMetrics
	r.SetPending(1)
	r.IncOutcome(OutcomeConfirmed)
	r.ObserveSyncLatency(time.Second)

	unregistered := NewReplayMetrics(nil)
	unregistered.IncPushed("sales")
	unregistered.ObserveBatch(time.Second)
}

func TestOutboxMetricsCountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncDelivery("sale_recorded", DeliveryPublished)
	m.IncDelivery("sale_recorded", DeliveryPublished)
	m.IncDelivery("sale_returned", DeliveryParked)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	published, err := fetchCounterValue(mfs, "outbox_deliveries_total", "result", DeliveryPublished)
	if err != nil {
		t.Fatalf("fetch published: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected 2 published deliveries, got %v", published)
	}
	parked, err := fetchCounterValue(mfs, "outbox_deliveries_total", "result", DeliveryParked)
	if err != nil || parked != 1 {
		t.Fatalf("expected 1 parked delivery, got %v (%v)", parked, err)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.IncDelivery("sale_recorded", DeliveryRetry)
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
