package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReplayMetrics records the local store's push loop.
type ReplayMetrics struct {
	pushed   *prometheus.CounterVec
	retried  *prometheus.CounterVec
	rejected *prometheus.CounterVec
	batch    prometheus.Histogram
}

func NewReplayMetrics(reg prometheus.Registerer) *ReplayMetrics {
	if reg == nil {
		return &ReplayMetrics{}
	}
	pushed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "localstore_pushed_total",
		Help: "Documents confirmed by the remote.",
	}, []string{"collection"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "localstore_retried_total",
		Help: "Push attempts that failed with a retryable error.",
	}, []string{"collection"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "localstore_rejected_total",
		Help: "Documents permanently rejected by the remote.",
	}, []string{"collection"})
	batch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "localstore_batch_duration_seconds",
		Help:    "Duration of a replay batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(pushed, retried, rejected, batch)
	return &ReplayMetrics{pushed: pushed, retried: retried, rejected: rejected, batch: batch}
}

func (m *ReplayMetrics) IncPushed(collection string) {
	if m == nil || m.pushed == nil {
		return
	}
	m.pushed.WithLabelValues(normalizeLabel(collection)).Inc()
}

func (m *ReplayMetrics) IncRetried(collection string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(collection)).Inc()
}

func (m *ReplayMetrics) IncRejected(collection string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(collection)).Inc()
}

func (m *ReplayMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(d.Seconds())
}
