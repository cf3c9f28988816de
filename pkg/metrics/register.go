package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeConfirmed = "confirmed"
	OutcomeRejected  = "rejected"
)

// RegisterMetrics tracks the submission pipeline of a POS terminal.
type RegisterMetrics struct {
	pending  prometheus.Gauge
	queued   prometheus.Gauge
	outcomes *prometheus.CounterVec
	latency  prometheus.Histogram
}

// NewRegisterMetrics registers the terminal metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewRegisterMetrics(reg prometheus.Registerer) *RegisterMetrics {
	if reg == nil {
		return &RegisterMetrics{}
	}
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "register_pending_sales",
		Help: "Sales submitted by this terminal and not yet confirmed or rejected.",
	})
	queued := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "register_queued_sales",
		Help: "Sale writes held in the local queue awaiting replay, including ones from earlier runs.",
	})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "register_sale_outcomes_total",
		Help: "Terminal sale outcomes by result.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "register_sale_sync_seconds",
		Help:    "Time from submission until the backing service confirmed a sale.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 60, 300, 1800},
	})
	reg.MustRegister(pending, queued, outcomes, latency)
	return &RegisterMetrics{
		pending:  pending,
		queued:   queued,
		outcomes: outcomes,
		latency:  latency,
	}
}

// SetPending publishes the current pending-set cardinality.
func (m *RegisterMetrics) SetPending(count int) {
	if m == nil || m.pending == nil {
		return
	}
	m.pending.Set(float64(count))
}

// SetQueued publishes the local store's pending sale count.
func (m *RegisterMetrics) SetQueued(count int) {
	if m == nil || m.queued == nil {
		return
	}
	m.queued.Set(float64(count))
}

// IncOutcome counts a resolved sale.
func (m *RegisterMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveSyncLatency records how long a sale stayed pending.
func (m *RegisterMetrics) ObserveSyncLatency(d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
