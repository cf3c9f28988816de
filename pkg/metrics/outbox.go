package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	DeliveryPublished = "published"
	DeliveryRetry     = "retry"
	DeliveryParked    = "parked"
)

// OutboxMetrics counts relay deliveries by event type and result.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_deliveries_total",
		Help: "Outbox rows handled by the relay.",
	}, []string{"event_type", "result"})
	reg.MustRegister(deliveries)
	return &OutboxMetrics{deliveries: deliveries}
}

func (m *OutboxMetrics) IncDelivery(eventType, result string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(eventType, result).Inc()
}
