package enums

import "slices"

// OutboxAggregateType is stored in outbox_events.aggregate_type.
type OutboxAggregateType string

// OutboxEventType is stored in outbox_events.event_type and sent as the
// event_type message attribute.
type OutboxEventType string

const AggregateSale OutboxAggregateType = "sale"

const (
	EventSaleRecorded OutboxEventType = "sale_recorded"
	EventSaleReturned OutboxEventType = "sale_returned"
)

var (
	aggregateTypes = []OutboxAggregateType{AggregateSale}
	eventTypes     = []OutboxEventType{EventSaleRecorded, EventSaleReturned}
)

func (a OutboxAggregateType) IsValid() bool { return slices.Contains(aggregateTypes, a) }

func (e OutboxEventType) IsValid() bool { return slices.Contains(eventTypes, e) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, aggregateTypes)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, eventTypes)
}
