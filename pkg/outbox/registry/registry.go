package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/enums"
	"github.com/angelmondragon/festpos/pkg/outbox"
	"github.com/angelmondragon/festpos/pkg/outbox/payloads"
)

type decodeFunc func(json.RawMessage) (any, error)

// EventDescriptor says where an event type is published and how each
// envelope version of its data is decoded.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	versions map[int]decodeFunc
}

// ResolvedEvent is an outbox row checked against its descriptor with the
// data decoded into the registered payload type.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.SalesTopic)
	if topic == "" {
		return nil, errors.New("sales topic is required")
	}
	reg := &EventRegistry{byType: map[enums.OutboxEventType]EventDescriptor{}}
	reg.add(describe[payloads.SaleRecordedEvent](enums.EventSaleRecorded, enums.AggregateSale, topic))
	reg.add(describe[payloads.SaleReturnedEvent](enums.EventSaleReturned, enums.AggregateSale, topic))
	return reg, nil
}

// describe registers T as the data type for the current envelope version.
func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		versions: map[int]decodeFunc{
			outbox.EnvelopeVersion: func(raw json.RawMessage) (any, error) {
				v := new(T)
				if err := json.Unmarshal(raw, v); err != nil {
					return nil, err
				}
				return v, nil
			},
		},
	}
}

func (r *EventRegistry) add(desc EventDescriptor) {
	r.byType[desc.EventType] = desc
}

// Resolve fails permanently for anything a retry cannot fix: unknown types,
// mismatched aggregates, undecodable envelopes or unknown versions.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[row.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("unsupported event type %s", row.EventType))
	case desc.AggregateType != row.AggregateType:
		return nil, Permanent(fmt.Errorf("%s expects aggregate %s, row has %s", row.EventType, desc.AggregateType, row.AggregateType))
	case row.AggregateID == uuid.Nil:
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	var env outbox.Envelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", row.EventType))
	}
	decode, ok := desc.versions[env.Version]
	if !ok {
		return nil, Permanent(fmt.Errorf("%s has no decoder for version %d", row.EventType, env.Version))
	}
	payload, err := decode(env.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", row.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
