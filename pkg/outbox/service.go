package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/enums"
	"github.com/angelmondragon/festpos/pkg/logger"
)

// EnvelopeVersion is the schema version written into new envelopes.
const EnvelopeVersion = 1

var ErrTxRequired = errors.New("outbox: transaction required")

// Actor identifies the user whose action produced an event.
type Actor struct {
	UserID uuid.UUID `json:"userId"`
}

// Envelope is the JSON document stored in outbox_events.payload. Data holds
// the event-specific body.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *Actor          `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// Event is a domain change to be queued alongside its aggregate write.
type Event struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *Actor
	Data          any
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues ev inside tx; it commits or rolls back with the caller's write.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, ev Event) error {
	if tx == nil {
		return ErrTxRequired
	}
	row, env, err := s.encode(ev)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   ev.EventType,
			"aggregate_id": ev.AggregateID.String(),
		}), "outbox.queued")
	}
	return nil
}

// EmitOnce is Emit for events that exist at most once per aggregate, such as
// the recording of a sale a register may re-put after reconnecting.
func (s *Service) EmitOnce(ctx context.Context, tx *gorm.DB, ev Event) error {
	if tx == nil {
		return ErrTxRequired
	}
	exists, err := s.repo.ExistsTx(tx, ev.EventType, ev.AggregateType, ev.AggregateID)
	if err != nil || exists {
		return err
	}
	err = s.Emit(ctx, tx, ev)
	if dbpkg.IsUniqueViolation(err) {
		return nil
	}
	return err
}

func (s *Service) encode(ev Event) (models.OutboxEvent, Envelope, error) {
	if !ev.EventType.IsValid() || !ev.AggregateType.IsValid() {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("outbox: unknown event %q on %q", ev.EventType, ev.AggregateType)
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("outbox: encode %s data: %w", ev.EventType, err)
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = s.now().UTC()
	}
	env := Envelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: at,
		Actor:      ev.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, err
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     ev.EventType,
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		Payload:       payload,
		CreatedAt:     at,
	}, env, nil
}
