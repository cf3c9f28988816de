package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/festpos/pkg/backoff"
	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/metrics"
	"github.com/angelmondragon/festpos/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	sendTimeout        = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// sender delivers one message and waits for the server id.
type sender interface {
	Send(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

type topicFunc func(topic string) sender

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictParked
)

type relayParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	PubSub     pubSubClient
	Repository outboxStore
	Registry   eventResolver
	Topics     topicFunc
	Metrics    *metrics.OutboxMetrics
}

// relay moves committed sale events from the outbox table to Pub/Sub.
// A row leaves the queue when it is published or parked at the attempt cap.
type relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      pubSubClient
	store       outboxStore
	registry    eventResolver
	topics      topicFunc
	stats       *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func newRelay(p relayParams) (*relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	topics := p.Topics
	if topics == nil {
		topics = func(topic string) sender {
			pub := p.PubSub.Publisher(topic)
			if pub == nil {
				return nil
			}
			return topicSender{pub: pub}
		}
	}

	r := &relay{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		store:       p.Repository,
		registry:    p.Registry,
		topics:      topics,
		stats:       p.Metrics,
		batchSize:   p.Outbox.BatchSize,
		maxAttempts: p.Outbox.MaxAttempts,
		poll:        time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	return r, nil
}

func (r *relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	policy := backoff.Policy{Base: r.poll, Max: maxIdleBackoff}
	delay := r.poll
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopped")
			return err
		}

		handled, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			delay = policy.Next(delay)
		case handled > 0:
			delay = r.poll
			continue
		default:
			delay = r.poll
		}
		if err := backoff.Sleep(ctx, policy.WithJitter(delay), nil); err != nil {
			return err
		}
	}
}

// drain handles one locked batch and reports how many rows it touched.
func (r *relay) drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		for _, row := range rows {
			v, cause := r.deliver(ctx, row)
			if err := r.settle(ctx, tx, row, v, cause); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (r *relay) deliver(ctx context.Context, row models.OutboxEvent) (verdict, error) {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return verdictParked, err
	}
	topic := resolved.Descriptor.Topic
	out := r.topics(topic)
	if out == nil {
		return verdictParked, fmt.Errorf("no publisher for topic %s", topic)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := out.Send(sendCtx, saleMessage(row, resolved)); err != nil {
		if registry.IsPermanent(err) {
			return verdictParked, err
		}
		if row.AttemptCount+1 >= r.maxAttempts {
			return verdictParked, fmt.Errorf("max publish attempts reached: %w", err)
		}
		return verdictRetry, err
	}
	return verdictPublished, nil
}

func (r *relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, v verdict, cause error) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"sale_id":       row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
	})

	var err error
	switch v {
	case verdictPublished:
		err = r.store.MarkPublishedTx(tx, row.ID)
		r.logg.Info(logCtx, "outbox event published")
		r.stats.IncDelivery(string(row.EventType), metrics.DeliveryPublished)
	case verdictRetry:
		err = r.store.MarkFailedTx(tx, row.ID, cause)
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox publish failed, will retry")
		r.stats.IncDelivery(string(row.EventType), metrics.DeliveryRetry)
	case verdictParked:
		err = r.store.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts)
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "outbox event parked")
		r.stats.IncDelivery(string(row.EventType), metrics.DeliveryParked)
	}
	if err != nil {
		return fmt.Errorf("settle outbox row %s: %w", row.ID, err)
	}
	return nil
}

func saleMessage(row models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: row.Payload,
		Attributes: map[string]string{
			"event_id":    resolved.Envelope.EventID,
			"event_type":  string(row.EventType),
			"sale_id":     row.AggregateID.String(),
			"occurred_at": resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

type topicSender struct {
	pub *gcppubsub.Publisher
}

func (s topicSender) Send(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	return s.pub.Publish(ctx, msg).Get(ctx)
}
