package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/enums"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/metrics"
	"github.com/angelmondragon/festpos/pkg/outbox"
	"github.com/angelmondragon/festpos/pkg/outbox/payloads"
	"github.com/angelmondragon/festpos/pkg/outbox/registry"
)

func TestDrainRetriesOneRowAndPublishesTheNext(t *testing.T) {
	store := &fakeStore{rows: []models.OutboxEvent{
		outboxRow(t, enums.EventSaleRecorded, 0),
		outboxRow(t, enums.EventSaleRecorded, 0),
	}}
	out := &fakeSender{errs: []error{errors.New("unavailable")}}
	r := newTestRelay(t, store, out, resolverFor(nil), config.OutboxConfig{MaxAttempts: 5})

	handled, err := r.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, handled)
	assert.Equal(t, []uuid.UUID{store.rows[0].ID}, store.failed)
	assert.Equal(t, []uuid.UUID{store.rows[1].ID}, store.published)

	require.Len(t, out.sent, 2)
	attrs := out.sent[1].Attributes
	assert.Equal(t, string(enums.EventSaleRecorded), attrs["event_type"])
	assert.Equal(t, store.rows[1].AggregateID.String(), attrs["sale_id"])
}

func TestDrainIdleBatch(t *testing.T) {
	r := newTestRelay(t, &fakeStore{}, &fakeSender{}, resolverFor(nil), config.OutboxConfig{})
	handled, err := r.drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, handled)
}

func TestDrainParksUndecodableRows(t *testing.T) {
	row := outboxRow(t, enums.EventSaleReturned, 0)
	store := &fakeStore{rows: []models.OutboxEvent{row}}
	r := newTestRelay(t, store, &fakeSender{}, resolverFor(registry.Permanent(errors.New("bad payload"))), config.OutboxConfig{MaxAttempts: 5})

	_, err := r.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{row.ID}, store.parked)
	assert.Equal(t, 5, store.parkedAt)
	assert.Empty(t, store.published)
	assert.Empty(t, store.failed)
}

func TestDrainParksWhenTopicHasNoPublisher(t *testing.T) {
	row := outboxRow(t, enums.EventSaleRecorded, 0)
	store := &fakeStore{rows: []models.OutboxEvent{row}}
	r := newTestRelay(t, store, nil, resolverFor(nil), config.OutboxConfig{})
	r.topics = func(string) sender { return nil }

	_, err := r.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{row.ID}, store.parked)
}

func TestDrainParksAtAttemptCap(t *testing.T) {
	row := outboxRow(t, enums.EventSaleRecorded, 1)
	store := &fakeStore{rows: []models.OutboxEvent{row}}
	out := &fakeSender{errs: []error{errors.New("unavailable")}}
	r := newTestRelay(t, store, out, resolverFor(nil), config.OutboxConfig{MaxAttempts: 2})

	_, err := r.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{row.ID}, store.parked)
	assert.Empty(t, store.failed, "parked rows are not also marked failed")
}

func TestDrainCountsDeliveries(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := &fakeStore{rows: []models.OutboxEvent{outboxRow(t, enums.EventSaleRecorded, 0)}}
	r := newTestRelay(t, store, &fakeSender{}, resolverFor(nil), config.OutboxConfig{})
	r.stats = metrics.NewOutboxMetrics(reg)

	_, err := r.drain(context.Background())
	require.NoError(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, "outbox_deliveries_total", mfs[0].GetName())
	assert.Equal(t, float64(1), mfs[0].GetMetric()[0].GetCounter().GetValue())
}

func TestNewRelayDefaultsAndRequirements(t *testing.T) {
	_, err := newRelay(relayParams{})
	require.Error(t, err)

	r := newTestRelay(t, &fakeStore{}, &fakeSender{}, resolverFor(nil), config.OutboxConfig{})
	assert.Equal(t, defaultBatchSize, r.batchSize)
	assert.Equal(t, defaultMaxAttempts, r.maxAttempts)
	assert.Equal(t, defaultPoll, r.poll)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	r := newTestRelay(t, &fakeStore{}, &fakeSender{}, resolverFor(nil), config.OutboxConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}

func newTestRelay(t *testing.T, store outboxStore, out sender, resolver eventResolver, cfg config.OutboxConfig) *relay {
	t.Helper()
	r, err := newRelay(relayParams{
		Outbox:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "outbox-relay-test", Output: io.Discard}),
		DB:         fakeTx{},
		PubSub:     fakePubSub{},
		Repository: store,
		Registry:   resolver,
		Topics:     func(string) sender { return out },
	})
	require.NoError(t, err)
	return r
}

func outboxRow(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateSale,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeResolver struct {
	err error
}

func resolverFor(err error) fakeResolver { return fakeResolver{err: err} }

func (f fakeResolver) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "festpos-sales", AggregateType: row.AggregateType},
		Envelope:   outbox.Envelope{EventID: row.ID.String(), OccurredAt: time.Now()},
		Payload:    &payloads.SaleRecordedEvent{},
	}, nil
}

type fakeStore struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	parked    []uuid.UUID
	parkedAt  int
}

func (f *fakeStore) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.rows, nil
}

func (f *fakeStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, attempts int) error {
	f.parked = append(f.parked, id)
	f.parkedAt = attempts
	return nil
}

type fakeSender struct {
	errs []error
	sent []*gcppubsub.Message
}

func (f *fakeSender) Send(_ context.Context, msg *gcppubsub.Message) (string, error) {
	f.sent = append(f.sent, msg)
	if len(f.errs) == 0 {
		return "server-id", nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return "", err
}

type fakeTx struct{}

func (fakeTx) Ping(context.Context) error { return nil }

func (fakeTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error { return nil }

func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }
