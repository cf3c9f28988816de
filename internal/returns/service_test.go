package returns

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/festpos/internal/sales"
	"github.com/angelmondragon/festpos/pkg/clock"
	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/db/dbtest"
	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/outbox"
	"github.com/angelmondragon/festpos/pkg/outbox/payloads"
	"github.com/angelmondragon/festpos/pkg/pagination"
	"github.com/angelmondragon/festpos/pkg/types"
)

type harness struct {
	sales   sales.Service
	returns Service
	client  *db.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	clk := clock.NewManualClock(time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC))
	repo := sales.NewRepository(client.DB())
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)

	salesSvc, err := sales.NewService(sales.ServiceParams{Repository: repo, DB: client, Outbox: emitter, Clock: clk})
	require.NoError(t, err)
	returnsSvc, err := NewService(ServiceParams{
		Repository: repo,
		DB:         client,
		Outbox:     emitter,
		Catalog:    config.CatalogConfig{TrackedProductIDs: []string{"yakisoba"}},
		Clock:      clk,
	})
	require.NoError(t, err)
	return &harness{sales: salesSvc, returns: returnsSvc, client: client}
}

func (h *harness) recordSale(t *testing.T, userID uuid.UUID) uuid.UUID {
	t.Helper()
	saleID := uuid.New()
	_, _, err := h.sales.PutSale(context.Background(), saleID, userID, sales.PutSaleInput{
		Type: enums.SaleTypeSale,
		Items: types.SaleItems{
			{ProductID: "yakisoba", Name: "Yakisoba", Price: 500, Quantity: 2, Subtotal: 1000},
			{ProductID: "ramune", Name: "Ramune", Price: 200, Quantity: 3, Subtotal: 600},
		},
		Total: 1600,
	})
	require.NoError(t, err)
	return saleID
}

func TestRecordReturnNegatesSale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seller, returner := uuid.New(), uuid.New()
	saleID := h.recordSale(t, seller)

	ret, err := h.returns.RecordReturn(ctx, returner, saleID)
	require.NoError(t, err)
	assert.Equal(t, enums.SaleTypeReturn, ret.Type)
	assert.Equal(t, int64(-1600), ret.Total)
	assert.Equal(t, returner, ret.UserID)
	require.NotNil(t, ret.ReturnedFrom)
	assert.Equal(t, saleID, *ret.ReturnedFrom)
	require.Len(t, ret.Items, 2)
	assert.Equal(t, int64(-2), ret.Items[0].Quantity)
	assert.Equal(t, int64(-3), ret.Items[1].Quantity)

	page, err := h.sales.ListUnreturned(ctx, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Sales)
}

func TestRecordReturnPublishesTrackedLinesOnly(t *testing.T) {
	h := newHarness(t)
	saleID := h.recordSale(t, uuid.New())

	ret, err := h.returns.RecordReturn(context.Background(), uuid.New(), saleID)
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, h.client.DB().
		Where("event_type = ? AND aggregate_id = ?", enums.EventSaleReturned, ret.ID).
		First(&row).Error)

	var envelope outbox.Envelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	var payload payloads.SaleReturnedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))

	require.Len(t, payload.Items, 1)
	assert.Equal(t, "yakisoba", payload.Items[0].ProductID)
	assert.Equal(t, int64(-2), payload.TotalQuantity)
	assert.Equal(t, saleID, payload.SaleID)
}

func TestRecordReturnOnlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	saleID := h.recordSale(t, uuid.New())

	ret, err := h.returns.RecordReturn(ctx, uuid.New(), saleID)
	require.NoError(t, err)

	_, err = h.returns.RecordReturn(ctx, uuid.New(), saleID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	_, err = h.returns.RecordReturn(ctx, uuid.New(), ret.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "returns cannot be returned, got %v", err)
}

func TestRecordReturnUnknownSale(t *testing.T) {
	h := newHarness(t)
	_, err := h.returns.RecordReturn(context.Background(), uuid.New(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = h.returns.RecordReturn(context.Background(), uuid.Nil, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "got %v", err)
}
