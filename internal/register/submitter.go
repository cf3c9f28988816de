package register

import (
	"context"
	"errors"

	"github.com/angelmondragon/festpos/internal/cart"
	"github.com/angelmondragon/festpos/pkg/checkout"
	"github.com/angelmondragon/festpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/localstore"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/types"
	"github.com/google/uuid"
)

// Store is the part of the local-first store the pipeline depends on.
type Store interface {
	Put(ctx context.Context, collection, id string, doc any) *localstore.Outcome
	Subscribe(collection, id string, onChange func(localstore.Snapshot), onError func(error)) func()
}

// SaleRecord is the document written for every sale.
type SaleRecord struct {
	Items     types.SaleItems `json:"items"`
	Total     int64           `json:"total"`
	CreatedAt any             `json:"createdAt"`
	Type      enums.SaleType  `json:"type"`
	UID       string          `json:"uid"`
}

// Submitter mints sale ids and hands sale records to the store.
type Submitter struct {
	store Store
	logg  *logger.Logger
	newID func() string
}

func NewSubmitter(store Store, logg *logger.Logger) (*Submitter, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Submitter{store: store, logg: logg, newID: uuid.NewString}, nil
}

// Submit validates the cart, mints a sale id and queues the sale record. It
// returns as soon as the store has accepted the write locally; the Outcome
// settles when the backing service confirms or rejects it. Validation
// failures return an error and no id.
func (s *Submitter) Submit(ctx context.Context, c cart.Cart, userID string) (string, *localstore.Outcome, error) {
	if userID == "" {
		return "", nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no signed-in user")
	}
	c = c.Qualifying()
	if c.Empty() {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "cart has no items")
	}
	if err := checkout.ValidateSale(c.Items, c.Total); err != nil {
		return "", nil, err
	}

	saleID := s.newID()
	record := SaleRecord{
		Items:     c.Items,
		Total:     c.Total,
		CreatedAt: localstore.ServerTimestamp,
		Type:      enums.SaleTypeSale,
		UID:       userID,
	}
	outcome := s.store.Put(ctx, SalesCollection, saleID, record)

	ctx = s.logg.WithSaleID(s.logg.WithUserID(ctx, userID), saleID)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"total": c.Total,
		"units": c.Items.Units(),
	}), "sale queued")
	return saleID, outcome, nil
}
