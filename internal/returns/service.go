// Package returns reverses recorded sales. A return is its own record with
// negated lines and total that points back at the sale it reverses.
package returns

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/festpos/internal/sales"
	"github.com/angelmondragon/festpos/pkg/clock"
	"github.com/angelmondragon/festpos/pkg/config"
	"github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/outbox"
	"github.com/angelmondragon/festpos/pkg/outbox/payloads"
)

type Service interface {
	RecordReturn(ctx context.Context, userID, saleID uuid.UUID) (*sales.SaleDTO, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

type ServiceParams struct {
	Repository *sales.Repository
	DB         *db.Client
	Outbox     outboxEmitter
	Catalog    config.CatalogConfig
	Clock      clock.Clock
	Logger     *logger.Logger
}

type service struct {
	repo    *sales.Repository
	db      *db.Client
	outbox  outboxEmitter
	catalog config.CatalogConfig
	clock   clock.Clock
	logg    *logger.Logger
	newID   func() uuid.UUID
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &service{
		repo:    params.Repository,
		db:      params.DB,
		outbox:  params.Outbox,
		catalog: params.Catalog,
		clock:   clk,
		logg:    params.Logger,
		newID:   uuid.New,
	}, nil
}

// RecordReturn reverses saleID. Each sale can be returned once.
func (s *service) RecordReturn(ctx context.Context, userID, saleID uuid.UUID) (*sales.SaleDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id is required")
	}

	var created *models.SaleRecord
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sale, err := repo.FindByID(ctx, saleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
		}
		if sale.Type != enums.SaleTypeSale {
			return pkgerrors.New(pkgerrors.CodeValidation, "only sales can be returned")
		}
		if _, err := repo.FindReturnOf(ctx, saleID); err == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "sale already returned")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing return")
		}

		source := sale.ID
		rec := &models.SaleRecord{
			ID:           s.newID(),
			Type:         enums.SaleTypeReturn,
			UserID:       userID,
			Items:        sale.Items.Negated(),
			Total:        -sale.Total,
			ReturnedFrom: &source,
			CreatedAt:    s.clock.Now(),
		}
		if err := repo.Create(ctx, rec); err != nil {
			if db.IsUniqueViolation(err) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "sale already returned")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return")
		}

		lines := sales.Lines(rec.Items, s.catalog.Tracks)
		var totalQty int64
		for _, line := range lines {
			totalQty += line.Quantity
		}
		if err := s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventSaleReturned,
			AggregateType: enums.AggregateSale,
			AggregateID:   rec.ID,
			Actor:         &outbox.Actor{UserID: userID},
			OccurredAt:    rec.CreatedAt,
			Data: payloads.SaleReturnedEvent{
				ReturnID:      rec.ID,
				SaleID:        source,
				Items:         lines,
				TotalQuantity: totalQty,
				CreatedAt:     rec.CreatedAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit sale returned")
		}
		created = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithSaleID(ctx, saleID.String())
		logCtx = s.logg.WithField(logCtx, "return_id", created.ID.String())
		s.logg.Info(logCtx, "sale.returned")
	}
	return sales.FromModel(created), nil
}
