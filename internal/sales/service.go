package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/festpos/pkg/checkout"
	"github.com/angelmondragon/festpos/pkg/clock"
	"github.com/angelmondragon/festpos/pkg/db"
	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/logger"
	"github.com/angelmondragon/festpos/pkg/outbox"
	"github.com/angelmondragon/festpos/pkg/outbox/payloads"
	"github.com/angelmondragon/festpos/pkg/pagination"
	"github.com/angelmondragon/festpos/pkg/types"
)

// Service records register sales and serves them back.
type Service interface {
	PutSale(ctx context.Context, saleID, userID uuid.UUID, input PutSaleInput) (*SaleDTO, bool, error)
	GetSale(ctx context.Context, saleID uuid.UUID) (*SaleDTO, error)
	ListUnreturned(ctx context.Context, params pagination.Params) (*SalePage, error)
	ListHistory(ctx context.Context, params pagination.Params) (*SalePage, error)
	SetProvided(ctx context.Context, saleID uuid.UUID, provided bool) (*SaleDTO, error)
}

// PutSaleInput is the sale body a register pushes. The creation time is
// always assigned by the server.
type PutSaleInput struct {
	Type  enums.SaleType
	Items types.SaleItems
	Total int64
}

type outboxEmitter interface {
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

type ServiceParams struct {
	Repository *Repository
	DB         *db.Client
	Outbox     outboxEmitter
	Clock      clock.Clock
	Logger     *logger.Logger
}

type service struct {
	repo   *Repository
	db     *db.Client
	outbox outboxEmitter
	clock  clock.Clock
	logg   *logger.Logger
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
		repo:   params.Repository,
		db:     params.DB,
		outbox: params.Outbox,
		clock:  clk,
		logg:   params.Logger,
	}, nil
}

// PutSale stores the sale under the register-minted id. Replays of the same
// id by the same user are no-ops; the bool reports whether a row was created.
func (s *service) PutSale(ctx context.Context, saleID, userID uuid.UUID, input PutSaleInput) (*SaleDTO, bool, error) {
	if saleID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "sale id is required")
	}
	if userID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	if input.Type != "" && input.Type != enums.SaleTypeSale {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "only sales can be recorded here")
	}
	if err := checkout.ValidateSale(input.Items, input.Total); err != nil {
		return nil, false, err
	}

	var (
		stored  *models.SaleRecord
		created bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByID(ctx, saleID)
		switch {
		case err == nil:
			stored = existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
		}

		rec := &models.SaleRecord{
			ID:        saleID,
			Type:      enums.SaleTypeSale,
			UserID:    userID,
			Items:     input.Items,
			Total:     input.Total,
			CreatedAt: s.clock.Now(),
		}
		if err := repo.Create(ctx, rec); err != nil {
			return err
		}
		if err := s.outbox.EmitOnce(ctx, tx, outbox.Event{
			EventType:     enums.EventSaleRecorded,
			AggregateType: enums.AggregateSale,
			AggregateID:   rec.ID,
			Actor:         &outbox.Actor{UserID: userID},
			OccurredAt:    rec.CreatedAt,
			Data: payloads.SaleRecordedEvent{
				SaleID:    rec.ID,
				UserID:    userID,
				Items:     Lines(rec.Items, nil),
				Total:     rec.Total,
				CreatedAt: rec.CreatedAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit sale recorded")
		}
		stored = rec
		created = true
		return nil
	})
	if err != nil {
		if !db.IsUniqueViolation(err) {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record sale")
			}
			return nil, false, err
		}
		// A concurrent replay won the insert.
		existing, findErr := s.repo.FindByID(ctx, saleID)
		if findErr != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load sale")
		}
		stored, created = existing, false
	}

	if stored.UserID != userID || stored.Type != enums.SaleTypeSale {
		return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "sale id already used")
	}

	if s.logg != nil {
		logCtx := s.logg.WithSaleID(ctx, saleID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"created": created,
			"total":   stored.Total,
		})
		s.logg.Info(logCtx, "sale.recorded")
	}
	return FromModel(stored), created, nil
}

func (s *service) GetSale(ctx context.Context, saleID uuid.UUID) (*SaleDTO, error) {
	rec, err := s.repo.FindByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	return FromModel(rec), nil
}

func (s *service) ListUnreturned(ctx context.Context, params pagination.Params) (*SalePage, error) {
	return s.listPage(ctx, params, s.repo.ListUnreturned)
}

// ListHistory pages through every sale and return, newest first.
func (s *service) ListHistory(ctx context.Context, params pagination.Params) (*SalePage, error) {
	return s.listPage(ctx, params, s.repo.ListHistory)
}

type lister func(ctx context.Context, limit int, after *pagination.Cursor) ([]models.SaleRecord, error)

func (s *service) listPage(ctx context.Context, params pagination.Params, list lister) (*SalePage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	rows, err := list(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}
	rows, more := pagination.Trim(rows, params.Limit)

	page := &SalePage{Sales: make([]SaleDTO, 0, len(rows))}
	for i := range rows {
		page.Sales = append(page.Sales, *FromModel(&rows[i]))
	}
	if more {
		last := rows[len(rows)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// SetProvided records whether a sale's goods were handed over. Only sales carry
// the flag; returns answer STATE_CONFLICT.
func (s *service) SetProvided(ctx context.Context, saleID uuid.UUID, provided bool) (*SaleDTO, error) {
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale id is required")
	}
	affected, err := s.repo.SetProvided(ctx, saleID, provided)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update sale")
	}
	rec, err := s.repo.FindByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	if affected == 0 && rec.Type != enums.SaleTypeSale {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "returns cannot be marked provided")
	}

	if s.logg != nil {
		logCtx := s.logg.WithField(s.logg.WithSaleID(ctx, saleID.String()), "provided", provided)
		s.logg.Info(logCtx, "sale.provided_updated")
	}
	return FromModel(rec), nil
}
