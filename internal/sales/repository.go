package sales

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/enums"
	"github.com/angelmondragon/festpos/pkg/pagination"
)

// Repository persists sale and return records.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SaleRecord, error) {
	var rec models.SaleRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) Create(ctx context.Context, rec *models.SaleRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// FindReturnOf returns the return record referencing saleID, if any.
func (r *Repository) FindReturnOf(ctx context.Context, saleID uuid.UUID) (*models.SaleRecord, error) {
	var rec models.SaleRecord
	if err := r.db.WithContext(ctx).First(&rec, "returned_from = ?", saleID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListUnreturned returns sales that no return references, newest first,
// starting after the cursor when one is given.
func (r *Repository) ListUnreturned(ctx context.Context, limit int, after *pagination.Cursor) ([]models.SaleRecord, error) {
	returned := r.db.Model(&models.SaleRecord{}).
		Select("returned_from").
		Where("returned_from IS NOT NULL")

	q := r.db.WithContext(ctx).
		Where("type = ?", enums.SaleTypeSale).
		Where("id NOT IN (?)", returned)
	return r.newestFirst(q, limit, after)
}

// ListHistory returns every record, sales and returns alike, newest first.
func (r *Repository) ListHistory(ctx context.Context, limit int, after *pagination.Cursor) ([]models.SaleRecord, error) {
	return r.newestFirst(r.db.WithContext(ctx), limit, after)
}

func (r *Repository) newestFirst(q *gorm.DB, limit int, after *pagination.Cursor) ([]models.SaleRecord, error) {
	q = q.Order("created_at DESC").Order("id DESC")
	if after != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []models.SaleRecord
	err := q.Find(&rows).Error
	return rows, err
}

// SetProvided flags a sale as handed over to the customer. Returns are never
// matched.
func (r *Repository) SetProvided(ctx context.Context, id uuid.UUID, provided bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SaleRecord{}).
		Where("id = ? AND type = ?", id, enums.SaleTypeSale).
		Update("provided", provided)
	return res.RowsAffected, res.Error
}

// ListAll streams every record for aggregation, oldest first.
func (r *Repository) ListAll(ctx context.Context) ([]models.SaleRecord, error) {
	var rows []models.SaleRecord
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error
	return rows, err
}
