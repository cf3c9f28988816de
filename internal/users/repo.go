package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/festpos/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Upsert creates the user unverified on first sight. Later calls only
// refresh a non-blank display name; verified is never written here.
func (r *Repository) Upsert(ctx context.Context, id uuid.UUID, displayName string) (*models.User, error) {
	conflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}
	if displayName != "" {
		conflict = clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
		}
	}
	row := models.User{ID: id, DisplayName: displayName}
	if err := r.db.WithContext(ctx).Clauses(conflict).Create(&row).Error; err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// SetVerified reports false when no such user exists.
func (r *Repository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("verified", verified)
	return res.RowsAffected > 0, res.Error
}
