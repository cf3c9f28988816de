package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry sold at the booth. DisplayOrder may be unset for
// legacy rows; readers treat nil as 0.
type Product struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	Price        int64     `gorm:"column:price;not null"`
	DisplayOrder *int      `gorm:"column:display_order"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// Order returns the display order, defaulting to 0.
func (p Product) Order() int {
	if p.DisplayOrder == nil {
		return 0
	}
	return *p.DisplayOrder
}
