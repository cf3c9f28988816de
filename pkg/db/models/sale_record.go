package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/festpos/pkg/enums"
	"github.com/angelmondragon/festpos/pkg/types"
)

// SaleRecord is a durable sale or return. Sale ids are minted by the register;
// return ids are minted by the server.
type SaleRecord struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Type         enums.SaleType  `gorm:"column:type;not null"`
	UserID       uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	Items        types.SaleItems `gorm:"column:items;type:jsonb;not null"`
	Total        int64           `gorm:"column:total;not null"`
	ReturnedFrom *uuid.UUID      `gorm:"column:returned_from;type:uuid"`
	Provided     bool            `gorm:"column:provided;not null;default:false"`
	CreatedAt    time.Time       `gorm:"column:created_at"`
}

func (SaleRecord) TableName() string { return "sale_records" }
