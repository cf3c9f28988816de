package sales

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/enums"
	"github.com/angelmondragon/festpos/pkg/outbox/payloads"
	"github.com/angelmondragon/festpos/pkg/types"
)

// SaleDTO is the durable record as returned over the API.
type SaleDTO struct {
	ID           uuid.UUID       `json:"id"`
	Type         enums.SaleType  `json:"type"`
	UserID       uuid.UUID       `json:"uid"`
	Items        types.SaleItems `json:"items"`
	Total        int64           `json:"total"`
	ReturnedFrom *uuid.UUID      `json:"returnedFrom,omitempty"`
	Provided     bool            `json:"provided"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// SalePage is one page of records.
type SalePage struct {
	Sales      []SaleDTO `json:"sales"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func FromModel(m *models.SaleRecord) *SaleDTO {
	if m == nil {
		return nil
	}
	items := m.Items
	if items == nil {
		items = types.SaleItems{}
	}
	return &SaleDTO{
		ID:           m.ID,
		Type:         m.Type,
		UserID:       m.UserID,
		Items:        items,
		Total:        m.Total,
		ReturnedFrom: m.ReturnedFrom,
		Provided:     m.Provided,
		CreatedAt:    m.CreatedAt,
	}
}

// Lines projects sale items onto the feed payload shape, keeping only the
// products accepted by keep. A nil keep keeps everything.
func Lines(items types.SaleItems, keep func(productID string) bool) []payloads.SaleLine {
	out := make([]payloads.SaleLine, 0, len(items))
	for _, item := range items {
		if keep != nil && !keep(item.ProductID) {
			continue
		}
		out = append(out, payloads.SaleLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal,
		})
	}
	return out
}
