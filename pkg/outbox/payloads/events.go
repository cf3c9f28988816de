package payloads

import (
	"time"

	"github.com/google/uuid"
)

// SaleLine is the projection of a sale item carried on the feed.
type SaleLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	Quantity  int64  `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

// SaleRecordedEvent is emitted once per durable sale.
type SaleRecordedEvent struct {
	SaleID    uuid.UUID  `json:"saleId"`
	UserID    uuid.UUID  `json:"uid"`
	Items     []SaleLine `json:"items"`
	Total     int64      `json:"total"`
	CreatedAt time.Time  `json:"createdAt"`
}

// SaleReturnedEvent is emitted when a sale is reversed. Items only carries
// the tracked products, with negative quantities.
type SaleReturnedEvent struct {
	ReturnID      uuid.UUID  `json:"returnId"`
	SaleID        uuid.UUID  `json:"returnedFrom"`
	Items         []SaleLine `json:"items"`
	TotalQuantity int64      `json:"totalQuantity"`
	CreatedAt     time.Time  `json:"createdAt"`
}
