package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SaleItem is one line of a sale or return snapshot.
type SaleItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

// SaleItems is stored as a JSON document column.
type SaleItems []SaleItem

// Value implements driver.Valuer.
func (s SaleItems) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for json/jsonb/text columns.
func (s *SaleItems) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = SaleItems{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("sale items: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*s = SaleItems{}
		return nil
	}
	var items SaleItems
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("sale items: %w", err)
	}
	*s = items
	return nil
}

// Units sums the item quantities.
func (s SaleItems) Units() int64 {
	var units int64
	for _, item := range s {
		units += item.Quantity
	}
	return units
}

// Negated returns a copy with quantities and subtotals sign-flipped, used for
// return records.
func (s SaleItems) Negated() SaleItems {
	out := make(SaleItems, len(s))
	for i, item := range s {
		item.Quantity = -item.Quantity
		item.Subtotal = -item.Subtotal
		out[i] = item
	}
	return out
}

// Total sums the item subtotals.
func (s SaleItems) Total() int64 {
	var total int64
	for _, item := range s {
		total += item.Subtotal
	}
	return total
}
