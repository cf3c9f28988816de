package cart

import (
	"sort"

	"github.com/angelmondragon/festpos/pkg/types"
)

// Product is the register's read-only view of a catalog entry.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Order *int   `json:"order,omitempty"`
}

func (p Product) order() int {
	if p.Order == nil {
		return 0
	}
	return *p.Order
}

// SortProducts orders products ascending by display order, treating a missing
// order as 0. Ties keep name order so the listing is stable.
func SortProducts(products []Product) {
	sort.SliceStable(products, func(i, j int) bool {
		oi, oj := products[i].order(), products[j].order()
		if oi != oj {
			return oi < oj
		}
		return products[i].Name < products[j].Name
	})
}

// Cart is the set of lines the register is about to sell.
type Cart struct {
	Items types.SaleItems `json:"items"`
	Total int64           `json:"total"`
}

// Build turns quantity selections into a cart, in catalog order. Products with
// a zero or negative quantity, and quantities for unknown products, are skipped.
func Build(catalog []Product, quantities map[string]int64) Cart {
	var c Cart
	for _, p := range catalog {
		qty := quantities[p.ID]
		if qty <= 0 {
			continue
		}
		subtotal := p.Price * qty
		c.Items = append(c.Items, types.SaleItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  qty,
			Subtotal:  subtotal,
		})
		c.Total += subtotal
	}
	return c
}

// Qualifying drops lines with no quantity and re-totals the cart.
func (c Cart) Qualifying() Cart {
	var out Cart
	for _, item := range c.Items {
		if item.Quantity <= 0 {
			continue
		}
		item.Subtotal = item.Price * item.Quantity
		out.Items = append(out.Items, item)
		out.Total += item.Subtotal
	}
	return out
}

func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy.
func (c Cart) Clone() Cart {
	out := Cart{Total: c.Total}
	if c.Items != nil {
		out.Items = append(types.SaleItems(nil), c.Items...)
	}
	return out
}

// Quantities returns the per-product quantities the cart was built from.
func (c Cart) Quantities() map[string]int64 {
	out := make(map[string]int64, len(c.Items))
	for _, item := range c.Items {
		out[item.ProductID] += item.Quantity
	}
	return out
}
