package product

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/festpos/pkg/db/models"
)

// ProductDTO is the catalog entry as the register sees it.
type ProductDTO struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price int64     `json:"price"`
	Order *int      `json:"order,omitempty"`
}

func FromModel(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	return &ProductDTO{
		ID:    p.ID,
		Name:  p.Name,
		Price: p.Price,
		Order: p.DisplayOrder,
	}
}
