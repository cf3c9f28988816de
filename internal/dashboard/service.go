package dashboard

import (
	"context"
	"fmt"

	"github.com/angelmondragon/festpos/pkg/db/models"
	"github.com/angelmondragon/festpos/pkg/enums"
	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
)

// Totals summarises every recorded sale and return. Returns carry negated
// quantities and totals, so they subtract naturally.
type Totals struct {
	Units       int64 `json:"units"`
	Revenue     int64 `json:"revenue"`
	SaleCount   int   `json:"sale_count"`
	ReturnCount int   `json:"return_count"`
}

type recordLister interface {
	ListAll(ctx context.Context) ([]models.SaleRecord, error)
}

type Service interface {
	Totals(ctx context.Context) (*Totals, error)
}

type service struct {
	records recordLister
}

func NewService(records recordLister) (Service, error) {
	if records == nil {
		return nil, fmt.Errorf("record lister required")
	}
	return &service{records: records}, nil
}

func (s *service) Totals(ctx context.Context) (*Totals, error) {
	rows, err := s.records.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sale records")
	}
	return Summarize(rows), nil
}

// Summarize folds records into dashboard totals.
func Summarize(rows []models.SaleRecord) *Totals {
	out := &Totals{}
	for _, row := range rows {
		out.Units += row.Items.Units()
		out.Revenue += row.Total
		switch row.Type {
		case enums.SaleTypeSale:
			out.SaleCount++
		case enums.SaleTypeReturn:
			out.ReturnCount++
		}
	}
	return out
}
