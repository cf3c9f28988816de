package enums

import "slices"

// SaleType discriminates the records stored in the sales collection.
type SaleType string

const (
	SaleTypeSale   SaleType = "sale"
	SaleTypeReturn SaleType = "return"
)

var saleTypes = []SaleType{SaleTypeSale, SaleTypeReturn}

func (s SaleType) String() string { return string(s) }

func (s SaleType) IsValid() bool { return slices.Contains(saleTypes, s) }

func ParseSaleType(value string) (SaleType, error) {
	return parse("sale type", value, saleTypes)
}
