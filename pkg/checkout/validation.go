package checkout

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/types"
)

// LineViolation describes a sale line that cannot be recorded.
type LineViolation struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

// ValidateSale ensures a sale carries at least one line, every line has a
// positive quantity and a consistent subtotal, and the total matches.
func ValidateSale(items types.SaleItems, total int64) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale has no items")
	}

	var violations []LineViolation
	var sum int64
	for _, item := range items {
		switch {
		case item.ProductID == "":
			violations = append(violations, LineViolation{Reason: "product id is required"})
		case item.Quantity <= 0:
			violations = append(violations, LineViolation{ProductID: item.ProductID, Reason: "quantity must be positive"})
		case item.Price < 0:
			violations = append(violations, LineViolation{ProductID: item.ProductID, Reason: "price must not be negative"})
		case item.Subtotal != item.Price*item.Quantity:
			violations = append(violations, LineViolation{ProductID: item.ProductID, Reason: "subtotal does not match price x quantity"})
		}
		sum += item.Subtotal
	}
	if len(violations) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d invalid sale line(s)", len(violations))).WithDetails(map[string]any{
			"violations": violations,
		})
	}
	if sum != total {
		return pkgerrors.New(pkgerrors.CodeValidation, "total does not match line subtotals").WithDetails(map[string]any{
			"total":    total,
			"expected": sum,
		})
	}
	return nil
}
