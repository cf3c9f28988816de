package checkout

import (
	"testing"

	pkgerrors "github.com/angelmondragon/festpos/pkg/errors"
	"github.com/angelmondragon/festpos/pkg/types"
)

func TestValidateSale_NoViolations(t *testing.T) {
	items := types.SaleItems{
		{ProductID: "a", Name: "Yakisoba", Price: 100, Quantity: 2, Subtotal: 200},
		{ProductID: "b", Name: "Ramune", Price: 50, Quantity: 1, Subtotal: 50},
	}
	if err := ValidateSale(items, 250); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateSale_Violations(t *testing.T) {
	items := types.SaleItems{
		{ProductID: "a", Price: 100, Quantity: 0, Subtotal: 0},
		{ProductID: "b", Price: 50, Quantity: 2, Subtotal: 90},
	}
	err := ValidateSale(items, 90)
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected pkgerrors.Error, got %T", err)
	}
	if typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected code %s, got %s", pkgerrors.CodeValidation, typed.Code())
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	violations, ok := details["violations"].([]LineViolation)
	if !ok {
		t.Fatalf("expected violations slice, got %T", details["violations"])
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(violations))
	}
}

func TestValidateSale_TotalMismatch(t *testing.T) {
	items := types.SaleItems{{ProductID: "a", Price: 100, Quantity: 1, Subtotal: 100}}
	if err := ValidateSale(items, 120); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateSale_Empty(t *testing.T) {
	if err := ValidateSale(nil, 0); err == nil {
		t.Fatal("expected error for empty sale")
	}
}
