package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/gaaka/commerce/internal/domain"
)

func testCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator(CalculatorDeps{Tables: DefaultPricingTables()})
	if err != nil {
		t.Fatalf("NewCalculator error: %v", err)
	}
	return calc
}

func TestCalculator_OrderTotals_Germany(t *testing.T) {
	calc := testCalculator(t)

	items := []domain.CartLine{
		{ID: "a", Name: "Vase", Quantity: 2, UnitPrice: 2500},
	}
	got, err := calc.OrderTotals(items, "DE")
	if err != nil {
		t.Fatalf("OrderTotals error: %v", err)
	}
	want := domain.PricingBreakdown{Currency: "EUR", Subtotal: 5000, Shipping: 490, Tax: 950, Total: 6440}
	if got != want {
		t.Fatalf("unexpected breakdown: got %+v, want %+v", got, want)
	}
}

func TestCalculator_OrderTotals_CountryFallback(t *testing.T) {
	calc := testCalculator(t)

	items := []domain.CartLine{{ID: "a", Name: "Bowl", Quantity: 1, UnitPrice: 10000}}

	// Unmapped country takes the default shipping and the default VAT rate.
	got, err := calc.OrderTotals(items, "JP")
	if err != nil {
		t.Fatalf("OrderTotals error: %v", err)
	}
	if got.Shipping != 1690 || got.Tax != 1900 {
		t.Fatalf("expected default table values, got %+v", got)
	}

	// US has explicit zero VAT, which must not fall through to the default.
	got, err = calc.OrderTotals(items, "US")
	if err != nil {
		t.Fatalf("OrderTotals error: %v", err)
	}
	if got.Tax != 0 || got.Shipping != 1990 {
		t.Fatalf("expected US table values, got %+v", got)
	}
}

func TestCalculator_OrderTotals_SwissRounding(t *testing.T) {
	calc := testCalculator(t)

	// 7.7% of 99.99 is 7.69923, rounding to 7.70.
	items := []domain.CartLine{{ID: "a", Name: "Cup", Quantity: 1, UnitPrice: 9999}}
	got, err := calc.OrderTotals(items, "CH")
	if err != nil {
		t.Fatalf("OrderTotals error: %v", err)
	}
	if got.Tax != 770 {
		t.Fatalf("expected tax 770, got %d", got.Tax)
	}
}

func TestCalculator_OrderTotals_Invalid(t *testing.T) {
	calc := testCalculator(t)

	if _, err := calc.OrderTotals(nil, "DE"); !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("expected ErrInvalidCart for empty cart, got %v", err)
	}
	bad := []domain.CartLine{{ID: "a", Name: "Broken", Quantity: 0, UnitPrice: 100}}
	if _, err := calc.OrderTotals(bad, "DE"); !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("expected ErrInvalidCart for zero quantity, got %v", err)
	}
	free := []domain.CartLine{{ID: "a", Name: "Freebie", Quantity: 1, UnitPrice: 0}}
	if _, err := calc.OrderTotals(free, "DE"); !errors.Is(err, ErrInvalidCart) {
		t.Fatalf("expected ErrInvalidCart for zero price, got %v", err)
	}
}

func TestCalculator_Breakdown_GlobalFreeShippingOverride(t *testing.T) {
	calc := testCalculator(t)
	ctx := context.Background()

	// Cart total 250.00 to DE with no selected rate: the 200.00 threshold
	// zeroes the country default.
	items := []domain.CartLine{{ID: "a", Name: "Set", Quantity: 1, UnitPrice: 25000}}
	got := calc.Breakdown(ctx, items, "DE", nil)
	if got.Shipping != 0 {
		t.Fatalf("expected free shipping above threshold, got %d", got.Shipping)
	}
	if got.Total != got.Subtotal+got.Tax {
		t.Fatalf("total should exclude shipping: %+v", got)
	}

	// The override also beats a selected paid rate.
	rate := &domain.ShippingRate{MethodID: "dhl-express-de", Price: 999}
	got = calc.Breakdown(ctx, items, "DE", rate)
	if got.Shipping != 0 {
		t.Fatalf("expected override of selected rate, got %d", got.Shipping)
	}
}

func TestCalculator_Breakdown_SelectedRateWins(t *testing.T) {
	calc := testCalculator(t)
	ctx := context.Background()

	items := []domain.CartLine{{ID: "a", Name: "Vase", Quantity: 1, UnitPrice: 5000}}
	rate := &domain.ShippingRate{MethodID: "dhl-express-de", Price: 999}
	got := calc.Breakdown(ctx, items, "DE", rate)
	if got.Shipping != 999 {
		t.Fatalf("expected selected rate price, got %d", got.Shipping)
	}
	if got.Total != 5000+999+950 {
		t.Fatalf("unexpected total %d", got.Total)
	}
}

func TestCalculator_Breakdown_NeverFails(t *testing.T) {
	calc := testCalculator(t)
	ctx := context.Background()

	if got := calc.Breakdown(ctx, nil, "DE", nil); !got.IsZero() {
		t.Fatalf("expected zero breakdown for empty cart, got %+v", got)
	}

	// Invalid items degrade to zero instead of failing.
	bad := []domain.CartLine{{ID: "a", Name: "Broken", Quantity: -1, UnitPrice: 100}}
	if got := calc.Breakdown(ctx, bad, "DE", nil); !got.IsZero() {
		t.Fatalf("expected zero breakdown for invalid cart, got %+v", got)
	}
}
