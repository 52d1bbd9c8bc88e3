package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gaaka/commerce/internal/domain"
)

// ErrInvalidCart signals a cart the totals calculator cannot price.
var ErrInvalidCart = errors.New("checkout: invalid cart")

// PricingTables holds the country keyed tax and shipping-default
// configuration. Tax rates are basis points, amounts minor units. Immutable
// after construction.
type PricingTables struct {
	Currency string
	// FreeShippingThreshold zeroes shipping for any cart at or above this
	// subtotal, independent of per-method thresholds and the selected rate.
	FreeShippingThreshold int64
	ShippingDefaults      map[string]int64
	DefaultShipping       int64
	TaxRatesBps           map[string]int64
	DefaultTaxBps         int64
}

// DefaultPricingTables returns the built-in country tables.
func DefaultPricingTables() PricingTables {
	return PricingTables{
		Currency:              "EUR",
		FreeShippingThreshold: 20000,
		ShippingDefaults: map[string]int64{
			"DE": 490,
			"AT": 690,
			"CH": 990,
			"NL": 790,
			"BE": 790,
			"FR": 890,
			"IT": 890,
			"ES": 890,
			"GB": 1290,
			"US": 1990,
			"CA": 1990,
		},
		DefaultShipping: 1690,
		TaxRatesBps: map[string]int64{
			"DE": 1900,
			"AT": 2000,
			"CH": 770,
			"NL": 2100,
			"BE": 2100,
			"FR": 2000,
			"IT": 2200,
			"ES": 2100,
			"GB": 2000,
			"US": 0,
			"CA": 0,
		},
		DefaultTaxBps: 1900,
	}
}

// ShippingDefault resolves the country's flat shipping amount. Total function;
// unmapped countries get the default.
func (t PricingTables) ShippingDefault(country string) int64 {
	if amount, ok := t.ShippingDefaults[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return amount
	}
	return t.DefaultShipping
}

// TaxBps resolves the country's VAT rate in basis points. Total function.
func (t PricingTables) TaxBps(country string) int64 {
	if bps, ok := t.TaxRatesBps[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return bps
	}
	return t.DefaultTaxBps
}

// Calculator computes order price breakdowns from the country tables.
type Calculator struct {
	tables PricingTables
	logger func(context.Context, string, map[string]any)
}

type CalculatorDeps struct {
	Tables PricingTables
	Logger func(context.Context, string, map[string]any)
}

func NewCalculator(deps CalculatorDeps) (*Calculator, error) {
	tables := deps.Tables
	if tables.Currency == "" {
		return nil, errors.New("checkout calculator: currency is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Calculator{tables: tables, logger: logger}, nil
}

// OrderTotals prices a cart against the country tables. The cart must be
// non-empty with positive prices and quantities.
func (c *Calculator) OrderTotals(items []domain.CartLine, country string) (domain.PricingBreakdown, error) {
	if len(items) == 0 {
		return domain.PricingBreakdown{}, fmt.Errorf("%w: cannot calculate totals for empty cart", ErrInvalidCart)
	}

	var subtotal int64
	for _, item := range items {
		if item.UnitPrice <= 0 || item.Quantity <= 0 {
			return domain.PricingBreakdown{}, fmt.Errorf("%w: invalid item %q", ErrInvalidCart, item.Name)
		}
		subtotal += item.UnitPrice * int64(item.Quantity)
	}

	shipping := c.tables.ShippingDefault(country)
	if subtotal >= c.tables.FreeShippingThreshold {
		shipping = 0
	}
	tax := roundBps(subtotal, c.tables.TaxBps(country))

	return domain.PricingBreakdown{
		Currency: c.tables.Currency,
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax,
	}, nil
}

// Breakdown is the derived pricing query used on every checkout state change.
// An empty cart yields a zero breakdown; a selected rate replaces the country
// default, and the global free-shipping threshold is applied last, overriding
// both. Never fails: calculation errors degrade to zero and are logged.
func (c *Calculator) Breakdown(ctx context.Context, items []domain.CartLine, country string, selected *domain.ShippingRate) domain.PricingBreakdown {
	if len(items) == 0 {
		return domain.PricingBreakdown{Currency: c.tables.Currency}
	}

	base, err := c.OrderTotals(items, country)
	if err != nil {
		c.logger(ctx, "checkout.pricing.failed", map[string]any{
			"country": country,
			"error":   err.Error(),
		})
		return domain.PricingBreakdown{Currency: c.tables.Currency}
	}

	shipping := base.Shipping
	if selected != nil {
		shipping = selected.Price
	}
	if base.Subtotal >= c.tables.FreeShippingThreshold {
		shipping = 0
	}

	return domain.PricingBreakdown{
		Currency: base.Currency,
		Subtotal: base.Subtotal,
		Shipping: shipping,
		Tax:      base.Tax,
		Total:    base.Subtotal + shipping + base.Tax,
	}
}

// roundBps applies a basis-point rate with half-up rounding to minor units.
func roundBps(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
