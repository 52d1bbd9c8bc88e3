package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gaaka/commerce/internal/domain"
)

// Engine computes shipping offers for a cart and destination against its
// static tables. It performs no I/O and is safe for concurrent use.
type Engine struct {
	tables     *Tables
	currencies map[string]struct{}
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

type EngineDeps struct {
	Tables *Tables
	// SupportedCurrencies defaults to EUR, USD, GBP and CHF.
	SupportedCurrencies []string
	Now                 func() time.Time
	Logger              func(context.Context, string, map[string]any)
}

func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Tables == nil {
		return nil, errors.New("shipping engine: tables are required")
	}
	currencies := deps.SupportedCurrencies
	if len(currencies) == 0 {
		currencies = []string{"EUR", "USD", "GBP", "CHF"}
	}
	supported := make(map[string]struct{}, len(currencies))
	for _, code := range currencies {
		supported[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Engine{
		tables:     deps.Tables,
		currencies: supported,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

// Tables exposes the engine's static configuration.
func (e *Engine) Tables() *Tables {
	return e.tables
}

// RateInput is one rate calculation request.
type RateInput struct {
	Items       []domain.CartLine
	Destination domain.Destination
	Currency    string
}

// RateResult carries either the sorted offers or the collected failure
// messages. Success is false both for invalid input and for the legitimate
// business outcome of no methods serving the destination.
type RateResult struct {
	Success          bool
	Rates            []domain.ShippingRate
	Errors           []string
	TotalWeightGrams int
	TotalValue       int64
}

// Calculate validates the input, resolves the destination zone and prices
// every eligible method. All validation violations are collected before
// returning so a caller can render a complete summary in one pass.
func (e *Engine) Calculate(ctx context.Context, input RateInput) RateResult {
	if errs := e.validateInput(input); len(errs) > 0 {
		e.logger(ctx, "shipping.rates.invalid_input", map[string]any{
			"errors": len(errs),
		})
		return RateResult{Errors: errs}
	}

	weight, value := cartTotals(input.Items)
	zone := e.tables.ZoneForCountry(input.Destination.Country)
	methods := e.tables.MethodsForZone(zone)
	if len(methods) == 0 {
		return RateResult{
			Errors:           []string{fmt.Sprintf("No shipping methods available for %s", input.Destination.Country)},
			TotalWeightGrams: weight,
			TotalValue:       value,
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	rates := make([]domain.ShippingRate, 0, len(methods))
	for _, method := range methods {
		if method.Restrictions != nil && method.Restrictions.MaxWeightGrams > 0 && weight > method.Restrictions.MaxWeightGrams {
			continue
		}
		rates = append(rates, e.rateForMethod(method, weight, value, currency))
	}

	sort.SliceStable(rates, func(i, j int) bool {
		return rates[i].Price < rates[j].Price
	})

	e.logger(ctx, "shipping.rates.calculated", map[string]any{
		"zone":         zone,
		"country":      strings.ToUpper(strings.TrimSpace(input.Destination.Country)),
		"rates":        len(rates),
		"weight_grams": weight,
	})

	return RateResult{
		Success:          true,
		Rates:            rates,
		TotalWeightGrams: weight,
		TotalValue:       value,
	}
}

func (e *Engine) validateInput(input RateInput) []string {
	var errs []string

	if len(input.Items) == 0 {
		errs = append(errs, "No items in cart")
	}
	if strings.TrimSpace(input.Destination.Country) == "" {
		errs = append(errs, "Destination country is required")
	}
	if strings.TrimSpace(input.Destination.PostalCode) == "" {
		errs = append(errs, "Destination postal code is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		errs = append(errs, "Currency is required")
	} else if _, ok := e.currencies[currency]; !ok {
		errs = append(errs, fmt.Sprintf("Currency %s is not supported", currency))
	}

	for i, item := range input.Items {
		if strings.TrimSpace(item.ID) == "" {
			errs = append(errs, fmt.Sprintf("Item %d: ID is required", i+1))
		}
		if item.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("Item %d: Quantity must be greater than 0", i+1))
		}
		if item.WeightGrams <= 0 {
			errs = append(errs, fmt.Sprintf("Item %d: Weight must be greater than 0", i+1))
		}
		if item.UnitPrice < 0 {
			errs = append(errs, fmt.Sprintf("Item %d: Price must be non-negative", i+1))
		}
	}

	return errs
}

func (e *Engine) rateForMethod(method domain.ShippingMethod, weightGrams int, value int64, currency string) domain.ShippingRate {
	price := method.Price.BaseRate
	if method.Price.WeightMultiplier > 0 && weightGrams > 1000 {
		// The first kilogram is covered by the base rate. The multiplier is
		// minor units per kilogram; round half up to whole minor units.
		extra := int64(weightGrams - 1000)
		price += (extra*method.Price.WeightMultiplier + 500) / 1000
	}
	if method.Price.FreeThreshold > 0 && value >= method.Price.FreeThreshold {
		price = 0
	}

	tracking := true
	if method.Restrictions != nil {
		tracking = method.Restrictions.TrackingIncluded
	}

	return domain.ShippingRate{
		MethodID:          method.ID,
		Name:              method.Name,
		Description:       method.Description,
		Price:             price,
		Currency:          currency,
		DeliveryTime:      formatDeliveryTime(method.Delivery),
		Carrier:           method.Carrier,
		TrackingIncluded:  tracking,
		EstimatedDelivery: e.estimatedDelivery(method.Delivery),
	}
}

func (e *Engine) estimatedDelivery(window domain.DeliveryWindow) time.Time {
	now := e.now()
	if window.Unit == domain.UnitHours {
		return now.Add(time.Duration(window.Max) * time.Hour)
	}
	// Business days: weekends do not count toward the transit estimate.
	remaining := window.Max
	result := now
	for remaining > 0 {
		result = result.AddDate(0, 0, 1)
		if wd := result.Weekday(); wd != time.Saturday && wd != time.Sunday {
			remaining--
		}
	}
	return result
}

func formatDeliveryTime(window domain.DeliveryWindow) string {
	if window.Min == window.Max {
		unit := "days"
		if window.Unit == domain.UnitHours {
			unit = "hours"
			if window.Min == 1 {
				unit = "hour"
			}
		} else if window.Min == 1 {
			unit = "day"
		}
		return fmt.Sprintf("%d %s", window.Min, unit)
	}
	if window.Unit == domain.UnitHours {
		return fmt.Sprintf("%d-%d hours", window.Min, window.Max)
	}
	return fmt.Sprintf("%d-%d business days", window.Min, window.Max)
}

func cartTotals(items []domain.CartLine) (weightGrams int, value int64) {
	for _, item := range items {
		weightGrams += item.WeightGrams * item.Quantity
		value += item.UnitPrice * int64(item.Quantity)
	}
	return weightGrams, value
}

// CheapestRate returns the lowest priced rate, or false for an empty list.
func CheapestRate(rates []domain.ShippingRate) (domain.ShippingRate, bool) {
	if len(rates) == 0 {
		return domain.ShippingRate{}, false
	}
	cheapest := rates[0]
	for _, rate := range rates[1:] {
		if rate.Price < cheapest.Price {
			cheapest = rate
		}
	}
	return cheapest, true
}

// FastestRate returns the rate with the earliest estimated delivery, or false
// for an empty list.
func FastestRate(rates []domain.ShippingRate) (domain.ShippingRate, bool) {
	if len(rates) == 0 {
		return domain.ShippingRate{}, false
	}
	fastest := rates[0]
	for _, rate := range rates[1:] {
		if rate.EstimatedDelivery.Before(fastest.EstimatedDelivery) {
			fastest = rate
		}
	}
	return fastest, true
}

// RatesByCarrier filters rates to a single carrier, case insensitively.
func RatesByCarrier(rates []domain.ShippingRate, carrier string) []domain.ShippingRate {
	carrier = strings.ToLower(strings.TrimSpace(carrier))
	var out []domain.ShippingRate
	for _, rate := range rates {
		if strings.ToLower(rate.Carrier) == carrier {
			out = append(out, rate)
		}
	}
	return out
}

// RateByMethod returns the rate computed for the given method id, or false
// when the method produced no rate.
func RateByMethod(rates []domain.ShippingRate, methodID string) (domain.ShippingRate, bool) {
	for _, rate := range rates {
		if rate.MethodID == methodID {
			return rate, true
		}
	}
	return domain.ShippingRate{}, false
}
