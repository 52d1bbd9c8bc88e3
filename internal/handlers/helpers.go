package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/gaaka/commerce/internal/domain"
	"github.com/gaaka/commerce/internal/platform/httpx"
)

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

const defaultBodyLimit = 16 * 1024

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// displayAmount renders a minor-unit amount for UI consumption. The locale is
// a BCP 47 tag; unparseable tags fall back to German formatting.
func displayAmount(amount int64, currency, locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.German
	}
	return domain.FormatAmount(amount, currency, tag)
}

type pricingPayload struct {
	Currency         string `json:"currency"`
	Subtotal         int64  `json:"subtotal"`
	Shipping         int64  `json:"shipping"`
	Tax              int64  `json:"tax"`
	Total            int64  `json:"total"`
	SubtotalDisplay  string `json:"subtotalDisplay"`
	ShippingDisplay  string `json:"shippingDisplay"`
	TaxDisplay       string `json:"taxDisplay"`
	TotalDisplay     string `json:"totalDisplay"`
	FreeShippingUsed bool   `json:"freeShipping"`
}

func buildPricingPayload(b domain.PricingBreakdown, locale string) pricingPayload {
	return pricingPayload{
		Currency:         b.Currency,
		Subtotal:         b.Subtotal,
		Shipping:         b.Shipping,
		Tax:              b.Tax,
		Total:            b.Total,
		SubtotalDisplay:  displayAmount(b.Subtotal, b.Currency, locale),
		ShippingDisplay:  displayAmount(b.Shipping, b.Currency, locale),
		TaxDisplay:       displayAmount(b.Tax, b.Currency, locale),
		TotalDisplay:     displayAmount(b.Total, b.Currency, locale),
		FreeShippingUsed: b.Shipping == 0 && b.Subtotal > 0,
	}
}
