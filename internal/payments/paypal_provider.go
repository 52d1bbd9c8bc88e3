package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// PayPalAPI is the wallet checkout entry point of the PayPal integration. The
// sandbox implementation used in this repo approves everything; a live
// implementation would drive the Orders v2 capture flow.
type PayPalAPI interface {
	CaptureOrder(ctx context.Context, order OrderPayload) (PaymentIntent, error)
}

// PayPalProviderConfig configures the PayPalProvider. Sandbox mode needs no
// client id and approves every capture.
type PayPalProviderConfig struct {
	ClientID string
	Currency string
	Sandbox  bool
	API      PayPalAPI
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// PayPalProvider processes wallet style payments through PayPal.
type PayPalProvider struct {
	api      PayPalAPI
	currency string
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewPayPalProvider constructs a PayPal Provider using the given configuration.
func NewPayPalProvider(cfg PayPalProviderConfig) (*PayPalProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" && cfg.API == nil && !cfg.Sandbox {
		return nil, errors.New("paypal: client id is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	api := cfg.API
	if api == nil {
		api = sandboxPayPal{clock: clock}
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "EUR"
	}
	return &PayPalProvider{
		api:      api,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Process submits the order through the PayPal capture flow. PayPal rejections
// come back as a PAYPAL_ERROR result rather than a Go error.
func (p *PayPalProvider) Process(ctx context.Context, order OrderPayload) (Result, error) {
	if p == nil {
		return Result{}, errors.New("paypal: provider is nil")
	}

	intent, err := p.api.CaptureOrder(ctx, order)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		p.logger(ctx, "payments.paypal.capture_failed", map[string]any{
			"error": err.Error(),
		})
		return Result{
			Error: &Error{
				Code:    CodePayPalError,
				Message: "PayPal payment failed. Please try again.",
				Details: err.Error(),
			},
		}, nil
	}

	orderID := "order_" + ulid.MustNew(ulid.Timestamp(p.clock()), ulid.DefaultEntropy()).String()
	p.logger(ctx, "payments.paypal.captured", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       orderID,
	})
	if intent.Currency == "" {
		intent.Currency = p.currency
	}
	return Result{
		Success: true,
		Intent:  &intent,
		OrderID: orderID,
	}, nil
}

// sandboxPayPal approves every capture. Stands in for the Orders v2 client
// until merchant credentials are provisioned.
type sandboxPayPal struct {
	clock func() time.Time
}

func (s sandboxPayPal) CaptureOrder(ctx context.Context, order OrderPayload) (PaymentIntent, error) {
	if err := ctx.Err(); err != nil {
		return PaymentIntent{}, err
	}
	return PaymentIntent{
		ID:       "paypal_" + ulid.MustNew(ulid.Timestamp(s.clock().UTC()), ulid.DefaultEntropy()).String(),
		Amount:   order.Pricing.Total,
		Currency: order.Pricing.Currency,
		Status:   StatusSucceeded,
	}, nil
}
