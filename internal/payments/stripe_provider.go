package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/gaaka/commerce/internal/platform/textutil"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Intents   stripePaymentIntentAPI
}

// StripeProvider processes card style payments by creating Stripe Payment
// Intents from an order payload.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Process creates a payment intent for the order total. The order id is minted
// locally and attached as intent metadata so the PSP side can be reconciled.
func (p *StripeProvider) Process(ctx context.Context, order OrderPayload) (Result, error) {
	if p == nil {
		return Result{}, errors.New("stripe: provider is nil")
	}

	orderID := p.newOrderID()
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(order.Pricing.Total),
		Currency: stripe.String(strings.ToLower(order.Pricing.Currency)),
		Metadata: textutil.NormalizeStringMap(map[string]string{
			"orderId":       orderID,
			"customerEmail": order.ShippingAddress.Email,
			"itemCount":     strconv.Itoa(len(order.Items)),
		}),
	}
	params.Context = ctx
	params.SetIdempotencyKey(orderID)
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			// A structured PSP rejection is a domain failure, not transport.
			return Result{
				Error: &Error{
					Code:    defaultString(string(stripeErr.Code), CodePaymentError),
					Message: defaultString(stripeErr.Msg, "Payment processing failed"),
				},
			}, nil
		}
		return Result{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       orderID,
		"status":        intent.Status,
	})

	status := stripeStatus(intent.Status)
	result := Result{
		Intent: &PaymentIntent{
			ID:           intent.ID,
			Amount:       intent.Amount,
			Currency:     strings.ToUpper(string(intent.Currency)),
			Status:       status,
			ClientSecret: intent.ClientSecret,
		},
		OrderID: orderID,
	}
	switch status {
	case StatusFailed, StatusCanceled:
		result.Error = &Error{
			Code:    CodePaymentError,
			Message: "Payment processing failed",
		}
	default:
		result.Success = true
	}
	return result, nil
}

func (p *StripeProvider) newOrderID() string {
	return "order_" + ulid.MustNew(ulid.Timestamp(p.clock()), ulid.DefaultEntropy()).String()
}

func stripeStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	case stripe.PaymentIntentStatusProcessing:
		return StatusProcessing
	default:
		return StatusPending
	}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
