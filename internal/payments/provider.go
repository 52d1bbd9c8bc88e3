package payments

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gaaka/commerce/internal/domain"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Status enumerates the normalised payment intent states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusProcessing indicates the PSP is still working on the payment.
	StatusProcessing Status = "processing"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the payment was abandoned before completion.
	StatusCanceled Status = "canceled"
)

// Failure codes carried in Result.Error. Provider specific codes pass through
// unchanged; these are the ones the manager itself produces.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNetworkError    = "NETWORK_ERROR"
	CodeProcessingError = "PROCESSING_ERROR"
	CodePaymentError    = "PAYMENT_ERROR"
	CodePayPalError     = "PAYPAL_ERROR"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// OrderPayload is the order snapshot submitted to a payment provider.
type OrderPayload struct {
	Items           []domain.CartLine
	ShippingAddress domain.Address
	BillingAddress  *domain.Address
	PaymentMethod   string
	Pricing         domain.PricingBreakdown
}

// PaymentIntent mirrors the PSP's intent object in normalised form.
type PaymentIntent struct {
	ID           string
	Amount       int64
	Currency     string
	Status       Status
	ClientSecret string
}

// Error is the structured failure carried by an unsuccessful Result.
type Error struct {
	Code    string
	Message string
	Details string
}

// Result is the single outcome shape of every payment submission. Callers
// branch on Success; failures never surface as Go errors past the manager.
type Result struct {
	Success bool
	Intent  *PaymentIntent
	OrderID string
	Error   *Error
}

// Provider is the contract a PSP adapter implements. A returned error means a
// transport level failure; domain failures come back inside the Result.
type Provider interface {
	Process(ctx context.Context, order OrderPayload) (Result, error)
}

// Manager validates order payloads and dispatches them to the provider
// registered for the chosen payment method. Unknown method ids fall back to
// the default provider; method validity is the caller's concern.
type Manager struct {
	providers map[string]Provider
	catalog   *Catalog
	fallback  string
	logger    func(context.Context, string, map[string]any)
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithFallbackProvider overrides the provider used for method ids without an
// explicit registration. Defaults to "card".
func WithFallbackProvider(key string) ManagerOption {
	return func(m *Manager) {
		m.fallback = strings.ToLower(strings.TrimSpace(key))
	}
}

// WithLogger attaches a structured event logger.
func WithLogger(logger func(context.Context, string, map[string]any)) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager constructs a Manager over the supplied providers, keyed by
// payment method id.
func NewManager(providers map[string]Provider, catalog *Catalog, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	if catalog == nil {
		return nil, errors.New("payments: method catalog is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
		catalog:   catalog,
		fallback:  "card",
		logger:    func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	if _, ok := copyMap[m.fallback]; !ok {
		return nil, fmt.Errorf("payments: fallback provider %q is not registered", m.fallback)
	}
	return m, nil
}

// Catalog exposes the method catalog the manager validates against.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Process validates the payload and submits it to the provider for its payment
// method. Every failure mode is normalised into the Result; this method never
// returns an unsuccessful Result together with a nil Error.
func (m *Manager) Process(ctx context.Context, order OrderPayload) Result {
	if errs := m.validatePayload(order); len(errs) > 0 {
		return Result{
			Error: &Error{
				Code:    CodeValidationError,
				Message: strings.Join(errs, ", "),
			},
		}
	}

	key := strings.ToLower(strings.TrimSpace(order.PaymentMethod))
	provider, ok := m.providers[key]
	if !ok {
		key = m.fallback
		provider = m.providers[key]
	}

	m.logger(ctx, "payments.submit", map[string]any{
		"method":   order.PaymentMethod,
		"provider": key,
		"amount":   order.Pricing.Total,
		"currency": order.Pricing.Currency,
	})

	result, err := provider.Process(ctx, order)
	if err != nil {
		m.logger(ctx, "payments.submit.transport_error", map[string]any{
			"provider": key,
			"error":    err.Error(),
		})
		return Result{
			Error: &Error{
				Code:    CodeNetworkError,
				Message: "Unable to process payment. Please check your connection and try again.",
				Details: err.Error(),
			},
		}
	}
	if !result.Success && result.Error == nil {
		result.Error = &Error{
			Code:    CodeProcessingError,
			Message: "Payment processing failed",
		}
	}
	return result
}

func (m *Manager) validatePayload(order OrderPayload) []string {
	var errs []string

	if len(order.Items) == 0 {
		errs = append(errs, "Cart cannot be empty")
	}

	addr := order.ShippingAddress
	if strings.TrimSpace(addr.FirstName) == "" {
		errs = append(errs, "First name is required")
	}
	if strings.TrimSpace(addr.LastName) == "" {
		errs = append(errs, "Last name is required")
	}
	if email := strings.TrimSpace(addr.Email); email == "" {
		errs = append(errs, "Email is required")
	} else if !emailPattern.MatchString(email) {
		errs = append(errs, "Invalid email format")
	}
	if strings.TrimSpace(addr.Address) == "" {
		errs = append(errs, "Address is required")
	}
	if strings.TrimSpace(addr.City) == "" {
		errs = append(errs, "City is required")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		errs = append(errs, "Postal code is required")
	}
	if strings.TrimSpace(addr.Country) == "" {
		errs = append(errs, "Country is required")
	}

	method := strings.TrimSpace(order.PaymentMethod)
	if method == "" {
		errs = append(errs, "Payment method is required")
	} else if entry, ok := m.catalog.MethodByID(method); !ok || !entry.Enabled {
		errs = append(errs, "Selected payment method is not available")
	}

	return errs
}
