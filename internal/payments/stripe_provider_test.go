package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeIntentAPI struct {
	intent *stripe.PaymentIntent
	err    error
	last   *stripe.PaymentIntentParams
}

func (f *fakeIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.last = params
	return f.intent, f.err
}

func newStripeProvider(t *testing.T, api stripePaymentIntentAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		Intents: api,
		Clock:   func() time.Time { return time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewStripeProvider error: %v", err)
	}
	return provider
}

func TestStripeProvider_Process_Success(t *testing.T) {
	api := &fakeIntentAPI{
		intent: &stripe.PaymentIntent{
			ID:           "pi_123",
			Amount:       5845,
			Currency:     "eur",
			Status:       stripe.PaymentIntentStatusSucceeded,
			ClientSecret: "pi_123_secret",
		},
	}
	provider := newStripeProvider(t, api)

	result, err := provider.Process(context.Background(), validOrder())
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Intent == nil || result.Intent.ID != "pi_123" || result.Intent.Status != StatusSucceeded {
		t.Fatalf("unexpected intent: %+v", result.Intent)
	}
	if result.Intent.Currency != "EUR" {
		t.Fatalf("expected normalised currency, got %q", result.Intent.Currency)
	}
	if !strings.HasPrefix(result.OrderID, "order_") {
		t.Fatalf("unexpected order id %q", result.OrderID)
	}

	if api.last == nil || api.last.Amount == nil || *api.last.Amount != 5845 {
		t.Fatalf("expected amount forwarded, got %+v", api.last)
	}
	if got := api.last.Metadata["customerEmail"]; got != "anna@example.com" {
		t.Fatalf("expected customer email metadata, got %q", got)
	}
	if got := api.last.Metadata["itemCount"]; got != "1" {
		t.Fatalf("expected item count metadata, got %q", got)
	}
	if api.last.Metadata["orderId"] != result.OrderID {
		t.Fatalf("order id metadata mismatch: %q vs %q", api.last.Metadata["orderId"], result.OrderID)
	}
}

func TestStripeProvider_Process_CardDeclined(t *testing.T) {
	api := &fakeIntentAPI{
		err: &stripe.Error{Code: stripe.ErrorCodeCardDeclined, Msg: "Your card was declined."},
	}
	provider := newStripeProvider(t, api)

	result, err := provider.Process(context.Background(), validOrder())
	if err != nil {
		t.Fatalf("PSP rejection should not surface as error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.Error == nil || result.Error.Code != string(stripe.ErrorCodeCardDeclined) {
		t.Fatalf("expected card_declined code, got %+v", result.Error)
	}
	if result.Error.Message != "Your card was declined." {
		t.Fatalf("expected PSP message preserved, got %q", result.Error.Message)
	}
}

func TestStripeProvider_Process_TransportError(t *testing.T) {
	api := &fakeIntentAPI{err: errors.New("dial tcp: timeout")}
	provider := newStripeProvider(t, api)

	_, err := provider.Process(context.Background(), validOrder())
	if err == nil {
		t.Fatalf("expected transport error to propagate for manager normalisation")
	}
}

func TestStripeProvider_Process_CanceledIntentFails(t *testing.T) {
	api := &fakeIntentAPI{
		intent: &stripe.PaymentIntent{ID: "pi_x", Status: stripe.PaymentIntentStatusCanceled, Currency: "eur"},
	}
	provider := newStripeProvider(t, api)

	result, err := provider.Process(context.Background(), validOrder())
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if result.Success {
		t.Fatalf("canceled intent should not be a success")
	}
	if result.Error == nil || result.Error.Code != CodePaymentError {
		t.Fatalf("expected PAYMENT_ERROR, got %+v", result.Error)
	}
}

func TestNewStripeProvider_RequiresKeyOrClients(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key or injected client")
	}
}
