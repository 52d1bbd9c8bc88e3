package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaaka/commerce/internal/cart"
	"github.com/gaaka/commerce/internal/checkout"
	"github.com/gaaka/commerce/internal/domain"
	"github.com/gaaka/commerce/internal/payments"
	"github.com/gaaka/commerce/internal/shipping"
)

type scriptedProvider struct {
	result payments.Result
	calls  int
}

func (p *scriptedProvider) Process(ctx context.Context, order payments.OrderPayload) (payments.Result, error) {
	p.calls++
	return p.result, nil
}

type checkoutFixture struct {
	router   http.Handler
	store    *cart.Store
	provider *scriptedProvider
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	store := cart.NewStore()
	provider := &scriptedProvider{
		result: payments.Result{Success: true, OrderID: "order_test"},
	}

	manager, err := payments.NewManager(map[string]payments.Provider{"card": provider}, payments.DefaultCatalog())
	require.NoError(t, err)

	engine, err := shipping.NewEngine(shipping.EngineDeps{
		Tables: shipping.DefaultTables(),
		Now:    testClock(),
	})
	require.NoError(t, err)

	calculator, err := checkout.NewCalculator(checkout.CalculatorDeps{Tables: checkout.DefaultPricingTables()})
	require.NoError(t, err)

	co, err := checkout.NewCheckout(checkout.CheckoutDeps{
		Cart:       store,
		Processor:  manager,
		Catalog:    payments.DefaultCatalog(),
		Caps:       payments.Capabilities{PaymentRequest: true},
		Rates:      engine,
		Calculator: calculator,
	})
	require.NoError(t, err)

	h := NewCheckoutHandlers(co, nil, "de-DE")
	r := chi.NewRouter()
	r.Route("/checkout", h.Routes)

	return &checkoutFixture{router: r, store: store, provider: provider}
}

func (f *checkoutFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *checkoutFixture) fillForm(t *testing.T) {
	t.Helper()
	rr := f.do(t, http.MethodPatch, "/checkout/form", `{
		"fields": {
			"email": "anna@example.com",
			"firstName": "Anna",
			"lastName": "Schmidt",
			"address": "Hauptstrasse 1",
			"city": "Berlin",
			"postalCode": "10115",
			"country": "DE",
			"paymentMethod": "card"
		}
	}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func (f *checkoutFixture) seedCart(t *testing.T) {
	t.Helper()
	_, err := f.store.Add(domain.CartLine{ID: "sku-1", Name: "Mug", Quantity: 2, UnitPrice: 2250, WeightGrams: 400})
	require.NoError(t, err)
}

func TestCheckoutState_Defaults(t *testing.T) {
	f := newCheckoutFixture(t)

	rr := f.do(t, http.MethodGet, "/checkout/state", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var state statePayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, "details", state.Step)
	assert.False(t, state.IsValid)
	assert.Equal(t, "DE", state.Form.Country)
	assert.Equal(t, "card", state.Form.PaymentMethod)
	assert.True(t, state.Form.SameAsBilling)
}

func TestCheckoutPatchForm_ValidationAndValidity(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t)

	rr := f.do(t, http.MethodPatch, "/checkout/form", `{"fields": {"email": "not-an-email"}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var state statePayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, "Invalid email format", state.Errors["email"])
	assert.False(t, state.IsValid)

	f.fillForm(t)
	rr = f.do(t, http.MethodGet, "/checkout/state", "")
	state = statePayload{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Empty(t, state.Errors)
	assert.True(t, state.IsValid)
	assert.Equal(t, int64(4500), state.Pricing.Subtotal)
	assert.NotEmpty(t, state.Pricing.TotalDisplay)
}

func TestCheckoutPatchForm_UnknownField(t *testing.T) {
	f := newCheckoutFixture(t)

	rr := f.do(t, http.MethodPatch, "/checkout/form", `{"fields": {"nickname": "x"}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCheckoutShippingRates(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t)
	f.fillForm(t)

	rr := f.do(t, http.MethodGet, "/checkout/shipping-rates", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Rates []ratePayload `json:"rates"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Rates)

	// Select the first offered method and expect it reflected in state.
	rr = f.do(t, http.MethodPut, "/checkout/shipping-rate", `{"methodId": "`+resp.Rates[0].MethodID+`"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var state statePayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	require.NotNil(t, state.Form.SelectedShippingRate)
	assert.Equal(t, resp.Rates[0].MethodID, state.Form.SelectedShippingRate.MethodID)
}

func TestCheckoutSelectRate_Unavailable(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t)
	f.fillForm(t)

	rr := f.do(t, http.MethodPut, "/checkout/shipping-rate", `{"methodId": "teleporter"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCheckoutPaymentMethods_CapabilityGating(t *testing.T) {
	f := newCheckoutFixture(t)

	rr := f.do(t, http.MethodGet, "/checkout/payment-methods", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		PaymentMethods []paymentMethodPayload `json:"paymentMethods"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	ids := make([]string, 0, len(resp.PaymentMethods))
	for _, method := range resp.PaymentMethods {
		ids = append(ids, method.ID)
	}
	assert.Contains(t, ids, "card")
	assert.Contains(t, ids, "google_pay")
	assert.Contains(t, ids, "klarna")
	// ApplePay capability is not set in the fixture.
	assert.NotContains(t, ids, "apple_pay")
}

func TestCheckoutProcessPayment_Success(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t)
	f.fillForm(t)

	rr := f.do(t, http.MethodPost, "/checkout/payment", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Result resultPayload `json:"result"`
		State  statePayload  `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Result.Success)
	assert.Equal(t, "order_test", resp.Result.OrderID)
	assert.Equal(t, "success", resp.State.Step)
	assert.Equal(t, 1, f.provider.calls)
	assert.Empty(t, f.store.Items())
}

func TestCheckoutProcessPayment_InvalidForm(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t)

	rr := f.do(t, http.MethodPost, "/checkout/payment", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var resp struct {
		Result resultPayload `json:"result"`
		State  statePayload  `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Result.Success)
	assert.Equal(t, payments.CodeValidationError, resp.Result.Code)
	assert.Equal(t, "details", resp.State.Step)
	assert.Zero(t, f.provider.calls)
}

func TestCheckoutReset(t *testing.T) {
	f := newCheckoutFixture(t)
	f.seedCart(t)
	f.fillForm(t)

	rr := f.do(t, http.MethodPost, "/checkout/reset", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var state statePayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, "details", state.Step)
	assert.Empty(t, state.Form.Email)
	assert.Equal(t, "DE", state.Form.Country)
}
