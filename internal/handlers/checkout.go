package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gaaka/commerce/internal/checkout"
	"github.com/gaaka/commerce/internal/domain"
	"github.com/gaaka/commerce/internal/payments"
	"github.com/gaaka/commerce/internal/platform/httpx"
	"github.com/gaaka/commerce/internal/platform/observability"
	"github.com/gaaka/commerce/internal/shipping"
)

const maxCheckoutBodySize = 16 * 1024

var checkoutFields = map[string]checkout.Field{
	string(checkout.FieldEmail):         checkout.FieldEmail,
	string(checkout.FieldFirstName):     checkout.FieldFirstName,
	string(checkout.FieldLastName):      checkout.FieldLastName,
	string(checkout.FieldAddress):       checkout.FieldAddress,
	string(checkout.FieldCity):          checkout.FieldCity,
	string(checkout.FieldPostalCode):    checkout.FieldPostalCode,
	string(checkout.FieldCountry):       checkout.FieldCountry,
	string(checkout.FieldPaymentMethod): checkout.FieldPaymentMethod,
}

// CheckoutHandlers exposes the checkout session endpoints.
type CheckoutHandlers struct {
	checkout *checkout.Checkout
	metrics  *observability.Metrics
	locale   string
}

// NewCheckoutHandlers constructs the checkout endpoints.
func NewCheckoutHandlers(co *checkout.Checkout, metrics *observability.Metrics, locale string) *CheckoutHandlers {
	if locale == "" {
		locale = "de-DE"
	}
	return &CheckoutHandlers{
		checkout: co,
		metrics:  metrics,
		locale:   locale,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/state", h.getState)
	r.Patch("/form", h.patchForm)
	r.Get("/shipping-rates", h.listShippingRates)
	r.Put("/shipping-rate", h.selectShippingRate)
	r.Get("/payment-methods", h.listPaymentMethods)
	r.Post("/payment", h.processPayment)
	r.Post("/reset", h.reset)
}

type formPayload struct {
	Email                string       `json:"email"`
	FirstName            string       `json:"firstName"`
	LastName             string       `json:"lastName"`
	Address              string       `json:"address"`
	City                 string       `json:"city"`
	PostalCode           string       `json:"postalCode"`
	Country              string       `json:"country"`
	PaymentMethod        string       `json:"paymentMethod"`
	SelectedShippingRate *ratePayload `json:"selectedShippingRate,omitempty"`
	Newsletter           bool         `json:"newsletter"`
	SameAsBilling        bool         `json:"sameAsBilling"`
}

type statePayload struct {
	Step         string            `json:"step"`
	IsProcessing bool              `json:"isProcessing"`
	IsValid      bool              `json:"isValid"`
	Form         formPayload       `json:"form"`
	Errors       map[string]string `json:"errors"`
	Pricing      pricingPayload    `json:"pricing"`
	LastResult   *resultPayload    `json:"lastResult,omitempty"`
}

type resultPayload struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CheckoutHandlers) buildState(snapshot checkout.Snapshot) statePayload {
	form := formPayload{
		Email:         snapshot.FormData.Email,
		FirstName:     snapshot.FormData.FirstName,
		LastName:      snapshot.FormData.LastName,
		Address:       snapshot.FormData.Address,
		City:          snapshot.FormData.City,
		PostalCode:    snapshot.FormData.PostalCode,
		Country:       snapshot.FormData.Country,
		PaymentMethod: snapshot.FormData.PaymentMethod,
		Newsletter:    snapshot.FormData.Newsletter,
		SameAsBilling: snapshot.FormData.SameAsBilling,
	}
	if rate := snapshot.FormData.SelectedShippingRate; rate != nil {
		payload := h.buildRate(*rate)
		form.SelectedShippingRate = &payload
	}

	return statePayload{
		Step:         string(snapshot.Step),
		IsProcessing: snapshot.IsProcessing,
		IsValid:      snapshot.IsValid,
		Form:         form,
		Errors:       snapshot.Errors,
		Pricing:      buildPricingPayload(snapshot.Pricing, h.locale),
		LastResult:   buildResultPayload(snapshot.LastResult),
	}
}

func buildResultPayload(result *payments.Result) *resultPayload {
	if result == nil {
		return nil
	}
	payload := &resultPayload{
		Success: result.Success,
		OrderID: result.OrderID,
	}
	if result.Error != nil {
		payload.Code = result.Error.Code
		payload.Message = result.Error.Message
		payload.Details = result.Error.Details
	}
	return payload
}

func (h *CheckoutHandlers) buildRate(rate domain.ShippingRate) ratePayload {
	return ratePayload{
		MethodID:          rate.MethodID,
		Name:              rate.Name,
		Description:       rate.Description,
		Price:             rate.Price,
		PriceDisplay:      displayAmount(rate.Price, rate.Currency, h.locale),
		Currency:          rate.Currency,
		DeliveryTime:      rate.DeliveryTime,
		Carrier:           rate.Carrier,
		TrackingIncluded:  rate.TrackingIncluded,
		EstimatedDelivery: formatTime(rate.EstimatedDelivery),
	}
}

func (h *CheckoutHandlers) getState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildState(h.checkout.State(ctx)))
}

type patchFormRequest struct {
	Fields        map[string]string `json:"fields"`
	Newsletter    *bool             `json:"newsletter"`
	SameAsBilling *bool             `json:"sameAsBilling"`
}

func (h *CheckoutHandlers) patchForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req patchFormRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	for name := range req.Fields {
		if _, ok := checkoutFields[name]; !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown form field "+name, http.StatusBadRequest))
			return
		}
	}
	for name, value := range req.Fields {
		h.checkout.UpdateField(checkoutFields[name], value)
	}
	if req.Newsletter != nil {
		h.checkout.SetNewsletter(*req.Newsletter)
	}
	if req.SameAsBilling != nil {
		h.checkout.SetSameAsBilling(*req.SameAsBilling)
	}

	writeJSONResponse(w, http.StatusOK, h.buildState(h.checkout.State(ctx)))
}

func (h *CheckoutHandlers) listShippingRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	rates := h.checkout.CalculateShipping(ctx)
	payload := make([]ratePayload, 0, len(rates))
	for _, rate := range rates {
		payload = append(payload, h.buildRate(rate))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"rates": payload})
}

type selectRateRequest struct {
	MethodID string `json:"methodId"`
}

func (h *CheckoutHandlers) selectShippingRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req selectRateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	methodID := strings.TrimSpace(req.MethodID)
	if methodID == "" {
		h.checkout.SelectShippingRate(nil)
		writeJSONResponse(w, http.StatusOK, h.buildState(h.checkout.State(ctx)))
		return
	}

	rates := h.checkout.CalculateShipping(ctx)
	rate, ok := shipping.RateByMethod(rates, methodID)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("rate_not_available", "shipping method is not available for this destination", http.StatusUnprocessableEntity))
		return
	}
	h.checkout.SelectShippingRate(&rate)

	writeJSONResponse(w, http.StatusOK, h.buildState(h.checkout.State(ctx)))
}

type paymentMethodPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (h *CheckoutHandlers) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	methods := h.checkout.AvailablePaymentMethods()
	payload := make([]paymentMethodPayload, 0, len(methods))
	for _, method := range methods {
		payload = append(payload, paymentMethodPayload{
			ID:   method.ID,
			Name: method.Name,
			Kind: string(method.Kind),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"paymentMethods": payload})
}

func (h *CheckoutHandlers) processPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	method := h.checkout.State(ctx).FormData.PaymentMethod
	result := h.checkout.ProcessPayment(ctx)
	h.metrics.RecordPayment(ctx, method, result.Success)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusPaymentRequired
		if result.Error != nil && result.Error.Code == payments.CodeValidationError {
			status = http.StatusUnprocessableEntity
		}
	}

	payload := map[string]any{
		"result": buildResultPayload(&result),
		"state":  h.buildState(h.checkout.State(ctx)),
	}
	writeJSONResponse(w, status, payload)
}

func (h *CheckoutHandlers) reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	h.checkout.Reset()
	writeJSONResponse(w, http.StatusOK, h.buildState(h.checkout.State(ctx)))
}
