package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gaaka/commerce/internal/domain"
	"github.com/gaaka/commerce/internal/platform/httpx"
	"github.com/gaaka/commerce/internal/platform/observability"
	"github.com/gaaka/commerce/internal/shipping"
)

const maxRateBodySize = 32 * 1024

// ShippingHandlers exposes rate calculation, carrier listing and shipment tracking.
type ShippingHandlers struct {
	engine  *shipping.Engine
	tracker *shipping.Tracker
	metrics *observability.Metrics
	locale  string
}

// NewShippingHandlers constructs the shipping endpoints.
func NewShippingHandlers(engine *shipping.Engine, tracker *shipping.Tracker, metrics *observability.Metrics, locale string) *ShippingHandlers {
	if locale == "" {
		locale = "de-DE"
	}
	return &ShippingHandlers{
		engine:  engine,
		tracker: tracker,
		metrics: metrics,
		locale:  locale,
	}
}

// Routes wires the /shipping endpoints onto the provided router.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/rates", h.calculateRates)
	r.Get("/carriers", h.listCarriers)
	r.Get("/tracking/{trackingNumber}", h.trackShipment)
}

type rateItemRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	WeightGrams int    `json:"weight"`
}

type rateRequest struct {
	Items       []rateItemRequest `json:"items"`
	Destination struct {
		Country    string `json:"country"`
		PostalCode string `json:"postalCode"`
		State      string `json:"state"`
		City       string `json:"city"`
	} `json:"destination"`
	Currency string `json:"currency"`
}

type ratePayload struct {
	MethodID          string `json:"methodId"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Price             int64  `json:"price"`
	PriceDisplay      string `json:"priceDisplay"`
	Currency          string `json:"currency"`
	DeliveryTime      string `json:"deliveryTime"`
	Carrier           string `json:"carrier"`
	TrackingIncluded  bool   `json:"trackingIncluded"`
	EstimatedDelivery string `json:"estimatedDelivery"`
}

type rateResponse struct {
	Success          bool          `json:"success"`
	Rates            []ratePayload `json:"rates"`
	Errors           []string      `json:"errors,omitempty"`
	TotalWeightGrams int           `json:"totalWeightGrams"`
	TotalValue       int64         `json:"totalValue"`
}

func (h *ShippingHandlers) calculateRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.engine == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping engine is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxRateBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req rateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	items := make([]domain.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.CartLine{
			ID:          item.ID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
			WeightGrams: item.WeightGrams,
		})
	}

	result := h.engine.Calculate(ctx, shipping.RateInput{
		Items: items,
		Destination: domain.Destination{
			Country:    req.Destination.Country,
			PostalCode: req.Destination.PostalCode,
			State:      req.Destination.State,
			City:       req.Destination.City,
		},
		Currency: req.Currency,
	})
	h.metrics.RecordRateCalculation(ctx, result.Success)

	resp := rateResponse{
		Success:          result.Success,
		Rates:            make([]ratePayload, 0, len(result.Rates)),
		Errors:           result.Errors,
		TotalWeightGrams: result.TotalWeightGrams,
		TotalValue:       result.TotalValue,
	}
	for _, rate := range result.Rates {
		resp.Rates = append(resp.Rates, ratePayload{
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
		})
	}

	status := http.StatusOK
	if !result.Success && len(result.Errors) > 0 && len(result.Rates) == 0 && result.TotalWeightGrams == 0 && result.TotalValue == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSONResponse(w, status, resp)
}

type carrierPayload struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	TrackingURL       string   `json:"trackingUrl"`
	SupportedServices []string `json:"supportedServices"`
}

func (h *ShippingHandlers) listCarriers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.tracker == nil || h.engine == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping engine is unavailable", http.StatusServiceUnavailable))
		return
	}

	carriers := h.engine.Tables().Carriers()
	payload := make([]carrierPayload, 0, len(carriers))
	for _, carrier := range carriers {
		services := make([]string, 0, len(carrier.SupportedServices))
		for _, tier := range carrier.SupportedServices {
			services = append(services, string(tier))
		}
		payload = append(payload, carrierPayload{
			ID:                carrier.ID,
			Name:              carrier.Name,
			TrackingURL:       carrier.TrackingURL,
			SupportedServices: services,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"carriers": payload})
}

type trackingEventPayload struct {
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type trackingResponse struct {
	TrackingNumber    string                 `json:"trackingNumber"`
	Carrier           string                 `json:"carrier"`
	CarrierID         string                 `json:"carrierId"`
	Status            string                 `json:"status"`
	StatusText        string                 `json:"statusText"`
	Delivered         bool                   `json:"delivered"`
	TrackingURL       string                 `json:"trackingUrl,omitempty"`
	Events            []trackingEventPayload `json:"events"`
	EstimatedDelivery string                 `json:"estimatedDelivery,omitempty"`
}

func (h *ShippingHandlers) trackShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.tracker == nil {
		httpx.WriteError(ctx, w, httpx.NewError("tracking_unavailable", "tracking is unavailable", http.StatusServiceUnavailable))
		return
	}

	trackingNumber := strings.TrimSpace(chi.URLParam(r, "trackingNumber"))
	carrierID := strings.TrimSpace(r.URL.Query().Get("carrier"))

	info, err := h.tracker.Track(ctx, trackingNumber, carrierID)
	if err != nil {
		if errors.Is(err, shipping.ErrCarrierUnknown) {
			httpx.WriteError(ctx, w, httpx.NewError("carrier_unknown", "no carrier recognises this tracking number", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	h.metrics.RecordTrackingLookup(ctx, info.CarrierID)

	events := make([]trackingEventPayload, 0, len(info.Events))
	for _, event := range info.Events {
		events = append(events, trackingEventPayload{
			Timestamp:   formatTime(event.Timestamp),
			Status:      event.Status,
			Location:    event.Location,
			Description: event.Description,
		})
	}

	writeJSONResponse(w, http.StatusOK, trackingResponse{
		TrackingNumber:    info.TrackingNumber,
		Carrier:           info.Carrier,
		CarrierID:         info.CarrierID,
		Status:            string(info.Status),
		StatusText:        shipping.StatusText(info.Status),
		Delivered:         shipping.IsDelivered(info.Status),
		TrackingURL:       h.tracker.TrackingURL(trackingNumber, info.CarrierID),
		Events:            events,
		EstimatedDelivery: formatTime(info.EstimatedDelivery),
	})
}
