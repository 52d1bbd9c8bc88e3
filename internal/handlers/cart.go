package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gaaka/commerce/internal/cart"
	"github.com/gaaka/commerce/internal/domain"
	"github.com/gaaka/commerce/internal/platform/httpx"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the session cart endpoints.
type CartHandlers struct {
	store *cart.Store
}

// NewCartHandlers constructs the cart endpoints.
func NewCartHandlers(store *cart.Store) *CartHandlers {
	return &CartHandlers{store: store}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{lineId}", h.updateItem)
	r.Delete("/items/{lineId}", h.removeItem)
}

type cartLinePayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
	WeightGrams int    `json:"weight"`
	Color       string `json:"color,omitempty"`
	Variant     string `json:"variant,omitempty"`
}

type cartResponse struct {
	Items     []cartLinePayload `json:"items"`
	ItemCount int               `json:"itemCount"`
	Total     int64             `json:"total"`
}

func (h *CartHandlers) buildCart() cartResponse {
	items := h.store.Items()
	summary := h.store.Summary()

	payload := make([]cartLinePayload, 0, len(items))
	for _, line := range items {
		payload = append(payload, cartLinePayload{
			ID:          line.ID,
			Name:        line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.UnitPrice * int64(line.Quantity),
			WeightGrams: line.WeightGrams,
			Color:       line.Color,
			Variant:     line.Variant,
		})
	}
	return cartResponse{
		Items:     payload,
		ItemCount: summary.ItemCount,
		Total:     summary.Total,
	}
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, h.buildCart())
}

type addItemRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	WeightGrams int    `json:"weight"`
	Color       string `json:"color"`
	Variant     string `json:"variant"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req addItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	lineID, err := h.store.Add(domain.CartLine{
		ID:          req.ID,
		Name:        req.Name,
		Quantity:    req.Quantity,
		UnitPrice:   req.Price,
		WeightGrams: req.WeightGrams,
		Color:       req.Color,
		Variant:     req.Variant,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusUnprocessableEntity))
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"lineId": lineID,
		"cart":   h.buildCart(),
	})
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return
	}

	lineID := strings.TrimSpace(chi.URLParam(r, "lineId"))
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	if err := h.store.UpdateQuantity(lineID, req.Quantity); err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("line_not_found", err.Error(), http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusUnprocessableEntity))
		return
	}

	writeJSONResponse(w, http.StatusOK, h.buildCart())
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return
	}

	h.store.Remove(strings.TrimSpace(chi.URLParam(r, "lineId")))
	writeJSONResponse(w, http.StatusOK, h.buildCart())
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.store == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return
	}

	h.store.Clear()
	writeJSONResponse(w, http.StatusOK, h.buildCart())
}
