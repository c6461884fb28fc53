package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CartResponse struct {
	SessionID     string            `json:"session_id"`
	Items         []domain.LineItem `json:"items"`
	TotalQuantity int               `json:"total_quantity"`
	TotalAmount   decimal.Decimal   `json:"total_amount"`
	Version       uint64            `json:"version"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// LineItemDTO is a product customization as the client sends it. The identity
// is always derived from the selection.
type LineItemDTO struct {
	ProductID        string            `json:"product_id"`
	Quantity         int               `json:"quantity"`
	UnitPrice        decimal.Decimal   `json:"unit_price"`
	DisplayName      string            `json:"display_name"`
	ImageRef         string            `json:"image_ref"`
	IsVegetarian     *bool             `json:"is_vegetarian"`
	Variant          *domain.Variant   `json:"variant"`
	Modifiers        []domain.Modifier `json:"modifiers"`
	SourceProductRef string            `json:"source_product_ref"`
}

func (d LineItemDTO) toLineItem() domain.LineItem {
	item := domain.LineItem{
		ProductID:        d.ProductID,
		Quantity:         d.Quantity,
		UnitPrice:        d.UnitPrice,
		DisplayName:      d.DisplayName,
		ImageRef:         d.ImageRef,
		IsVegetarian:     d.IsVegetarian,
		Variant:          d.Variant,
		Modifiers:        d.Modifiers,
		SourceProductRef: d.SourceProductRef,
	}
	item.Rekey()
	return item
}

func cartResponse(snap domain.CartSnapshot) CartResponse {
	items := snap.Items
	if items == nil {
		items = []domain.LineItem{}
	}
	return CartResponse{
		SessionID:     snap.SessionID,
		Items:         items,
		TotalQuantity: snap.TotalQuantity(),
		TotalAmount:   snap.TotalAmount(),
		Version:       snap.Version,
		UpdatedAt:     snap.UpdatedAt,
	}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, err := h.svc.Cart(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, cartResponse(store.Snapshot()))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LineItemDTO
	if !h.decode(w, r, &req) || !validItem(w, req) {
		return
	}

	store, err := h.svc.Cart(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	store.Add(req.toLineItem())
	respondJSON(w, http.StatusCreated, cartResponse(store.Snapshot()))
}

// ReplaceItem applies an edited customization to the entry at {identity}.
func (h *Handler) ReplaceItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LineItemDTO
	if !h.decode(w, r, &req) || !validItem(w, req) {
		return
	}
	if req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must not exceed 99")
		return
	}

	store, err := h.svc.Cart(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	store.Replace(chi.URLParam(r, "identity"), req.toLineItem())
	respondJSON(w, http.StatusOK, cartResponse(store.Snapshot()))
}

func (h *Handler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, err := h.svc.Cart(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	store.DecrementOrRemove(chi.URLParam(r, "identity"))
	respondJSON(w, http.StatusOK, cartResponse(store.Snapshot()))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, err := h.svc.Cart(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	store.Remove(chi.URLParam(r, "identity"))
	respondJSON(w, http.StatusOK, cartResponse(store.Snapshot()))
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, err := h.svc.Cart(ctx, getSessionID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	store.Clear()
	respondJSON(w, http.StatusOK, cartResponse(store.Snapshot()))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func validItem(w http.ResponseWriter, req LineItemDTO) bool {
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return false
	}
	if req.UnitPrice.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_price", "unit_price must not be negative")
		return false
	}
	return true
}
