package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/service"
)

type CheckoutRequestDTO struct {
	Address       *domain.Address        `json:"address"`
	Store         *domain.Store          `json:"store"`
	Instructions  string                 `json:"instructions"`
	PaymentMethod checkout.PaymentMethod `json:"payment_method"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if !req.PaymentMethod.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_payment_method", "payment_method must be COD or Online")
		return
	}

	res, err := h.svc.Checkout(ctx, service.CheckoutRequest{
		SessionID:     getSessionID(r.Context()),
		Token:         getToken(r.Context()),
		Address:       req.Address,
		Store:         req.Store,
		Instructions:  req.Instructions,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
