package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/service"
	"github.com/go-chi/chi/v5"
)

type NavigationRequestDTO struct {
	URL  string                 `json:"url"`
	Kind service.NavigationKind `json:"kind"`
}

type NavigationResponse struct {
	Matched bool             `json:"matched"`
	Payment payment.Snapshot `json:"payment"`
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Payment(getSessionID(r.Context()), chi.URLParam(r, "txId"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// Navigate reports a page event of the hosted payment view.
func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigationRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "invalid_url", "url is required")
		return
	}

	matched, snap, err := h.svc.Navigate(getSessionID(r.Context()), chi.URLParam(r, "txId"), req.Kind, req.URL)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if matched {
		status = http.StatusAccepted
	}
	respondJSON(w, status, NavigationResponse{Matched: matched, Payment: snap})
}

func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.RetryVerification(getSessionID(r.Context()), chi.URLParam(r, "txId"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, snap)
}

func (h *Handler) AcknowledgePayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	snap, err := h.svc.Acknowledge(ctx, getSessionID(r.Context()), chi.URLParam(r, "txId"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *Handler) LeavePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Leave(getSessionID(r.Context()), chi.URLParam(r, "txId")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.svc.Logout(ctx, getSessionID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
