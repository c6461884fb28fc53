package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/gateway"
	"github.com/fjod/go_checkout/internal/logger"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/service"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts service errors to HTTP status codes
func handleServiceError(w http.ResponseWriter, r *http.Request, lg *zap.Logger, err error) {
	var (
		validation *checkout.ValidationError
		initiation *payment.SessionInitiationError
		backend    *gateway.StatusError
		inProgress *service.PaymentInProgressError
	)
	lg = requestLogger(r, lg)

	switch {
	case errors.As(err, &validation):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   validation.Reason,
			Code:    "validation_failed",
			Details: validation.Field,
		})
		return
	case errors.Is(err, service.ErrInvalidMethod), errors.Is(err, service.ErrUnknownSignal):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	case errors.Is(err, service.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
		return
	case errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusForbidden, "permission_denied", err.Error())
		return
	case errors.As(err, &inProgress):
		// the client may have lost the id and needs it to acknowledge or leave
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:   err.Error(),
			Code:    "payment_in_progress",
			Details: inProgress.TransactionID,
		})
		return
	case errors.Is(err, payment.ErrIllegalTransition),
		errors.Is(err, payment.ErrSessionClosed),
		errors.Is(err, service.ErrPaymentInProgress),
		errors.Is(err, service.ErrPaymentNotSettled):
		respondError(w, http.StatusConflict, "conflict", err.Error())
		return
	case errors.Is(err, cart.ErrCartUnavailable):
		lg.Warn("cart unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "cart_unavailable", "cart storage unavailable, retry shortly")
		return
	case errors.Is(err, gateway.ErrCircuitOpen):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "payment backend unavailable")
		return
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "backend did not answer in time")
		return
	case errors.As(err, &initiation):
		lg.Warn("payment session initiation failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "payment_session_failed", "could not open a payment session")
		return
	case errors.As(err, &backend):
		lg.Warn("backend rejected request", zap.Error(err))
		status := http.StatusBadGateway
		if backend.StatusCode == http.StatusUnauthorized || backend.StatusCode == http.StatusForbidden {
			status = backend.StatusCode
		}
		respondError(w, status, "backend_error", "backend rejected the request")
		return
	}

	lg.Error("request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// requestLogger tags l with the request id and, when the request carries a
// trace, its trace and span ids.
func requestLogger(r *http.Request, l *zap.Logger) *zap.Logger {
	return logger.WithTrace(r.Context(), l).With(zap.String("request_id", getRequestID(r.Context())))
}
