package http

import (
	"context"
	"time"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/service"
	"go.uber.org/zap"
)

// CheckoutAPI is the part of service.CheckoutService the handlers use.
type CheckoutAPI interface {
	Cart(ctx context.Context, sessionID string) (*cart.Store, error)
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	Payment(sessionID, txID string) (payment.Snapshot, error)
	Navigate(sessionID, txID string, kind service.NavigationKind, url string) (bool, payment.Snapshot, error)
	RetryVerification(sessionID, txID string) (payment.Snapshot, error)
	Acknowledge(ctx context.Context, sessionID, txID string) (payment.Snapshot, error)
	Leave(sessionID, txID string) error
	Logout(ctx context.Context, sessionID string)
}

var _ CheckoutAPI = (*service.CheckoutService)(nil)

type Handler struct {
	svc         CheckoutAPI
	timeout     time.Duration
	maxBodySize int64
	logger      *zap.Logger
}

func NewHandler(svc CheckoutAPI, timeout time.Duration, maxBodySize int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &Handler{
		svc:         svc,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}
