package payment

import (
	"context"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/shopspring/decimal"
)

// SessionGrant is what the backend hands out when a hosted payment session opens.
type SessionGrant struct {
	TransactionID string
	SessionID     string
	RedirectURL   string
}

// Verification is the backend's view of a transaction. Status is passed through
// as returned; the orchestrator normalizes its case.
type Verification struct {
	Status        string
	TransactionID string
	Amount        decimal.Decimal
	Raw           map[string]any
}

// SessionGateway is the slice of the payment backend the orchestrator needs.
type SessionGateway interface {
	InitiateSession(ctx context.Context, amount decimal.Decimal, phoneHint string) (*SessionGrant, error)
	VerifyPayment(ctx context.Context, transactionID string) (*Verification, error)
	CreateOrderAfterPayment(ctx context.Context, transactionID string, order checkout.PendingOrderData) (*domain.OrderRecord, error)
}

var successStatuses = map[string]struct{}{
	"SUCCESS":         {},
	"COMPLETED":       {},
	"PAYMENT_SUCCESS": {},
	"PAID":            {},
}

const statusPending = "PENDING"

func IsSuccessStatus(status string) bool {
	_, ok := successStatuses[status]
	return ok
}
