package repository

import (
	"context"

	"github.com/fjod/go_checkout/internal/domain"
)

// AttemptRepository journals payment attempts so an outcome can be looked up
// after the orchestrator that produced it is gone.
type AttemptRepository interface {
	Upsert(ctx context.Context, attempt *domain.PaymentAttempt) error
	GetByAttemptID(ctx context.Context, attemptID string) (*domain.PaymentAttempt, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentAttempt, error)
	MarkOrderCreated(ctx context.Context, transactionID, orderNumber string) error
}
