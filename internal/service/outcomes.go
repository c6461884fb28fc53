package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/outbox"
	"github.com/fjod/go_checkout/internal/payment"
	"go.uber.org/zap"
)

const outcomeTimeout = 3 * time.Second

// journalRecorder mirrors every transition of one attempt into the journal.
type journalRecorder struct {
	journal   Journal
	attemptID string
}

func (r *journalRecorder) Record(ctx context.Context, snap payment.Snapshot) error {
	attempt := &domain.PaymentAttempt{
		AttemptID:     r.attemptID,
		SessionID:     snap.SessionID,
		TransactionID: snap.TransactionID,
		State:         snap.State,
		LastStatus:    snap.LastVerifiedStatus,
		PollAttempt:   snap.PollAttempt,
		OrderCreated:  snap.OrderCreated,
		Failure:       snap.Failure,
	}
	if snap.Order != nil {
		attempt.OrderNumber = snap.Order.OrderNumber
	}
	return r.journal.Upsert(ctx, attempt)
}

// outcomeHooks writes the settled result to the outbox. A success whose order
// could not be written also queues the order for the reconciler.
func (s *CheckoutService) outcomeHooks(attemptID string, order *domain.PendingOrder) payment.Hooks {
	if s.outcomes == nil {
		return payment.Hooks{}
	}
	orderData := checkout.NewPendingOrderData(order)

	return payment.Hooks{
		OnSucceeded: func(snap payment.Snapshot) {
			s.writeOutcome(attemptID, outbox.EventPaymentSucceeded, snap, nil)
			if !snap.OrderCreated {
				s.writeOutcome(attemptID, outbox.EventOrderCreationFailed, snap, &orderData)
			}
		},
		OnFailed: func(snap payment.Snapshot) {
			s.writeOutcome(attemptID, outbox.EventPaymentFailed, snap, nil)
		},
	}
}

func (s *CheckoutService) writeOutcome(attemptID, eventType string, snap payment.Snapshot, orderData *checkout.PendingOrderData) {
	payload := outbox.OutcomePayload{
		AttemptID:     attemptID,
		SessionID:     snap.SessionID,
		TransactionID: snap.TransactionID,
		State:         snap.State.String(),
		LastStatus:    snap.LastVerifiedStatus,
		OrderCreated:  snap.OrderCreated,
		Failure:       snap.Failure,
		OrderData:     orderData,
		OccurredAt:    snap.UpdatedAt,
	}
	if snap.Order != nil {
		payload.OrderNumber = snap.Order.OrderNumber
	}
	event, err := outbox.NewEvent(eventType, payload)
	if err != nil {
		s.logger.Error("failed to encode payment outcome", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	outcome := &outbox.Outcome{
		TransactionID: snap.TransactionID,
		AttemptID:     attemptID,
		SessionID:     snap.SessionID,
		State:         snap.State.String(),
		OrderCreated:  snap.OrderCreated,
	}

	ctx, cancel := context.WithTimeout(context.Background(), outcomeTimeout)
	defer cancel()
	err = s.outcomes.RecordOutcome(ctx, outcome, event)
	switch {
	case errors.Is(err, outbox.ErrDuplicateOutcome):
		// a retried verification may fail twice for one transaction
		s.logger.Debug("payment outcome already recorded",
			zap.String("transaction_id", snap.TransactionID),
			zap.String("event_type", eventType))
	case err != nil:
		s.logger.Error("failed to record payment outcome",
			zap.String("transaction_id", snap.TransactionID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
