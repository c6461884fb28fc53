package service

import (
	"context"
	"fmt"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/logger"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutRequest struct {
	SessionID     string
	Token         string
	Address       *domain.Address
	Store         *domain.Store
	Instructions  string
	PaymentMethod checkout.PaymentMethod
}

// CheckoutResult carries the order for cash payments, or the hosted payment
// session for online ones.
type CheckoutResult struct {
	Method  checkout.PaymentMethod `json:"payment_method"`
	Pending *domain.PendingOrder   `json:"pending_order"`
	Order   *domain.OrderRecord    `json:"order,omitempty"`
	Payment *payment.Snapshot      `json:"payment,omitempty"`
}

func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	switch req.PaymentMethod {
	case checkout.PaymentMethodCOD:
		return s.PlaceCashOrder(ctx, req)
	case checkout.PaymentMethodOnline:
		return s.StartOnlinePayment(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, req.PaymentMethod)
	}
}

// PlaceCashOrder writes a cash-on-delivery order and clears the cart once the
// backend accepts it.
func (s *CheckoutService) PlaceCashOrder(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	store, err := s.carts.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	order, err := s.assembler.Assemble(store.Snapshot(), req.Address, req.Store, req.Instructions)
	if err != nil {
		return nil, err
	}

	record, err := s.gateways(req.Token).CreateOrder(ctx, checkout.NewCreateOrderRequest(order, checkout.PaymentMethodCOD))
	if err != nil {
		return nil, fmt.Errorf("create cash order: %w", err)
	}
	store.Clear()

	logger.WithTrace(ctx, s.logger).Info("cash order placed",
		zap.String("session_id", req.SessionID),
		zap.String("order_number", record.OrderNumber))
	return &CheckoutResult{Method: checkout.PaymentMethodCOD, Pending: order, Order: record}, nil
}

// StartOnlinePayment assembles the order and opens a hosted payment session
// for it. The cart is left untouched until the result is acknowledged.
func (s *CheckoutService) StartOnlinePayment(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	store, err := s.carts.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	order, err := s.assembler.Assemble(store.Snapshot(), req.Address, req.Store, req.Instructions)
	if err != nil {
		return nil, err
	}

	if err := s.releaseActive(req.SessionID); err != nil {
		return nil, err
	}

	entry := &paymentEntry{sessionID: req.SessionID, attemptID: uuid.NewString()}
	// orchestrator logs stay tied to the trace of the checkout request
	orchLogger := logger.WithTrace(ctx, s.logger).With(zap.String("attempt_id", entry.attemptID))
	var recorder payment.Recorder
	if s.journal != nil {
		recorder = &journalRecorder{journal: s.journal, attemptID: entry.attemptID}
	}
	entry.orch = payment.NewOrchestrator(
		req.SessionID,
		s.gateways(req.Token),
		s.cfg.Payment,
		s.outcomeHooks(entry.attemptID, order),
		recorder,
		orchLogger,
	)

	phone := ""
	if req.Address != nil {
		phone = req.Address.PhoneNumber
	}
	if err := entry.orch.Start(ctx, order, phone); err != nil {
		s.closePayment(entry.orch)
		return nil, err
	}

	snap := entry.orch.Snapshot()
	s.mu.Lock()
	s.payments[snap.TransactionID] = entry
	s.active[req.SessionID] = snap.TransactionID
	s.mu.Unlock()

	return &CheckoutResult{Method: checkout.PaymentMethodOnline, Pending: order, Payment: &snap}, nil
}

// releaseActive closes the session's previous payment before a new one starts.
// A payment under verification, or one that succeeded and was not yet
// acknowledged, is kept and the new checkout is refused.
func (s *CheckoutService) releaseActive(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txID, ok := s.active[sessionID]
	if !ok {
		return nil
	}
	entry := s.payments[txID]
	if entry == nil {
		delete(s.active, sessionID)
		return nil
	}
	switch entry.orch.Snapshot().State {
	case domain.PaymentStateVerifying, domain.PaymentStateSucceeded:
		return &PaymentInProgressError{TransactionID: txID}
	}
	s.closePayment(entry.orch)
	delete(s.payments, txID)
	delete(s.active, sessionID)
	return nil
}
