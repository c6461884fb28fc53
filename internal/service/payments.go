package service

import (
	"context"
	"fmt"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/logger"
	"github.com/fjod/go_checkout/internal/payment"
	"go.uber.org/zap"
)

// NavigationKind says how the hosted payment view reported a URL.
type NavigationKind string

const (
	NavigationLoaded    NavigationKind = "navigation"
	NavigationError     NavigationKind = "error"
	NavigationHTTPError NavigationKind = "http_error"
)

func (s *CheckoutService) Payment(sessionID, txID string) (payment.Snapshot, error) {
	entry, err := s.lookup(sessionID, txID)
	if err != nil {
		return payment.Snapshot{}, err
	}
	return entry.orch.Snapshot(), nil
}

// Navigate forwards a hosted-view signal to the payment. matched is true when
// the URL ended the hosted flow and verification started.
func (s *CheckoutService) Navigate(sessionID, txID string, kind NavigationKind, url string) (bool, payment.Snapshot, error) {
	entry, err := s.lookup(sessionID, txID)
	if err != nil {
		return false, payment.Snapshot{}, err
	}

	var matched bool
	switch kind {
	case NavigationLoaded, "":
		matched = entry.orch.ObserveNavigation(url)
	case NavigationError:
		matched = entry.orch.ObserveError(url)
	case NavigationHTTPError:
		matched = entry.orch.ObserveHTTPError(url)
	default:
		return false, payment.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownSignal, kind)
	}
	return matched, entry.orch.Snapshot(), nil
}

func (s *CheckoutService) RetryVerification(sessionID, txID string) (payment.Snapshot, error) {
	entry, err := s.lookup(sessionID, txID)
	if err != nil {
		return payment.Snapshot{}, err
	}
	if err := entry.orch.RetryVerification(); err != nil {
		return payment.Snapshot{}, err
	}
	return entry.orch.Snapshot(), nil
}

// Acknowledge ends a settled payment. A successful one empties the cart.
func (s *CheckoutService) Acknowledge(ctx context.Context, sessionID, txID string) (payment.Snapshot, error) {
	entry, err := s.lookup(sessionID, txID)
	if err != nil {
		return payment.Snapshot{}, err
	}
	snap := entry.orch.Snapshot()
	if !snap.State.IsTerminal() {
		return snap, ErrPaymentNotSettled
	}
	if snap.State == domain.PaymentStateSucceeded {
		store, err := s.carts.Get(ctx, sessionID)
		if err != nil {
			return snap, err
		}
		store.Clear()
	}
	s.discard(txID, entry)

	logger.WithTrace(ctx, s.logger).Info("payment acknowledged",
		zap.String("session_id", sessionID),
		zap.String("transaction_id", txID),
		zap.String("state", snap.State.String()))
	return snap, nil
}

// Leave abandons the payment flow. Verification stops and late results are dropped.
func (s *CheckoutService) Leave(sessionID, txID string) error {
	entry, err := s.lookup(sessionID, txID)
	if err != nil {
		return err
	}
	s.discard(txID, entry)
	return nil
}

// Logout ends every payment of the session and forgets its cart.
func (s *CheckoutService) Logout(ctx context.Context, sessionID string) {
	s.mu.Lock()
	var owned []*paymentEntry
	for txID, entry := range s.payments {
		if entry.sessionID == sessionID {
			owned = append(owned, entry)
			delete(s.payments, txID)
		}
	}
	delete(s.active, sessionID)
	s.mu.Unlock()

	for _, entry := range owned {
		s.closePayment(entry.orch)
	}
	s.carts.Logout(ctx, sessionID)
}

// Shutdown closes every live payment and waits, until ctx ends, for
// verifications and order writes that are already running. A confirmed
// payment may still be writing its order and its outbox row.
func (s *CheckoutService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	entries := s.payments
	s.payments = make(map[string]*paymentEntry)
	s.active = make(map[string]string)
	s.mu.Unlock()

	for _, entry := range entries {
		s.closePayment(entry.orch)
	}

	done := make(chan struct{})
	go func() {
		s.draining.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("payments still running at shutdown", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// closePayment stops orch and tracks its running gateway calls for Shutdown.
func (s *CheckoutService) closePayment(orch *payment.Orchestrator) {
	orch.Close()
	s.draining.Add(1)
	go func() {
		defer s.draining.Done()
		_ = orch.Wait(context.Background())
	}()
}

func (s *CheckoutService) lookup(sessionID, txID string) (*paymentEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.payments[txID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	if entry.sessionID != sessionID {
		return nil, ErrForbidden
	}
	return entry, nil
}

func (s *CheckoutService) discard(txID string, entry *paymentEntry) {
	s.closePayment(entry.orch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payments[txID] == entry {
		delete(s.payments, txID)
	}
	if s.active[entry.sessionID] == txID {
		delete(s.active, entry.sessionID)
	}
}
