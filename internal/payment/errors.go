package payment

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition = errors.New("illegal transition of payment state")
	ErrSessionClosed     = errors.New("payment session is closed")
)

// SessionInitiationError means the backend could not open a payment session.
// The user stays on checkout and may try again.
type SessionInitiationError struct {
	Err error
}

func (e *SessionInitiationError) Error() string {
	return fmt.Sprintf("failed to initiate payment session: %v", e.Err)
}

func (e *SessionInitiationError) Unwrap() error { return e.Err }

// VerificationTransportError means the verify call itself failed; the payment
// outcome is unknown and the transaction id is kept for a manual retry.
type VerificationTransportError struct {
	TransactionID string
	Err           error
}

func (e *VerificationTransportError) Error() string {
	return fmt.Sprintf("failed to verify payment %s: %v", e.TransactionID, e.Err)
}

func (e *VerificationTransportError) Unwrap() error { return e.Err }

// OrderCreationError means the payment went through but the order write did not.
// It never reverses a successful payment.
type OrderCreationError struct {
	TransactionID string
	Err           error
}

func (e *OrderCreationError) Error() string {
	return fmt.Sprintf("payment %s succeeded but order creation failed: %v", e.TransactionID, e.Err)
}

func (e *OrderCreationError) Unwrap() error { return e.Err }
