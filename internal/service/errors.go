package service

import "errors"

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrForbidden         = errors.New("payment belongs to another session")
	ErrPaymentInProgress = errors.New("session has a payment being verified or awaiting acknowledgement")
	ErrPaymentNotSettled = errors.New("payment has not reached a result yet")
	ErrUnknownSignal     = errors.New("unknown navigation signal")
	ErrInvalidMethod     = errors.New("unknown payment method")
)

// PaymentInProgressError names the payment that blocks a new checkout.
type PaymentInProgressError struct {
	TransactionID string
}

func (e *PaymentInProgressError) Error() string {
	return ErrPaymentInProgress.Error() + ": " + e.TransactionID
}

func (e *PaymentInProgressError) Unwrap() error { return ErrPaymentInProgress }
