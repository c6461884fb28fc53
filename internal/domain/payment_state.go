package domain

type PaymentState string

const (
	PaymentStateIdle             PaymentState = "IDLE"
	PaymentStateInitiating       PaymentState = "INITIATING"
	PaymentStateAwaitingRedirect PaymentState = "AWAITING_REDIRECT"
	PaymentStateVerifying        PaymentState = "VERIFYING"
	PaymentStateSucceeded        PaymentState = "SUCCEEDED"
	PaymentStateFailed           PaymentState = "FAILED"
)

var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentStateIdle:             {PaymentStateInitiating},
	PaymentStateInitiating:       {PaymentStateAwaitingRedirect, PaymentStateIdle},
	PaymentStateAwaitingRedirect: {PaymentStateVerifying},
	PaymentStateVerifying:        {PaymentStateVerifying, PaymentStateSucceeded, PaymentStateFailed},
	PaymentStateFailed:           {PaymentStateVerifying},
}

// IsTerminal reports whether a session in this state has reached a result.
// Failed is terminal for the session even though a manual retry may re-enter Verifying.
func (s PaymentState) IsTerminal() bool {
	return s == PaymentStateSucceeded || s == PaymentStateFailed
}

func CanTransitionTo(from, to PaymentState) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// String representation (for logging)
func (s PaymentState) String() string {
	return string(s)
}
