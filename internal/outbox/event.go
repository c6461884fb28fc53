package outbox

import (
	"encoding/json"
	"time"

	"github.com/fjod/go_checkout/internal/checkout"
)

const (
	EventPaymentSucceeded    = "payment.succeeded"
	EventPaymentFailed       = "payment.failed"
	EventOrderCreationFailed = "payment.order_creation_failed"

	HeaderEventType = "event_type"
	DefaultTopic    = "payment-outcome"
)

type Event struct {
	ID          int64
	AggregateID string // transaction id, keeps one payment's events on one partition
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// OutcomePayload is the JSON body of every payment outcome event.
type OutcomePayload struct {
	AttemptID     string                     `json:"attempt_id"`
	SessionID     string                     `json:"session_id"`
	TransactionID string                     `json:"transaction_id"`
	State         string                     `json:"state"`
	LastStatus    string                     `json:"last_status,omitempty"`
	OrderCreated  bool                       `json:"order_created"`
	OrderNumber   string                     `json:"order_number,omitempty"`
	Failure       string                     `json:"failure,omitempty"`
	OrderData     *checkout.PendingOrderData `json:"order_data,omitempty"`
	OccurredAt    time.Time                  `json:"occurred_at"`
}

func NewEvent(eventType string, payload OutcomePayload) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		AggregateID: payload.TransactionID,
		EventType:   eventType,
		Payload:     data,
		CreatedAt:   payload.OccurredAt,
	}, nil
}
