package domain

import "time"

// PaymentAttempt is the journal entry of one hosted-payment attempt.
type PaymentAttempt struct {
	AttemptID     string       `bson:"attempt_id" json:"attempt_id"`
	SessionID     string       `bson:"session_id" json:"session_id"`
	TransactionID string       `bson:"transaction_id,omitempty" json:"transaction_id,omitempty"`
	State         PaymentState `bson:"state" json:"state"`
	LastStatus    string       `bson:"last_status,omitempty" json:"last_status,omitempty"`
	PollAttempt   int          `bson:"poll_attempt" json:"poll_attempt"`
	OrderCreated  bool         `bson:"order_created" json:"order_created"`
	OrderNumber   string       `bson:"order_number,omitempty" json:"order_number,omitempty"`
	Failure       string       `bson:"failure,omitempty" json:"failure,omitempty"`
	CreatedAt     time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `bson:"updated_at" json:"updated_at"`
}
