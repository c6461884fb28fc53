package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartSnapshot is a point-in-time copy of a session cart, in display order.
type CartSnapshot struct {
	SessionID string     `json:"session_id"`
	Items     []LineItem `json:"items"`
	Version   uint64     `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c CartSnapshot) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c CartSnapshot) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c CartSnapshot) IsEmpty() bool {
	return len(c.Items) == 0
}
