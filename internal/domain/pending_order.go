package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Address struct {
	ID            int64  `json:"id"`
	FullName      string `json:"full_name,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	Line1         string `json:"line1,omitempty"`
	City          string `json:"city,omitempty"`
	ZipCode       string `json:"zip_code,omitempty"`
	IsDeliverable bool   `json:"is_deliverable"`
}

type Store struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// OrderLine is one item of a PendingOrder, captured at checkout time.
type OrderLine struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Modifiers    string          `json:"modifiers"`
	Size         string          `json:"size"`
	Crust        string          `json:"crust"`
	ImageRef     string          `json:"image_ref,omitempty"`
	IsVegetarian *bool           `json:"is_vegetarian,omitempty"`
}

// PendingOrder represents the full order state at checkout time.
// It never shares memory with the cart it was built from.
type PendingOrder struct {
	AddressID           int64           `json:"address_id"`
	StoreID             int64           `json:"store_id"`
	Items               []OrderLine     `json:"items"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	Tax                 decimal.Decimal `json:"tax"`
	DeliveryFee         decimal.Decimal `json:"delivery_fee"`
	Discount            decimal.Decimal `json:"discount"`
	Total               decimal.Decimal `json:"total"`
	SpecialInstructions string          `json:"special_instructions"`
	AssembledAt         time.Time       `json:"assembled_at"`
}

// OrderRecord is what the backend returns after an order is written.
type OrderRecord struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	Total         decimal.Decimal `json:"total"`
	PaymentStatus string          `json:"paymentStatus"`
	OrderStatus   string          `json:"orderStatus"`
}
