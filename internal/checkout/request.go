package checkout

import (
	"strconv"
	"strings"

	"github.com/fjod/go_checkout/internal/domain"
)

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "COD"
	PaymentMethodOnline PaymentMethod = "Online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// OrderItemDTO is an order line in the backend's wire format.
type OrderItemDTO struct {
	ProductID           int64   `json:"productId"`
	ProductName         string  `json:"productName"`
	Size                string  `json:"size"`
	Crust               string  `json:"crust"`
	Quantity            int     `json:"quantity"`
	UnitPrice           float64 `json:"unitPrice"`
	TotalPrice          float64 `json:"totalPrice"`
	Modifiers           string  `json:"modifiers"`
	SpecialInstructions string  `json:"specialInstructions"`
	ImageURL            string  `json:"imageUrl,omitempty"`
	IsVeg               *bool   `json:"isVeg"`
}

// PendingOrderData is the order payload sent with create-order-after-payment.
type PendingOrderData struct {
	AddressID           int64          `json:"addressId"`
	StoreID             int64          `json:"storeId"`
	Subtotal            float64        `json:"subtotal"`
	Tax                 float64        `json:"tax"`
	DeliveryFee         float64        `json:"deliveryFee"`
	Discount            float64        `json:"discount"`
	Total               float64        `json:"total"`
	SpecialInstructions string         `json:"specialInstructions"`
	PromoCode           *string        `json:"promoCode"`
	Items               []OrderItemDTO `json:"items"`
}

// CreateOrderRequest is the body of the cash-on-delivery POST /Orders call.
type CreateOrderRequest struct {
	PendingOrderData
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

func NewPendingOrderData(order *domain.PendingOrder) PendingOrderData {
	data := PendingOrderData{
		AddressID:           order.AddressID,
		StoreID:             order.StoreID,
		Subtotal:            order.Subtotal.InexactFloat64(),
		Tax:                 order.Tax.InexactFloat64(),
		DeliveryFee:         order.DeliveryFee.InexactFloat64(),
		Discount:            order.Discount.InexactFloat64(),
		Total:               order.Total.InexactFloat64(),
		SpecialInstructions: order.SpecialInstructions,
		Items:               make([]OrderItemDTO, 0, len(order.Items)),
	}
	for _, line := range order.Items {
		isVeg := false
		if line.IsVegetarian != nil {
			isVeg = *line.IsVegetarian
		}
		data.Items = append(data.Items, OrderItemDTO{
			ProductID:   backendProductID(line.ProductID),
			ProductName: line.ProductName,
			Size:        line.Size,
			Crust:       line.Crust,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.InexactFloat64(),
			TotalPrice:  line.TotalPrice.InexactFloat64(),
			Modifiers:   line.Modifiers,
			ImageURL:    line.ImageRef,
			IsVeg:       &isVeg,
		})
	}
	return data
}

func NewCreateOrderRequest(order *domain.PendingOrder, method PaymentMethod) CreateOrderRequest {
	return CreateOrderRequest{
		PendingOrderData: NewPendingOrderData(order),
		PaymentMethod:    method,
	}
}

// backendProductID reads the leading numeric part of a product id; the
// backend only knows numeric catalog ids.
func backendProductID(productID string) int64 {
	end := strings.IndexFunc(productID, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		end = len(productID)
	}
	id, err := strconv.ParseInt(productID[:end], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
