package checkout

import (
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	DefaultTaxRate     = decimal.RequireFromString("0.05")
	DefaultDeliveryFee = decimal.RequireFromString("2.99")
)

// Assembler turns a cart snapshot plus the delivery choices into a PendingOrder.
// It performs no I/O.
type Assembler struct {
	taxRate     decimal.Decimal
	deliveryFee decimal.Decimal
	now         func() time.Time
}

func NewAssembler(taxRate, deliveryFee decimal.Decimal) *Assembler {
	return &Assembler{
		taxRate:     taxRate,
		deliveryFee: deliveryFee,
		now:         time.Now,
	}
}

// Assemble validates the delivery context and captures the cart into an
// independent PendingOrder.
func (a *Assembler) Assemble(cart domain.CartSnapshot, address *domain.Address, store *domain.Store, instructions string) (*domain.PendingOrder, error) {
	if address == nil {
		return nil, &ValidationError{Field: "address", Reason: "no delivery address selected"}
	}
	if !address.IsDeliverable {
		return nil, &ValidationError{Field: "address", Reason: "address is outside the delivery area"}
	}
	if store == nil {
		return nil, &ValidationError{Field: "store", Reason: "no store selected"}
	}
	if cart.IsEmpty() {
		return nil, &ValidationError{Field: "cart", Reason: ErrEmptyCart.Error()}
	}

	order := &domain.PendingOrder{
		AddressID:           address.ID,
		StoreID:             store.ID,
		Items:               make([]domain.OrderLine, 0, len(cart.Items)),
		DeliveryFee:         a.deliveryFee,
		Discount:            decimal.Zero,
		SpecialInstructions: instructions,
		AssembledAt:         a.now(),
	}

	subtotal := decimal.Zero
	for _, item := range cart.Items {
		line := orderLine(item)
		subtotal = subtotal.Add(line.TotalPrice)
		order.Items = append(order.Items, line)
	}

	order.Subtotal = subtotal
	order.Tax = subtotal.Mul(a.taxRate).Round(2)
	order.Total = subtotal.Add(order.Tax).Add(order.DeliveryFee).Sub(order.Discount)
	return order, nil
}

func orderLine(item domain.LineItem) domain.OrderLine {
	line := domain.OrderLine{
		ProductID:   item.ProductID,
		ProductName: item.DisplayName,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		TotalPrice:  item.Subtotal(),
		Modifiers:   item.ModifierNames(),
		ImageRef:    item.ImageRef,
	}
	if item.Variant != nil {
		line.Size = item.Variant.Size
		line.Crust = item.Variant.Crust
	}
	if item.IsVegetarian != nil {
		v := *item.IsVegetarian
		line.IsVegetarian = &v
	}
	return line
}
