package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// BaseVariant is the identity segment used when no variant is selected.
const BaseVariant = "base"

type Variant struct {
	ID    string          `json:"id"`
	Size  string          `json:"size,omitempty"`
	Crust string          `json:"crust,omitempty"`
	Price decimal.Decimal `json:"price"`
}

type Modifier struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// LineItem is a single cart row. Identity encodes product, variant and the
// sorted modifier set; two items with equal identities are the same row.
type LineItem struct {
	Identity         string          `json:"identity"`
	ProductID        string          `json:"product_id"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	DisplayName      string          `json:"display_name"`
	ImageRef         string          `json:"image_ref,omitempty"`
	IsVegetarian     *bool           `json:"is_vegetarian,omitempty"`
	Variant          *Variant        `json:"variant,omitempty"`
	Modifiers        []Modifier      `json:"modifiers,omitempty"`
	SourceProductRef string          `json:"source_product_ref,omitempty"`
}

// NewIdentity builds the composite key {productID}-{variantID|base}[-{modifierID}...].
// Modifier ids are sorted so selection order does not change the identity.
func NewIdentity(productID, variantID string, modifierIDs []string) string {
	if variantID == "" {
		variantID = BaseVariant
	}
	ids := make([]string, len(modifierIDs))
	copy(ids, modifierIDs)
	sort.Strings(ids)

	parts := make([]string, 0, len(ids)+2)
	parts = append(parts, productID, variantID)
	parts = append(parts, ids...)
	return strings.Join(parts, "-")
}

// Rekey recomputes the identity from the current product, variant and modifier selection.
func (li *LineItem) Rekey() {
	variantID := ""
	if li.Variant != nil {
		variantID = li.Variant.ID
	}
	ids := make([]string, len(li.Modifiers))
	for i, m := range li.Modifiers {
		ids[i] = m.ID
	}
	li.Identity = NewIdentity(li.ProductID, variantID, ids)
}

// Subtotal is unit price times quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Clone returns a deep copy; slices and pointers are not shared with the receiver.
func (li LineItem) Clone() LineItem {
	out := li
	if li.IsVegetarian != nil {
		v := *li.IsVegetarian
		out.IsVegetarian = &v
	}
	if li.Variant != nil {
		v := *li.Variant
		out.Variant = &v
	}
	if li.Modifiers != nil {
		out.Modifiers = make([]Modifier, len(li.Modifiers))
		copy(out.Modifiers, li.Modifiers)
	}
	return out
}

// ModifierNames flattens modifier names in selection order, joined with ", ".
func (li LineItem) ModifierNames() string {
	names := make([]string, 0, len(li.Modifiers))
	for _, m := range li.Modifiers {
		names = append(names, m.Name)
	}
	return strings.Join(names, ", ")
}

// CustomizedUnitPrice is the variant price plus every selected modifier price.
func CustomizedUnitPrice(variant *Variant, modifiers []Modifier) decimal.Decimal {
	total := decimal.Zero
	if variant != nil {
		total = total.Add(variant.Price)
	}
	for _, m := range modifiers {
		total = total.Add(m.Price)
	}
	return total
}
