package checkout

import (
	"errors"
	"fmt"
)

var ErrEmptyCart = errors.New("cart is empty, nothing to checkout")

// ValidationError reports a checkout precondition that the user has to fix
// before an order can be assembled.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("checkout validation failed: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrEmptyCart) match the empty-cart case.
func (e *ValidationError) Unwrap() error {
	if e.Field == "cart" {
		return ErrEmptyCart
	}
	return nil
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
