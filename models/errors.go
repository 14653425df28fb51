package models

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotFound is returned when the referenced tracked item does not exist.
	ErrItemNotFound = errors.New("item not found")
	// ErrLotNotFound is returned when the referenced lot does not exist.
	ErrLotNotFound = errors.New("lot not found")
)

// ValidationError reports bad input shape. The message always names the
// offending values; inputs are never silently clamped.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UnitConversionError reports an impossible unit conversion, e.g. across
// unit families.
type UnitConversionError struct {
	FromUnit string
	ToUnit   string
	Reason   string
}

func (e *UnitConversionError) Error() string {
	return fmt.Sprintf("cannot convert from %q to %q: %s", e.FromUnit, e.ToUnit, e.Reason)
}

// NoPricingHistoryError is returned by blended costing when a shortfall
// cannot be priced. Callers must not substitute zero cost.
type NoPricingHistoryError struct {
	ItemId   int
	ItemName string
}

func (e *NoPricingHistoryError) Error() string {
	return fmt.Sprintf("no pricing history for item id=%d name=%q; cannot price shortfall", e.ItemId, e.ItemName)
}
