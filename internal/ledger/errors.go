package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced vehicle, expense or reminder
	// does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller does not own the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrHeaderMismatch marks a CSV whose header lacks required columns.
	ErrHeaderMismatch = errors.New("invalid csv headers")
	// ErrVehicleLimit is returned when the caller's role allows no more vehicles.
	ErrVehicleLimit = errors.New("vehicle limit reached")
)

// ValidationError reports input rejected before any mutation.
type ValidationError struct {
	Fields  []string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(message string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
