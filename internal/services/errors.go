package services

import (
	"errors"
	"fmt"
)

// ErrValidation marks a client fault: a missing or malformed required field.
// The core never retries these; the HTTP layer maps them to 400.
var ErrValidation = errors.New("validation error")

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
