package gateway

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError through errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError rejects a write before it touches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
