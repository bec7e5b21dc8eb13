package gateway

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json field names so errors read "author is required"
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

type sendRequest struct {
	Author  string `json:"author" validate:"required"`
	Content string `json:"content" validate:"required"`
}

func validateSend(req sendRequest, maxContentLength int) error {
	if err := validate.Struct(req); err != nil {
		return toValidationError(err)
	}
	if maxContentLength > 0 {
		if err := validate.Var(req.Content, fmt.Sprintf("max=%d", maxContentLength)); err != nil {
			return &ValidationError{Field: "content", Reason: fmt.Sprintf("must be at most %d characters", maxContentLength)}
		}
	}
	return nil
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: fe.Field(), Reason: "is required"}
	default:
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q", fe.Tag())}
	}
}
