package models

import (
	"errors"
	"fmt"
)

// ErrValidation matches every input error via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError is a recoverable input error: the user corrects the field and resubmits.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DuplicateCustomerError reports a registration for a customer code that already exists.
type DuplicateCustomerError struct {
	Code string
}

func (e *DuplicateCustomerError) Error() string {
	return fmt.Sprintf("customer code %q already exists", e.Code)
}

// Unwrap makes a duplicate code a ValidationError for errors.As and errors.Is.
func (e *DuplicateCustomerError) Unwrap() error {
	return &ValidationError{Field: "customer_code", Message: "already exists"}
}

// IsValidation reports whether err is any kind of input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
