package model

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrFlowIncomplete    = errors.New("contract flow incomplete")
	ErrPaymentIncomplete = errors.New("payment not complete")
	ErrNotConfigured     = errors.New("provider not configured")
)

// FieldError is a validation failure with a user-facing message.
type FieldError struct {
	Message string
}

func (e *FieldError) Error() string { return e.Message }

func (e *FieldError) Unwrap() error { return ErrValidation }
