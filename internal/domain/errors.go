package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidTransition   ErrorCode = "InvalidTransition"
	CodePaymentOptionsError ErrorCode = "PaymentOptionsError"
	CodePaymentActionsError ErrorCode = "PaymentActionsError"
	CodeConfirmPaymentError ErrorCode = "ConfirmPaymentError"
	CodeValidationError     ErrorCode = "ValidationError"
	CodeIdentityNotFound    ErrorCode = "IdentityNotFound"
	CodeSigningError        ErrorCode = "SigningError"
	CodeTimeout             ErrorCode = "Timeout"
	CodeCancelled           ErrorCode = "Cancelled"
	CodeIdentityConflict    ErrorCode = "IdentityConflict"
)

// PaymentError is recorded on a failed session and delivered to listeners.
// Detail is meant for direct display.
type PaymentError struct {
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail"`
	Err    error     `json:"-"`
}

func NewPaymentError(code ErrorCode, detail string, err error) *PaymentError {
	return &PaymentError{
		Code:   code,
		Detail: detail,
		Err:    err,
	}
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is matches another *PaymentError by code so callers can write
// errors.Is(err, domain.ErrTimeout).
func (e *PaymentError) Is(target error) bool {
	var t *PaymentError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// IsCancelled distinguishes an explicit abort from a real failure.
func (e *PaymentError) IsCancelled() bool {
	return e != nil && e.Code == CodeCancelled
}

// CodeOf extracts the payment error code from err, if any.
func CodeOf(err error) ErrorCode {
	var perr *PaymentError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidTransition = &PaymentError{Code: CodeInvalidTransition, Detail: "event does not apply to the current state"}
	ErrValidation        = &PaymentError{Code: CodeValidationError, Detail: "invalid input"}
	ErrTimeout           = &PaymentError{Code: CodeTimeout, Detail: "payment timed out"}
	ErrCancelled         = &PaymentError{Code: CodeCancelled, Detail: "payment cancelled"}
	ErrIdentityNotFound  = &PaymentError{Code: CodeIdentityNotFound, Detail: "signing identity not found"}
	ErrIdentityConflict  = &PaymentError{Code: CodeIdentityConflict, Detail: "identity already registered"}
)
