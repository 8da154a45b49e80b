package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Validate checks a collected value against the action's kind. Values are
// trimmed before validation; the trimmed form is returned.
func (a RequiredAction) Validate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if a.Optional {
			return "", nil
		}
		return "", NewPaymentError(CodeValidationError, fmt.Sprintf("%s is required", a.displayName()), nil)
	}

	switch a.Kind {
	case FieldDate:
		if _, err := time.Parse(dateLayout, value); err != nil {
			return "", NewPaymentError(CodeValidationError, fmt.Sprintf("%s must be a date (YYYY-MM-DD)", a.displayName()), err)
		}
	case FieldEmail:
		if _, err := mail.ParseAddress(value); err != nil {
			return "", NewPaymentError(CodeValidationError, fmt.Sprintf("%s must be an email address", a.displayName()), err)
		}
	case FieldCountry:
		if len(value) != 2 {
			return "", NewPaymentError(CodeValidationError, fmt.Sprintf("%s must be a two letter country code", a.displayName()), nil)
		}
		value = strings.ToUpper(value)
	}

	return value, nil
}

func (a RequiredAction) displayName() string {
	if a.Label != "" {
		return a.Label
	}
	return a.Name
}
