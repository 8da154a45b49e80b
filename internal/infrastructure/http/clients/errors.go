package clients

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tuncanbit/paylink/internal/domain"
)

// Backend error codes with meaning to the client.
const (
	CodeIdentityConflict = "identity_conflict"
	CodeLinkExpired      = "link_expired"
)

// BackendError is returned for every failed backend call. Transport is set
// when no HTTP response was received at all.
type BackendError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Transport  bool   `json:"-"`
	Err        error  `json:"-"`
}

func (e *BackendError) Error() string {
	if e.Transport {
		return fmt.Sprintf("backend unreachable: %v", e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("backend error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is lets callers test for an identity conflict with
// errors.Is(err, domain.ErrIdentityConflict).
func (e *BackendError) Is(target error) bool {
	return target == domain.ErrIdentityConflict && e.Code == CodeIdentityConflict
}

// Retryable reports whether resending the same request may succeed: the
// request never got an answer, or a gateway in front of the backend failed.
func (e *BackendError) Retryable() bool {
	if e.Transport {
		return true
	}
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Detail is a message suitable for display.
func (e *BackendError) Detail() string {
	if e.Transport {
		return "The payment service could not be reached"
	}
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.StatusCode)
}

// IsRetryable reports whether err carries a retryable backend error.
func IsRetryable(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Retryable()
}
