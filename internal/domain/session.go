package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionState string

const (
	StateIdle              SessionState = "idle"
	StateConnecting        SessionState = "connecting"
	StateRequestingOptions SessionState = "requesting_options"
	StateCollectingData    SessionState = "collecting_data"
	StateConfirming        SessionState = "confirming"
	StateSigning           SessionState = "signing"
	StateSubmitting        SessionState = "submitting"
	StateCompleted         SessionState = "completed"
	StateFailed            SessionState = "failed"
)

// IsTerminal reports whether no transition can leave the state.
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// PaymentSession is one side's projection of a payment attempt. The terminal
// and the wallet each own their own copy, correlated by SessionID only.
type PaymentSession struct {
	SessionID       string            `json:"session_id"`
	State           SessionState      `json:"state"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Merchant        string            `json:"merchant,omitempty"`
	PaymentLink     string            `json:"payment_link,omitempty"`
	SelectedOption  *PaymentOption    `json:"selected_option,omitempty"`
	RequiredActions []RequiredAction  `json:"required_actions,omitempty"`
	CollectedData   map[string]string `json:"collected_data,omitempty"`
	Signature       string            `json:"signature,omitempty"`
	TxID            string            `json:"tx_id,omitempty"`
	Error           *PaymentError     `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Clone returns a deep copy safe to hand outside the owning state machine.
func (s *PaymentSession) Clone() *PaymentSession {
	if s == nil {
		return nil
	}

	out := *s
	if s.SelectedOption != nil {
		opt := *s.SelectedOption
		out.SelectedOption = &opt
	}
	if s.RequiredActions != nil {
		out.RequiredActions = append([]RequiredAction(nil), s.RequiredActions...)
	}
	if s.CollectedData != nil {
		out.CollectedData = make(map[string]string, len(s.CollectedData))
		for k, v := range s.CollectedData {
			out.CollectedData[k] = v
		}
	}
	if s.Error != nil {
		perr := *s.Error
		out.Error = &perr
	}

	return &out
}
