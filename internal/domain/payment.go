package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentOption is one rail/asset the wallet can pay with.
type PaymentOption struct {
	ID       string          `json:"id"`
	Account  string          `json:"account"`
	ChainID  string          `json:"chain_id"`
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	Decimals int             `json:"decimals,omitempty"`
	// SigningPayload is the exact payload the backend wants signed for
	// this option. It is opaque to the core.
	SigningPayload string `json:"signing_payload,omitempty"`
}

type FieldKind string

const (
	FieldText    FieldKind = "text"
	FieldDate    FieldKind = "date"
	FieldEmail   FieldKind = "email"
	FieldCountry FieldKind = "country"
)

// RequiredAction is a compliance data-collection step. Kind selects how the
// value is validated; new kinds are added here rather than in the
// orchestrator.
type RequiredAction struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Label    string    `json:"label,omitempty"`
	Optional bool      `json:"optional,omitempty"`
}

type EventType string

const (
	EventLinkResolved   EventType = "payment.resolved"
	EventOptionSelected EventType = "payment.option_selected"
	EventDataCollected  EventType = "payment.data_collected"
	EventConfirmed      EventType = "payment.confirmed"
	EventSigned         EventType = "payment.signed"
	EventSucceeded      EventType = "payment.succeeded"
	EventFailed         EventType = "payment.failed"
)

// PaymentEvent is the envelope the payment backend relays between the
// wallet and the terminal. Delivery may duplicate or reorder events.
type PaymentEvent struct {
	ID         string           `json:"id"`
	Type       EventType        `json:"type"`
	SessionID  string           `json:"session_id"`
	Option     *PaymentOption   `json:"option,omitempty"`
	Actions    []RequiredAction `json:"actions,omitempty"`
	Field      string           `json:"field,omitempty"`
	Signature  string           `json:"signature,omitempty"`
	TxID       string           `json:"tx_id,omitempty"`
	Error      *PaymentError    `json:"error,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

