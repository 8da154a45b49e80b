package terminal

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/proximity"
)

var ErrNotInitialized = errors.New("terminal payment service is not initialized")

type ITerminalService interface {
	// Initialize validates the backend credentials. Missing credentials
	// leave the service soft-disabled and return false.
	Initialize(cfg PaymentConfig) bool
	// GetClient returns nil while the service is soft-disabled.
	GetClient() Backend
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	CreatePaymentRequest(ctx context.Context, amount decimal.Decimal, currency string, merchant string) (*PaymentRequest, error)
	HandleEvent(ctx context.Context, event domain.PaymentEvent) error
	Cancel(sessionID string) error
	Acknowledge(sessionID string) error
	Session(ctx context.Context, sessionID string) (*domain.PaymentSession, error)

	AddListener(event string, fn Listener) ListenerID
	RemoveListener(event string, id ListenerID)

	// Run consumes source and reaps stale sessions until ctx is done.
	Run(ctx context.Context, source EventSource) error
}

// Backend is the part of the payment backend the terminal talks to.
type Backend interface {
	RegisterTerminal(ctx context.Context, reg domain.TerminalRegistration) error
	UnregisterTerminal(ctx context.Context, terminalID string) error
	ListEvents(ctx context.Context, terminalID, cursor string) (*domain.EventPage, error)
}

// BackendFactory builds the backend client once credentials are known.
type BackendFactory func(cfg PaymentConfig) Backend

// EventSource delivers backend events to handle until ctx is done.
// Delivery may duplicate or reorder events.
type EventSource interface {
	Subscribe(ctx context.Context, handle func(context.Context, domain.PaymentEvent) error) error
}

type PaymentConfig struct {
	ProjectID    string
	APIKey       string
	BackendURL   string
	TerminalID   string
	MerchantName string
	LinkBaseURL  string
}

// PaymentRequest is returned to the caller of CreatePaymentRequest. The
// link is always set, so it can be displayed when Broadcast is Unavailable.
type PaymentRequest struct {
	SessionID   string                 `json:"session_id"`
	PaymentLink string                 `json:"payment_link"`
	Broadcast   proximity.Result       `json:"broadcast"`
	Session     *domain.PaymentSession `json:"session"`
}
