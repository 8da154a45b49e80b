package wallet

import (
	"context"
	"time"

	"github.com/tuncanbit/paylink/internal/application/paymentsession"
	"github.com/tuncanbit/paylink/internal/domain"
)

type IWalletService interface {
	// Begin resolves link and fetches the payment options. The returned
	// Payment is non-nil whenever a session was created, including when the
	// session already failed, so callers can inspect the failure.
	Begin(ctx context.Context, link string) (*Payment, error)
	Payment(sessionID string) (*Payment, error)
	Acknowledge(sessionID string) error
	// Observe registers fn on every session created after the call.
	Observe(fn func(paymentsession.Transition))
	// Run reaps stale sessions until ctx is done.
	Run(ctx context.Context)
}

// Backend is the part of the payment backend the wallet talks to.
type Backend interface {
	GetPaymentOptions(ctx context.Context, req domain.OptionsRequest) ([]domain.PaymentOption, error)
	GetRequiredPaymentActions(ctx context.Context, req domain.ActionsRequest) ([]domain.RequiredAction, error)
	ConfirmPayment(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error)
}

// Signer is the wallet's credential store.
type Signer interface {
	Address() (string, error)
	Sign(ctx context.Context, address string, payload []byte) (string, error)
}

type Config struct {
	// SessionTimeout bounds each state, user interaction included.
	SessionTimeout time.Duration
	StaleAfter     time.Duration
	ReapInterval   time.Duration
	// SubmitRetries is how many times a submission is resent after a
	// transport fault. The signature is never re-obtained.
	SubmitRetries int
	RetryDelay    time.Duration
}
