package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/application/paymentsession"
	"github.com/tuncanbit/paylink/internal/domain"
)

// Payment is the wallet side of one session. Every step is driven by an
// explicit call; nothing advances on its own except the session timer.
type Payment struct {
	machine *paymentsession.Machine
	backend Backend
	signer  Signer
	cfg     Config
	logger  zerolog.Logger

	mu      sync.RWMutex
	account string
	options []domain.PaymentOption
}

func (p *Payment) ID() string {
	return p.machine.ID()
}

func (p *Payment) State() domain.SessionState {
	return p.machine.State()
}

func (p *Payment) Snapshot() *domain.PaymentSession {
	return p.machine.Snapshot()
}

// Options returns the options offered by the backend.
func (p *Payment) Options() []domain.PaymentOption {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.PaymentOption(nil), p.options...)
}

func (p *Payment) fetchOptions(ctx context.Context, link string) error {
	account, err := p.signer.Address()
	if err != nil {
		return p.fail(domain.NewPaymentError(domain.CodeIdentityNotFound,
			displayDetail(err, "No wallet has been set up on this device"), err))
	}

	options, err := p.backend.GetPaymentOptions(ctx, domain.OptionsRequest{
		Link:     link,
		Accounts: []string{account},
	})
	if err != nil {
		return p.fail(domain.NewPaymentError(domain.CodePaymentOptionsError,
			displayDetail(err, "Could not load payment options"), err))
	}
	if len(options) == 0 {
		return p.fail(domain.NewPaymentError(domain.CodePaymentOptionsError,
			"No payment options are available for this account", nil))
	}

	p.mu.Lock()
	p.account = account
	p.options = options
	p.mu.Unlock()

	p.logger.Info().Int("options", len(options)).Msg("Payment options loaded")
	return nil
}

// SelectOption picks one of Options and loads the data the backend requires
// for it. An unknown id is a ValidationError and changes nothing.
func (p *Payment) SelectOption(ctx context.Context, optionID string) error {
	if state := p.machine.State(); state != domain.StateRequestingOptions {
		return fmt.Errorf("select option in state %s: %w", state, domain.ErrInvalidTransition)
	}

	p.mu.RLock()
	account := p.account
	var option *domain.PaymentOption
	for i := range p.options {
		if p.options[i].ID == optionID {
			opt := p.options[i]
			option = &opt
			break
		}
	}
	p.mu.RUnlock()

	if option == nil {
		return domain.NewPaymentError(domain.CodeValidationError, fmt.Sprintf("Unknown payment option %q", optionID), nil)
	}
	if option.Account != "" {
		account = option.Account
	}

	actions, err := p.backend.GetRequiredPaymentActions(ctx, domain.ActionsRequest{
		SessionID: p.ID(),
		OptionID:  option.ID,
		Account:   account,
	})
	if err != nil {
		return p.fail(domain.NewPaymentError(domain.CodePaymentActionsError,
			displayDetail(err, "Could not load the required payment steps"), err))
	}

	p.mu.Lock()
	p.account = account
	p.mu.Unlock()

	return p.machine.Apply(paymentsession.OptionsReceived(option, actions))
}

// NextAction returns the data collection step to complete next.
func (p *Payment) NextAction() (domain.RequiredAction, bool) {
	s := p.machine.Snapshot()
	if s.State != domain.StateCollectingData || len(s.RequiredActions) == 0 {
		return domain.RequiredAction{}, false
	}
	return s.RequiredActions[0], true
}

// SubmitField completes the head step. Invalid values are rejected with a
// ValidationError before the session is touched.
func (p *Payment) SubmitField(name, value string) error {
	action, ok := p.NextAction()
	if !ok || action.Name != name {
		return p.machine.Apply(paymentsession.FieldCollected(name, value))
	}

	cleaned, err := action.Validate(value)
	if err != nil {
		return err
	}
	return p.machine.Apply(paymentsession.FieldCollected(name, cleaned))
}

// Confirm is the user's explicit approval. It signs the option's payload
// once and submits it, resending the same signature after transport faults.
func (p *Payment) Confirm(ctx context.Context) (*domain.PaymentSession, error) {
	if err := p.machine.Apply(paymentsession.UserConfirmed()); err != nil {
		return nil, err
	}

	session := p.machine.Snapshot()
	option := session.SelectedOption
	if option.SigningPayload == "" {
		perr := p.fail(domain.NewPaymentError(domain.CodeSigningError,
			"The payment service did not provide anything to sign", nil))
		return p.machine.Snapshot(), perr
	}

	p.mu.RLock()
	account := p.account
	p.mu.RUnlock()

	signature, err := p.signer.Sign(ctx, account, []byte(option.SigningPayload))
	if err != nil {
		code := domain.CodeOf(err)
		if code != domain.CodeIdentityNotFound {
			code = domain.CodeSigningError
		}
		perr := p.fail(domain.NewPaymentError(code, displayDetail(err, "Could not sign the payment"), err))
		return p.machine.Snapshot(), perr
	}

	if err := p.machine.Apply(paymentsession.Signed(signature)); err != nil {
		return p.machine.Snapshot(), err
	}

	result, err := p.submit(ctx, domain.ConfirmRequest{
		SessionID:     session.SessionID,
		OptionID:      option.ID,
		Account:       account,
		Signature:     signature,
		CollectedData: session.CollectedData,
	})
	if err != nil {
		perr := p.fail(domain.NewPaymentError(domain.CodeConfirmPaymentError,
			displayDetail(err, "The payment could not be submitted"), err))
		return p.machine.Snapshot(), perr
	}
	if result.Status != domain.ConfirmSucceeded {
		detail := result.Reason
		if detail == "" {
			detail = "The payment was declined"
		}
		perr := p.fail(domain.NewPaymentError(domain.CodeConfirmPaymentError, detail, nil))
		return p.machine.Snapshot(), perr
	}

	if err := p.machine.Apply(paymentsession.Ack(result.TxID)); err != nil {
		p.logger.Error().Err(err).Str("tx_id", result.TxID).Msg("Payment accepted after the session ended")
		return p.machine.Snapshot(), err
	}
	return p.machine.Snapshot(), nil
}

// submit sends req and resends it unchanged while the failure is a
// transport fault, up to cfg.SubmitRetries times.
func (p *Payment) submit(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.SubmitRetries; attempt++ {
		if attempt > 0 {
			delay := p.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
			p.logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Resubmitting payment")

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("submission interrupted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := p.backend.ConfirmPayment(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

// Cancel aborts the payment from the wallet side.
func (p *Payment) Cancel() error {
	return p.machine.Cancel("Payment was cancelled in the wallet")
}

// fail records perr on the session and returns it. When the session has
// already moved on, the recorded outcome wins and perr is still returned.
func (p *Payment) fail(perr *domain.PaymentError) error {
	if err := p.machine.Apply(paymentsession.Fail(perr)); err != nil {
		p.logger.Debug().Err(err).Str("error_code", string(perr.Code)).Msg("Session already finished")
	}
	return perr
}
