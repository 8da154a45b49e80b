package paymentsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain"
)

type Config struct {
	// Timeout bounds the time spent in any single non-terminal state.
	// Zero disables the per-state timer.
	Timeout time.Duration
	// Now is the clock used for CreatedAt/UpdatedAt. Defaults to time.Now.
	Now func() time.Time
}

// Machine owns one PaymentSession. Apply is the only way to change it.
type Machine struct {
	mu      sync.Mutex
	session *domain.PaymentSession
	hooks   []func(Transition)

	timeout  time.Duration
	timer    *time.Timer
	timerGen uint64

	now    func() time.Time
	logger zerolog.Logger
}

// New takes ownership of session. The caller must not touch it afterwards;
// use Snapshot to read it.
func New(session *domain.PaymentSession, cfg Config, logger zerolog.Logger) *Machine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if session.State == "" {
		session.State = domain.StateIdle
	}
	if session.CollectedData == nil {
		session.CollectedData = make(map[string]string)
	}
	ts := now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = ts
	}
	session.UpdatedAt = ts

	m := &Machine{
		session: session,
		timeout: cfg.Timeout,
		now:     now,
		logger:  logger.With().Str("session_id", session.SessionID).Logger(),
	}

	m.mu.Lock()
	m.armTimerLocked()
	m.mu.Unlock()

	return m
}

func (m *Machine) ID() string {
	return m.session.SessionID
}

func (m *Machine) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.State
}

func (m *Machine) Snapshot() *domain.PaymentSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// OnTransition registers fn to run after every accepted transition. Hooks
// run outside the machine lock, in registration order.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Apply runs ev through the transition table. An event without a matching
// edge returns an error wrapping domain.ErrInvalidTransition and leaves the
// session untouched.
func (m *Machine) Apply(ev Event) error {
	m.mu.Lock()
	tr, err := m.applyLocked(ev)
	hooks := m.hooks
	m.mu.Unlock()

	if err != nil {
		return err
	}

	for _, fn := range hooks {
		fn(tr)
	}
	return nil
}

// Cancel moves a non-terminal session to failed with code Cancelled.
func (m *Machine) Cancel(reason string) error {
	if reason == "" {
		reason = "Payment was cancelled"
	}
	return m.Apply(Fail(domain.NewPaymentError(domain.CodeCancelled, reason, nil)))
}

// ExpireIdle fails the session with perr only if it has not changed since
// cutoff, checked under the machine lock. It reports whether the session
// was still idle; a finished idle session is left as it is.
func (m *Machine) ExpireIdle(cutoff time.Time, perr *domain.PaymentError) bool {
	m.mu.Lock()
	if !m.session.UpdatedAt.Before(cutoff) {
		m.mu.Unlock()
		return false
	}
	if m.session.State.IsTerminal() {
		m.mu.Unlock()
		return true
	}

	tr, err := m.applyLocked(Fail(perr))
	hooks := m.hooks
	m.mu.Unlock()

	if err != nil {
		m.logger.Debug().Err(err).Msg("Idle session could not be expired")
		return true
	}
	for _, fn := range hooks {
		fn(tr)
	}
	return true
}

// Close disarms the timer. The session keeps its last state.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

func (m *Machine) applyLocked(ev Event) (Transition, error) {
	s := m.session
	from := s.State

	if from.IsTerminal() {
		return Transition{}, m.reject(ev, "session already finished")
	}

	var to domain.SessionState

	switch ev.Kind {
	case KindStart:
		if from != domain.StateIdle {
			return Transition{}, m.reject(ev, "")
		}
		to = domain.StateConnecting

	case KindLinkResolved:
		if from != domain.StateConnecting {
			return Transition{}, m.reject(ev, "")
		}
		id, err := domain.ParseSessionID(ev.Link)
		if err != nil {
			return Transition{}, m.reject(ev, err.Error())
		}
		if s.SessionID != "" && id != s.SessionID {
			return Transition{}, m.reject(ev, "link belongs to session "+id)
		}
		if s.PaymentLink != "" && s.PaymentLink != ev.Link {
			return Transition{}, m.reject(ev, "payment link already set")
		}
		s.PaymentLink = ev.Link
		to = domain.StateRequestingOptions

	case KindOptionsReceived:
		if from != domain.StateRequestingOptions {
			return Transition{}, m.reject(ev, "")
		}
		if ev.Option == nil {
			return Transition{}, m.reject(ev, "no option selected")
		}
		if s.SelectedOption != nil {
			return Transition{}, m.reject(ev, "option already selected")
		}
		opt := *ev.Option
		s.SelectedOption = &opt
		s.RequiredActions = append([]domain.RequiredAction(nil), ev.Actions...)
		if len(s.RequiredActions) == 0 {
			s.RequiredActions = nil
			to = domain.StateConfirming
		} else {
			to = domain.StateCollectingData
		}

	case KindFieldCollected:
		if from != domain.StateCollectingData || len(s.RequiredActions) == 0 {
			return Transition{}, m.reject(ev, "")
		}
		if head := s.RequiredActions[0].Name; head != ev.Field {
			return Transition{}, m.reject(ev, fmt.Sprintf("expected field %q, got %q", head, ev.Field))
		}
		if _, exists := s.CollectedData[ev.Field]; exists {
			return Transition{}, m.reject(ev, "field already collected")
		}
		s.CollectedData[ev.Field] = ev.Value
		s.RequiredActions = s.RequiredActions[1:]
		if len(s.RequiredActions) == 0 {
			s.RequiredActions = nil
			to = domain.StateConfirming
		} else {
			to = domain.StateCollectingData
		}

	case KindUserConfirmed:
		if from != domain.StateConfirming {
			return Transition{}, m.reject(ev, "")
		}
		if s.SelectedOption == nil || len(s.RequiredActions) > 0 {
			return Transition{}, m.reject(ev, "nothing to confirm")
		}
		to = domain.StateSigning

	case KindSigned:
		if from != domain.StateSigning {
			return Transition{}, m.reject(ev, "")
		}
		if ev.Signature == "" || s.Signature != "" {
			return Transition{}, m.reject(ev, "signature must be set exactly once")
		}
		s.Signature = ev.Signature
		to = domain.StateSubmitting

	case KindAck:
		if from != domain.StateSubmitting {
			return Transition{}, m.reject(ev, "")
		}
		s.TxID = ev.TxID
		to = domain.StateCompleted

	case KindError:
		perr := ev.Err
		if perr == nil {
			perr = domain.NewPaymentError(domain.CodeConfirmPaymentError, "Payment failed", nil)
		}
		s.Error = perr
		// Pending steps only exist while collecting data.
		s.RequiredActions = nil
		to = domain.StateFailed

	default:
		return Transition{}, m.reject(ev, "unknown event")
	}

	s.State = to
	s.UpdatedAt = m.now()
	m.armTimerLocked()

	evt := m.logger.Info()
	if to == domain.StateFailed {
		evt = m.logger.Warn().Str("error_code", string(s.Error.Code))
	}
	evt.Str("from", string(from)).
		Str("to", string(to)).
		Str("event", string(ev.Kind)).
		Msg("Payment session transition")

	return Transition{
		From:    from,
		To:      to,
		Event:   ev.Kind,
		Session: s.Clone(),
	}, nil
}

func (m *Machine) reject(ev Event, reason string) error {
	m.logger.Debug().
		Str("state", string(m.session.State)).
		Str("event", string(ev.Kind)).
		Str("reason", reason).
		Msg("Rejected payment session event")

	if reason == "" {
		return fmt.Errorf("%s in state %s: %w", ev.Kind, m.session.State, domain.ErrInvalidTransition)
	}
	return fmt.Errorf("%s in state %s (%s): %w", ev.Kind, m.session.State, reason, domain.ErrInvalidTransition)
}

// armTimerLocked replaces the per-state timer. The generation counter
// makes a timer that already fired but lost the race for the lock a no-op.
func (m *Machine) armTimerLocked() {
	m.stopTimerLocked()
	if m.timeout <= 0 || m.session.State.IsTerminal() {
		return
	}

	gen := m.timerGen
	m.timer = time.AfterFunc(m.timeout, func() { m.expire(gen) })
}

func (m *Machine) stopTimerLocked() {
	m.timerGen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.timerGen || m.session.State.IsTerminal() {
		m.mu.Unlock()
		return
	}

	state := m.session.State
	tr, err := m.applyLocked(Fail(domain.NewPaymentError(
		domain.CodeTimeout,
		fmt.Sprintf("Payment timed out while %s", humanState(state)),
		nil,
	)))
	hooks := m.hooks
	m.mu.Unlock()

	if err != nil {
		return
	}
	for _, fn := range hooks {
		fn(tr)
	}
}

func humanState(s domain.SessionState) string {
	switch s {
	case domain.StateIdle:
		return "waiting to start"
	case domain.StateConnecting:
		return "waiting for a wallet"
	case domain.StateRequestingOptions:
		return "loading payment options"
	case domain.StateCollectingData:
		return "collecting required information"
	case domain.StateConfirming:
		return "waiting for confirmation"
	case domain.StateSigning:
		return "signing"
	case domain.StateSubmitting:
		return "submitting the payment"
	default:
		return string(s)
	}
}
