package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tuncanbit/paylink/internal/application/paymentsession"
	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/proximity"
	"github.com/tuncanbit/paylink/internal/repositories/sessionrepo"
	"github.com/tuncanbit/paylink/pkg/config"
	"github.com/tuncanbit/paylink/pkg/currency"
)

const (
	// The terminal never sees the wallet's signature or the option when the
	// backend omits them; these stand in so the projection can advance.
	redactedSignature = "redacted"
	unreportedOption  = "unreported"

	persistTimeout = 5 * time.Second
)

type terminalService struct {
	sessionCfg  config.SessionConfig
	broadcaster proximity.Broadcaster
	newBackend  BackendFactory
	repo        sessionrepo.ISessionRepository
	registry    *paymentsession.Registry
	listeners   *listenerSet
	logger      zerolog.Logger

	mu          sync.RWMutex
	cfg         PaymentConfig
	backend     Backend
	initialized bool

	// bmu guards advertising, the session whose link is on the broadcaster.
	bmu         sync.Mutex
	advertising string
}

// New builds an uninitialized service. repo may be nil; a nil broadcaster
// means no proximity channel.
func New(
	sessionCfg config.SessionConfig,
	broadcaster proximity.Broadcaster,
	newBackend BackendFactory,
	repo sessionrepo.ISessionRepository,
	logger zerolog.Logger,
) ITerminalService {
	if broadcaster == nil {
		broadcaster = proximity.Unsupported{}
	}
	logger = logger.With().Str("component", "terminal").Logger()

	return &terminalService{
		sessionCfg:  sessionCfg,
		broadcaster: broadcaster,
		newBackend:  newBackend,
		repo:        repo,
		registry:    paymentsession.NewRegistry(sessionCfg.StaleAfter, logger),
		listeners:   newListenerSet(logger),
		logger:      logger,
	}
}

func (s *terminalService) Initialize(cfg PaymentConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(cfg.ProjectID) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		s.logger.Warn().
			Bool("project_id_set", cfg.ProjectID != "").
			Bool("api_key_set", cfg.APIKey != "").
			Msg("Payment credentials missing, terminal payments are disabled")
		s.initialized = false
		s.backend = nil
		return false
	}

	if cfg.TerminalID == "" {
		cfg.TerminalID = "pos-" + uuid.NewString()
	}

	s.cfg = cfg
	s.backend = s.newBackend(cfg)
	s.initialized = true

	s.logger.Info().
		Str("terminal_id", cfg.TerminalID).
		Str("project_id", cfg.ProjectID).
		Bool("proximity_supported", s.broadcaster.IsSupported()).
		Msg("Terminal payment service initialized")
	return true
}

func (s *terminalService) GetClient() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return nil
	}
	return s.backend
}

func (s *terminalService) active() (PaymentConfig, Backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return PaymentConfig{}, nil, ErrNotInitialized
	}
	return s.cfg, s.backend, nil
}

// Connect registers the terminal with the backend. A stale registration
// reported as an identity conflict is cleared and registration is retried
// exactly once.
func (s *terminalService) Connect(ctx context.Context) error {
	cfg, backend, err := s.active()
	if err != nil {
		return err
	}

	reg := domain.TerminalRegistration{TerminalID: cfg.TerminalID, Merchant: cfg.MerchantName}

	err = backend.RegisterTerminal(ctx, reg)
	if err == nil {
		s.logger.Info().Str("terminal_id", cfg.TerminalID).Msg("Terminal registered")
		return nil
	}
	if !errors.Is(err, domain.ErrIdentityConflict) {
		return fmt.Errorf("failed to register terminal: %w", err)
	}

	s.logger.Warn().Err(err).Str("terminal_id", cfg.TerminalID).Msg("Stale terminal registration, re-registering")

	if err := backend.UnregisterTerminal(ctx, cfg.TerminalID); err != nil {
		return fmt.Errorf("failed to clear stale registration: %w", err)
	}
	if err := backend.RegisterTerminal(ctx, reg); err != nil {
		return fmt.Errorf("failed to re-register terminal: %w", err)
	}

	s.logger.Info().Str("terminal_id", cfg.TerminalID).Msg("Terminal re-registered")
	return nil
}

func (s *terminalService) Disconnect(ctx context.Context) error {
	s.broadcaster.Stop()

	cfg, backend, err := s.active()
	if err != nil {
		return err
	}
	if err := backend.UnregisterTerminal(ctx, cfg.TerminalID); err != nil {
		return fmt.Errorf("failed to unregister terminal: %w", err)
	}
	return nil
}

func (s *terminalService) CreatePaymentRequest(ctx context.Context, amount decimal.Decimal, cur string, merchant string) (*PaymentRequest, error) {
	cfg, _, err := s.active()
	if err != nil {
		return nil, err
	}

	code, err := currency.Normalize(cur)
	if err != nil {
		return nil, domain.NewPaymentError(domain.CodeValidationError, "Unsupported currency", err)
	}
	if err := currency.ValidateAmount(amount, code); err != nil {
		return nil, domain.NewPaymentError(domain.CodeValidationError, "Amount must be a positive value in the currency's precision", err)
	}
	if merchant == "" {
		merchant = cfg.MerchantName
	}

	sessionID := uuid.NewString()
	link, err := domain.EncodePaymentLink(cfg.LinkBaseURL, domain.LinkParams{
		SessionID: sessionID,
		Amount:    amount,
		Currency:  code,
		Merchant:  merchant,
		Terminal:  cfg.TerminalID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment link: %w", err)
	}

	m := paymentsession.New(&domain.PaymentSession{
		SessionID:   sessionID,
		State:       domain.StateIdle,
		Amount:      amount,
		Currency:    code,
		Merchant:    merchant,
		PaymentLink: link,
	}, paymentsession.Config{Timeout: s.sessionCfg.Timeout}, s.logger)
	m.OnTransition(s.onTransition)

	if err := s.registry.Add(m); err != nil {
		m.Close()
		return nil, err
	}
	if err := m.Apply(paymentsession.Start()); err != nil {
		return nil, err
	}

	result := s.advertise(ctx, sessionID, link)

	s.logger.Info().
		Str("session_id", sessionID).
		Str("amount", currency.Format(amount, code)).
		Str("currency", code).
		Str("broadcast", string(result)).
		Msg("Payment request created")

	return &PaymentRequest{
		SessionID:   sessionID,
		PaymentLink: link,
		Broadcast:   result,
		Session:     m.Snapshot(),
	}, nil
}

// advertise never fails the payment: any broadcaster problem is reported
// as Unavailable and the link is shown instead.
func (s *terminalService) advertise(ctx context.Context, sessionID, link string) proximity.Result {
	s.bmu.Lock()
	result, err := s.broadcaster.Advertise(ctx, link)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Proximity advertise failed")
		result = proximity.Unavailable
	}
	if result == proximity.Started {
		s.advertising = sessionID
	} else if s.advertising != "" {
		// the previous link is no longer the current request
		s.broadcaster.Stop()
		s.advertising = ""
	}
	s.bmu.Unlock()

	s.listeners.emit(ListenerEvent{
		Name:      EventPaymentBroadcast,
		SessionID: sessionID,
		Broadcast: result,
	})
	return result
}

func (s *terminalService) stopBroadcast(sessionID string) {
	s.bmu.Lock()
	defer s.bmu.Unlock()

	if s.advertising != sessionID {
		return
	}
	s.broadcaster.Stop()
	s.advertising = ""
}

func (s *terminalService) onTransition(tr paymentsession.Transition) {
	session := tr.Session
	s.persist(session)

	base := ListenerEvent{
		SessionID: session.SessionID,
		Amount:    currency.Format(session.Amount, session.Currency),
		Currency:  session.Currency,
		State:     tr.To,
		Session:   session,
	}

	changed := base
	changed.Name = EventPaymentStateChanged
	s.listeners.emit(changed)

	switch tr.To {
	case domain.StateCompleted:
		s.stopBroadcast(session.SessionID)

		ev := base
		ev.Name = EventPaymentSuccessful
		ev.Option = session.SelectedOption
		ev.TxID = session.TxID
		s.listeners.emit(ev)

	case domain.StateFailed:
		s.stopBroadcast(session.SessionID)

		ev := base
		ev.Name = EventPaymentFailed
		ev.Error = session.Error
		ev.Cancelled = session.Error.IsCancelled()
		s.listeners.emit(ev)
	}
}

func (s *terminalService) persist(session *domain.PaymentSession) {
	if s.repo == nil {
		return
	}

	s.mu.RLock()
	terminalID := s.cfg.TerminalID
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.repo.UpsertSession(ctx, terminalID, session); err != nil {
		s.logger.Error().Err(err).Str("session_id", session.SessionID).Msg("Failed to persist payment session")
	}
}

// HandleEvent applies one backend event to the session it names. Events
// for unknown sessions return paymentsession.ErrSessionNotFound; stale or
// duplicate events return an error wrapping domain.ErrInvalidTransition.
func (s *terminalService) HandleEvent(ctx context.Context, event domain.PaymentEvent) error {
	m, err := s.registry.Get(event.SessionID)
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("session_id", event.SessionID).
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Msg("Handling payment event")

	switch event.Type {
	case domain.EventLinkResolved:
		return m.Apply(paymentsession.LinkResolved(m.Snapshot().PaymentLink))
	case domain.EventOptionSelected:
		return m.Apply(paymentsession.OptionsReceived(event.Option, event.Actions))
	case domain.EventDataCollected:
		return m.Apply(paymentsession.FieldCollected(event.Field, ""))
	case domain.EventConfirmed:
		return m.Apply(paymentsession.UserConfirmed())
	case domain.EventSigned:
		return m.Apply(paymentsession.Signed(signatureOf(event)))
	case domain.EventSucceeded:
		return s.catchUp(m, event)
	case domain.EventFailed:
		perr := event.Error
		if perr == nil {
			perr = domain.NewPaymentError(domain.CodeConfirmPaymentError, "Payment failed", nil)
		}
		return m.Apply(paymentsession.Fail(perr))
	default:
		return fmt.Errorf("unknown event type %q: %w", event.Type, domain.ErrInvalidTransition)
	}
}

// catchUp walks the projection through the table edges the wallet must
// have taken when only the outcome was delivered.
func (s *terminalService) catchUp(m *paymentsession.Machine, event domain.PaymentEvent) error {
	for {
		snap := m.Snapshot()

		var next paymentsession.Event
		switch snap.State {
		case domain.StateConnecting:
			next = paymentsession.LinkResolved(snap.PaymentLink)
		case domain.StateRequestingOptions:
			option := event.Option
			if option == nil {
				option = &domain.PaymentOption{ID: unreportedOption}
			}
			next = paymentsession.OptionsReceived(option, nil)
		case domain.StateCollectingData:
			next = paymentsession.FieldCollected(snap.RequiredActions[0].Name, "")
		case domain.StateConfirming:
			next = paymentsession.UserConfirmed()
		case domain.StateSigning:
			next = paymentsession.Signed(signatureOf(event))
		case domain.StateSubmitting:
			return m.Apply(paymentsession.Ack(event.TxID))
		default:
			return fmt.Errorf("%s in state %s: %w", event.Type, snap.State, domain.ErrInvalidTransition)
		}

		if err := m.Apply(next); err != nil {
			return err
		}
	}
}

func signatureOf(event domain.PaymentEvent) string {
	if event.Signature != "" {
		return event.Signature
	}
	return redactedSignature
}

func (s *terminalService) Cancel(sessionID string) error {
	m, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return m.Cancel("Payment was cancelled at the terminal")
}

func (s *terminalService) Acknowledge(sessionID string) error {
	return s.registry.Acknowledge(sessionID)
}

func (s *terminalService) Session(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	m, err := s.registry.Get(sessionID)
	if err == nil {
		return m.Snapshot(), nil
	}
	if s.repo == nil {
		return nil, err
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if errors.Is(err, sessionrepo.ErrSessionNotFound) {
		return nil, paymentsession.ErrSessionNotFound
	}
	return session, err
}

func (s *terminalService) AddListener(event string, fn Listener) ListenerID {
	return s.listeners.add(event, fn)
}

func (s *terminalService) RemoveListener(event string, id ListenerID) {
	s.listeners.remove(event, id)
}

func (s *terminalService) Run(ctx context.Context, source EventSource) error {
	if _, _, err := s.active(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if s.sessionCfg.ReapInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.registry.Run(runCtx, s.sessionCfg.ReapInterval)
		}()
	}

	s.logger.Info().Msg("Listening for payment events")
	err := source.Subscribe(runCtx, s.HandleEvent)

	cancel()
	wg.Wait()

	if ctx.Err() != nil {
		s.logger.Info().Msg("Payment event listener stopped")
		return nil
	}
	return err
}
