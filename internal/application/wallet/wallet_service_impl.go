package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/application/paymentsession"
	"github.com/tuncanbit/paylink/internal/domain"
)

type walletService struct {
	backend  Backend
	signer   Signer
	cfg      Config
	registry *paymentsession.Registry
	logger   zerolog.Logger

	mu       sync.Mutex
	payments map[string]*Payment
	hooks    []func(paymentsession.Transition)
}

func New(backend Backend, signer Signer, cfg Config, logger zerolog.Logger) IWalletService {
	if cfg.SubmitRetries < 0 {
		cfg.SubmitRetries = 0
	}
	logger = logger.With().Str("component", "wallet").Logger()

	return &walletService{
		backend:  backend,
		signer:   signer,
		cfg:      cfg,
		registry: paymentsession.NewRegistry(cfg.StaleAfter, logger),
		logger:   logger,
		payments: make(map[string]*Payment),
	}
}

func (s *walletService) Begin(ctx context.Context, link string) (*Payment, error) {
	sessionID, err := domain.ParseSessionID(link)
	if err != nil {
		return nil, domain.NewPaymentError(domain.CodeValidationError, "This is not a payment link", err)
	}

	session := &domain.PaymentSession{SessionID: sessionID, State: domain.StateIdle}
	if params, err := domain.ParseLink(link); err == nil {
		session.Amount = params.Amount
		session.Currency = params.Currency
		session.Merchant = params.Merchant
	}

	m := paymentsession.New(session, paymentsession.Config{Timeout: s.cfg.SessionTimeout}, s.logger)
	s.mu.Lock()
	for _, fn := range s.hooks {
		m.OnTransition(fn)
	}
	s.mu.Unlock()

	if err := s.registry.Add(m); err != nil {
		m.Close()
		return nil, err
	}

	p := &Payment{
		machine: m,
		backend: s.backend,
		signer:  s.signer,
		cfg:     s.cfg,
		logger:  s.logger.With().Str("session_id", sessionID).Logger(),
	}
	s.mu.Lock()
	s.payments[sessionID] = p
	s.mu.Unlock()

	if err := m.Apply(paymentsession.Start()); err != nil {
		return p, err
	}
	if err := m.Apply(paymentsession.LinkResolved(link)); err != nil {
		return p, err
	}

	if err := p.fetchOptions(ctx, link); err != nil {
		return p, err
	}
	return p, nil
}

func (s *walletService) Payment(sessionID string) (*Payment, error) {
	s.mu.Lock()
	p, ok := s.payments[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, paymentsession.ErrSessionNotFound
	}
	if _, err := s.registry.Get(sessionID); err != nil {
		s.forget(sessionID)
		return nil, err
	}
	return p, nil
}

func (s *walletService) Acknowledge(sessionID string) error {
	if err := s.registry.Acknowledge(sessionID); err != nil {
		return err
	}
	s.forget(sessionID)
	return nil
}

func (s *walletService) forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payments, sessionID)
}

func (s *walletService) Observe(fn func(paymentsession.Transition)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *walletService) Run(ctx context.Context) {
	if s.cfg.ReapInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.registry.Reap() > 0 {
				s.prune()
			}
		}
	}
}

// prune drops payments whose session the registry no longer holds.
func (s *walletService) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.payments {
		if _, err := s.registry.Get(id); err != nil {
			delete(s.payments, id)
		}
	}
}

// displayDetail prefers a message written for users over err.Error().
func displayDetail(err error, fallback string) string {
	var detailed interface{ Detail() string }
	if errors.As(err, &detailed) && detailed.Detail() != "" {
		return detailed.Detail()
	}
	var perr *domain.PaymentError
	if errors.As(err, &perr) && perr.Detail != "" {
		return perr.Detail
	}
	return fallback
}

func isRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
