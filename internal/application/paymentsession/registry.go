package paymentsession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("payment session not found")
	ErrSessionExists   = errors.New("payment session already exists")
	ErrNotFinished     = errors.New("payment session has not finished")
)

// Registry keeps the live sessions of one process, keyed by session id.
type Registry struct {
	mu         sync.RWMutex
	machines   map[string]*Machine
	staleAfter time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

func NewRegistry(staleAfter time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		machines:   make(map[string]*Machine),
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

func (r *Registry) Add(m *Machine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.machines[m.ID()]; exists {
		return ErrSessionExists
	}
	r.machines[m.ID()] = m
	return nil
}

func (r *Registry) Get(sessionID string) (*Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.machines[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.machines)
}

// Acknowledge evicts a finished session once its owner has observed the
// outcome. Unfinished sessions stay.
func (r *Registry) Acknowledge(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.machines[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if !m.State().IsTerminal() {
		return ErrNotFinished
	}

	m.Close()
	delete(r.machines, sessionID)
	return nil
}

// Reap evicts sessions without progress for longer than staleAfter.
// Unfinished ones are failed with Timeout first so their listeners hear
// about it. Returns the number of evicted sessions.
func (r *Registry) Reap() int {
	if r.staleAfter <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.staleAfter)

	r.mu.RLock()
	candidates := make([]*Machine, 0)
	for _, m := range r.machines {
		if m.Snapshot().UpdatedAt.Before(cutoff) {
			candidates = append(candidates, m)
		}
	}
	r.mu.RUnlock()

	stale := make([]*Machine, 0, len(candidates))
	for _, m := range candidates {
		perr := domain.NewPaymentError(domain.CodeTimeout, "Payment expired without progress", nil)
		if !m.ExpireIdle(cutoff, perr) {
			r.logger.Debug().Str("session_id", m.ID()).Msg("Session progressed while reaping")
			continue
		}
		m.Close()
		stale = append(stale, m)
	}

	r.mu.Lock()
	for _, m := range stale {
		delete(r.machines, m.ID())
	}
	remaining := len(r.machines)
	r.mu.Unlock()

	if len(stale) > 0 {
		r.logger.Info().
			Int("removed_count", len(stale)).
			Int("active_sessions", remaining).
			Msg("Reaped stale payment sessions")
	}

	return len(stale)
}

// Run reaps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap()
		}
	}
}
