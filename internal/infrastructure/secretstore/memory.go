package secretstore

import (
	"context"
	"sync"

	"github.com/tuncanbit/paylink/internal/application/credential"
)

// MemoryStore keeps the secret for the lifetime of the process. Used by
// tests and the demo wiring.
type MemoryStore struct {
	mu     sync.Mutex
	secret string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret == "" {
		return "", credential.ErrSecretNotFound
	}
	return s.secret, nil
}

func (s *MemoryStore) Set(_ context.Context, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = ""
	return nil
}
