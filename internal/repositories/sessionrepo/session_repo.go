package sessionrepo

import (
	"context"
	"errors"

	"github.com/tuncanbit/paylink/internal/domain"
)

var ErrSessionNotFound = errors.New("payment session not found")

type ISessionRepository interface {
	// UpsertSession stores a snapshot. An older snapshot never overwrites a
	// newer one.
	UpsertSession(ctx context.Context, terminalID string, session *domain.PaymentSession) error
	GetSession(ctx context.Context, sessionID string) (*domain.PaymentSession, error)
	ListSessionsByState(ctx context.Context, state domain.SessionState, limit, offset int) ([]*domain.PaymentSession, error)
}
