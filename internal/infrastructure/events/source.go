package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/application/paymentsession"
	"github.com/tuncanbit/paylink/internal/domain"
)

// Handler consumes one backend event.
type Handler func(ctx context.Context, event domain.PaymentEvent) error

// dispatch hands event to handle. Stale, duplicate and foreign events are
// expected on an at-least-once stream and only logged at debug.
func dispatch(ctx context.Context, handle Handler, event domain.PaymentEvent, logger zerolog.Logger) {
	err := handle(ctx, event)
	if err == nil {
		return
	}

	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, paymentsession.ErrSessionNotFound) {
		logger.Debug().
			Err(err).
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Str("session_id", event.SessionID).
			Msg("Dropped payment event")
		return
	}

	logger.Warn().
		Err(err).
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("session_id", event.SessionID).
		Msg("Failed to handle payment event")
}
