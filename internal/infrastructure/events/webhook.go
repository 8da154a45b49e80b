package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain"
)

var ErrQueueFull = errors.New("payment event queue is full")

// WebhookSource queues events pushed to the HTTP webhook until the
// subscriber takes them.
type WebhookSource struct {
	events chan domain.PaymentEvent
	logger zerolog.Logger
}

func NewWebhookSource(buffer int, logger zerolog.Logger) *WebhookSource {
	if buffer <= 0 {
		buffer = 256
	}
	return &WebhookSource{
		events: make(chan domain.PaymentEvent, buffer),
		logger: logger.With().Str("source", "webhook").Logger(),
	}
}

// Push enqueues event without blocking. ErrQueueFull tells the caller to
// have the backend redeliver later.
func (w *WebhookSource) Push(event domain.PaymentEvent) error {
	select {
	case w.events <- event:
		return nil
	default:
		w.logger.Warn().Str("event_id", event.ID).Msg("Payment event queue full")
		return ErrQueueFull
	}
}

func (w *WebhookSource) Subscribe(ctx context.Context, handle func(context.Context, domain.PaymentEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.events:
			dispatch(ctx, handle, event, w.logger)
		}
	}
}
