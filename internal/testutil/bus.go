package testutil

import (
	"context"

	"github.com/tuncanbit/paylink/internal/domain"
)

// EventBus is an in-memory push channel standing in for the backend's
// event stream. It implements terminal.EventSource for one subscriber.
type EventBus struct {
	events chan domain.PaymentEvent
	// Duplicate publishes every event twice.
	Duplicate bool
}

func NewEventBus(buffer int) *EventBus {
	return &EventBus{events: make(chan domain.PaymentEvent, buffer)}
}

func (b *EventBus) Publish(event domain.PaymentEvent) {
	b.events <- event
	if b.Duplicate {
		b.events <- event
	}
}

func (b *EventBus) Subscribe(ctx context.Context, handle func(context.Context, domain.PaymentEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-b.events:
			_ = handle(ctx, event)
		}
	}
}
