package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain"
)

// EventLister is the backend's event feed for one terminal.
type EventLister interface {
	ListEvents(ctx context.Context, terminalID, cursor string) (*domain.EventPage, error)
}

// Poller pulls the terminal's event feed on a fixed interval for
// deployments without push delivery.
type Poller struct {
	lister     EventLister
	terminalID string
	interval   time.Duration
	cursor     string
	logger     zerolog.Logger
}

func NewPoller(lister EventLister, terminalID string, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		lister:     lister,
		terminalID: terminalID,
		interval:   interval,
		logger:     logger.With().Str("source", "poll").Str("terminal_id", terminalID).Logger(),
	}
}

func (p *Poller) Subscribe(ctx context.Context, handle func(context.Context, domain.PaymentEvent) error) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Msg("Polling payment events")
	p.poll(ctx, handle)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, handle)
		}
	}
}

// poll drains every page available right now. Errors are logged and the
// same cursor is retried on the next tick.
func (p *Poller) poll(ctx context.Context, handle Handler) {
	for {
		page, err := p.lister.ListEvents(ctx, p.terminalID, p.cursor)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn().Err(err).Str("cursor", p.cursor).Msg("Failed to poll payment events")
			}
			return
		}

		for _, event := range page.Events {
			dispatch(ctx, handle, event, p.logger)
		}

		if page.Cursor == "" || page.Cursor == p.cursor {
			return
		}
		p.cursor = page.Cursor
		if len(page.Events) == 0 {
			return
		}
	}
}
