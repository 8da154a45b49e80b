package proximity

import "context"

type Result string

const (
	Started     Result = "started"
	Unavailable Result = "unavailable"
)

// Broadcaster advertises an opaque payment URI over a short-range channel.
// Unavailable is a capability signal, not an error: callers fall back to
// showing the link. The payload is passed through unmodified.
type Broadcaster interface {
	Advertise(ctx context.Context, payload string) (Result, error)
	// Stop is idempotent and safe to call when nothing was started.
	Stop()
	IsSupported() bool
}

// Unsupported is the broadcaster for hosts without a proximity channel.
type Unsupported struct{}

func (Unsupported) Advertise(context.Context, string) (Result, error) { return Unavailable, nil }

func (Unsupported) Stop() {}

func (Unsupported) IsSupported() bool { return false }
