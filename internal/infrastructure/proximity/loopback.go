package proximity

import (
	"context"
	"sync"
)

// Loopback hands advertised payloads to an in-process reader, standing in
// for a wallet tapping the terminal.
type Loopback struct {
	mu      sync.Mutex
	current string
	active  bool
	offers  chan string
}

func NewLoopback(buffer int) *Loopback {
	if buffer <= 0 {
		buffer = 16
	}
	return &Loopback{offers: make(chan string, buffer)}
}

func (l *Loopback) Advertise(ctx context.Context, payload string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Unavailable, err
	}

	select {
	case l.offers <- payload:
	case <-ctx.Done():
		return Unavailable, ctx.Err()
	}

	l.mu.Lock()
	l.current = payload
	l.active = true
	l.mu.Unlock()
	return Started, nil
}

func (l *Loopback) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = ""
	l.active = false
}

func (l *Loopback) IsSupported() bool { return true }

// Offers delivers every advertised payload in order.
func (l *Loopback) Offers() <-chan string {
	return l.offers
}

// Current reports the payload being advertised right now.
func (l *Loopback) Current() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current, l.active
}
