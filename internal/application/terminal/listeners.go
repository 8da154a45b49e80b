package terminal

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/proximity"
)

// Listener event names.
const (
	EventPaymentSuccessful   = "payment_successful"
	EventPaymentFailed       = "payment_failed"
	EventPaymentStateChanged = "payment_state_changed"
	EventPaymentBroadcast    = "payment_broadcast"
)

// ListenerEvent is delivered to listeners. Fields beyond Name and SessionID
// are filled according to the event.
type ListenerEvent struct {
	Name      string                 `json:"name"`
	SessionID string                 `json:"session_id"`
	Amount    string                 `json:"amount,omitempty"`
	Currency  string                 `json:"currency,omitempty"`
	State     domain.SessionState    `json:"state,omitempty"`
	Option    *domain.PaymentOption  `json:"option,omitempty"`
	TxID      string                 `json:"tx_id,omitempty"`
	Error     *domain.PaymentError   `json:"error,omitempty"`
	Cancelled bool                   `json:"cancelled,omitempty"`
	Broadcast proximity.Result       `json:"broadcast,omitempty"`
	Session   *domain.PaymentSession `json:"-"`
}

type Listener func(ListenerEvent)

// ListenerID identifies one registration for RemoveListener.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

type listenerSet struct {
	mu     sync.RWMutex
	nextID ListenerID
	byName map[string][]listenerEntry
	logger zerolog.Logger
}

func newListenerSet(logger zerolog.Logger) *listenerSet {
	return &listenerSet{
		byName: make(map[string][]listenerEntry),
		logger: logger,
	}
}

func (l *listenerSet) add(name string, fn Listener) ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	l.byName[name] = append(l.byName[name], listenerEntry{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *listenerSet) remove(name string, id ListenerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.byName[name]
	for i, e := range entries {
		if e.id == id {
			l.byName[name] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(l.byName[name]) == 0 {
		delete(l.byName, name)
	}
}

// emit calls the listeners for ev.Name in registration order. A panicking
// listener is logged and skipped.
func (l *listenerSet) emit(ev ListenerEvent) {
	l.mu.RLock()
	entries := append([]listenerEntry(nil), l.byName[ev.Name]...)
	l.mu.RUnlock()

	for _, e := range entries {
		l.call(e, ev)
	}
}

func (l *listenerSet) call(e listenerEntry, ev ListenerEvent) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Interface("panic", r).
				Str("event", ev.Name).
				Str("session_id", ev.SessionID).
				Msg("Payment listener panicked")
		}
	}()
	e.fn(ev)
}
