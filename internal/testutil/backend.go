package testutil

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tuncanbit/paylink/internal/application/credential"
	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/http/clients"
)

type backendSession struct {
	link    domain.LinkParams
	option  *domain.PaymentOption
	actions []domain.RequiredAction
	settled bool
}

// Backend is an in-memory payment backend. It serves the wallet and the
// terminal, relays events between them and verifies wallet signatures.
type Backend struct {
	mu        sync.Mutex
	bus       *EventBus
	sessions  map[string]*backendSession
	terminals map[string]bool
	wallets   map[string][]byte
	feed      []domain.PaymentEvent
	feedOwner []string

	// Actions is required for every option.
	Actions []domain.RequiredAction
	// ExpireLinks rejects every link as expired.
	ExpireLinks bool
	// ConfirmFaults fails that many confirm calls with 503 before
	// accepting one.
	ConfirmFaults int
	// ConflictOnce reports an identity conflict on the next registration.
	ConflictOnce bool

	ConfirmCalls  int
	Registrations int
}

// NewBackend publishes relayed events on bus when it is non-nil. The
// per-terminal feed served by ListEvents is always kept.
func NewBackend(bus *EventBus) *Backend {
	return &Backend{
		bus:       bus,
		sessions:  make(map[string]*backendSession),
		terminals: make(map[string]bool),
		wallets:   make(map[string][]byte),
	}
}

// RegisterWallet makes the backend accept signatures of address.
func (b *Backend) RegisterWallet(identity credential.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wallets[identity.Address] = identity.PublicKey
}

// SetExpireLinks toggles ExpireLinks while the backend is being served.
func (b *Backend) SetExpireLinks(expire bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ExpireLinks = expire
}

// Confirmations returns ConfirmCalls while the backend is being served.
func (b *Backend) Confirmations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ConfirmCalls
}

func (b *Backend) GetPaymentOptions(_ context.Context, req domain.OptionsRequest) ([]domain.PaymentOption, error) {
	params, err := domain.ParseLink(req.Link)
	if err != nil {
		return nil, &clients.BackendError{StatusCode: http.StatusBadRequest, Code: "invalid_link", Message: "Payment link is not valid"}
	}
	if len(req.Accounts) == 0 {
		return nil, &clients.BackendError{StatusCode: http.StatusBadRequest, Code: "no_account", Message: "No account to pay from"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ExpireLinks {
		b.publishLocked(params.Terminal, domain.PaymentEvent{
			Type:      domain.EventFailed,
			SessionID: params.SessionID,
			Error:     domain.NewPaymentError(domain.CodePaymentOptionsError, "Payment link has expired", nil),
		})
		return nil, &clients.BackendError{StatusCode: http.StatusGone, Code: clients.CodeLinkExpired, Message: "Payment link has expired"}
	}

	if _, ok := b.sessions[params.SessionID]; !ok {
		b.sessions[params.SessionID] = &backendSession{link: params}
	}
	b.publishLocked(params.Terminal, domain.PaymentEvent{Type: domain.EventLinkResolved, SessionID: params.SessionID})

	option := domain.PaymentOption{
		ID:       "opt-usdc",
		Account:  req.Accounts[0],
		ChainID:  "eip155:8453",
		Asset:    "USDC",
		Amount:   params.Amount,
		Decimals: 6,
		SigningPayload: fmt.Sprintf(`{"session_id":%q,"option_id":"opt-usdc","amount":%q,"currency":%q}`,
			params.SessionID, params.Amount.String(), params.Currency),
	}
	return []domain.PaymentOption{option}, nil
}

func (b *Backend) GetRequiredPaymentActions(_ context.Context, req domain.ActionsRequest) ([]domain.RequiredAction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[req.SessionID]
	if !ok {
		return nil, &clients.BackendError{StatusCode: http.StatusNotFound, Message: "Unknown payment"}
	}

	s.option = &domain.PaymentOption{ID: req.OptionID, Account: req.Account, Asset: "USDC", Amount: s.link.Amount}
	s.actions = append([]domain.RequiredAction(nil), b.Actions...)
	b.publishLocked(s.link.Terminal, domain.PaymentEvent{
		Type:      domain.EventOptionSelected,
		SessionID: req.SessionID,
		Option:    s.option,
		Actions:   s.actions,
	})
	return s.actions, nil
}

func (b *Backend) ConfirmPayment(_ context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ConfirmCalls++
	if b.ConfirmFaults > 0 {
		b.ConfirmFaults--
		return nil, &clients.BackendError{StatusCode: http.StatusServiceUnavailable, Message: "Try again"}
	}

	s, ok := b.sessions[req.SessionID]
	if !ok {
		return nil, &clients.BackendError{StatusCode: http.StatusNotFound, Message: "Unknown payment"}
	}
	if s.settled {
		return &domain.ConfirmResult{Status: domain.ConfirmSucceeded, TxID: txID(req)}, nil
	}

	for _, action := range s.actions {
		if _, done := req.CollectedData[action.Name]; !done && !action.Optional {
			return &domain.ConfirmResult{Status: domain.ConfirmFailed, Reason: action.Name + " is missing"}, nil
		}
	}

	payload := fmt.Sprintf(`{"session_id":%q,"option_id":"opt-usdc","amount":%q,"currency":%q}`,
		req.SessionID, s.link.Amount.String(), s.link.Currency)
	pub, known := b.wallets[req.Account]
	if !known || !credential.Verify(pub, []byte(payload), req.Signature) {
		b.publishLocked(s.link.Terminal, domain.PaymentEvent{
			Type:      domain.EventFailed,
			SessionID: req.SessionID,
			Error:     domain.NewPaymentError(domain.CodeConfirmPaymentError, "Signature was rejected", nil),
		})
		return &domain.ConfirmResult{Status: domain.ConfirmFailed, Reason: "Signature was rejected"}, nil
	}

	s.settled = true
	tx := txID(req)
	for _, action := range s.actions {
		if _, done := req.CollectedData[action.Name]; done {
			b.publishLocked(s.link.Terminal, domain.PaymentEvent{Type: domain.EventDataCollected, SessionID: req.SessionID, Field: action.Name})
		}
	}
	b.publishLocked(s.link.Terminal, domain.PaymentEvent{Type: domain.EventConfirmed, SessionID: req.SessionID})
	b.publishLocked(s.link.Terminal, domain.PaymentEvent{Type: domain.EventSigned, SessionID: req.SessionID})
	b.publishLocked(s.link.Terminal, domain.PaymentEvent{Type: domain.EventSucceeded, SessionID: req.SessionID, Option: s.option, TxID: tx})

	return &domain.ConfirmResult{Status: domain.ConfirmSucceeded, TxID: tx}, nil
}

func (b *Backend) RegisterTerminal(_ context.Context, reg domain.TerminalRegistration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Registrations++
	if b.ConflictOnce || b.terminals[reg.TerminalID] {
		b.ConflictOnce = false
		return &clients.BackendError{StatusCode: http.StatusConflict, Code: clients.CodeIdentityConflict, Message: "Terminal already registered"}
	}
	b.terminals[reg.TerminalID] = true
	return nil
}

func (b *Backend) UnregisterTerminal(_ context.Context, terminalID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.terminals, terminalID)
	return nil
}

// ListEvents pages through the terminal's feed. The cursor is the index
// of the next event.
func (b *Backend) ListEvents(_ context.Context, terminalID, cursor string) (*domain.EventPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, &clients.BackendError{StatusCode: http.StatusBadRequest, Message: "bad cursor"}
		}
		start = n
	}

	page := &domain.EventPage{Cursor: strconv.Itoa(len(b.feed))}
	for i := start; i < len(b.feed); i++ {
		if b.feedOwner[i] == terminalID {
			page.Events = append(page.Events, b.feed[i])
		}
	}
	return page, nil
}

func (b *Backend) publishLocked(terminalID string, event domain.PaymentEvent) {
	event.ID = uuid.NewString()
	event.OccurredAt = time.Now().UTC()

	b.feed = append(b.feed, event)
	b.feedOwner = append(b.feedOwner, terminalID)
	if b.bus != nil {
		b.bus.Publish(event)
	}
}

func txID(req domain.ConfirmRequest) string {
	return "0x" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(req.SessionID+req.Signature)).String()
}

// Amount is a test helper for decimal literals.
func Amount(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
