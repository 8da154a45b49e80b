package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuncanbit/paylink/internal/application/credential"
	"github.com/tuncanbit/paylink/internal/application/paymentsession"
	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/http/clients"
	"github.com/tuncanbit/paylink/internal/infrastructure/secretstore"
	"github.com/tuncanbit/paylink/pkg/config"
)

const testLink = "https://pay.example.com/pay/sess-42?amount=10.00&currency=USD&merchant=Corner+Cafe"

type backendErr struct {
	detail    string
	retryable bool
}

func (e *backendErr) Error() string   { return "backend: " + e.detail }
func (e *backendErr) Detail() string  { return e.detail }
func (e *backendErr) Retryable() bool { return e.retryable }

type fakeBackend struct {
	mu          sync.Mutex
	options     []domain.PaymentOption
	optionsErr  error
	actions     []domain.RequiredAction
	actionsErr  error
	confirmErrs []error
	result      domain.ConfirmResult
	confirms    []domain.ConfirmRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		options: []domain.PaymentOption{{
			ID:             "opt-usdc",
			Asset:          "USDC",
			ChainID:        "eip155:8453",
			Amount:         decimal.RequireFromString("10.00"),
			SigningPayload: `{"session":"sess-42","option":"opt-usdc","amount":"10.00"}`,
		}},
		result: domain.ConfirmResult{Status: domain.ConfirmSucceeded, TxID: "tx-1"},
	}
}

func (f *fakeBackend) GetPaymentOptions(context.Context, domain.OptionsRequest) ([]domain.PaymentOption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.options, f.optionsErr
}

func (f *fakeBackend) GetRequiredPaymentActions(context.Context, domain.ActionsRequest) ([]domain.RequiredAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actions, f.actionsErr
}

func (f *fakeBackend) ConfirmPayment(_ context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms = append(f.confirms, req)
	if len(f.confirmErrs) > 0 {
		err := f.confirmErrs[0]
		f.confirmErrs = f.confirmErrs[1:]
		return nil, err
	}
	result := f.result
	return &result, nil
}

func (f *fakeBackend) confirmCalls() []domain.ConfirmRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ConfirmRequest(nil), f.confirms...)
}

type failingSigner struct{ err error }

func (s failingSigner) Address() (string, error) { return "0xabc", nil }

func (s failingSigner) Sign(context.Context, string, []byte) (string, error) {
	return "", s.err
}

var testConfig = Config{SubmitRetries: 3, RetryDelay: time.Millisecond}

func newStore(t *testing.T) (*credential.Store, credential.Identity) {
	t.Helper()
	store := credential.New(secretstore.NewMemoryStore(), zerolog.Nop())
	t.Cleanup(store.Close)

	identity, _, err := store.DeriveOrRestore(context.Background(), "")
	require.NoError(t, err)
	return store, identity
}

func TestBegin_HappyPath(t *testing.T) {
	backend := newFakeBackend()
	store, identity := newStore(t)
	svc := New(backend, store, testConfig, zerolog.Nop())

	var visited []domain.SessionState
	svc.Observe(func(tr paymentsession.Transition) { visited = append(visited, tr.To) })

	p, err := svc.Begin(context.Background(), testLink)
	require.NoError(t, err)
	assert.Equal(t, "sess-42", p.ID())
	assert.Equal(t, domain.StateRequestingOptions, p.State())
	require.Len(t, p.Options(), 1)

	s := p.Snapshot()
	assert.Equal(t, "10", s.Amount.String())
	assert.Equal(t, "Corner Cafe", s.Merchant)

	require.NoError(t, p.SelectOption(context.Background(), "opt-usdc"))
	_, pending := p.NextAction()
	assert.False(t, pending)
	assert.Equal(t, domain.StateConfirming, p.State(), "confirmation must wait for the user")

	session, err := p.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, session.State)
	assert.Equal(t, "tx-1", session.TxID)

	confirms := backend.confirmCalls()
	require.Len(t, confirms, 1)
	assert.Equal(t, "sess-42", confirms[0].SessionID)
	assert.Equal(t, identity.Address, confirms[0].Account)
	assert.True(t, credential.Verify(identity.PublicKey, []byte(backend.options[0].SigningPayload), confirms[0].Signature))

	assert.NotContains(t, visited, domain.StateCollectingData)
	assert.Equal(t, domain.StateCompleted, visited[len(visited)-1])

	_, err = p.Confirm(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Len(t, backend.confirmCalls(), 1)
}

func TestBegin_Failures(t *testing.T) {
	t.Run("malformed link creates nothing", func(t *testing.T) {
		store, _ := newStore(t)
		p, err := New(newFakeBackend(), store, testConfig, zerolog.Nop()).Begin(context.Background(), "not a link")
		assert.Nil(t, p)
		assert.Equal(t, domain.CodeValidationError, domain.CodeOf(err))
	})

	t.Run("expired link", func(t *testing.T) {
		backend := newFakeBackend()
		backend.optionsErr = &backendErr{detail: "Payment link has expired"}
		store, _ := newStore(t)

		p, err := New(backend, store, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
		require.Error(t, err)
		assert.Equal(t, domain.CodePaymentOptionsError, domain.CodeOf(err))

		require.NotNil(t, p)
		s := p.Snapshot()
		assert.Equal(t, domain.StateFailed, s.State)
		assert.Equal(t, domain.CodePaymentOptionsError, s.Error.Code)
		assert.Equal(t, "Payment link has expired", s.Error.Detail)
	})

	t.Run("transport fault", func(t *testing.T) {
		backend := newFakeBackend()
		backend.optionsErr = errors.New("dial tcp: connection refused")
		store, _ := newStore(t)

		p, err := New(backend, store, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
		assert.Equal(t, domain.CodePaymentOptionsError, domain.CodeOf(err))
		assert.Equal(t, "Could not load payment options", p.Snapshot().Error.Detail)
	})

	t.Run("no options", func(t *testing.T) {
		backend := newFakeBackend()
		backend.options = nil
		store, _ := newStore(t)

		p, err := New(backend, store, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
		assert.Equal(t, domain.CodePaymentOptionsError, domain.CodeOf(err))
		assert.Equal(t, domain.StateFailed, p.State())
	})

	t.Run("no identity", func(t *testing.T) {
		store := credential.New(secretstore.NewMemoryStore(), zerolog.Nop())
		p, err := New(newFakeBackend(), store, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
		assert.Equal(t, domain.CodeIdentityNotFound, domain.CodeOf(err))
		assert.Equal(t, domain.StateFailed, p.State())
	})

	t.Run("same link twice", func(t *testing.T) {
		store, _ := newStore(t)
		svc := New(newFakeBackend(), store, testConfig, zerolog.Nop())
		_, err := svc.Begin(context.Background(), testLink)
		require.NoError(t, err)
		_, err = svc.Begin(context.Background(), testLink)
		assert.ErrorIs(t, err, paymentsession.ErrSessionExists)
	})
}

func TestBegin_BackendServerErrorIsReported(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"message": "options service failed"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"options": newFakeBackend().options})
	}))
	defer srv.Close()

	client := clients.NewPayClient(config.PaymentConfig{
		BackendURL:       srv.URL,
		Timeout:          time.Second,
		MaxRetries:       2,
		RetryBackoffBase: time.Millisecond,
	}, zerolog.Nop())
	store, _ := newStore(t)

	p, err := New(client, store, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
	assert.Equal(t, domain.CodePaymentOptionsError, domain.CodeOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NotNil(t, p)
	s := p.Snapshot()
	assert.Equal(t, domain.StateFailed, s.State)
	require.NotNil(t, s.Error)
	assert.Equal(t, domain.CodePaymentOptionsError, s.Error.Code)
	assert.Equal(t, "options service failed", s.Error.Detail)
	assert.Empty(t, p.Options())
}

func TestSelectOption(t *testing.T) {
	t.Run("unknown option changes nothing", func(t *testing.T) {
		store, _ := newStore(t)
		p, err := New(newFakeBackend(), store, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
		require.NoError(t, err)

		err = p.SelectOption(context.Background(), "opt-missing")
		assert.Equal(t, domain.CodeValidationError, domain.CodeOf(err))
		assert.Equal(t, domain.StateRequestingOptions, p.State())
	})

	t.Run("actions rejected", func(t *testing.T) {
		backend := newFakeBackend()
		backend.actionsErr = &backendErr{detail: "Option no longer available"}
		store, _ := newStore(t)
		p, err := New(backend, store, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
		require.NoError(t, err)

		err = p.SelectOption(context.Background(), "opt-usdc")
		assert.Equal(t, domain.CodePaymentActionsError, domain.CodeOf(err))
		s := p.Snapshot()
		assert.Equal(t, domain.StateFailed, s.State)
		assert.Equal(t, "Option no longer available", s.Error.Detail)
	})
}

func TestDataCollection(t *testing.T) {
	backend := newFakeBackend()
	backend.actions = []domain.RequiredAction{
		{Name: "full_name", Kind: domain.FieldText, Label: "Full name"},
		{Name: "email", Kind: domain.FieldEmail},
	}
	store, _ := newStore(t)
	p, err := New(backend, store, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
	require.NoError(t, err)
	require.NoError(t, p.SelectOption(context.Background(), "opt-usdc"))

	action, ok := p.NextAction()
	require.True(t, ok)
	assert.Equal(t, "full_name", action.Name)

	assert.ErrorIs(t, p.SubmitField("email", "ada@example.com"), domain.ErrInvalidTransition)

	err = p.SubmitField("full_name", "   ")
	assert.Equal(t, domain.CodeValidationError, domain.CodeOf(err))
	assert.Len(t, p.Snapshot().RequiredActions, 2)

	_, err = p.Confirm(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, p.SubmitField("full_name", " Ada Lovelace "))
	assert.Equal(t, domain.StateCollectingData, p.State())

	assert.Equal(t, domain.CodeValidationError, domain.CodeOf(p.SubmitField("email", "nope")))
	require.NoError(t, p.SubmitField("email", "ada@example.com"))
	assert.Equal(t, domain.StateConfirming, p.State())

	_, err = p.Confirm(context.Background())
	require.NoError(t, err)

	confirms := backend.confirmCalls()
	require.Len(t, confirms, 1)
	assert.Equal(t, map[string]string{"full_name": "Ada Lovelace", "email": "ada@example.com"}, confirms[0].CollectedData)
}

func TestConfirm_Signing(t *testing.T) {
	t.Run("signing fault fails the session", func(t *testing.T) {
		backend := newFakeBackend()
		signer := failingSigner{err: domain.NewPaymentError(domain.CodeSigningError, "Secure element refused", nil)}
		p, err := New(backend, signer, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
		require.NoError(t, err)
		require.NoError(t, p.SelectOption(context.Background(), "opt-usdc"))

		session, err := p.Confirm(context.Background())
		assert.Equal(t, domain.CodeSigningError, domain.CodeOf(err))
		assert.Equal(t, domain.StateFailed, session.State)
		assert.Equal(t, "Secure element refused", session.Error.Detail)
		assert.Empty(t, backend.confirmCalls())
	})

	t.Run("identity gone", func(t *testing.T) {
		backend := newFakeBackend()
		signer := failingSigner{err: domain.NewPaymentError(domain.CodeIdentityNotFound, "No signing key for 0xabc", nil)}
		p, err := New(backend, signer, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
		require.NoError(t, err)
		require.NoError(t, p.SelectOption(context.Background(), "opt-usdc"))

		session, err := p.Confirm(context.Background())
		assert.Equal(t, domain.CodeIdentityNotFound, domain.CodeOf(err))
		assert.Equal(t, domain.CodeIdentityNotFound, session.Error.Code)
	})

	t.Run("missing payload", func(t *testing.T) {
		backend := newFakeBackend()
		backend.options[0].SigningPayload = ""
		store, _ := newStore(t)
		p, err := New(backend, store, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
		require.NoError(t, err)
		require.NoError(t, p.SelectOption(context.Background(), "opt-usdc"))

		session, err := p.Confirm(context.Background())
		assert.Equal(t, domain.CodeSigningError, domain.CodeOf(err))
		assert.Equal(t, domain.StateFailed, session.State)
		require.NotNil(t, session.Error)
		assert.Equal(t, domain.CodeSigningError, session.Error.Code)
		assert.Empty(t, backend.confirmCalls())
	})
}

func TestConfirm_Submission(t *testing.T) {
	transport := &backendErr{detail: "The payment service could not be reached", retryable: true}

	confirmWith := func(t *testing.T, cfg Config, backend *fakeBackend) (*domain.PaymentSession, error) {
		t.Helper()
		store, _ := newStore(t)
		p, err := New(backend, store, cfg, zerolog.Nop()).Begin(context.Background(), testLink)
		require.NoError(t, err)
		require.NoError(t, p.SelectOption(context.Background(), "opt-usdc"))
		return p.Confirm(context.Background())
	}

	t.Run("transport faults resend the same signature", func(t *testing.T) {
		backend := newFakeBackend()
		backend.confirmErrs = []error{transport, transport}

		session, err := confirmWith(t, testConfig, backend)
		require.NoError(t, err)
		assert.Equal(t, domain.StateCompleted, session.State)

		confirms := backend.confirmCalls()
		require.Len(t, confirms, 3)
		for _, c := range confirms {
			assert.Equal(t, session.Signature, c.Signature)
		}
	})

	t.Run("retries are bounded", func(t *testing.T) {
		backend := newFakeBackend()
		backend.confirmErrs = []error{transport, transport, transport}

		session, err := confirmWith(t, Config{SubmitRetries: 1, RetryDelay: time.Millisecond}, backend)
		assert.Equal(t, domain.CodeConfirmPaymentError, domain.CodeOf(err))
		assert.Equal(t, domain.StateFailed, session.State)
		assert.Equal(t, "The payment service could not be reached", session.Error.Detail)
		assert.Len(t, backend.confirmCalls(), 2)
	})

	t.Run("rejections are not retried", func(t *testing.T) {
		backend := newFakeBackend()
		backend.confirmErrs = []error{&backendErr{detail: "Insufficient funds"}}

		session, err := confirmWith(t, testConfig, backend)
		assert.Equal(t, domain.CodeConfirmPaymentError, domain.CodeOf(err))
		assert.Equal(t, "Insufficient funds", session.Error.Detail)
		assert.Len(t, backend.confirmCalls(), 1)
	})

	t.Run("declined result", func(t *testing.T) {
		backend := newFakeBackend()
		backend.result = domain.ConfirmResult{Status: domain.ConfirmFailed, Reason: "Card network declined"}

		session, err := confirmWith(t, testConfig, backend)
		assert.Equal(t, domain.CodeConfirmPaymentError, domain.CodeOf(err))
		assert.Equal(t, domain.StateFailed, session.State)
		require.NotNil(t, session.Error)
		assert.Equal(t, "Card network declined", session.Error.Detail)
	})
}

func TestConfirm_ReturnsTheFailedSession(t *testing.T) {
	cases := map[string]struct {
		prepare func(*fakeBackend)
		signer  func(t *testing.T) Signer
		code    domain.ErrorCode
	}{
		"signing fault": {
			signer: func(*testing.T) Signer {
				return failingSigner{err: domain.NewPaymentError(domain.CodeSigningError, "Secure element refused", nil)}
			},
			code: domain.CodeSigningError,
		},
		"missing payload": {
			prepare: func(b *fakeBackend) { b.options[0].SigningPayload = "" },
			code:    domain.CodeSigningError,
		},
		"submission rejected": {
			prepare: func(b *fakeBackend) { b.confirmErrs = []error{&backendErr{detail: "Insufficient funds"}} },
			code:    domain.CodeConfirmPaymentError,
		},
		"declined": {
			prepare: func(b *fakeBackend) { b.result = domain.ConfirmResult{Status: domain.ConfirmFailed} },
			code:    domain.CodeConfirmPaymentError,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			backend := newFakeBackend()
			if tc.prepare != nil {
				tc.prepare(backend)
			}
			var signer Signer
			if tc.signer != nil {
				signer = tc.signer(t)
			} else {
				signer, _ = newStore(t)
			}

			p, err := New(backend, signer, testConfig, zerolog.Nop()).Begin(context.Background(), testLink)
			require.NoError(t, err)
			require.NoError(t, p.SelectOption(context.Background(), "opt-usdc"))

			session, err := p.Confirm(context.Background())
			assert.Equal(t, tc.code, domain.CodeOf(err))

			require.NotNil(t, session)
			assert.Equal(t, domain.StateFailed, session.State)
			require.NotNil(t, session.Error)
			assert.Equal(t, tc.code, session.Error.Code)
			assert.Equal(t, p.Snapshot().State, session.State)
		})
	}
}

func TestCancelAndAcknowledge(t *testing.T) {
	store, _ := newStore(t)
	svc := New(newFakeBackend(), store, testConfig, zerolog.Nop())
	p, err := svc.Begin(context.Background(), testLink)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Acknowledge(p.ID()), paymentsession.ErrNotFinished)

	require.NoError(t, p.Cancel())
	s := p.Snapshot()
	assert.True(t, s.Error.IsCancelled())
	assert.ErrorIs(t, p.SelectOption(context.Background(), "opt-usdc"), domain.ErrInvalidTransition)

	got, err := svc.Payment(p.ID())
	require.NoError(t, err)
	assert.Same(t, p, got)

	require.NoError(t, svc.Acknowledge(p.ID()))
	_, err = svc.Payment(p.ID())
	assert.ErrorIs(t, err, paymentsession.ErrSessionNotFound)
}

func TestSessionTimeoutDuringInteraction(t *testing.T) {
	store, _ := newStore(t)
	svc := New(newFakeBackend(), store, Config{SessionTimeout: 40 * time.Millisecond}, zerolog.Nop())
	p, err := svc.Begin(context.Background(), testLink)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.State() == domain.StateFailed }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.CodeTimeout, p.Snapshot().Error.Code)
	assert.ErrorIs(t, p.SelectOption(context.Background(), "opt-usdc"), domain.ErrInvalidTransition)
}
