package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuncanbit/paylink/internal/domain"
)

const knownMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

type fakeSecrets struct {
	mu      sync.Mutex
	secret  string
	setErr  error
	setCall int
}

func (f *fakeSecrets) Get(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.secret == "" {
		return "", ErrSecretNotFound
	}
	return f.secret, nil
}

func (f *fakeSecrets) Set(_ context.Context, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCall++
	if f.setErr != nil {
		return f.setErr
	}
	f.secret = secret
	return nil
}

func (f *fakeSecrets) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secret = ""
	return nil
}

func TestStore_FreshIdentityIsPersistedAndRestorable(t *testing.T) {
	ctx := context.Background()
	secrets := &fakeSecrets{}

	store := New(secrets, zerolog.Nop())
	identity, mnemonic, err := store.DeriveOrRestore(ctx, "")
	require.NoError(t, err)

	assert.Len(t, strings.Fields(mnemonic), 12)
	assert.Equal(t, mnemonic, secrets.secret)
	assert.True(t, strings.HasPrefix(identity.Address, "0x"))
	assert.Len(t, identity.Address, 42)

	restored := New(secrets, zerolog.Nop())
	got, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.Address, got.Address)

	addr, err := restored.Address()
	require.NoError(t, err)
	assert.Equal(t, identity.Address, addr)
}

func TestStore_ImportIsDeterministic(t *testing.T) {
	ctx := context.Background()

	a, _, err := New(&fakeSecrets{}, zerolog.Nop()).DeriveOrRestore(ctx, knownMnemonic)
	require.NoError(t, err)
	b, secret, err := New(&fakeSecrets{}, zerolog.Nop()).DeriveOrRestore(ctx, "  ABANDON abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about ")
	require.NoError(t, err)

	assert.Equal(t, a.Address, b.Address)
	assert.Equal(t, a.PublicKey, b.PublicKey)
	assert.Equal(t, knownMnemonic, secret)
}

func TestStore_InvalidSecret(t *testing.T) {
	secrets := &fakeSecrets{}
	store := New(secrets, zerolog.Nop())

	_, _, err := store.DeriveOrRestore(context.Background(), "not a real mnemonic at all")
	assert.ErrorIs(t, err, ErrInvalidSecret)
	assert.Zero(t, secrets.setCall)

	_, err = store.Address()
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
}

func TestStore_PersistFailureReturnsNoIdentity(t *testing.T) {
	secrets := &fakeSecrets{setErr: errors.New("disk full")}
	store := New(secrets, zerolog.Nop())

	identity, mnemonic, err := store.DeriveOrRestore(context.Background(), "")
	require.Error(t, err)
	assert.Empty(t, identity.Address)
	assert.Empty(t, mnemonic)

	_, err = store.Address()
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
}

func TestStore_RestoreWithoutSecret(t *testing.T) {
	_, err := New(&fakeSecrets{}, zerolog.Nop()).Restore(context.Background())
	assert.Equal(t, domain.CodeIdentityNotFound, domain.CodeOf(err))
}

func TestStore_Sign(t *testing.T) {
	ctx := context.Background()
	store := New(&fakeSecrets{}, zerolog.Nop())
	identity, _, err := store.DeriveOrRestore(ctx, knownMnemonic)
	require.NoError(t, err)

	payload := []byte(`{"option":"opt-usdc","amount":"10.00"}`)
	sig, err := store.Sign(ctx, identity.Address, payload)
	require.NoError(t, err)

	assert.True(t, Verify(identity.PublicKey, payload, sig))
	assert.False(t, Verify(identity.PublicKey, []byte("tampered"), sig))

	_, err = store.Sign(ctx, "0xunknown", payload)
	assert.Equal(t, domain.CodeIdentityNotFound, domain.CodeOf(err))
}

func TestStore_SignWaitsForInFlightSignature(t *testing.T) {
	store := New(&fakeSecrets{}, zerolog.Nop())
	identity, _, err := store.DeriveOrRestore(context.Background(), knownMnemonic)
	require.NoError(t, err)

	// Hold the identity's slot as if another signature were in progress.
	sem := store.signers[identity.Address].sem
	sem <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = store.Sign(ctx, identity.Address, []byte("payload"))
	assert.Equal(t, domain.CodeSigningError, domain.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	<-sem
	_, err = store.Sign(context.Background(), identity.Address, []byte("payload"))
	assert.NoError(t, err)
}

func TestStore_ConcurrentSigning(t *testing.T) {
	store := New(&fakeSecrets{}, zerolog.Nop())
	identity, _, err := store.DeriveOrRestore(context.Background(), knownMnemonic)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig, err := store.Sign(context.Background(), identity.Address, []byte("payload"))
			assert.NoError(t, err)
			assert.True(t, Verify(identity.PublicKey, []byte("payload"), sig))
		}()
	}
	wg.Wait()
}

func TestStore_CloseWipesKeys(t *testing.T) {
	store := New(&fakeSecrets{}, zerolog.Nop())
	identity, _, err := store.DeriveOrRestore(context.Background(), knownMnemonic)
	require.NoError(t, err)

	store.Close()

	_, err = store.Sign(context.Background(), identity.Address, []byte("payload"))
	assert.Equal(t, domain.CodeIdentityNotFound, domain.CodeOf(err))

	_, err = store.Address()
	assert.Error(t, err)
}

func TestStore_Reset(t *testing.T) {
	secrets := &fakeSecrets{}
	store := New(secrets, zerolog.Nop())
	_, _, err := store.DeriveOrRestore(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, store.Reset(context.Background()))
	assert.Empty(t, secrets.secret)

	_, err = store.Restore(context.Background())
	assert.Equal(t, domain.CodeIdentityNotFound, domain.CodeOf(err))
}
