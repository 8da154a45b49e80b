package credential

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tyler-smith/go-bip39"

	"github.com/tuncanbit/paylink/internal/domain"
)

// SecretKey is the name the mnemonic is persisted under.
const SecretKey = "wallet:mnemonic"

var (
	ErrInvalidSecret  = errors.New("invalid secret")
	ErrSecretNotFound = errors.New("secret not found")
)

// SecretStore persists a single secret blob. Get returns ErrSecretNotFound
// when nothing was stored.
type SecretStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, secret string) error
	Clear(ctx context.Context) error
}

type signer struct {
	key *ecdsa.PrivateKey
	pub []byte
	// one in-flight signature per identity
	sem chan struct{}
}

// Store owns the wallet's secret material. It is constructed once per
// process and torn down with Close.
type Store struct {
	secrets SecretStore

	mu      sync.RWMutex
	signers map[string]*signer
	current string
	closed  bool

	logger zerolog.Logger
}

func New(secrets SecretStore, logger zerolog.Logger) *Store {
	return &Store{
		secrets: secrets,
		signers: make(map[string]*signer),
		logger:  logger.With().Str("component", "credential_store").Logger(),
	}
}

// DeriveOrRestore derives the identity for existing, or generates a fresh
// mnemonic when existing is empty. The secret is persisted before the
// identity is returned; if persisting fails nothing is returned.
func (s *Store) DeriveOrRestore(ctx context.Context, existing string) (Identity, string, error) {
	var mnemonic string
	if existing != "" {
		mnemonic = normalizeMnemonic(existing)
		if !bip39.IsMnemonicValid(mnemonic) {
			return Identity{}, "", ErrInvalidSecret
		}
	} else {
		generated, err := newMnemonic()
		if err != nil {
			return Identity{}, "", err
		}
		mnemonic = generated
	}

	key, pub, err := deriveKey(mnemonic)
	if err != nil {
		return Identity{}, "", err
	}

	if err := s.secrets.Set(ctx, mnemonic); err != nil {
		zeroKey(key)
		return Identity{}, "", fmt.Errorf("failed to persist secret: %w", err)
	}

	identity, err := s.register(key, pub)
	if err != nil {
		return Identity{}, "", err
	}

	s.logger.Info().
		Str("address", identity.Address).
		Bool("imported", existing != "").
		Msg("Signing identity ready")

	return identity, mnemonic, nil
}

// Restore loads the persisted secret and registers its identity.
func (s *Store) Restore(ctx context.Context) (Identity, error) {
	mnemonic, err := s.secrets.Get(ctx)
	if errors.Is(err, ErrSecretNotFound) {
		return Identity{}, domain.NewPaymentError(domain.CodeIdentityNotFound, "No wallet has been set up on this device", err)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to load secret: %w", err)
	}

	key, pub, err := deriveKey(normalizeMnemonic(mnemonic))
	if err != nil {
		return Identity{}, err
	}

	return s.register(key, pub)
}

func (s *Store) register(key *ecdsa.PrivateKey, pub []byte) (Identity, error) {
	identity := Identity{Address: addressOf(pub), PublicKey: pub}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		zeroKey(key)
		return Identity{}, errors.New("credential store is closed")
	}
	if old, ok := s.signers[identity.Address]; ok {
		// Same mnemonic, same key. Keep the existing semaphore.
		zeroKey(key)
		s.current = identity.Address
		return Identity{Address: identity.Address, PublicKey: old.pub}, nil
	}

	s.signers[identity.Address] = &signer{
		key: key,
		pub: pub,
		sem: make(chan struct{}, 1),
	}
	s.current = identity.Address
	return identity, nil
}

// Address returns the identity most recently derived or restored.
func (s *Store) Address() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == "" {
		return "", domain.ErrIdentityNotFound
	}
	return s.current, nil
}

// Sign produces a hex encoded ASN.1 ECDSA signature over SHA-256(payload).
// Concurrent calls for the same address queue; ctx bounds the wait.
func (s *Store) Sign(ctx context.Context, address string, payload []byte) (string, error) {
	s.mu.RLock()
	sg, ok := s.signers[address]
	s.mu.RUnlock()
	if !ok {
		return "", domain.NewPaymentError(domain.CodeIdentityNotFound,
			fmt.Sprintf("No signing key for %s", address), nil)
	}

	select {
	case sg.sem <- struct{}{}:
	case <-ctx.Done():
		return "", domain.NewPaymentError(domain.CodeSigningError, "Signing was interrupted", ctx.Err())
	}
	defer func() { <-sg.sem }()

	// Close may have wiped the key while we waited.
	s.mu.RLock()
	_, still := s.signers[address]
	s.mu.RUnlock()
	if !still {
		return "", domain.NewPaymentError(domain.CodeIdentityNotFound,
			fmt.Sprintf("No signing key for %s", address), nil)
	}

	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, sg.key, digest[:])
	if err != nil {
		return "", domain.NewPaymentError(domain.CodeSigningError, "Could not sign the payment", err)
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// Reset wipes loaded keys and clears the persisted secret.
func (s *Store) Reset(ctx context.Context) error {
	s.wipe()
	if err := s.secrets.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear secret: %w", err)
	}
	return nil
}

// Close wipes key material. Later Sign calls fail with IdentityNotFound.
func (s *Store) Close() {
	s.wipe()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Store) wipe() {
	s.mu.Lock()
	signers := s.signers
	s.signers = make(map[string]*signer)
	s.current = ""
	s.mu.Unlock()

	for _, sg := range signers {
		// wait for an in-flight signature before zeroing
		sg.sem <- struct{}{}
		zeroKey(sg.key)
		<-sg.sem
	}
}
