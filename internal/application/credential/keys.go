package credential

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const (
	signingKeyInfo = "payment-signing-key"
	entropyBits    = 128
)

// Identity is the public half of a signing key.
type Identity struct {
	Address string `json:"address"`
	// PublicKey is the uncompressed P-256 point (0x04 || X || Y).
	PublicKey []byte `json:"public_key"`
}

func normalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(strings.ToLower(m)), " ")
}

func newMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	defer wipe(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to encode mnemonic: %w", err)
	}
	return mnemonic, nil
}

// deriveKey maps a mnemonic to a P-256 key. The same mnemonic always yields
// the same key.
func deriveKey(mnemonic string) (*ecdsa.PrivateKey, []byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	defer wipe(seed)

	h := hkdf.New(sha256.New, seed, nil, []byte(signingKeyInfo))
	buf := make([]byte, 32)
	if _, err := io.ReadFull(h, buf); err != nil {
		return nil, nil, fmt.Errorf("failed to expand seed: %w", err)
	}
	defer wipe(buf)

	curve := elliptic.P256()
	// d in [1, N-1]
	limit := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	d := new(big.Int).SetBytes(buf)
	d.Mod(d, limit).Add(d, big.NewInt(1))

	scalar := d.FillBytes(make([]byte, 32))
	defer wipe(scalar)

	ecdhKey, err := ecdh.P256().NewPrivateKey(scalar)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build key: %w", err)
	}
	pub := ecdhKey.PublicKey().Bytes()

	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(pub[1:33]),
			Y:     new(big.Int).SetBytes(pub[33:]),
		},
		D: d,
	}
	return key, pub, nil
}

func addressOf(pub []byte) string {
	sum := sha256.Sum256(pub)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

// Verify checks a signature produced by Store.Sign against an uncompressed
// public key.
func Verify(publicKey, payload []byte, signature string) bool {
	if len(publicKey) != 65 || publicKey[0] != 0x04 {
		return false
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return false
	}

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(publicKey[1:33]),
		Y:     new(big.Int).SetBytes(publicKey[33:]),
	}
	digest := sha256.Sum256(payload)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func zeroKey(key *ecdsa.PrivateKey) {
	words := key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	key.D.SetInt64(0)
}
