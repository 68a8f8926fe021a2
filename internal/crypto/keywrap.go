package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	hkdfInfoWrap   = "vaultfs key wrap v1"
	hkdfInfoVerify = "vaultfs verifier v1"
)

// MasterKey protects per-user key material at rest. It is derived from the
// master secret held by the credential layer and the vault's master salt.
type MasterKey struct {
	wrapKey  []byte
	verifier []byte
}

// NewMasterKey derives the wrap key and verifier for a vault.
func NewMasterKey(kdf *KDF, secret string, salt []byte) (*MasterKey, error) {
	root, err := kdf.DerivePassword(secret, salt)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	defer Zero(root)

	wrapKey, err := expand(root, salt, hkdfInfoWrap, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}

	verifyKey, err := expand(root, salt, hkdfInfoVerify, KeySize)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(verifyKey)
	Zero(verifyKey)

	return &MasterKey{wrapKey: wrapKey, verifier: sum[:]}, nil
}

// Verifier returns the value stored alongside the vault to detect a wrong
// master secret before any key is unwrapped.
func (m *MasterKey) Verifier() []byte {
	return append([]byte(nil), m.verifier...)
}

// Verify compares the derived verifier with a stored one in constant time.
func (m *MasterKey) Verify(stored []byte) error {
	if subtle.ConstantTimeCompare(m.verifier, stored) != 1 {
		return ErrWrongMasterSecret
	}
	return nil
}

// Wrap seals raw key material. aad binds the result to its owner so rows
// cannot be swapped between users. Returns: nonce || ciphertext || tag
func (m *MasterKey) Wrap(raw, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(m.wrapKey)
	if err != nil {
		return nil, fmt.Errorf("create xchacha20: %w", err)
	}

	nonce, err := RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, raw, aad), nil
}

// Unwrap opens a value produced by Wrap with the same aad.
func (m *MasterKey) Unwrap(wrapped, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(m.wrapKey)
	if err != nil {
		return nil, fmt.Errorf("create xchacha20: %w", err)
	}

	if len(wrapped) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := wrapped[:aead.NonceSize()], wrapped[aead.NonceSize():]
	raw, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", ErrDecryptionFailed)
	}
	return raw, nil
}

// Wipe zeroes the key held in memory. The MasterKey is unusable afterwards.
func (m *MasterKey) Wipe() {
	Zero(m.wrapKey)
	Zero(m.verifier)
}

func expand(secret, salt []byte, info string, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hkdf expand %q: %w", info, err)
	}
	return out, nil
}

// Zero overwrites b with zeros. Callers use it on derived keys once done.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
