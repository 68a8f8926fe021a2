package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

// KDF derives 32-byte keys with PBKDF2-HMAC-SHA256 at a fixed cost.
type KDF struct {
	iterations int
}

// NewKDF returns a KDF running the given number of iterations.
// Zero selects DefaultIterations.
func NewKDF(iterations int) (*KDF, error) {
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if iterations < DefaultIterations {
		return nil, ErrWeakIterations
	}
	return &KDF{iterations: iterations}, nil
}

// Iterations returns the configured iteration count.
func (k *KDF) Iterations() int {
	return k.iterations
}

// Derive stretches secret with salt. The secret is used as raw bytes.
func (k *KDF) Derive(secret, salt []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidSecret
	}
	if len(salt) < SaltSize {
		return nil, ErrInvalidSalt
	}
	return pbkdf2.Key(secret, salt, k.iterations, KeySize, sha256.New), nil
}

// DerivePassword normalizes password to NFKC before deriving so that
// visually identical passwords typed on different systems agree.
func (k *KDF) DerivePassword(password string, salt []byte) ([]byte, error) {
	return k.Derive([]byte(norm.NFKC.String(password)), salt)
}

// GenerateFresh returns a random 32-byte key and 16-byte salt.
func (k *KDF) GenerateFresh() ([]byte, []byte, error) {
	key, err := RandomBytes(KeySize)
	if err != nil {
		return nil, nil, err
	}
	salt, err := RandomBytes(SaltSize)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

// RandomBytes reads n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}
