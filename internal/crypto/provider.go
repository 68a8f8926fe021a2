package crypto

import (
	"errors"
	"fmt"

	"github.com/TheMichaelB/vaultfs/internal/models"
)

const (
	// Key sizes
	KeySize   = 32 // AES-256
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag

	// PBKDF2 parameters
	DefaultIterations = 100000
	SaltSize          = 16
)

// Errors
var (
	ErrInvalidCiphertext = fmt.Errorf("invalid ciphertext format: %w", models.ErrAuthentication)
	ErrDecryptionFailed  = fmt.Errorf("decryption failed: %w", models.ErrAuthentication)
	ErrWrongMasterSecret = fmt.Errorf("master secret does not match vault: %w", models.ErrAuthentication)
	ErrInvalidKey        = errors.New("invalid key size")
	ErrWeakIterations    = fmt.Errorf("iteration count below %d: %w", DefaultIterations, models.ErrKeyDerivation)
	ErrInvalidSecret     = fmt.Errorf("empty secret: %w", models.ErrKeyDerivation)
	ErrInvalidSalt       = fmt.Errorf("salt shorter than %d bytes: %w", SaltSize, models.ErrKeyDerivation)
)

// CryptoProvider handles all cryptographic operations.
type CryptoProvider struct {
	kdf *KDF
}

// NewProvider creates a crypto provider that derives keys with kdf.
func NewProvider(kdf *KDF) Provider {
	return &CryptoProvider{kdf: kdf}
}

// DeriveKey derives a file key from stored key material and its salt.
func (p *CryptoProvider) DeriveKey(secret, salt []byte) ([]byte, error) {
	return p.kdf.Derive(secret, salt)
}

// GenerateKey returns a fresh key and salt for a user with no active key.
func (p *CryptoProvider) GenerateKey() ([]byte, []byte, error) {
	return p.kdf.GenerateFresh()
}

// EncryptData encrypts plaintext using AES-GCM.
func (p *CryptoProvider) EncryptData(plaintext, key []byte) ([]byte, error) {
	return EncryptData(plaintext, key)
}

// DecryptData decrypts ciphertext using AES-GCM.
func (p *CryptoProvider) DecryptData(blob, key []byte) ([]byte, error) {
	return DecryptData(blob, key)
}
