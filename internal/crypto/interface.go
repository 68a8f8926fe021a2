package crypto

// Provider defines the interface for cryptographic operations.
type Provider interface {
	// DeriveKey stretches secret with salt into a 32-byte key.
	DeriveKey(secret, salt []byte) ([]byte, error)

	// GenerateKey returns fresh random key material and salt.
	GenerateKey() (key, salt []byte, err error)

	// EncryptData encrypts plaintext using AES-GCM.
	EncryptData(plaintext, key []byte) ([]byte, error)

	// DecryptData decrypts a nonce || tag || ciphertext blob using AES-GCM.
	DecryptData(blob, key []byte) ([]byte, error)
}
