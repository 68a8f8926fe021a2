package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// EncryptData encrypts plaintext using AES-GCM.
// Returns: nonce || tag || ciphertext
func EncryptData(plaintext, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// Generate nonce
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	tag := sealed[len(sealed)-TagSize:]
	encrypted := sealed[:len(sealed)-TagSize]

	result := make([]byte, 0, NonceSize+TagSize+len(encrypted))
	result = append(result, nonce...)
	result = append(result, tag...)
	result = append(result, encrypted...)

	return result, nil
}

// DecryptData reverses EncryptData. Any integrity failure returns an error
// matching models.ErrAuthentication and no plaintext.
func DecryptData(blob, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// Minimum size: nonce + tag
	if len(blob) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	nonce := blob[:NonceSize]
	tag := blob[NonceSize : NonceSize+TagSize]
	encrypted := blob[NonceSize+TagSize:]

	// aead.Open expects ciphertext || tag
	sealed := make([]byte, 0, len(encrypted)+TagSize)
	sealed = append(sealed, encrypted...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// EncodeBlob renders an encrypted blob as base64 text for storage.
func EncodeBlob(blob []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(blob)))
	base64.StdEncoding.Encode(out, blob)
	return out
}

// BlobSize returns the stored size of a blob sealing plainLen bytes.
func BlobSize(plainLen int64) int64 {
	raw := plainLen + NonceSize + TagSize
	return (raw + 2) / 3 * 4
}

// DecodeBlob parses base64 text produced by EncodeBlob. Non-canonical text,
// including line breaks and nonzero padding bits, is rejected.
func DecodeBlob(text []byte) ([]byte, error) {
	if bytes.ContainsAny(text, "\r\n") {
		return nil, fmt.Errorf("decode blob: %w", ErrInvalidCiphertext)
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Strict().Decode(out, text)
	if err != nil {
		return nil, fmt.Errorf("decode blob: %w", ErrInvalidCiphertext)
	}
	return out[:n], nil
}

// ValidateKeySize checks if the key is the correct size.
func ValidateKeySize(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if err := ValidateKeySize(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}
