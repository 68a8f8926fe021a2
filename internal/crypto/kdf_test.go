package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultfs/internal/crypto"
	"github.com/TheMichaelB/vaultfs/internal/models"
)

func newKDF(t testing.TB) *crypto.KDF {
	kdf, err := crypto.NewKDF(crypto.DefaultIterations)
	require.NoError(t, err)
	return kdf
}

func TestNewKDF(t *testing.T) {
	tests := []struct {
		name       string
		iterations int
		want       int
		wantErr    bool
	}{
		{"default on zero", 0, crypto.DefaultIterations, false},
		{"minimum", 100000, 100000, false},
		{"stronger", 250000, 250000, false},
		{"too weak", 99999, 0, true},
		{"negative", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kdf, err := crypto.NewKDF(tt.iterations)
			if tt.wantErr {
				assert.ErrorIs(t, err, crypto.ErrWeakIterations)
				assert.ErrorIs(t, err, models.ErrKeyDerivation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kdf.Iterations())
		})
	}
}

func TestDerive(t *testing.T) {
	kdf := newKDF(t)
	salt := []byte("0123456789abcdef")

	key1, err := kdf.Derive([]byte("secret"), salt)
	require.NoError(t, err)
	assert.Len(t, key1, crypto.KeySize)

	t.Run("deterministic", func(t *testing.T) {
		key2, err := kdf.Derive([]byte("secret"), salt)
		require.NoError(t, err)
		assert.Equal(t, key1, key2)
	})

	t.Run("salt changes key", func(t *testing.T) {
		key2, err := kdf.Derive([]byte("secret"), []byte("fedcba9876543210"))
		require.NoError(t, err)
		assert.NotEqual(t, key1, key2)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := kdf.Derive(nil, salt)
		assert.ErrorIs(t, err, crypto.ErrInvalidSecret)
		assert.ErrorIs(t, err, models.ErrKeyDerivation)
	})

	t.Run("short salt", func(t *testing.T) {
		_, err := kdf.Derive([]byte("secret"), []byte("short"))
		assert.ErrorIs(t, err, crypto.ErrInvalidSalt)
		assert.ErrorIs(t, err, models.ErrKeyDerivation)
	})
}

func TestDerivePasswordNormalizes(t *testing.T) {
	kdf := newKDF(t)
	salt := []byte("0123456789abcdef")

	// U+00E9 vs e + U+0301
	composed, err := kdf.DerivePassword("caf\u00e9", salt)
	require.NoError(t, err)
	decomposed, err := kdf.DerivePassword("cafe\u0301", salt)
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestGenerateFresh(t *testing.T) {
	kdf := newKDF(t)

	key1, salt1, err := kdf.GenerateFresh()
	require.NoError(t, err)
	assert.Len(t, key1, 32)
	assert.Len(t, salt1, 16)

	key2, salt2, err := kdf.GenerateFresh()
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2)
	assert.NotEqual(t, salt1, salt2)
}

func TestProvider(t *testing.T) {
	provider := crypto.NewProvider(newKDF(t))

	key, salt, err := provider.GenerateKey()
	require.NoError(t, err)

	fileKey, err := provider.DeriveKey(key, salt)
	require.NoError(t, err)
	assert.NotEqual(t, key, fileKey)

	blob, err := provider.EncryptData([]byte("hello"), fileKey)
	require.NoError(t, err)

	plaintext, err := provider.DecryptData(blob, fileKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), plaintext)
}
