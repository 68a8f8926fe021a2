package client_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultfs/internal/client"
	"github.com/TheMichaelB/vaultfs/internal/config"
	"github.com/TheMichaelB/vaultfs/internal/models"
	"github.com/TheMichaelB/vaultfs/test/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.DBPath = filepath.Join(dir, "db", "storage.db")
	cfg.Storage.VaultRoot = filepath.Join(dir, "vault")
	cfg.Crypto.BlobSuffix = "vault"
	return cfg
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	c, err := client.New(ctx, cfg, testutil.MasterSecret, testutil.NewTestLogger())
	require.NoError(t, err)

	rec, err := c.Vault.Upload(ctx, "alice", "notes.txt", []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "alice/notes.txt.vault", rec.BlobPath)

	exists, err := c.Blobs().Exists(ctx, rec.BlobPath)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.FileExists(t, filepath.Join(cfg.Storage.VaultRoot, "alice", "notes.txt.vault"))

	require.NoError(t, c.Close())

	t.Run("reopen", func(t *testing.T) {
		c, err := client.New(ctx, cfg, testutil.MasterSecret, testutil.NewTestLogger())
		require.NoError(t, err)
		defer c.Close()

		data, _, err := c.Vault.Download(ctx, "alice", "notes.txt")
		require.NoError(t, err)
		assert.Equal(t, "hi", string(data))
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := client.New(ctx, cfg, "not it", testutil.NewTestLogger())
		assert.ErrorIs(t, err, models.ErrAuthentication)
	})
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "tape"

	_, err := client.New(context.Background(), cfg, testutil.MasterSecret, testutil.NewTestLogger())
	assert.Error(t, err)
}
