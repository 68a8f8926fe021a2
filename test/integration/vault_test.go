//go:build integration
// +build integration

package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultfs/internal/config"
	"github.com/TheMichaelB/vaultfs/internal/crypto"
	"github.com/TheMichaelB/vaultfs/internal/metadata"
	"github.com/TheMichaelB/vaultfs/internal/models"
	"github.com/TheMichaelB/vaultfs/internal/services/vault"
	"github.com/TheMichaelB/vaultfs/internal/storage"
	"github.com/TheMichaelB/vaultfs/test/testutil"
)

// openVault wires the full stack from config the way the CLI does.
func openVault(t *testing.T, cfg *config.Config, secret string) (*vault.Service, *metadata.Store, error) {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger()

	require.NoError(t, cfg.EnsureDirectories())

	kdf, err := crypto.NewKDF(cfg.Crypto.KDFIterations)
	require.NoError(t, err)

	store, err := metadata.Open(ctx, &cfg.Storage, secret, kdf, logger)
	if err != nil {
		return nil, nil, err
	}

	blobs, err := storage.New(ctx, &cfg.Storage, logger)
	require.NoError(t, err)

	svc := vault.NewService(store, blobs, crypto.NewProvider(kdf), logger,
		vault.WithBlobSuffix(cfg.Crypto.BlobSuffix))
	return svc, store, nil
}

func newConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.Driver = driver
	cfg.Storage.DBPath = filepath.Join(dir, "meta", "storage.db")
	cfg.Storage.VaultRoot = filepath.Join(dir, "vault")
	cfg.Crypto.BlobSuffix = "vlt"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestVaultLifecycleOnDisk(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, driver := range testutil.Drivers {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			cfg := newConfig(t, driver)

			svc, store, err := openVault(t, cfg, testutil.MasterSecret)
			require.NoError(t, err)

			rec, err := svc.Upload(ctx, "alice", "report.txt", []byte("hello"))
			require.NoError(t, err)
			assert.Equal(t, "alice/report.txt.vlt", rec.BlobPath)

			blobPath := filepath.Join(cfg.Storage.VaultRoot, "alice", "report.txt.vlt")
			onDisk, err := os.ReadFile(blobPath)
			require.NoError(t, err)
			assert.NotContains(t, string(onDisk), "hello")

			info, err := os.Stat(blobPath)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			_, err = svc.RotateKey(ctx, "bob")
			require.NoError(t, err)
			_, err = svc.Share(ctx, "alice", "report.txt", []string{"bob"})
			require.NoError(t, err)

			require.NoError(t, store.Close())

			t.Run("wrong master password", func(t *testing.T) {
				_, _, err := openVault(t, cfg, "not the password")
				assert.ErrorIs(t, err, models.ErrAuthentication)
			})

			svc, store, err = openVault(t, cfg, testutil.MasterSecret)
			require.NoError(t, err)
			defer store.Close()

			outDir := t.TempDir()
			outPath, err := svc.DownloadTo(ctx, "alice", "report.txt", outDir)
			require.NoError(t, err)
			data, err := os.ReadFile(outPath)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(data))

			shared, err := svc.DownloadShared(ctx, "alice", "report.txt", "bob")
			require.NoError(t, err)
			assert.Equal(t, "hello", string(shared))

			require.NoError(t, svc.Delete(ctx, "alice", "report.txt"))
			_, err = os.Stat(blobPath)
			assert.True(t, os.IsNotExist(err))

			audit, err := svc.Inspect(ctx, "alice", "report.txt")
			require.NoError(t, err)
			assert.NotNil(t, audit.DownloadedAt)
			assert.NotNil(t, audit.DeletedAt)

			users, err := svc.Users(ctx)
			require.NoError(t, err)
			assert.Len(t, users, 2)
		})
	}
}

func TestTamperedBlobOnDisk(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := newConfig(t, "sqlite")

	svc, store, err := openVault(t, cfg, testutil.MasterSecret)
	require.NoError(t, err)
	defer store.Close()

	_, err = svc.Upload(ctx, "alice", "notes.md", []byte(testutil.SampleFiles["notes.md"]))
	require.NoError(t, err)

	blobPath := filepath.Join(cfg.Storage.VaultRoot, "alice", "notes.md.vlt")
	encoded, err := os.ReadFile(blobPath)
	require.NoError(t, err)

	raw, err := crypto.DecodeBlob(encoded)
	require.NoError(t, err)
	raw[crypto.NonceSize] ^= 0x80 // first tag byte
	require.NoError(t, os.WriteFile(blobPath, crypto.EncodeBlob(raw), 0600))

	_, _, err = svc.Download(ctx, "alice", "notes.md")
	assert.ErrorIs(t, err, models.ErrAuthentication)
}
