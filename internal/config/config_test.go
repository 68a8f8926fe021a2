package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultfs/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.NotEmpty(t, cfg.Storage.VaultRoot)
	assert.NotEmpty(t, cfg.Storage.DBPath)
	assert.Equal(t, "sqlite3", cfg.Storage.Driver)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.GreaterOrEqual(t, cfg.Crypto.KDFIterations, 100000)
	assert.Equal(t, "enc", cfg.Crypto.BlobSuffix)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr string
	}{
		{
			name:    "valid config",
			modify:  func(c *config.Config) {},
			wantErr: "",
		},
		{
			name: "missing db path",
			modify: func(c *config.Config) {
				c.Storage.DBPath = ""
			},
			wantErr: "storage.db_path is required",
		},
		{
			name: "unknown driver",
			modify: func(c *config.Config) {
				c.Storage.Driver = "postgres"
			},
			wantErr: "invalid storage driver",
		},
		{
			name: "s3 without bucket",
			modify: func(c *config.Config) {
				c.Storage.Backend = "s3"
			},
			wantErr: "storage.s3.bucket is required",
		},
		{
			name: "s3 with bucket",
			modify: func(c *config.Config) {
				c.Storage.Backend = "s3"
				c.Storage.S3.Bucket = "vault-blobs"
			},
			wantErr: "",
		},
		{
			name: "weak kdf",
			modify: func(c *config.Config) {
				c.Crypto.KDFIterations = 1000
			},
			wantErr: "crypto.kdf_iterations must be at least",
		},
		{
			name: "invalid log level",
			modify: func(c *config.Config) {
				c.Log.Level = "invalid"
			},
			wantErr: "invalid log level",
		},
		{
			name: "invalid log format",
			modify: func(c *config.Config) {
				c.Log.Format = "xml"
			},
			wantErr: "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoaderEnv(t *testing.T) {
	t.Setenv("VAULTFS_STORAGE_VAULT_ROOT", "/srv/vault")
	t.Setenv("VAULTFS_STORAGE_DRIVER", "sqlite")
	t.Setenv("VAULTFS_CRYPTO_KDF_ITERATIONS", "200000")
	t.Setenv("VAULTFS_LOG_LEVEL", "DEBUG")

	loader := config.NewLoader("")
	loader.SetEnvFile("")
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "/srv/vault", cfg.Storage.VaultRoot)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 200000, cfg.Crypto.KDFIterations)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoaderFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "vaultfs.json")

	configJSON := `{
		"storage": {
			"vault_root": "/data/vault",
			"db_path": "/data/storage.db"
		},
		"log": {
			"level": "warn",
			"format": "json"
		}
	}`

	err := os.WriteFile(configPath, []byte(configJSON), 0644)
	require.NoError(t, err)

	loader := config.NewLoader(configPath)
	loader.SetEnvFile("")
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "/data/vault", cfg.Storage.VaultRoot)
	assert.Equal(t, "/data/storage.db", cfg.Storage.DBPath)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched keys keep their defaults
	assert.Equal(t, "enc", cfg.Crypto.BlobSuffix)
	assert.Equal(t, configPath, loader.ConfigFileUsed())
}

func TestLoaderDotenv(t *testing.T) {
	tmpDir := t.TempDir()
	envPath := filepath.Join(tmpDir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("VAULTFS_LOG_FORMAT=json\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("VAULTFS_LOG_FORMAT") })

	loader := config.NewLoader("")
	loader.SetEnvFile(envPath)
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoaderMissingFile(t *testing.T) {
	loader := config.NewLoader(filepath.Join(t.TempDir(), "missing.json"))
	loader.SetEnvFile("")

	_, err := loader.Load()
	assert.Error(t, err)
}

func TestLoaderInvalidValues(t *testing.T) {
	t.Setenv("VAULTFS_CRYPTO_KDF_ITERATIONS", "10")

	loader := config.NewLoader("")
	loader.SetEnvFile("")
	_, err := loader.Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kdf_iterations")
}

func TestConfigEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.VaultRoot = filepath.Join(tmpDir, "data", "vault")
	cfg.Storage.DBPath = filepath.Join(tmpDir, "data", "db", "storage.db")
	cfg.Log.File = filepath.Join(tmpDir, "logs", "app.log")

	err := cfg.EnsureDirectories()
	require.NoError(t, err)

	assert.DirExists(t, cfg.Storage.VaultRoot)
	assert.DirExists(t, filepath.Dir(cfg.Storage.DBPath))
	assert.DirExists(t, filepath.Dir(cfg.Log.File))
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultfs.json")
	require.NoError(t, config.SaveExample(path))

	loader := config.NewLoader(path)
	loader.SetEnvFile("")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}
