package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MinKDFIterations is the lowest PBKDF2 iteration count the vault accepts.
const MinKDFIterations = 100000

// Config holds all application configuration.
type Config struct {
	// Storage locations and backends
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Key derivation and blob encoding
	Crypto CryptoConfig `json:"crypto" mapstructure:"crypto"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// StorageConfig for the vault root and metadata database.
type StorageConfig struct {
	VaultRoot   string   `json:"vault_root" mapstructure:"vault_root"`       // Root of per-user blob directories
	DBPath      string   `json:"db_path" mapstructure:"db_path"`             // Metadata database file
	Driver      string   `json:"driver" mapstructure:"driver"`               // sqlite3 (cgo) or sqlite (pure Go)
	Backend     string   `json:"backend" mapstructure:"backend"`             // local or s3
	MaxFileSize int64    `json:"max_file_size" mapstructure:"max_file_size"` // Max plaintext upload size in bytes
	S3          S3Config `json:"s3" mapstructure:"s3"`
}

// S3Config for the S3 blob backend.
type S3Config struct {
	Bucket string `json:"bucket" mapstructure:"bucket"`
	Prefix string `json:"prefix" mapstructure:"prefix"`
	Region string `json:"region" mapstructure:"region"`
}

// CryptoConfig for key derivation.
type CryptoConfig struct {
	KDFIterations int    `json:"kdf_iterations" mapstructure:"kdf_iterations"`
	BlobSuffix    string `json:"blob_suffix" mapstructure:"blob_suffix"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".vaultfs"

	return &Config{
		Storage: StorageConfig{
			VaultRoot:   filepath.Join(dataDir, "vault"),
			DBPath:      filepath.Join(dataDir, "storage.db"),
			Driver:      "sqlite3",
			Backend:     "local",
			MaxFileSize: 100 * 1024 * 1024, // 100MB
		},
		Crypto: CryptoConfig{
			KDFIterations: MinKDFIterations,
			BlobSuffix:    "enc",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Storage.DBPath == "" {
		return errors.New("storage.db_path is required")
	}

	validDrivers := map[string]bool{"sqlite3": true, "sqlite": true}
	if !validDrivers[c.Storage.Driver] {
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.VaultRoot == "" {
			return errors.New("storage.vault_root is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Storage.MaxFileSize <= 0 {
		return errors.New("storage.max_file_size must be positive")
	}

	if c.Crypto.KDFIterations < MinKDFIterations {
		return fmt.Errorf("crypto.kdf_iterations must be at least %d", MinKDFIterations)
	}

	if c.Crypto.BlobSuffix == "" {
		return errors.New("crypto.blob_suffix is required")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Storage.DBPath)}

	if c.Storage.Backend == "local" {
		dirs = append(dirs, c.Storage.VaultRoot)
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
