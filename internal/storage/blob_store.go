package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/TheMichaelB/vaultfs/internal/config"
	"github.com/TheMichaelB/vaultfs/internal/crypto"
	"github.com/TheMichaelB/vaultfs/internal/events"
)

// Errors
var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrFileTooLarge   = errors.New("file exceeds maximum size")
	ErrUnknownBackend = errors.New("unknown blob backend")
)

// BlobStore persists encrypted blobs addressed by relative, slash-separated
// paths. Read and Delete of a missing blob return an error matching
// fs.ErrNotExist.
type BlobStore interface {
	// Write stores data atomically, replacing any existing blob.
	Write(ctx context.Context, path string, data []byte, mode os.FileMode) error

	// Read returns the blob contents.
	Read(ctx context.Context, path string) ([]byte, error)

	// Delete removes the blob.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a blob is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
}

// New opens the blob backend selected by cfg. cfg.MaxFileSize limits
// plaintext, so the backend accepts blobs up to the size sealing that much
// plaintext produces.
func New(ctx context.Context, cfg *config.StorageConfig, logger *events.Logger) (BlobStore, error) {
	switch cfg.Backend {
	case "", "local":
		store, err := NewLocalStore(cfg.VaultRoot, logger)
		if err != nil {
			return nil, err
		}
		if cfg.MaxFileSize > 0 {
			store.SetMaxFileSize(crypto.BlobSize(cfg.MaxFileSize))
		}
		return store, nil
	case "s3":
		store, err := NewS3Store(ctx, cfg.S3, logger)
		if err != nil {
			return nil, err
		}
		if cfg.MaxFileSize > 0 {
			store.SetMaxFileSize(crypto.BlobSize(cfg.MaxFileSize))
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
