package client

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/vaultfs/internal/config"
	"github.com/TheMichaelB/vaultfs/internal/crypto"
	"github.com/TheMichaelB/vaultfs/internal/events"
	"github.com/TheMichaelB/vaultfs/internal/metadata"
	"github.com/TheMichaelB/vaultfs/internal/services/vault"
	"github.com/TheMichaelB/vaultfs/internal/storage"
)

// Client wires the vault service to the stores named by a Config.
type Client struct {
	Vault *vault.Service

	store *metadata.Store
	blobs storage.BlobStore
}

// New opens the metadata store with masterSecret, selects the blob backend
// and builds the vault service. Close releases the store.
func New(ctx context.Context, cfg *config.Config, masterSecret string, logger *events.Logger) (*Client, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	kdf, err := crypto.NewKDF(cfg.Crypto.KDFIterations)
	if err != nil {
		return nil, err
	}

	store, err := metadata.Open(ctx, &cfg.Storage, masterSecret, kdf, logger)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}

	blobs, err := storage.New(ctx, &cfg.Storage, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	svc := vault.NewService(store, blobs, crypto.NewProvider(kdf), logger,
		vault.WithBlobSuffix(cfg.Crypto.BlobSuffix),
		vault.WithMaxFileSize(cfg.Storage.MaxFileSize))

	logger.WithFields(map[string]interface{}{
		"backend": cfg.Storage.Backend,
		"driver":  cfg.Storage.Driver,
	}).Debug("Vault opened")

	return &Client{
		Vault: svc,
		store: store,
		blobs: blobs,
	}, nil
}

// Blobs returns the configured blob backend.
func (c *Client) Blobs() storage.BlobStore {
	return c.blobs
}

// Close wipes the unlocked master key and closes the database.
func (c *Client) Close() error {
	return c.store.Close()
}
