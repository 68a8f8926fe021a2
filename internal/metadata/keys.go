package metadata

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/TheMichaelB/vaultfs/internal/crypto"
	"github.com/TheMichaelB/vaultfs/internal/dbx"
	"github.com/TheMichaelB/vaultfs/internal/events"
	"github.com/TheMichaelB/vaultfs/internal/models"
)

// KeyStore persists per-user key records. Records are append-only: the
// newest one is the active key and older ones stay readable.
type KeyStore struct {
	db     dbx.DBTX
	master *crypto.MasterKey
	logger *events.Logger
	now    func() time.Time
}

// NewKeyStore creates a key store over db. Key material is wrapped with master.
func NewKeyStore(db dbx.DBTX, master *crypto.MasterKey, logger *events.Logger) *KeyStore {
	return &KeyStore{
		db:     db,
		master: master,
		logger: logger.WithField("component", "key_store"),
		now:    time.Now,
	}
}

// GetActive returns the user's most recent key, or nil if none was issued.
func (s *KeyStore) GetActive(ctx context.Context, username string) (*models.KeyRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, key_material, salt, created_at
        FROM keys
        WHERE username = ?
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `, username)

	rec, err := s.scanKey(row, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns one of the user's keys by id.
func (s *KeyStore) Get(ctx context.Context, username string, keyID int64) (*models.KeyRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, key_material, salt, created_at
        FROM keys
        WHERE username = ? AND id = ?
    `, username, keyID)

	rec, err := s.scanKey(row, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("key %d: %w", keyID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Create appends a key record and returns its id.
func (s *KeyStore) Create(ctx context.Context, username string, key, salt []byte) (int64, error) {
	if err := crypto.ValidateKeySize(key); err != nil {
		return 0, &models.ValidationError{Op: "create key", Reason: err.Error()}
	}
	if len(salt) < crypto.SaltSize {
		return 0, &models.ValidationError{Op: "create key", Reason: fmt.Sprintf("salt must be at least %d bytes", crypto.SaltSize)}
	}

	wrapped, err := s.master.Wrap(key, []byte(username))
	if err != nil {
		return 0, fmt.Errorf("wrap key: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
        INSERT INTO keys (username, key_material, salt, created_at)
        VALUES (?, ?, ?, ?)
    `,
		username,
		base64.StdEncoding.EncodeToString(wrapped),
		base64.StdEncoding.EncodeToString(salt),
		toNanos(s.now()),
	)
	if err != nil {
		return 0, metaErr("insert key", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, metaErr("key id", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"username": username,
		"key_id":   id,
	}).Debug("Created key record")

	return id, nil
}

// Count returns how many key records the user has.
func (s *KeyStore) Count(ctx context.Context, username string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keys WHERE username = ?`, username).Scan(&n)
	if err != nil {
		return 0, metaErr("count keys", err)
	}
	return n, nil
}

// scanKey decodes and unwraps one key row. sql.ErrNoRows is returned as is.
func (s *KeyStore) scanKey(row *sql.Row, username string) (*models.KeyRecord, error) {
	var (
		rec               models.KeyRecord
		keyText, saltText string
		createdAt         int64
	)

	if err := row.Scan(&rec.ID, &keyText, &saltText, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, metaErr("query key", err)
	}

	wrapped, err := base64.StdEncoding.DecodeString(keyText)
	if err != nil {
		return nil, metaErr(fmt.Sprintf("decode key %d", rec.ID), err)
	}
	salt, err := base64.StdEncoding.DecodeString(saltText)
	if err != nil {
		return nil, metaErr(fmt.Sprintf("decode salt %d", rec.ID), err)
	}

	key, err := s.master.Unwrap(wrapped, []byte(username))
	if err != nil {
		return nil, fmt.Errorf("key %d: %w", rec.ID, err)
	}

	rec.Username = username
	rec.Key = key
	rec.Salt = salt
	rec.CreatedAt = fromNanos(createdAt)
	return &rec, nil
}
