package metadata

import (
	"context"
	"database/sql"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/TheMichaelB/vaultfs/internal/config"
	"github.com/TheMichaelB/vaultfs/internal/crypto"
	"github.com/TheMichaelB/vaultfs/internal/dbx"
	"github.com/TheMichaelB/vaultfs/internal/events"
	"github.com/TheMichaelB/vaultfs/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Errors
var (
	ErrLocked        = errors.New("user is locked by another operation")
	ErrKDFMismatch   = fmt.Errorf("kdf iterations differ from the vault's: %w", models.ErrKeyDerivation)
	ErrUnknownDriver = errors.New("unknown sqlite driver")
)

// DefaultLockTimeout bounds how long Lock waits.
const DefaultLockTimeout = 5 * time.Second

// UnlockFunc releases a user lock.
type UnlockFunc func()

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for every stored timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLockTimeout bounds how long Lock waits for a busy user.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

// Store is the keyed metadata handle. Key material is wrapped under the
// master key before it reaches the database, and opening a store with the
// wrong master secret fails.
type Store struct {
	*Repos

	db          *sql.DB
	master      *crypto.MasterKey
	lockTimeout time.Duration

	// Locking
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Repos groups the stores bound to one database handle or transaction.
type Repos struct {
	db     dbx.DBTX
	master *crypto.MasterKey
	logger *events.Logger
	now    func() time.Time
}

// Keys returns the user key store.
func (r *Repos) Keys() *KeyStore {
	ks := NewKeyStore(r.db, r.master, r.logger)
	ks.now = r.now
	return ks
}

// Files returns the file metadata store.
func (r *Repos) Files() *FileStore {
	files := NewFileStore(r.db, r.logger)
	files.now = r.now
	return files
}

// Shares returns the share grant store.
func (r *Repos) Shares() *ShareStore {
	ss := NewShareStore(r.db, r.logger)
	ss.now = r.now
	return ss
}

// DSN builds the connection string for a driver and database path.
func DSN(driver, path string) (string, error) {
	switch driver {
	case "sqlite3":
		return path + "?_journal=WAL&_timeout=5000&_fk=true", nil
	case "sqlite":
		return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// Open opens the metadata database described by cfg, applies migrations and
// unlocks it with masterSecret.
func Open(ctx context.Context, cfg *config.StorageConfig, masterSecret string, kdf *crypto.KDF, logger *events.Logger, opts ...Option) (*Store, error) {
	dsn, err := DSN(cfg.Driver, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, metaErr("open database", err)
	}

	store, err := New(ctx, db, masterSecret, kdf, logger, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// New wraps an already opened database. The store owns db from here on.
func New(ctx context.Context, db *sql.DB, masterSecret string, kdf *crypto.KDF, logger *events.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		db:          db,
		lockTimeout: DefaultLockTimeout,
		locks:       make(map[string]*sync.Mutex),
		Repos: &Repos{
			db:     db,
			logger: logger.WithField("component", "metadata_store"),
			now:    time.Now,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		return nil, err
	}

	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	master, err := s.unlock(ctx, masterSecret, kdf)
	if err != nil {
		return nil, err
	}
	s.master = master
	s.Repos.master = master

	return s, nil
}

// migrate applies the embedded schema migrations.
func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return metaErr("create migration provider", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return metaErr("apply migrations", err)
	}

	for _, r := range results {
		s.logger.WithFields(map[string]interface{}{
			"version":  r.Source.Version,
			"duration": r.Duration.String(),
		}).Debug("Applied migration")
	}

	return nil
}

// unlock derives the master key. The first open of a vault stores a fresh
// master salt and verifier; later opens must match them.
func (s *Store) unlock(ctx context.Context, secret string, kdf *crypto.KDF) (*crypto.MasterKey, error) {
	var saltText, verifierText string
	var iterations int

	err := s.db.QueryRowContext(ctx, `
        SELECT master_salt, verifier, kdf_iterations
        FROM vault_meta
        WHERE id = 1
    `).Scan(&saltText, &verifierText, &iterations)

	if errors.Is(err, sql.ErrNoRows) {
		return s.initVault(ctx, secret, kdf)
	}
	if err != nil {
		return nil, metaErr("query vault meta", err)
	}

	if iterations != kdf.Iterations() {
		return nil, fmt.Errorf("%w: vault uses %d, configured %d", ErrKDFMismatch, iterations, kdf.Iterations())
	}

	salt, err := base64.StdEncoding.DecodeString(saltText)
	if err != nil {
		return nil, metaErr("decode master salt", err)
	}
	verifier, err := base64.StdEncoding.DecodeString(verifierText)
	if err != nil {
		return nil, metaErr("decode verifier", err)
	}

	master, err := crypto.NewMasterKey(kdf, secret, salt)
	if err != nil {
		return nil, err
	}
	if err := master.Verify(verifier); err != nil {
		s.logger.Warn("Master secret rejected")
		return nil, err
	}

	s.logger.Debug("Vault unlocked")
	return master, nil
}

func (s *Store) initVault(ctx context.Context, secret string, kdf *crypto.KDF) (*crypto.MasterKey, error) {
	salt, err := crypto.RandomBytes(crypto.SaltSize)
	if err != nil {
		return nil, fmt.Errorf("generate master salt: %w", err)
	}

	master, err := crypto.NewMasterKey(kdf, secret, salt)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO vault_meta (id, master_salt, verifier, kdf_iterations, created_at)
        VALUES (1, ?, ?, ?, ?)
    `,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(master.Verifier()),
		kdf.Iterations(),
		toNanos(s.now()),
	)
	if err != nil {
		return nil, metaErr("insert vault meta", err)
	}

	s.logger.WithField("kdf_iterations", kdf.Iterations()).Info("Initialized vault metadata")
	return master, nil
}

// WithTx runs fn with stores bound to a single transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Repos) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &Repos{db: tx, master: s.master, logger: s.logger, now: s.now})
	})
}

// Lock acquires the per-user lock serializing read-modify-write sequences.
func (s *Store) Lock(username string) (UnlockFunc, error) {
	s.mu.Lock()
	lock, exists := s.locks[username]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[username] = lock
	}
	s.mu.Unlock()

	// Try to acquire lock with timeout
	done := make(chan struct{})
	go func() {
		lock.Lock()
		close(done)
	}()

	select {
	case <-done:
		return func() { lock.Unlock() }, nil
	case <-time.After(s.lockTimeout):
		// Release the lock once the waiter finally gets it.
		go func() {
			<-done
			lock.Unlock()
		}()
		return nil, fmt.Errorf("%w: %s", ErrLocked, username)
	}
}

// Close wipes the master key and closes the database.
func (s *Store) Close() error {
	if s.master != nil {
		s.master.Wipe()
	}
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func metaErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrMetadata, err)
}
