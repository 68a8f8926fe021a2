package testutil

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultfs/internal/config"
	"github.com/TheMichaelB/vaultfs/internal/crypto"
	"github.com/TheMichaelB/vaultfs/internal/events"
	"github.com/TheMichaelB/vaultfs/internal/metadata"
)

// MasterSecret is the master password used by test vaults.
const MasterSecret = "correct horse battery staple"

// Drivers lists the SQLite drivers every store test runs against.
var Drivers = []string{"sqlite3", "sqlite"}

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

// NewCapturingLogger returns a debug logger and the buffer it writes to.
func NewCapturingLogger() (*events.Logger, *SyncBuffer) {
	buf := &SyncBuffer{}
	return events.NewTestLogger(events.DebugLevel, "json", buf), buf
}

// SyncBuffer is a bytes.Buffer safe for concurrent writers.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Clock is a deterministic time source. Every call advances it by Step.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewClock starts a clock at a fixed instant stepping one second per call.
func NewClock() *Clock {
	return &Clock{
		now:  time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		Step: time.Second,
	}
}

// Now returns the next instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.Step)
	return c.now
}

// NewKDF returns a KDF at the minimum allowed cost.
func NewKDF(t testing.TB) *crypto.KDF {
	t.Helper()
	kdf, err := crypto.NewKDF(crypto.DefaultIterations)
	require.NoError(t, err)
	return kdf
}

// StorageConfig returns storage settings rooted in a temp directory.
func StorageConfig(t testing.TB, driver string) *config.StorageConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig().Storage
	cfg.Driver = driver
	cfg.DBPath = filepath.Join(dir, "storage.db")
	cfg.VaultRoot = filepath.Join(dir, "vault")
	return &cfg
}

// OpenStore opens a fresh metadata store closed at test cleanup.
func OpenStore(t testing.TB, driver string, opts ...metadata.Option) *metadata.Store {
	t.Helper()
	cfg := StorageConfig(t, driver)
	store, err := metadata.Open(context.Background(), cfg, MasterSecret, NewKDF(t), NewTestLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
