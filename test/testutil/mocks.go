package testutil

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// ErrInjected is returned by mocks configured to fail.
var ErrInjected = errors.New("injected failure")

// MockBlobStore is an in-memory storage.BlobStore with failure injection.
type MockBlobStore struct {
	mu         sync.Mutex
	files      map[string][]byte
	FailWrite  bool
	FailRead   bool
	FailDelete bool
}

// NewMockBlobStore creates an empty store.
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{files: make(map[string][]byte)}
}

func (m *MockBlobStore) Write(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrite {
		return ErrInjected
	}
	m.files[path] = append([]byte(nil), data...)
	return nil
}

func (m *MockBlobStore) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRead {
		return nil, ErrInjected
	}
	data, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MockBlobStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete {
		return ErrInjected
	}
	if _, ok := m.files[path]; !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	delete(m.files, path)
	return nil
}

func (m *MockBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

// Put stores a blob directly, bypassing failure injection.
func (m *MockBlobStore) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
}

// Get returns a stored blob directly.
func (m *MockBlobStore) Get(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	return data, ok
}

// Paths returns every stored path under prefix.
func (m *MockBlobStore) Paths(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var paths []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	return paths
}
