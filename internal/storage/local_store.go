package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheMichaelB/vaultfs/internal/events"
)

const (
	defaultMaxPathLength = 4096
	defaultMaxFileSize   = 100 * 1024 * 1024 // 100MB
)

// LocalStore implements BlobStore on the local file system. Directories are
// created 0700.
type LocalStore struct {
	baseDir string
	logger  *events.Logger

	// Security settings
	allowSymlinks bool
	maxPathLength int
	maxFileSize   int64
}

// NewLocalStore creates a local blob store rooted at baseDir.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &LocalStore{
		baseDir:       absPath,
		logger:        logger.WithField("component", "local_store"),
		allowSymlinks: false,
		maxPathLength: defaultMaxPathLength,
		maxFileSize:   defaultMaxFileSize,
	}, nil
}

// BaseDir returns the absolute root of the store.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// SetMaxFileSize sets the maximum blob size.
func (s *LocalStore) SetMaxFileSize(size int64) {
	s.maxFileSize = size
}

// Write saves data atomically: a temp file in the target directory is
// synced and renamed over the destination.
func (s *LocalStore) Write(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	if int64(len(data)) > s.maxFileSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), s.maxFileSize)
	}

	s.logger.WithFields(map[string]interface{}{
		"path": path,
		"size": len(data),
	}).Debug("Writing blob")

	parentDir := filepath.Dir(safePath)
	if err := os.MkdirAll(parentDir, 0700); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	temp, err := os.CreateTemp(parentDir, filepath.Base(safePath)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := temp.Name()

	success := false
	defer func() {
		if !success {
			temp.Close()
			os.Remove(tempPath)
		}
	}()

	if err := temp.Chmod(mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := temp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := temp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, safePath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}

// Read retrieves blob contents. Symlinks are refused.
func (s *LocalStore) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	safePath, err := s.sanitizePath(path)
	if err != nil {
		return nil, fmt.Errorf("sanitize path: %w", err)
	}

	if !s.allowSymlinks {
		stat, err := os.Lstat(safePath)
		if err == nil && stat.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("%w: symlinks not allowed: %s", ErrInvalidPath, path)
		}
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}

	return data, nil
}

// Delete removes a blob and prunes directories it leaves empty.
func (s *LocalStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithField("path", path).Debug("Deleting blob")

	if err := os.Remove(safePath); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}

	s.cleanEmptyDirs(filepath.Dir(safePath))

	return nil
}

// Exists checks if a blob exists.
func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	safePath, err := s.sanitizePath(path)
	if err != nil {
		return false, fmt.Errorf("sanitize path: %w", err)
	}

	_, err = os.Lstat(safePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// sanitizePath validates a relative blob path and resolves it under the
// base directory.
func (s *LocalStore) sanitizePath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: path contains null bytes", ErrInvalidPath)
	}

	cleaned := filepath.Clean(filepath.FromSlash(path))
	cleaned = strings.TrimLeft(cleaned, string(filepath.Separator))

	// Clean leaves ".." only as leading elements.
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path contains '..'", ErrInvalidPath)
	}
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	fullPath := filepath.Join(s.baseDir, cleaned)

	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes base directory", ErrInvalidPath)
	}

	if len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("%w: path too long: %d characters (max: %d)", ErrInvalidPath, len(fullPath), s.maxPathLength)
	}

	return fullPath, nil
}

// cleanEmptyDirs removes empty parent directories up to the base directory.
func (s *LocalStore) cleanEmptyDirs(dirPath string) {
	for dirPath != s.baseDir && strings.HasPrefix(dirPath, s.baseDir) {
		entries, err := os.ReadDir(dirPath)
		if err != nil || len(entries) > 0 {
			break
		}

		if err := os.Remove(dirPath); err != nil {
			break
		}

		dirPath = filepath.Dir(dirPath)
	}
}
