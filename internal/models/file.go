package models

import (
	"path/filepath"
	"strings"
	"time"
)

// FileRecord is the metadata row for one uploaded file.
type FileRecord struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	FileName     string     `json:"file_name"`
	BlobPath     string     `json:"blob_path"`
	KeyID        int64      `json:"key_id"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	SharedWith   []string   `json:"shared_with,omitempty"`
}

// IsLive reports whether the record has not been soft-deleted.
func (f *FileRecord) IsLive() bool {
	return f.DeletedAt == nil
}

// State returns the lifecycle state of the record.
func (f *FileRecord) State() FileState {
	switch {
	case f.DeletedAt != nil:
		return FileStateDeleted
	case f.DownloadedAt != nil:
		return FileStateDownloaded
	default:
		return FileStateUploaded
	}
}

// Listing returns the display metadata for the record.
func (f *FileRecord) Listing() FileListing {
	return FileListing{
		FileName:     f.FileName,
		UploadedAt:   f.UploadedAt,
		DownloadedAt: f.DownloadedAt,
		SharedWith:   append([]string(nil), f.SharedWith...),
	}
}

// FileListing is what a user sees when listing their vault.
type FileListing struct {
	FileName     string     `json:"file_name"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	SharedWith   []string   `json:"shared_with,omitempty"`
}

// FileState defines the lifecycle of a FileRecord.
type FileState string

const (
	FileStateUploaded   FileState = "uploaded"
	FileStateDownloaded FileState = "downloaded"
	FileStateDeleted    FileState = "deleted"
)

// ValidateFileName checks that name is a plain file name with no directory parts.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Op: "file name", Reason: "must not be empty"}
	}
	if strings.ContainsRune(name, 0) {
		return &ValidationError{Op: "file name", Reason: "contains null bytes", Invalid: []string{name}}
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return &ValidationError{Op: "file name", Reason: "must not contain path separators", Invalid: []string{name}}
	}
	return nil
}
