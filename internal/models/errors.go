package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Errors returned by the vault engine match at least one of
// these kinds via errors.Is.
var (
	ErrKeyDerivation  = errors.New("key derivation failed")
	ErrAuthentication = errors.New("authentication failed")
	ErrStorageIO      = errors.New("storage I/O failed")
	ErrMetadata       = errors.New("metadata store failed")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrPartialUpload  = errors.New("partial upload")
)

// VaultError provides detailed failure information for a vault operation.
type VaultError struct {
	Op       string
	Kind     error
	Username string
	FileName string
	Err      error
}

func (e *VaultError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Username != "" {
		fmt.Fprintf(&sb, ": user %s", e.Username)
	}
	if e.FileName != "" {
		fmt.Fprintf(&sb, ": %s", e.FileName)
	}
	if e.Kind != nil {
		fmt.Fprintf(&sb, ": %v", e.Kind)
	}
	if e.Err != nil && e.Err != e.Kind {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *VaultError) Unwrap() []error {
	if e.Err == nil || e.Err == e.Kind {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewVaultError wraps err with an operation and kind.
func NewVaultError(op string, kind error, username, fileName string, err error) *VaultError {
	return &VaultError{
		Op:       op,
		Kind:     kind,
		Username: username,
		FileName: fileName,
		Err:      err,
	}
}

// ValidationError names the inputs that were rejected.
type ValidationError struct {
	Op      string
	Reason  string
	Invalid []string
}

func (e *ValidationError) Error() string {
	if len(e.Invalid) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Reason, strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PartialUploadError reports a blob that was written but never recorded.
// BlobPath locates the orphan so it can be reconciled.
type PartialUploadError struct {
	Username string
	FileName string
	BlobPath string
	Err      error
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("upload %s: user %s: orphan blob %s: %v",
		e.FileName, e.Username, e.BlobPath, e.Err)
}

func (e *PartialUploadError) Is(target error) bool {
	return target == ErrPartialUpload
}

func (e *PartialUploadError) Unwrap() error {
	return e.Err
}
