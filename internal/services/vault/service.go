package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/TheMichaelB/vaultfs/internal/crypto"
	"github.com/TheMichaelB/vaultfs/internal/events"
	"github.com/TheMichaelB/vaultfs/internal/metadata"
	"github.com/TheMichaelB/vaultfs/internal/models"
	"github.com/TheMichaelB/vaultfs/internal/storage"
)

const (
	// DefaultBlobSuffix is appended to file names to form blob names.
	DefaultBlobSuffix = "enc"

	blobMode   os.FileMode = 0600
	outputMode os.FileMode = 0600

	// maxBlobVariants bounds the search for a free blob name.
	maxBlobVariants = 10000
)

// Service orchestrates the vault: per-user keys, ciphertext blobs and file
// records. Every operation takes the authenticated username.
type Service struct {
	store  *metadata.Store
	blobs  storage.BlobStore
	crypto crypto.Provider
	logger *events.Logger

	suffix      string
	maxFileSize int64
}

// Option configures a Service.
type Option func(*Service)

// WithBlobSuffix sets the suffix of blob file names.
func WithBlobSuffix(suffix string) Option {
	return func(s *Service) {
		if suffix != "" {
			s.suffix = suffix
		}
	}
}

// WithMaxFileSize rejects uploads larger than size bytes of plaintext.
func WithMaxFileSize(size int64) Option {
	return func(s *Service) {
		if size > 0 {
			s.maxFileSize = size
		}
	}
}

// NewService creates a vault service.
func NewService(store *metadata.Store, blobs storage.BlobStore, provider crypto.Provider, logger *events.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		blobs:  blobs,
		crypto: provider,
		logger: logger.WithField("service", "vault"),
		suffix: DefaultBlobSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload encrypts data under the user's active key, creating one on first
// use, writes the blob and records it. A record failure after the blob was
// written returns *models.PartialUploadError naming the orphan blob.
func (s *Service) Upload(ctx context.Context, username, fileName string, data []byte) (*models.FileRecord, error) {
	const op = "upload"
	ctx, logger := s.begin(ctx, op, username)

	if err := validateNames(username, fileName); err != nil {
		return nil, s.fail(logger, op, models.ErrValidation, username, fileName, err)
	}
	if s.maxFileSize > 0 && int64(len(data)) > s.maxFileSize {
		err := &models.ValidationError{
			Op:     op,
			Reason: fmt.Sprintf("file is %d bytes, limit is %d", len(data), s.maxFileSize),
		}
		return nil, s.fail(logger, op, models.ErrValidation, username, fileName, err)
	}

	unlock, err := s.store.Lock(username)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, username, fileName, err)
	}
	defer unlock()

	if err := s.store.Files().EnsureSchema(ctx, username); err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, username, fileName, err)
	}

	key, err := s.activeKey(ctx, logger, username)
	if err != nil {
		return nil, s.fail(logger, op, kindOf(err, models.ErrMetadata), username, fileName, err)
	}
	defer crypto.Zero(key.Key)

	blob, err := s.seal(key, data)
	if err != nil {
		return nil, s.fail(logger, op, kindOf(err, models.ErrKeyDerivation), username, fileName, err)
	}

	blobPath, err := s.freeBlobPath(ctx, username, fileName)
	if err != nil {
		return nil, s.fail(logger, op, kindOf(err, models.ErrStorageIO), username, fileName, err)
	}

	if err := s.blobs.Write(ctx, blobPath, blob, blobMode); err != nil {
		return nil, s.fail(logger, op, models.ErrStorageIO, username, fileName, err)
	}

	id, err := s.store.Files().InsertFile(ctx, username, fileName, blobPath, key.ID)
	if err != nil {
		logger.WithError(err).WithField("blob_path", blobPath).Error("Blob written but file record failed; orphan blob left")
		return nil, &models.PartialUploadError{
			Username: username,
			FileName: fileName,
			BlobPath: blobPath,
			Err:      err,
		}
	}

	record, err := s.store.Files().FindByID(ctx, username, id)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, username, fileName, err)
	}

	logger.WithFields(map[string]interface{}{
		"file_id":   id,
		"key_id":    key.ID,
		"size":      len(data),
		"blob_size": len(blob),
		"blob_path": blobPath,
	}).Info("Uploaded file")

	return record, nil
}

// UploadFile uploads the file at sourcePath under its base name.
func (s *Service) UploadFile(ctx context.Context, username, sourcePath string) (*models.FileRecord, error) {
	fileName := filepath.Base(sourcePath)

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		_, logger := s.begin(ctx, "upload", username)
		return nil, s.fail(logger, "upload", models.ErrStorageIO, username, fileName, fmt.Errorf("read source: %w", err))
	}

	return s.Upload(ctx, username, fileName, data)
}

// Download decrypts the user's live file with the key it was encrypted
// under and stamps the download time.
func (s *Service) Download(ctx context.Context, username, fileName string) ([]byte, *models.FileRecord, error) {
	var plaintext []byte
	record, err := s.download(ctx, username, fileName, func(data []byte) error {
		plaintext = data
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return plaintext, record, nil
}

// DownloadTo downloads the file and writes the plaintext atomically to
// outDir/fileName. It returns the output path.
func (s *Service) DownloadTo(ctx context.Context, username, fileName, outDir string) (string, error) {
	var outPath string
	_, err := s.download(ctx, username, fileName, func(data []byte) error {
		var err error
		outPath, err = s.writeOutput(ctx, outDir, fileName, data)
		return err
	})
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// download resolves, decrypts and hands the plaintext to sink. The record is
// stamped only after sink succeeds.
func (s *Service) download(ctx context.Context, username, fileName string, sink func([]byte) error) (*models.FileRecord, error) {
	const op = "download"
	ctx, logger := s.begin(ctx, op, username)

	if err := validateNames(username, fileName); err != nil {
		return nil, s.fail(logger, op, models.ErrValidation, username, fileName, err)
	}

	unlock, err := s.store.Lock(username)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, username, fileName, err)
	}
	defer unlock()

	record, err := s.store.Files().FindLive(ctx, username, fileName)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, username, fileName, err)
	}
	if record == nil {
		return nil, s.fail(logger, op, models.ErrNotFound, username, fileName, nil)
	}

	data, err := s.open(ctx, record)
	if err != nil {
		return nil, s.fail(logger, op, kindOf(err, models.ErrStorageIO), username, fileName, err)
	}

	if err := sink(data); err != nil {
		return nil, s.fail(logger, op, models.ErrStorageIO, username, fileName, err)
	}

	if err := s.store.Files().MarkDownloadedByID(ctx, username, record.ID); err != nil {
		return nil, s.fail(logger, op, kindOf(err, models.ErrMetadata), username, fileName, err)
	}

	updated, err := s.store.Files().FindByID(ctx, username, record.ID)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, username, fileName, err)
	}

	logger.WithFields(map[string]interface{}{
		"file_id": record.ID,
		"key_id":  record.KeyID,
		"size":    len(data),
	}).Info("Downloaded file")

	return updated, nil
}

// Delete soft-deletes the user's live file. The blob is removed first; a
// blob that is already gone is logged and the record is stamped anyway.
// Deleting a file with no live record returns ErrNotFound.
func (s *Service) Delete(ctx context.Context, username, fileName string) error {
	const op = "delete"
	ctx, logger := s.begin(ctx, op, username)

	if err := validateNames(username, fileName); err != nil {
		return s.fail(logger, op, models.ErrValidation, username, fileName, err)
	}

	unlock, err := s.store.Lock(username)
	if err != nil {
		return s.fail(logger, op, models.ErrMetadata, username, fileName, err)
	}
	defer unlock()

	record, err := s.store.Files().FindLive(ctx, username, fileName)
	if err != nil {
		return s.fail(logger, op, models.ErrMetadata, username, fileName, err)
	}
	if record == nil {
		return s.fail(logger, op, models.ErrNotFound, username, fileName, nil)
	}

	if err := s.blobs.Delete(ctx, record.BlobPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return s.fail(logger, op, models.ErrStorageIO, username, fileName, err)
		}
		logger.WithFields(map[string]interface{}{
			"file_id":   record.ID,
			"blob_path": record.BlobPath,
		}).Warn("Blob already absent; marking record deleted")
	}

	if err := s.store.Files().MarkDeletedByID(ctx, username, record.ID); err != nil {
		return s.fail(logger, op, kindOf(err, models.ErrMetadata), username, fileName, err)
	}

	logger.WithField("file_id", record.ID).Info("Deleted file")
	return nil
}

// List returns the user's live files, oldest first.
func (s *Service) List(ctx context.Context, username string) ([]models.FileListing, error) {
	const op = "list"
	ctx, logger := s.begin(ctx, op, username)

	if err := models.ValidateUsername(username); err != nil {
		return nil, s.fail(logger, op, models.ErrValidation, username, "", err)
	}

	records, err := s.store.Files().ListLive(ctx, username)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, username, "", err)
	}

	listings := make([]models.FileListing, 0, len(records))
	for _, rec := range records {
		listings = append(listings, rec.Listing())
	}

	logger.WithField("count", len(listings)).Debug("Listed files")
	return listings, nil
}

// Inspect returns the most recent record with the given name, including a
// soft-deleted one.
func (s *Service) Inspect(ctx context.Context, username, fileName string) (*models.FileRecord, error) {
	const op = "inspect"
	ctx, logger := s.begin(ctx, op, username)

	if err := validateNames(username, fileName); err != nil {
		return nil, s.fail(logger, op, models.ErrValidation, username, fileName, err)
	}

	record, err := s.store.Files().FindLatest(ctx, username, fileName)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, username, fileName, err)
	}
	if record == nil {
		return nil, s.fail(logger, op, models.ErrNotFound, username, fileName, nil)
	}

	return record, nil
}

// RotateKey issues a fresh active key for the user. Existing files keep the
// key they were encrypted under.
func (s *Service) RotateKey(ctx context.Context, username string) (int64, error) {
	const op = "rotate key"
	ctx, logger := s.begin(ctx, op, username)

	if err := models.ValidateUsername(username); err != nil {
		return 0, s.fail(logger, op, models.ErrValidation, username, "", err)
	}

	unlock, err := s.store.Lock(username)
	if err != nil {
		return 0, s.fail(logger, op, models.ErrMetadata, username, "", err)
	}
	defer unlock()

	if err := s.store.Files().EnsureSchema(ctx, username); err != nil {
		return 0, s.fail(logger, op, models.ErrMetadata, username, "", err)
	}

	key, salt, err := s.crypto.GenerateKey()
	if err != nil {
		return 0, s.fail(logger, op, models.ErrKeyDerivation, username, "", err)
	}
	defer crypto.Zero(key)

	id, err := s.store.Keys().Create(ctx, username, key, salt)
	if err != nil {
		return 0, s.fail(logger, op, kindOf(err, models.ErrMetadata), username, "", err)
	}

	logger.WithField("key_id", id).Info("Rotated key")
	return id, nil
}

// Users returns every provisioned user.
func (s *Service) Users(ctx context.Context) ([]models.User, error) {
	const op = "users"
	ctx, logger := s.begin(ctx, op, "")

	users, err := s.store.Files().ListUsers(ctx)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, "", "", err)
	}
	return users, nil
}

// activeKey returns the user's active key, creating one if the user has
// none. The read and the insert share a transaction.
func (s *Service) activeKey(ctx context.Context, logger *events.Logger, username string) (*models.KeyRecord, error) {
	var key *models.KeyRecord

	err := s.store.WithTx(ctx, func(ctx context.Context, tx *metadata.Repos) error {
		existing, err := tx.Keys().GetActive(ctx, username)
		if err != nil {
			return err
		}
		if existing != nil {
			key = existing
			return nil
		}

		raw, salt, err := s.crypto.GenerateKey()
		if err != nil {
			return err
		}

		id, err := tx.Keys().Create(ctx, username, raw, salt)
		if err != nil {
			crypto.Zero(raw)
			return err
		}

		key = &models.KeyRecord{ID: id, Username: username, Key: raw, Salt: salt}
		logger.WithField("key_id", id).Info("Issued first key for user")
		return nil
	})
	if err != nil {
		return nil, err
	}

	return key, nil
}

// seal derives the file key from the record and encrypts data into the
// encoded blob form.
func (s *Service) seal(key *models.KeyRecord, data []byte) ([]byte, error) {
	fileKey, err := s.crypto.DeriveKey(key.Key, key.Salt)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(fileKey)

	blob, err := s.crypto.EncryptData(data, fileKey)
	if err != nil {
		return nil, err
	}
	return crypto.EncodeBlob(blob), nil
}

// open reads and decrypts a record's blob with its owning key.
func (s *Service) open(ctx context.Context, record *models.FileRecord) ([]byte, error) {
	key, err := s.store.Keys().Get(ctx, record.Username, record.KeyID)
	if err != nil {
		return nil, fmt.Errorf("load key %d: %w", record.KeyID, withKind(err, models.ErrMetadata))
	}
	defer crypto.Zero(key.Key)

	encoded, err := s.blobs.Read(ctx, record.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", withKind(err, models.ErrStorageIO))
	}

	blob, err := crypto.DecodeBlob(encoded)
	if err != nil {
		return nil, err
	}

	fileKey, err := s.crypto.DeriveKey(key.Key, key.Salt)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(fileKey)

	return s.crypto.DecryptData(blob, fileKey)
}

// freeBlobPath returns <user>/<name>.<suffix>, or <user>/<name>.<n>.<suffix>
// with the smallest free n. A path is taken while a blob exists there or a
// live record still points at it, even if its blob has gone missing.
func (s *Service) freeBlobPath(ctx context.Context, username, fileName string) (string, error) {
	candidate := fmt.Sprintf("%s/%s.%s", username, fileName, s.suffix)
	for n := 1; n <= maxBlobVariants; n++ {
		inUse, err := s.store.Files().BlobPathInUse(ctx, username, candidate)
		if err != nil {
			return "", err
		}
		if !inUse {
			exists, err := s.blobs.Exists(ctx, candidate)
			if err != nil {
				return "", err
			}
			if !exists {
				return candidate, nil
			}
		}
		candidate = fmt.Sprintf("%s/%s.%d.%s", username, fileName, n, s.suffix)
	}
	return "", fmt.Errorf("no free blob name for %s after %d attempts", fileName, maxBlobVariants)
}

// writeOutput writes plaintext atomically into outDir.
func (s *Service) writeOutput(ctx context.Context, outDir, fileName string, data []byte) (string, error) {
	out, err := storage.NewLocalStore(outDir, s.logger)
	if err != nil {
		return "", err
	}
	if s.maxFileSize > 0 {
		out.SetMaxFileSize(s.maxFileSize)
	}
	if err := out.Write(ctx, fileName, data, outputMode); err != nil {
		return "", err
	}
	return filepath.Join(out.BaseDir(), fileName), nil
}

// begin attaches a request id to ctx and returns the operation logger.
func (s *Service) begin(ctx context.Context, op, username string) (context.Context, *events.Logger) {
	ctx, requestID := events.EnsureRequestID(ctx)
	fields := map[string]interface{}{
		"op":         op,
		"request_id": requestID,
	}
	if username != "" {
		fields["user"] = username
	}
	return ctx, s.logger.WithFields(fields)
}

// fail logs the failure and wraps err in a *models.VaultError of kind.
func (s *Service) fail(logger *events.Logger, op string, kind error, username, fileName string, err error) error {
	entry := logger.WithField("kind", kind.Error())
	if err != nil {
		entry = entry.WithError(err)
	}
	switch kind {
	case models.ErrNotFound, models.ErrValidation:
		entry.Debug("Operation rejected")
	default:
		entry.Error("Operation failed")
	}

	if err == nil {
		err = kind
	}
	return models.NewVaultError(op, kind, username, fileName, err)
}

func validateNames(username, fileName string) error {
	if err := models.ValidateUsername(username); err != nil {
		return err
	}
	return models.ValidateFileName(fileName)
}

// kindOf returns the sentinel err already carries, or fallback.
func kindOf(err error, fallback error) error {
	for _, kind := range []error{
		models.ErrAuthentication,
		models.ErrKeyDerivation,
		models.ErrMetadata,
		models.ErrStorageIO,
		models.ErrValidation,
		models.ErrNotFound,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return fallback
}

// withKind wraps err with kind unless it already carries it.
func withKind(err error, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
