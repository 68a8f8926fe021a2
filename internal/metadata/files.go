package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TheMichaelB/vaultfs/internal/dbx"
	"github.com/TheMichaelB/vaultfs/internal/events"
	"github.com/TheMichaelB/vaultfs/internal/models"
)

const fileColumns = `id, username, file_name, blob_path, key_id, uploaded_at, downloaded_at, deleted_at`

// liveByName selects the record FindLive resolves to. Duplicate live names
// are allowed; the most recent upload wins.
const liveByName = `
        SELECT id FROM files
        WHERE username = ? AND file_name = ? AND deleted_at IS NULL
        ORDER BY uploaded_at DESC, id DESC
        LIMIT 1`

// FileStore persists file records. Every query is scoped by username.
type FileStore struct {
	db     dbx.DBTX
	logger *events.Logger
	now    func() time.Time
}

// NewFileStore creates a file store over db.
func NewFileStore(db dbx.DBTX, logger *events.Logger) *FileStore {
	return &FileStore{
		db:     db,
		logger: logger.WithField("component", "file_store"),
		now:    time.Now,
	}
}

// EnsureSchema registers the user. It is safe to call repeatedly.
func (s *FileStore) EnsureSchema(ctx context.Context, username string) error {
	if err := models.ValidateUsername(username); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
        INSERT INTO users (username, created_at)
        VALUES (?, ?)
        ON CONFLICT(username) DO NOTHING
    `, username, toNanos(s.now()))
	if err != nil {
		return metaErr("register user", err)
	}

	if n, _ := result.RowsAffected(); n > 0 {
		s.logger.WithField("username", username).Info("Provisioned user")
	}
	return nil
}

// InsertFile records an uploaded blob and returns the record id.
func (s *FileStore) InsertFile(ctx context.Context, username, fileName, blobPath string, keyID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO files (username, file_name, blob_path, key_id, uploaded_at)
        VALUES (?, ?, ?, ?, ?)
    `, username, fileName, blobPath, keyID, toNanos(s.now()))
	if err != nil {
		return 0, metaErr("insert file", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, metaErr("file id", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"username": username,
		"file_id":  id,
		"key_id":   keyID,
	}).Debug("Inserted file record")

	return id, nil
}

// FindLive returns the most recent live record with the given name, or nil.
func (s *FileStore) FindLive(ctx context.Context, username, fileName string) (*models.FileRecord, error) {
	return s.findOne(ctx, `
        SELECT `+fileColumns+`
        FROM files
        WHERE username = ? AND file_name = ? AND deleted_at IS NULL
        ORDER BY uploaded_at DESC, id DESC
        LIMIT 1
    `, username, fileName)
}

// FindLatest returns the most recent record with the given name including
// deleted ones, or nil. It serves audit lookups.
func (s *FileStore) FindLatest(ctx context.Context, username, fileName string) (*models.FileRecord, error) {
	return s.findOne(ctx, `
        SELECT `+fileColumns+`
        FROM files
        WHERE username = ? AND file_name = ?
        ORDER BY uploaded_at DESC, id DESC
        LIMIT 1
    `, username, fileName)
}

// FindByID returns one of the user's records by id, or nil.
func (s *FileStore) FindByID(ctx context.Context, username string, id int64) (*models.FileRecord, error) {
	return s.findOne(ctx, `
        SELECT `+fileColumns+`
        FROM files
        WHERE username = ? AND id = ?
    `, username, id)
}

// MarkDownloaded stamps the live record FindLive would return. It is a no-op
// when no live record matches.
func (s *FileStore) MarkDownloaded(ctx context.Context, username, fileName string) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE files SET downloaded_at = ?
        WHERE id = (`+liveByName+`)
    `, toNanos(s.now()), username, fileName)
	if err != nil {
		return metaErr("mark downloaded", err)
	}
	return nil
}

// MarkDeleted soft-deletes the live record FindLive would return. It is a
// no-op when no live record matches.
func (s *FileStore) MarkDeleted(ctx context.Context, username, fileName string) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE files SET deleted_at = ?
        WHERE id = (`+liveByName+`)
    `, toNanos(s.now()), username, fileName)
	if err != nil {
		return metaErr("mark deleted", err)
	}
	return nil
}

// MarkDownloadedByID stamps a live record. ErrNotFound if it is not live.
func (s *FileStore) MarkDownloadedByID(ctx context.Context, username string, id int64) error {
	return s.stampByID(ctx, "mark downloaded", `
        UPDATE files SET downloaded_at = ?
        WHERE id = ? AND username = ? AND deleted_at IS NULL
    `, username, id)
}

// MarkDeletedByID soft-deletes a live record. The delete timestamp is set at
// most once; ErrNotFound if the record is already deleted.
func (s *FileStore) MarkDeletedByID(ctx context.Context, username string, id int64) error {
	return s.stampByID(ctx, "mark deleted", `
        UPDATE files SET deleted_at = ?
        WHERE id = ? AND username = ? AND deleted_at IS NULL
    `, username, id)
}

// ListLive returns the user's live records ordered by upload time.
func (s *FileStore) ListLive(ctx context.Context, username string) ([]*models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+fileColumns+`
        FROM files
        WHERE username = ? AND deleted_at IS NULL
        ORDER BY uploaded_at ASC, id ASC
    `, username)
	if err != nil {
		return nil, metaErr("query files", err)
	}

	var records []*models.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, metaErr("iterate files", err)
	}
	rows.Close()

	if err := s.attachGrantees(ctx, records...); err != nil {
		return nil, err
	}

	return records, nil
}

// ListKnownUsers returns every provisioned username in sorted order.
func (s *FileStore) ListKnownUsers(ctx context.Context) ([]string, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names, nil
}

// ListUsers returns every provisioned user with its creation time.
func (s *FileStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT username, created_at FROM users ORDER BY username")
	if err != nil {
		return nil, metaErr("query users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var createdAt int64
		if err := rows.Scan(&u.Username, &createdAt); err != nil {
			return nil, metaErr("scan user", err)
		}
		u.CreatedAt = fromNanos(createdAt)
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, metaErr("iterate users", err)
	}
	return users, nil
}

// UserExists reports whether username has been provisioned.
func (s *FileStore) UserExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&n)
	if err != nil {
		return false, metaErr("query user", err)
	}
	return n > 0, nil
}

// BlobPathInUse reports whether a live record of username points at blobPath.
func (s *FileStore) BlobPathInUse(ctx context.Context, username, blobPath string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM files
        WHERE username = ? AND blob_path = ? AND deleted_at IS NULL
    `, username, blobPath).Scan(&n)
	if err != nil {
		return false, metaErr("query blob path", err)
	}
	return n > 0, nil
}

func (s *FileStore) findOne(ctx context.Context, query string, args ...any) (*models.FileRecord, error) {
	rec, err := scanFile(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachGrantees(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *FileStore) stampByID(ctx context.Context, op, query string, username string, id int64) error {
	result, err := s.db.ExecContext(ctx, query, toNanos(s.now()), id, username)
	if err != nil {
		return metaErr(op, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return metaErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: file %d: %w", op, id, models.ErrNotFound)
	}
	return nil
}

// attachGrantees fills SharedWith from active share grants.
func (s *FileStore) attachGrantees(ctx context.Context, records ...*models.FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	byID := make(map[int64]*models.FileRecord, len(records))
	placeholders := make([]string, 0, len(records))
	args := make([]any, 0, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
		placeholders = append(placeholders, "?")
		args = append(args, rec.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT file_id, grantee
        FROM share_grants
        WHERE revoked_at IS NULL AND file_id IN (`+strings.Join(placeholders, ",")+`)
        ORDER BY grantee
    `, args...)
	if err != nil {
		return metaErr("query grantees", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fileID int64
		var grantee string
		if err := rows.Scan(&fileID, &grantee); err != nil {
			return metaErr("scan grantee", err)
		}
		if rec, ok := byID[fileID]; ok {
			rec.SharedWith = append(rec.SharedWith, grantee)
		}
	}

	if err := rows.Err(); err != nil {
		return metaErr("iterate grantees", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanFile reads one row selected with fileColumns. sql.ErrNoRows is
// returned as is.
func scanFile(row rowScanner) (*models.FileRecord, error) {
	var (
		rec          models.FileRecord
		uploadedAt   int64
		downloadedAt sql.NullInt64
		deletedAt    sql.NullInt64
	)

	err := row.Scan(&rec.ID, &rec.Username, &rec.FileName, &rec.BlobPath, &rec.KeyID,
		&uploadedAt, &downloadedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, metaErr("scan file", err)
	}

	rec.UploadedAt = fromNanos(uploadedAt)
	rec.DownloadedAt = fromNullNanos(downloadedAt)
	rec.DeletedAt = fromNullNanos(deletedAt)
	return &rec, nil
}
