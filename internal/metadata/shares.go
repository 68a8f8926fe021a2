package metadata

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/TheMichaelB/vaultfs/internal/dbx"
	"github.com/TheMichaelB/vaultfs/internal/events"
	"github.com/TheMichaelB/vaultfs/internal/models"
)

const grantColumns = `g.id, g.owner, g.file_id, f.file_name, g.grantee, g.granted_at, g.revoked_at`

// ShareStore persists share grants: read access from an owner's file record
// to another user. A grant is revoked rather than removed.
type ShareStore struct {
	db     dbx.DBTX
	logger *events.Logger
	now    func() time.Time
}

// NewShareStore creates a share store over db.
func NewShareStore(db dbx.DBTX, logger *events.Logger) *ShareStore {
	return &ShareStore{
		db:     db,
		logger: logger.WithField("component", "share_store"),
		now:    time.Now,
	}
}

// Grant shares the file with grantee. Granting an existing active grant is a
// no-op; granting a revoked one re-activates it.
func (s *ShareStore) Grant(ctx context.Context, owner string, fileID int64, grantee string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO share_grants (owner, file_id, grantee, granted_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(file_id, grantee) DO UPDATE SET
            granted_at = excluded.granted_at,
            revoked_at = NULL
        WHERE share_grants.revoked_at IS NOT NULL
    `, owner, fileID, grantee, toNanos(s.now()))
	if err != nil {
		return metaErr("grant share", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"owner":   owner,
		"file_id": fileID,
		"grantee": grantee,
	}).Debug("Granted share")

	return nil
}

// Revoke ends an active grant. It reports whether a grant was revoked.
func (s *ShareStore) Revoke(ctx context.Context, owner string, fileID int64, grantee string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
        UPDATE share_grants SET revoked_at = ?
        WHERE owner = ? AND file_id = ? AND grantee = ? AND revoked_at IS NULL
    `, toNanos(s.now()), owner, fileID, grantee)
	if err != nil {
		return false, metaErr("revoke share", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, metaErr("revoke share", err)
	}
	return n > 0, nil
}

// FindGrant resolves an active grant on the owner's most recent live record
// named fileName. It returns nil values when no such grant exists.
func (s *ShareStore) FindGrant(ctx context.Context, owner, fileName, grantee string) (*models.ShareGrant, *models.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+grantColumns+`,
            f.id, f.username, f.file_name, f.blob_path, f.key_id, f.uploaded_at, f.downloaded_at, f.deleted_at
        FROM share_grants g
        JOIN files f ON f.id = g.file_id
        WHERE g.owner = ? AND f.file_name = ? AND g.grantee = ?
            AND g.revoked_at IS NULL AND f.deleted_at IS NULL
        ORDER BY f.uploaded_at DESC, f.id DESC
        LIMIT 1
    `, owner, fileName, grantee)

	var (
		grant        models.ShareGrant
		grantedAt    int64
		revokedAt    sql.NullInt64
		file         models.FileRecord
		uploadedAt   int64
		downloadedAt sql.NullInt64
		deletedAt    sql.NullInt64
	)

	err := row.Scan(&grant.ID, &grant.Owner, &grant.FileID, &grant.FileName, &grant.Grantee, &grantedAt, &revokedAt,
		&file.ID, &file.Username, &file.FileName, &file.BlobPath, &file.KeyID, &uploadedAt, &downloadedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, metaErr("query grant", err)
	}

	grant.GrantedAt = fromNanos(grantedAt)
	grant.RevokedAt = fromNullNanos(revokedAt)
	file.UploadedAt = fromNanos(uploadedAt)
	file.DownloadedAt = fromNullNanos(downloadedAt)
	file.DeletedAt = fromNullNanos(deletedAt)

	return &grant, &file, nil
}

// ListGrantedTo returns the active grants on live files shared with grantee,
// oldest first.
func (s *ShareStore) ListGrantedTo(ctx context.Context, grantee string) ([]models.ShareGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+grantColumns+`
        FROM share_grants g
        JOIN files f ON f.id = g.file_id
        WHERE g.grantee = ? AND g.revoked_at IS NULL AND f.deleted_at IS NULL
        ORDER BY g.granted_at ASC, g.id ASC
    `, grantee)
	if err != nil {
		return nil, metaErr("query grants", err)
	}
	defer rows.Close()

	var grants []models.ShareGrant
	for rows.Next() {
		var grant models.ShareGrant
		var grantedAt int64
		var revokedAt sql.NullInt64
		if err := rows.Scan(&grant.ID, &grant.Owner, &grant.FileID, &grant.FileName, &grant.Grantee, &grantedAt, &revokedAt); err != nil {
			return nil, metaErr("scan grant", err)
		}
		grant.GrantedAt = fromNanos(grantedAt)
		grant.RevokedAt = fromNullNanos(revokedAt)
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, metaErr("iterate grants", err)
	}
	return grants, nil
}
