package vault

import (
	"context"
	"sort"

	"github.com/TheMichaelB/vaultfs/internal/metadata"
	"github.com/TheMichaelB/vaultfs/internal/models"
)

// Share grants each target read access to the owner's live file. Targets
// are de-duplicated; every one must be a provisioned user other than the
// owner, otherwise nothing is granted and the *models.ValidationError lists
// the rejected names.
func (s *Service) Share(ctx context.Context, owner, fileName string, targets []string) (*models.FileRecord, error) {
	const op = "share"
	ctx, logger := s.begin(ctx, op, owner)

	if err := validateNames(owner, fileName); err != nil {
		return nil, s.fail(logger, op, models.ErrValidation, owner, fileName, err)
	}

	grantees := dedupe(targets)
	if len(grantees) == 0 {
		err := &models.ValidationError{Op: op, Reason: "no share targets"}
		return nil, s.fail(logger, op, models.ErrValidation, owner, fileName, err)
	}

	unlock, err := s.store.Lock(owner)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, owner, fileName, err)
	}
	defer unlock()

	record, err := s.store.Files().FindLive(ctx, owner, fileName)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, owner, fileName, err)
	}
	if record == nil {
		return nil, s.fail(logger, op, models.ErrNotFound, owner, fileName, nil)
	}

	var invalid []string
	for _, grantee := range grantees {
		if grantee == owner || models.ValidateUsername(grantee) != nil {
			invalid = append(invalid, grantee)
			continue
		}
		exists, err := s.store.Files().UserExists(ctx, grantee)
		if err != nil {
			return nil, s.fail(logger, op, models.ErrMetadata, owner, fileName, err)
		}
		if !exists {
			invalid = append(invalid, grantee)
		}
	}
	if len(invalid) > 0 {
		err := &models.ValidationError{Op: op, Reason: "unknown or invalid share targets", Invalid: invalid}
		return nil, s.fail(logger, op, models.ErrValidation, owner, fileName, err)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx *metadata.Repos) error {
		for _, grantee := range grantees {
			if err := tx.Shares().Grant(ctx, owner, record.ID, grantee); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, owner, fileName, err)
	}

	updated, err := s.store.Files().FindByID(ctx, owner, record.ID)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, owner, fileName, err)
	}

	logger.WithFields(map[string]interface{}{
		"file_id":  record.ID,
		"grantees": len(grantees),
	}).Info("Shared file")

	return updated, nil
}

// Unshare revokes grantee's access to the owner's live file.
func (s *Service) Unshare(ctx context.Context, owner, fileName, grantee string) error {
	const op = "unshare"
	ctx, logger := s.begin(ctx, op, owner)

	if err := validateNames(owner, fileName); err != nil {
		return s.fail(logger, op, models.ErrValidation, owner, fileName, err)
	}

	unlock, err := s.store.Lock(owner)
	if err != nil {
		return s.fail(logger, op, models.ErrMetadata, owner, fileName, err)
	}
	defer unlock()

	record, err := s.store.Files().FindLive(ctx, owner, fileName)
	if err != nil {
		return s.fail(logger, op, models.ErrMetadata, owner, fileName, err)
	}
	if record == nil {
		return s.fail(logger, op, models.ErrNotFound, owner, fileName, nil)
	}

	revoked, err := s.store.Shares().Revoke(ctx, owner, record.ID, grantee)
	if err != nil {
		return s.fail(logger, op, models.ErrMetadata, owner, fileName, err)
	}
	if !revoked {
		return s.fail(logger, op, models.ErrNotFound, owner, fileName, nil)
	}

	logger.WithField("file_id", record.ID).Info("Revoked share")
	return nil
}

// ListShared returns the active grants on live files shared with grantee.
func (s *Service) ListShared(ctx context.Context, grantee string) ([]models.ShareGrant, error) {
	const op = "list shared"
	ctx, logger := s.begin(ctx, op, grantee)

	if err := models.ValidateUsername(grantee); err != nil {
		return nil, s.fail(logger, op, models.ErrValidation, grantee, "", err)
	}

	grants, err := s.store.Shares().ListGrantedTo(ctx, grantee)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, grantee, "", err)
	}
	return grants, nil
}

// DownloadShared decrypts a file the owner shared with grantee. The blob is
// opened with the owner's key for that record; the owner's download time is
// not stamped.
func (s *Service) DownloadShared(ctx context.Context, owner, fileName, grantee string) ([]byte, error) {
	const op = "download shared"
	ctx, logger := s.begin(ctx, op, grantee)
	logger = logger.WithField("owner", owner)

	if err := validateNames(owner, fileName); err != nil {
		return nil, s.fail(logger, op, models.ErrValidation, owner, fileName, err)
	}
	if err := models.ValidateUsername(grantee); err != nil {
		return nil, s.fail(logger, op, models.ErrValidation, owner, fileName, err)
	}

	grant, record, err := s.store.Shares().FindGrant(ctx, owner, fileName, grantee)
	if err != nil {
		return nil, s.fail(logger, op, models.ErrMetadata, owner, fileName, err)
	}
	if grant == nil {
		return nil, s.fail(logger, op, models.ErrNotFound, owner, fileName, nil)
	}

	data, err := s.open(ctx, record)
	if err != nil {
		return nil, s.fail(logger, op, kindOf(err, models.ErrStorageIO), owner, fileName, err)
	}

	logger.WithFields(map[string]interface{}{
		"file_id":  record.ID,
		"grant_id": grant.ID,
		"size":     len(data),
	}).Info("Downloaded shared file")

	return data, nil
}

// DownloadSharedTo downloads a shared file into outDir/fileName.
func (s *Service) DownloadSharedTo(ctx context.Context, owner, fileName, grantee, outDir string) (string, error) {
	data, err := s.DownloadShared(ctx, owner, fileName, grantee)
	if err != nil {
		return "", err
	}

	outPath, err := s.writeOutput(ctx, outDir, fileName, data)
	if err != nil {
		_, logger := s.begin(ctx, "download shared", grantee)
		return "", s.fail(logger, "download shared", models.ErrStorageIO, owner, fileName, err)
	}
	return outPath, nil
}

// dedupe drops empty and repeated names and sorts the rest.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
