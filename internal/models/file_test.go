package models_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/vaultfs/internal/models"
)

func TestFileRecord_State(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		rec  models.FileRecord
		want models.FileState
		live bool
	}{
		{
			name: "uploaded",
			rec:  models.FileRecord{UploadedAt: now},
			want: models.FileStateUploaded,
			live: true,
		},
		{
			name: "downloaded",
			rec:  models.FileRecord{UploadedAt: now, DownloadedAt: &now},
			want: models.FileStateDownloaded,
			live: true,
		},
		{
			name: "deleted after download",
			rec:  models.FileRecord{UploadedAt: now, DownloadedAt: &now, DeletedAt: &now},
			want: models.FileStateDeleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.State())
			assert.Equal(t, tt.live, tt.rec.IsLive())
		})
	}
}

func TestFileRecord_Listing(t *testing.T) {
	now := time.Now()
	rec := &models.FileRecord{
		ID:         7,
		Username:   "alice",
		FileName:   "report.txt",
		BlobPath:   "alice/report.txt.enc",
		KeyID:      3,
		UploadedAt: now,
		SharedWith: []string{"bob"},
	}

	listing := rec.Listing()
	assert.Equal(t, "report.txt", listing.FileName)
	assert.Equal(t, now, listing.UploadedAt)
	assert.Nil(t, listing.DownloadedAt)
	assert.Equal(t, []string{"bob"}, listing.SharedWith)

	listing.SharedWith[0] = "mallory"
	assert.Equal(t, []string{"bob"}, rec.SharedWith, "listing does not alias the record")
}

func TestShareGrant_IsActive(t *testing.T) {
	now := time.Now()
	assert.True(t, (&models.ShareGrant{GrantedAt: now}).IsActive())
	assert.False(t, (&models.ShareGrant{GrantedAt: now, RevokedAt: &now}).IsActive())
}

func TestValidateFileName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain", "report.txt", false},
		{"no extension", "README", false},
		{"spaces", "tax return 2024.pdf", false},
		{"unicode", "résumé.txt", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"dot", ".", true},
		{"dot dot", "..", true},
		{"slash", "notes/report.txt", true},
		{"backslash", `notes\report.txt`, true},
		{"traversal", "../etc/passwd", true},
		{"null byte", "report\x00.txt", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := models.ValidateFileName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "alice", false},
		{"mixed", "Bob_2.test-x", false},
		{"empty", "", true},
		{"leading dot", ".alice", true},
		{"dot dot", "..", true},
		{"slash", "alice/bob", true},
		{"space", "alice smith", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := models.ValidateUsername(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
