package models

import "time"

// ShareGrant gives a grantee read access to one of the owner's files.
type ShareGrant struct {
	ID        int64      `json:"id"`
	Owner     string     `json:"owner"`
	FileID    int64      `json:"file_id"`
	FileName  string     `json:"file_name"`
	Grantee   string     `json:"grantee"`
	GrantedAt time.Time  `json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// IsActive reports whether the grant has not been revoked.
func (g *ShareGrant) IsActive() bool {
	return g.RevokedAt == nil
}
