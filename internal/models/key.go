package models

import (
	"regexp"
	"time"
)

// KeyRecord is one symmetric key issued to a user. The latest record is the
// active key; older records stay so files encrypted under them still open.
type KeyRecord struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Key       []byte    `json:"-"`
	Salt      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a username that has been provisioned in the vault.
type User struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateUsername checks that a username is safe to use as a directory name.
func ValidateUsername(username string) error {
	if username == "" {
		return &ValidationError{Op: "username", Reason: "must not be empty"}
	}
	if !usernamePattern.MatchString(username) || username == "." || username == ".." {
		return &ValidationError{Op: "username", Reason: "invalid characters", Invalid: []string{username}}
	}
	return nil
}
