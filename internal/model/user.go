package model

import (
	"fmt"
	"strings"
	"time"
)

// Role is the authorization tier of a user.  The set is closed; values read
// from storage or requests are validated with ParseRole.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleUser    Role = "user"
	RolePremium Role = "premium"
)

// ParseRole normalizes s and rejects anything outside the known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleUser, RolePremium:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// User represents an application user record as stored in the `users`
// table.  Each field corresponds to a column.  A user owns zero or more
// conversations and at most one settings row.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Username     – unique handle.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hash; empty for accounts created via Google sign-in.
//	Role         – admin, user or premium.
//	CreatedAt    – timestamp of creation.
//	LastLoginAt  – last successful authentication (nil before the first one).
type User struct {
	ID           uint64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is never stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Principal is an authenticated caller as resolved by an identity
// provider or the access token middleware.
type Principal struct {
	UserID uint64
	Role   Role
}
