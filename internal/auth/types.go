package auth

import (
	"regexp"
	"time"
)

// usernamePattern allows alphanumerics, dots, hyphens and underscores.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is the authorisation tier of a dashboard account.
type Role string

const (
	// RoleUser can view and operate devices and scenes.
	RoleUser Role = "user"

	// RoleAdmin can also link providers, change storage settings and read
	// the audit trail.
	RoleAdmin Role = "admin"
)

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return r == RoleUser || r == RoleAdmin
}

// User is a dashboard account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
