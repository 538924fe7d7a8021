package auth

import "errors"

// Login failures. Both map to the same 401 so a caller cannot enumerate
// usernames.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user account is inactive")
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")

	// ErrTokenInvalid covers bad signatures, expiry, wrong token kind and
	// spent WebSocket tickets.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrForbidden is returned to a user without the admin role.
	ErrForbidden = errors.New("insufficient permissions")
)
