package alexa

import "errors"

var (
	// ErrNotConfigured is returned when a real exchange is attempted without
	// a client id and secret.
	ErrNotConfigured = errors.New("alexa: client credentials not configured")

	// ErrTokenExchange is returned when the token endpoint rejects a code.
	ErrTokenExchange = errors.New("alexa: token exchange failed")
)
