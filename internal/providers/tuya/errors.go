package tuya

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when the access id or secret is empty.
	ErrMissingCredentials = errors.New("tuya: access id and secret are required")

	// ErrInvalidAccessID is returned for access ids too short to be real.
	ErrInvalidAccessID = errors.New("Invalid Access ID") //nolint:staticcheck // user-facing text

	// ErrUnknownRegion is returned for a region with no known endpoint.
	ErrUnknownRegion = errors.New("tuya: unknown region")

	// ErrTransport wraps failures to reach the cloud at all.
	ErrTransport = errors.New("tuya: cloud unreachable")

	// ErrNotConnected is returned when a call needs a token and none is held.
	ErrNotConnected = errors.New("tuya: not connected")
)

// APIError is a failure reported by the cloud in the response envelope.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tuya: api error %d: %s", e.Code, e.Msg)
}
