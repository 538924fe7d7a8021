package voice

import "errors"

var (
	// ErrAPIKeyMissing is returned when no model API key is configured.
	ErrAPIKeyMissing = errors.New("API Key not found") //nolint:staticcheck // user-facing text

	// ErrSessionActive is returned when a session is started while one runs.
	ErrSessionActive = errors.New("voice: session already active")

	// ErrDisabled is returned when voice control is switched off.
	ErrDisabled = errors.New("voice: disabled")
)
