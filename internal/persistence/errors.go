package persistence

import (
	"errors"

	"github.com/mblarson/omnihome/internal/infrastructure/docstore"
)

var (
	// ErrPermissionDenied is reported when the remote store rejects access.
	// Its text matches the code the dashboard looks for.
	ErrPermissionDenied = docstore.ErrPermissionDenied

	// ErrRemoteWrite wraps a remote failure after the local write succeeded.
	ErrRemoteWrite = errors.New("persistence: remote write failed")

	// ErrInvalidConfig is returned when a stored override has no project id.
	ErrInvalidConfig = errors.New("persistence: invalid remote config")

	// ErrSettingNotFound is returned when a settings key is absent.
	ErrSettingNotFound = errors.New("persistence: setting not found")
)

// ErrorCode returns the short code shown to users for a subscription error:
// "PERMISSION_DENIED" for rejected access, the error text otherwise.
func ErrorCode(err error) string {
	if errors.Is(err, ErrPermissionDenied) {
		return "PERMISSION_DENIED"
	}
	return err.Error()
}
