package docstore

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrPermissionDenied is returned when security rules reject the caller.
	ErrPermissionDenied = errors.New("docstore: PERMISSION_DENIED")

	// ErrUnavailable is returned when the service cannot be reached.
	ErrUnavailable = errors.New("docstore: unavailable")

	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: not found")

	// ErrInvalidConfig is returned when the remote configuration is incomplete.
	ErrInvalidConfig = errors.New("docstore: invalid config")
)

// MapError translates gRPC status errors into package errors, keeping the
// original message.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, status.Convert(err).Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, status.Convert(err).Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, status.Convert(err).Message())
	default:
		return err
	}
}
