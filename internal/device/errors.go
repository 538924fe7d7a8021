package device

import "errors"

var (
	// ErrDeviceNotFound is returned for an unknown id. Store methods wrap
	// it with the id.
	ErrDeviceNotFound = errors.New("device: not found")
	ErrDeviceExists   = errors.New("device: already exists")

	// ErrEmptyUpdate is returned for an Update with neither IsOn nor Value.
	ErrEmptyUpdate = errors.New("device: empty update")
)

// Validation failures. ErrInvalidDevice wraps list-level problems such as
// duplicate ids; the others name the offending field.
var (
	ErrInvalidDevice     = errors.New("device: invalid")
	ErrInvalidDeviceType = errors.New("device: invalid type")
	ErrInvalidName       = errors.New("device: invalid name")
	ErrInvalidValue      = errors.New("device: value must be a number or text")
)
