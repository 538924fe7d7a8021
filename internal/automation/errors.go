package automation

import "errors"

// Scene lookup and activation.
var (
	ErrSceneNotFound = errors.New("scene: not found")
	ErrSceneExists   = errors.New("scene: already exists")

	// ErrSceneDisabled is returned by Activate; the API answers 409.
	ErrSceneDisabled = errors.New("scene: disabled")
)

// Scene validation. Wrapped with the failing field.
var (
	ErrInvalidScene  = errors.New("scene: invalid")
	ErrInvalidName   = errors.New("scene: invalid name")
	ErrInvalidSlug   = errors.New("scene: invalid slug")
	ErrNoActions     = errors.New("scene: no actions")
	ErrInvalidAction = errors.New("scene: invalid action")
)
