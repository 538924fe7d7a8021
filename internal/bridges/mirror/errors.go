package mirror

import "errors"

// Sentinel errors for the MQTT bridge.
var (
	ErrInvalidTopic   = errors.New("mirror: topic is not a device command")
	ErrInvalidCommand = errors.New("mirror: invalid command payload")
)
