package mirror

import (
	"encoding/json"
	"fmt"

	"github.com/mblarson/omnihome/internal/device"
)

// CommandMessage is the payload accepted on a device command topic.
// Toggle takes precedence over IsOn.
type CommandMessage struct {
	IsOn   *bool `json:"is_on,omitempty"`
	Value  any   `json:"value,omitempty"`
	Toggle bool  `json:"toggle,omitempty"`
}

func parseCommand(payload []byte) (CommandMessage, error) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if !cmd.Toggle && cmd.IsOn == nil && cmd.Value == nil {
		return cmd, fmt.Errorf("%w: no fields set", ErrInvalidCommand)
	}
	return cmd, nil
}

func statePayload(d device.Device) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding device %s: %w", d.ID, err)
	}
	return b, nil
}
