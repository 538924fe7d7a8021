package voice

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/mblarson/omnihome/internal/device"
)

// ToolName is the single function offered to the model.
const ToolName = "updateDeviceState"

// AssistantName is the persona the model speaks as.
const AssistantName = "Omni"

// ToolDeclarations describes updateDeviceState to the model.
func ToolDeclarations() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        ToolName,
			Description: "Update the state of a smart home device (turn on/off, lock/unlock, set temperature).",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"deviceName": {
						Type:        genai.TypeString,
						Description: `The fuzzy name of the device the user wants to control (e.g., "living room lights").`,
					},
					"action": {
						Type:        genai.TypeString,
						Description: `The action to perform: "TURN_ON", "TURN_OFF", "SET_VALUE".`,
						Enum:        []string{string(ActionTurnOn), string(ActionTurnOff), string(ActionSetValue)},
					},
					"value": {
						Type:        genai.TypeNumber,
						Description: "The numeric value to set (for brightness or temperature).",
					},
				},
				Required: []string{"deviceName", "action"},
			},
		}},
	}}
}

type deviceSummary struct {
	Name string            `json:"name"`
	ID   string            `json:"id"`
	Type device.DeviceType `json:"type"`
	Room string            `json:"room"`
}

// SystemInstruction returns the persona prompt listing the current devices.
func SystemInstruction(devices []device.Device) string {
	summary := make([]deviceSummary, 0, len(devices))
	for _, d := range devices {
		summary = append(summary, deviceSummary{Name: d.Name, ID: d.ID, Type: d.Type, Room: d.Room})
	}
	list, err := json.Marshal(summary)
	if err != nil {
		list = []byte("[]")
	}
	return fmt.Sprintf(`You are a helpful, witty smart home assistant named %s.
You control a smart home dashboard.
Current devices: %s.
When asked to control a device, find the closest matching device name and use the tool.
Confirm actions briefly.`, AssistantName, list)
}
