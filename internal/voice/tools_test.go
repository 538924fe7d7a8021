package voice

import (
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/mblarson/omnihome/internal/device"
)

func TestToolDeclarations(t *testing.T) {
	tools := ToolDeclarations()
	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("ToolDeclarations() = %+v", tools)
	}
	fd := tools[0].FunctionDeclarations[0]
	if fd.Name != "updateDeviceState" {
		t.Errorf("Name = %q", fd.Name)
	}
	if fd.Parameters.Type != genai.TypeObject {
		t.Errorf("Parameters.Type = %q", fd.Parameters.Type)
	}
	if got := strings.Join(fd.Parameters.Required, ","); got != "deviceName,action" {
		t.Errorf("Required = %q", got)
	}
	if got := fd.Parameters.Properties["action"].Enum; len(got) != 3 {
		t.Errorf("action enum = %v", got)
	}
	if fd.Parameters.Properties["value"].Type != genai.TypeNumber {
		t.Errorf("value type = %q", fd.Parameters.Properties["value"].Type)
	}
}

func TestSystemInstruction(t *testing.T) {
	got := SystemInstruction(device.InitialDevices()[:1])
	for _, want := range []string{
		"named Omni",
		`{"name":"Living Room Lights","id":"dev_1","type":"LIGHT","room":"Living Room"}`,
		"Confirm actions briefly.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("SystemInstruction() missing %q in:\n%s", want, got)
		}
	}
	if !strings.Contains(SystemInstruction(nil), "Current devices: [].") {
		t.Error("empty device list not rendered as []")
	}
}

func TestEventFromMessage(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{Data: []byte{1, 2}}},
				{Text: "ignored"},
				{InlineData: &genai.Blob{Data: []byte{3}}},
			}},
			TurnComplete: true,
		},
		ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
			{ID: "c1", Name: ToolName, Args: map[string]any{"deviceName": "lamp"}},
		}},
	}
	ev := eventFromMessage(msg)
	if string(ev.Audio) != string([]byte{1, 2, 3}) {
		t.Errorf("Audio = %v", ev.Audio)
	}
	if !ev.TurnComplete {
		t.Error("TurnComplete = false")
	}
	if len(ev.ToolCalls) != 1 || ev.ToolCalls[0].ID != "c1" || ev.ToolCalls[0].Args["deviceName"] != "lamp" {
		t.Errorf("ToolCalls = %+v", ev.ToolCalls)
	}
	if got := eventFromMessage(nil); got.Audio != nil || got.ToolCalls != nil {
		t.Errorf("eventFromMessage(nil) = %+v", got)
	}
}
