package voice

import "context"

// Action is the operation requested by the model's tool call.
type Action string

// Tool actions.
const (
	ActionTurnOn   Action = "TURN_ON"
	ActionTurnOff  Action = "TURN_OFF"
	ActionSetValue Action = "SET_VALUE"
)

// State is the overlay state.
type State string

// Overlay states.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
)

// Status is sent to the client as the overlay changes.
type Status struct {
	State  State   `json:"state"`
	Volume float64 `json:"volume"`
	Error  string  `json:"error,omitempty"`
}

// ToolCall is a function call issued by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	ID     string
	Name   string
	Result string
}

// Event is one message from the model.
type Event struct {
	Audio        []byte
	ToolCalls    []ToolCall
	TurnComplete bool
	Interrupted  bool
}

// Session is an open duplex conversation with the model.
type Session interface {
	SendAudio(pcm []byte) error
	SendToolResponse(results []ToolResult) error
	Receive() (Event, error)
	Close() error
}

// SessionConfig describes the conversation to open.
type SessionConfig struct {
	SystemInstruction string
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Endpoint is the user side of a session: the dashboard's microphone and
// speaker, usually a WebSocket.
type Endpoint interface {
	// ReadFrame returns the next 16-bit little-endian PCM frame. It returns
	// io.EOF when the user ends the session.
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteAudio(pcm []byte) error
	WriteStatus(s Status) error
}
