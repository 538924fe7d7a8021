package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mblarson/omnihome/internal/device"
)

// Logger is the logging interface used by the voice package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Controller is the device list the assistant acts on. device.Store
// implements it.
type Controller interface {
	Devices() []device.Device
	Update(ctx context.Context, u device.Update, source string) (device.Device, error)
}

const volumeInterval = 100 * time.Millisecond

// Assistant runs one voice session at a time against a Controller.
//
// The session state (idle, connecting, active) is mirrored to the endpoint
// so the client overlay can follow it.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - A second Run while a session is open fails with ErrSessionActive.
type Assistant struct {
	dialer     Dialer
	controller Controller
	logger     Logger

	mu     sync.Mutex
	status Status
}

// NewAssistant creates an idle assistant.
//
// Parameters:
//   - dialer: Opens model sessions
//   - controller: Device list the tool calls act on
//   - logger: May be nil
//
// Returns:
//   - *Assistant: Idle assistant
func NewAssistant(dialer Dialer, controller Controller, logger Logger) *Assistant {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Assistant{
		dialer:     dialer,
		controller: controller,
		logger:     logger,
		status:     Status{State: StateIdle},
	}
}

// Status returns the current overlay state.
func (a *Assistant) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Assistant) setStatus(ep Endpoint, s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
	if err := ep.WriteStatus(s); err != nil {
		a.logger.Debug("writing voice status", "error", err)
	}
}

// HandleToolCall executes one tool call against the device list.
//
// Parameters:
//   - ctx: Carried to the device update
//   - call: Tool call from the model; only ToolName is understood
//
// Returns:
//   - string: Result text reported back to the model, also on failure
func (a *Assistant) HandleToolCall(ctx context.Context, call ToolCall) string {
	if call.Name != ToolName {
		return "Unknown tool " + call.Name
	}

	name, _ := call.Args["deviceName"].(string)
	action, _ := call.Args["action"].(string)
	action = strings.ToUpper(strings.TrimSpace(action))

	target, ok := device.FindByName(a.controller.Devices(), name)
	if !ok {
		a.logger.Info("voice command for unknown device", "device_name", name)
		return "Device not found"
	}

	isOn := target.IsOn
	switch Action(action) {
	case ActionTurnOn:
		isOn = true
	case ActionTurnOff:
		isOn = false
	}
	u := device.Update{ID: target.ID, IsOn: device.Bool(isOn)}
	if v, ok := call.Args["value"]; ok && v != nil {
		u.Value = v
	}

	if _, err := a.controller.Update(ctx, u, device.SourceVoice); err != nil {
		a.logger.Warn("voice command failed", "device_id", target.ID, "error", err)
		return fmt.Sprintf("Failed to %s %s", action, target.Name)
	}
	a.logger.Info("voice command executed", "device_id", target.ID, "action", action)
	return fmt.Sprintf("OK, %s executed for %s", action, target.Name)
}

// Run holds a session between ep and the model until either side ends it.
//
// Session lifecycle:
//  1. Moves to connecting and dials with the device list as instruction
//  2. Moves to active once the session opens
//  3. Streams microphone frames upstream and model audio back to ep,
//     executing tool calls as they arrive
//  4. Returns to idle when either side ends, carrying any error
//
// Parameters:
//   - ctx: Cancelling it ends the session cleanly
//   - ep: Client endpoint carrying audio and status
//
// Returns:
//   - error: ErrSessionActive, a dial error, or a stream error
func (a *Assistant) Run(ctx context.Context, ep Endpoint) error {
	a.mu.Lock()
	if a.status.State != StateIdle {
		a.mu.Unlock()
		return ErrSessionActive
	}
	a.status = Status{State: StateConnecting}
	a.mu.Unlock()
	a.setStatus(ep, Status{State: StateConnecting})

	session, err := a.dialer.Dial(ctx, SessionConfig{
		SystemInstruction: SystemInstruction(a.controller.Devices()),
	})
	if err != nil {
		a.setStatus(ep, Status{State: StateIdle, Error: err.Error()})
		return err
	}
	a.logger.Info("voice session opened")
	a.setStatus(ep, Status{State: StateActive})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.upstream(gctx, ep, session) })
	g.Go(func() error { return a.downstream(gctx, ep, session) })
	g.Go(func() error {
		<-gctx.Done()
		return session.Close()
	})

	err = g.Wait()
	if isSessionEnd(err) || ctx.Err() != nil {
		err = nil
	}

	a.logger.Info("voice session closed")
	final := Status{State: StateIdle}
	if err != nil {
		final.Error = err.Error()
	}
	a.setStatus(ep, final)
	return err
}

// errSessionEnded stops the group when one side finishes normally.
var errSessionEnded = errors.New("voice: session ended")

func isSessionEnd(err error) bool {
	return err == nil || errors.Is(err, errSessionEnded) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled)
}

func (a *Assistant) upstream(ctx context.Context, ep Endpoint, session Session) error {
	var lastVolume time.Time
	for {
		frame, err := ep.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			return errSessionEnded
		}
		if err != nil {
			return fmt.Errorf("reading microphone: %w", err)
		}
		if len(frame) == 0 {
			continue
		}

		if now := time.Now(); now.Sub(lastVolume) >= volumeInterval {
			lastVolume = now
			a.setStatus(ep, Status{State: StateActive, Volume: RMS(frame)})
		}
		if err := session.SendAudio(frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("sending audio: %w", err)
		}
	}
}

func (a *Assistant) downstream(ctx context.Context, ep Endpoint, session Session) error {
	for {
		ev, err := session.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return errSessionEnded
			}
			return fmt.Errorf("receiving from model: %w", err)
		}

		if len(ev.ToolCalls) > 0 {
			results := make([]ToolResult, 0, len(ev.ToolCalls))
			for _, call := range ev.ToolCalls {
				results = append(results, ToolResult{
					ID:     call.ID,
					Name:   call.Name,
					Result: a.HandleToolCall(ctx, call),
				})
			}
			if err := session.SendToolResponse(results); err != nil {
				return fmt.Errorf("sending tool response: %w", err)
			}
		}

		if len(ev.Audio) > 0 {
			if err := ep.WriteAudio(ev.Audio); err != nil {
				return errSessionEnded
			}
		}
	}
}
