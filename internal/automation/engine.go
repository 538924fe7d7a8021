package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mblarson/omnihome/internal/device"
)

// Logger is the logging interface used by the Engine.
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

// DeviceController is the slice of device.Store the engine drives.
type DeviceController interface {
	Devices() []device.Device
	Update(ctx context.Context, u device.Update, source string) (device.Device, error)
}

// Broadcaster pushes activation events to connected clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// EventSceneActivated is the broadcast channel for finished activations.
const EventSceneActivated = "scene.activated"

// maxSceneExecutionTime bounds a single activation, delays included.
const maxSceneExecutionTime = 60 * time.Second

// Engine activates scenes against the device store.
//
// Actions are grouped by their Parallel flag; groups run in order and the
// actions inside a group run concurrently. Each targeted device is changed
// through DeviceController.Update, so the change is optimistic and
// mirrored to persistence like any dashboard toggle.
//
// Thread Safety:
//   - Activate is safe for concurrent use.
//   - Two activations touching one device both land; the later write wins.
type Engine struct {
	repo    Repository
	devices DeviceController
	hub     Broadcaster
	logger  Logger
}

// NewEngine creates a scene engine. hub and logger may be nil.
func NewEngine(repo Repository, devices DeviceController, hub Broadcaster, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{repo: repo, devices: devices, hub: hub, logger: logger}
}

// Scenes lists every scene.
func (e *Engine) Scenes(ctx context.Context) ([]Scene, error) {
	return e.repo.List(ctx)
}

// Activate runs the scene identified by id (or slug) and reports what
// happened.
//
// Parameters:
//   - ctx: Parent context; the run is capped at maxSceneExecutionTime
//   - id: Scene id or slug
//   - source: Who triggered it, recorded on every device change
//
// Returns:
//   - *Execution: Timing and per-action failures
//   - error: Only for a missing or disabled scene
func (e *Engine) Activate(ctx context.Context, id, source string) (*Execution, error) {
	ctx, cancel := context.WithTimeout(ctx, maxSceneExecutionTime)
	defer cancel()

	scene, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scene.Enabled {
		return nil, ErrSceneDisabled
	}
	if source == "" {
		source = device.SourceScene
	}

	started := time.Now().UTC()
	exec := &Execution{
		ID:           GenerateID(),
		SceneID:      scene.ID,
		SceneName:    scene.Name,
		Source:       source,
		TriggeredAt:  started,
		ActionsTotal: len(scene.Actions),
	}

	e.logger.Info("scene activation started",
		"scene_id", scene.ID,
		"scene_name", scene.Name,
		"execution_id", exec.ID,
		"actions", len(scene.Actions),
	)

	aborted := false
	offset := 0
	for _, group := range groupActions(scene.Actions) {
		base := offset
		offset += len(group)

		if aborted {
			exec.ActionsSkipped += len(group)
			continue
		}
		if ctx.Err() != nil {
			exec.ActionsSkipped += len(group)
			exec.Status = StatusCancelled
			aborted = true
			continue
		}

		changed, failures := e.executeGroup(ctx, base, group)
		exec.DevicesChanged += changed
		exec.ActionsCompleted += len(group) - len(failures)
		exec.ActionsFailed += len(failures)
		exec.Failures = append(exec.Failures, failures...)

		for _, f := range failures {
			if !scene.Actions[f.ActionIndex].ContinueOnError {
				aborted = true
				break
			}
		}
	}

	exec.CompletedAt = time.Now().UTC()
	exec.DurationMS = exec.CompletedAt.Sub(started).Milliseconds()

	switch {
	case exec.Status == StatusCancelled:
	case exec.ActionsFailed > 0 && aborted:
		exec.Status = StatusFailed
	case exec.ActionsFailed > 0:
		exec.Status = StatusPartial
	default:
		exec.Status = StatusCompleted
	}

	e.logger.Info("scene activation complete",
		"scene_id", scene.ID,
		"execution_id", exec.ID,
		"status", exec.Status,
		"completed", exec.ActionsCompleted,
		"failed", exec.ActionsFailed,
		"skipped", exec.ActionsSkipped,
		"devices", exec.DevicesChanged,
		"duration_ms", exec.DurationMS,
	)

	if e.hub != nil {
		e.hub.Broadcast(EventSceneActivated, exec)
	}
	return exec, nil
}

// executeGroup runs a group concurrently and returns the number of devices
// changed and the failed actions. base is the group's offset in the scene.
func (e *Engine) executeGroup(ctx context.Context, base int, actions []SceneAction) (int, []ActionFailure) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		changed  int
		failures []ActionFailure
	)

	for i, action := range actions {
		wg.Add(1)
		go func(idx int, a SceneAction) {
			defer wg.Done()

			n, err := e.executeAction(ctx, a)
			mu.Lock()
			defer mu.Unlock()
			changed += n
			if err != nil {
				failures = append(failures, ActionFailure{
					ActionIndex: idx,
					DeviceID:    a.DeviceID,
					ErrorMsg:    err.Error(),
				})
			}
		}(base+i, action)
	}

	wg.Wait()
	return changed, failures
}

// executeAction applies one action to its targets. A selector matching no
// devices succeeds with nothing changed.
func (e *Engine) executeAction(ctx context.Context, action SceneAction) (int, error) {
	if action.DelayMS > 0 {
		t := time.NewTimer(time.Duration(action.DelayMS) * time.Millisecond)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return 0, fmt.Errorf("action delayed: %w", ctx.Err())
		}
	}

	targets, err := resolveTargets(e.devices.Devices(), action)
	if err != nil {
		return 0, err
	}

	changed := 0
	var errs []error
	for _, d := range targets {
		if _, err := e.devices.Update(ctx, action.Update(d.ID), device.SourceScene); err != nil {
			errs = append(errs, fmt.Errorf("device %q: %w", d.ID, err))
			continue
		}
		changed++
	}
	return changed, errors.Join(errs...)
}

// resolveTargets returns the devices an action applies to.
func resolveTargets(devices []device.Device, action SceneAction) ([]device.Device, error) {
	if action.DeviceID != "" {
		for _, d := range devices {
			if d.ID == action.DeviceID {
				return []device.Device{d}, nil
			}
		}
		return nil, fmt.Errorf("device %q: %w", action.DeviceID, device.ErrDeviceNotFound)
	}
	if action.Selector == nil {
		return nil, ErrInvalidAction
	}

	var out []device.Device
	for _, d := range devices {
		if action.Selector.Matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// groupActions splits actions into sequential groups based on the Parallel flag.
//
// The first action always starts a new group. Subsequent actions with
// Parallel=true join the current group; Parallel=false starts a new group.
//
//	actions: [A(parallel=false), B(parallel=true), C(parallel=true), D(parallel=false)]
//	groups:  [[A, B, C], [D]]
func groupActions(actions []SceneAction) [][]SceneAction {
	if len(actions) == 0 {
		return nil
	}

	var groups [][]SceneAction
	current := []SceneAction{actions[0]}

	for _, action := range actions[1:] {
		if action.Parallel {
			current = append(current, action)
		} else {
			groups = append(groups, current)
			current = []SceneAction{action}
		}
	}
	return append(groups, current)
}
