package automation

import (
	"time"

	"github.com/mblarson/omnihome/internal/device"
)

// Scene is a named set of device changes applied together from the
// dashboard's scene strip.
type Scene struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Enabled     bool   `json:"enabled"`
	SortOrder   int    `json:"sort_order"`

	// Actions run in order, grouped by the Parallel flag.
	Actions []SceneAction `json:"actions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Selector matches devices by type and/or room. Empty fields match
// anything; at least one must be set.
type Selector struct {
	Type device.DeviceType `json:"type,omitempty"`
	Room string            `json:"room,omitempty"`
}

// Matches reports whether d satisfies the selector. Rooms compare without
// case.
func (s Selector) Matches(d device.Device) bool {
	if s.Type != "" && d.Type != s.Type {
		return false
	}
	if s.Room != "" && !equalFold(d.Room, s.Room) {
		return false
	}
	return true
}

// SceneAction changes one device, or every device a selector matches.
//
// Actions execute in order. When Parallel is true the action joins the
// previous action's group and runs concurrently with it; otherwise it
// starts a new group that waits for the previous one.
type SceneAction struct {
	DeviceID string    `json:"device_id,omitempty"`
	Selector *Selector `json:"selector,omitempty"`

	IsOn  *bool `json:"is_on,omitempty"`
	Value any   `json:"value,omitempty"`

	// DelayMS waits before the action runs.
	DelayMS int `json:"delay_ms,omitempty"`

	Parallel bool `json:"parallel,omitempty"`

	// ContinueOnError keeps the scene running when this action fails.
	ContinueOnError bool `json:"continue_on_error,omitempty"`
}

// Update returns the device update the action applies to id.
func (a SceneAction) Update(id string) device.Update {
	u := device.Update{ID: id, Value: a.Value}
	if a.IsOn != nil {
		u.IsOn = device.Bool(*a.IsOn)
	}
	return u
}

// Execution is the result of one scene activation.
type Execution struct {
	ID          string          `json:"id"`
	SceneID     string          `json:"scene_id"`
	SceneName   string          `json:"scene_name"`
	Source      string          `json:"source"`
	TriggeredAt time.Time       `json:"triggered_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Status      ExecutionStatus `json:"status"`

	ActionsTotal     int `json:"actions_total"`
	ActionsCompleted int `json:"actions_completed"`
	ActionsFailed    int `json:"actions_failed"`
	ActionsSkipped   int `json:"actions_skipped"`
	DevicesChanged   int `json:"devices_changed"`

	Failures   []ActionFailure `json:"failures,omitempty"`
	DurationMS int64           `json:"duration_ms"`
}

// ActionFailure records a failed action.
type ActionFailure struct {
	ActionIndex int    `json:"action_index"`
	DeviceID    string `json:"device_id,omitempty"`
	ErrorMsg    string `json:"error_message"`
}

// ExecutionStatus is the outcome of an activation.
type ExecutionStatus string

// Execution outcomes.
const (
	StatusCompleted ExecutionStatus = "completed"
	StatusPartial   ExecutionStatus = "partial"   // some actions failed, scene continued
	StatusFailed    ExecutionStatus = "failed"    // a fail-fast action failed, scene aborted
	StatusCancelled ExecutionStatus = "cancelled" // context cancelled mid-execution
)

// DeepCopy returns a copy sharing no slices or pointers with s.
func (s *Scene) DeepCopy() *Scene {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.Actions != nil {
		cpy.Actions = make([]SceneAction, len(s.Actions))
		for i, a := range s.Actions {
			cpy.Actions[i] = a
			if a.Selector != nil {
				sel := *a.Selector
				cpy.Actions[i].Selector = &sel
			}
			if a.IsOn != nil {
				cpy.Actions[i].IsOn = device.Bool(*a.IsOn)
			}
		}
	}
	return &cpy
}
