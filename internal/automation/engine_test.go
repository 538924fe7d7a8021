package automation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mblarson/omnihome/internal/device"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type memRepository struct {
	mu     sync.Mutex
	scenes map[string]*Scene
}

func newMemRepository(scenes ...Scene) *memRepository {
	r := &memRepository{scenes: make(map[string]*Scene)}
	for i := range scenes {
		r.scenes[scenes[i].ID] = scenes[i].DeepCopy()
	}
	return r
}

func (r *memRepository) List(context.Context) ([]Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Scene, 0, len(r.scenes))
	for _, s := range r.scenes {
		out = append(out, *s.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r *memRepository) Get(_ context.Context, id string) (*Scene, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.scenes {
		if s.ID == id || s.Slug == id {
			return s.DeepCopy(), nil
		}
	}
	return nil, ErrSceneNotFound
}

func (r *memRepository) Create(_ context.Context, s *Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scenes[s.ID]; ok {
		return ErrSceneExists
	}
	r.scenes[s.ID] = s.DeepCopy()
	return nil
}

func (r *memRepository) Update(_ context.Context, s *Scene) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scenes[s.ID]; !ok {
		return ErrSceneNotFound
	}
	r.scenes[s.ID] = s.DeepCopy()
	return nil
}

func (r *memRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scenes[id]; !ok {
		return ErrSceneNotFound
	}
	delete(r.scenes, id)
	return nil
}

// fakeDevices applies updates to an in-memory list and records their order.
type fakeDevices struct {
	mu      sync.Mutex
	list    []device.Device
	updates []device.Update
	sources []string
	failIDs map[string]bool
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{list: device.InitialDevices(), failIDs: map[string]bool{}}
}

func (f *fakeDevices) Devices() []device.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]device.Device(nil), f.list...)
}

func (f *fakeDevices) Update(_ context.Context, u device.Update, source string) (device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIDs[u.ID] {
		return device.Device{}, errors.New("mirror offline")
	}
	for i := range f.list {
		if f.list[i].ID == u.ID {
			f.list[i] = device.Apply(f.list[i], u)
			f.updates = append(f.updates, u)
			f.sources = append(f.sources, source)
			return f.list[i], nil
		}
	}
	return device.Device{}, device.ErrDeviceNotFound
}

func (f *fakeDevices) get(id string) device.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.list {
		if d.ID == id {
			return d
		}
	}
	return device.Device{}
}

type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	h.events = append(h.events, channel)
	h.mu.Unlock()
}

func testScene(id string, actions ...SceneAction) Scene {
	return Scene{ID: id, Name: id, Slug: GenerateSlug(id), Enabled: true, Actions: actions}
}

// ─── Tests ──────────────────────────────────────────────────────────────────

func TestEngine_ActivateDefaultScenes(t *testing.T) {
	tests := []struct {
		id    string
		check func(t *testing.T, d *fakeDevices)
	}{
		{
			id: "morning",
			check: func(t *testing.T, d *fakeDevices) {
				if k := d.get("dev_2"); !k.IsOn || k.Value != 100.0 {
					t.Errorf("kitchen = %+v, want on at 100", k)
				}
				if th := d.get("dev_3"); th.Value != 21.0 {
					t.Errorf("thermostat = %v, want 21", th.Value)
				}
				if b := d.get("dev_5"); b.IsOn {
					t.Error("bedroom light turned on by morning scene")
				}
			},
		},
		{
			id: "away",
			check: func(t *testing.T, d *fakeDevices) {
				for _, id := range []string{"dev_1", "dev_2", "dev_5"} {
					if d.get(id).IsOn {
						t.Errorf("%s still on", id)
					}
				}
				if lock := d.get("dev_4"); !lock.IsOn || lock.Value != "Locked" {
					t.Errorf("lock = %+v", lock)
				}
			},
		},
		{
			id: "movie-night",
			check: func(t *testing.T, d *fakeDevices) {
				if l := d.get("dev_1"); !l.IsOn || l.Value != 20.0 {
					t.Errorf("living room = %+v, want on at 20", l)
				}
			},
		},
		{
			id: "bedtime",
			check: func(t *testing.T, d *fakeDevices) {
				if l := d.get("dev_1"); l.IsOn {
					t.Error("living room light still on")
				}
				if b := d.get("dev_5"); !b.IsOn || b.Value != 10.0 {
					t.Errorf("bedroom = %+v, want on at 10", b)
				}
				if th := d.get("dev_3"); !th.IsOn || th.Value != 18.0 {
					t.Errorf("thermostat = %+v, want on at 18", th)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			devices := newFakeDevices()
			hub := &recordingHub{}
			engine := NewEngine(newMemRepository(DefaultScenes()...), devices, hub, nil)

			exec, err := engine.Activate(context.Background(), tt.id, device.SourceUser)
			if err != nil {
				t.Fatalf("Activate() error = %v", err)
			}
			if exec.Status != StatusCompleted {
				t.Errorf("Status = %q, failures = %+v", exec.Status, exec.Failures)
			}
			if exec.ActionsCompleted != exec.ActionsTotal {
				t.Errorf("completed %d of %d", exec.ActionsCompleted, exec.ActionsTotal)
			}
			for _, src := range devices.sources {
				if src != device.SourceScene {
					t.Errorf("update source = %q", src)
				}
			}
			if len(hub.events) != 1 || hub.events[0] != EventSceneActivated {
				t.Errorf("broadcasts = %v", hub.events)
			}
			tt.check(t, devices)
		})
	}
}

func TestEngine_BedtimeOrder(t *testing.T) {
	devices := newFakeDevices()
	engine := NewEngine(newMemRepository(DefaultScenes()...), devices, nil, nil)

	if _, err := engine.Activate(context.Background(), "scene_bedtime", ""); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	// The bedroom lamp comes on in the second group, after every light
	// has been switched off.
	last := devices.updates[len(devices.updates)-1]
	if last.ID != "dev_5" || !*last.IsOn {
		t.Errorf("last update = %+v, want dev_5 on", last)
	}
}

func TestEngine_ActivateErrors(t *testing.T) {
	disabled := testScene("off", SceneAction{DeviceID: "dev_1", IsOn: on()})
	disabled.Enabled = false
	engine := NewEngine(newMemRepository(disabled), newFakeDevices(), nil, nil)

	if _, err := engine.Activate(context.Background(), "missing", ""); !errors.Is(err, ErrSceneNotFound) {
		t.Errorf("missing scene error = %v", err)
	}
	if _, err := engine.Activate(context.Background(), "off", ""); !errors.Is(err, ErrSceneDisabled) {
		t.Errorf("disabled scene error = %v", err)
	}
}

func TestEngine_PartialAndFailed(t *testing.T) {
	t.Run("continue on error", func(t *testing.T) {
		devices := newFakeDevices()
		devices.failIDs["dev_1"] = true
		scene := testScene("s",
			SceneAction{DeviceID: "dev_1", IsOn: off(), ContinueOnError: true},
			SceneAction{DeviceID: "dev_2", IsOn: on()},
		)
		exec, err := NewEngine(newMemRepository(scene), devices, nil, nil).Activate(context.Background(), "s", "")
		if err != nil {
			t.Fatalf("Activate() error = %v", err)
		}
		if exec.Status != StatusPartial || exec.ActionsFailed != 1 || exec.ActionsCompleted != 1 {
			t.Errorf("exec = %+v", exec)
		}
		if !devices.get("dev_2").IsOn {
			t.Error("second action did not run")
		}
	})

	t.Run("fail fast", func(t *testing.T) {
		devices := newFakeDevices()
		scene := testScene("s",
			SceneAction{DeviceID: "ghost", IsOn: on()},
			SceneAction{DeviceID: "dev_2", IsOn: on()},
		)
		exec, err := NewEngine(newMemRepository(scene), devices, nil, nil).Activate(context.Background(), "s", "")
		if err != nil {
			t.Fatalf("Activate() error = %v", err)
		}
		if exec.Status != StatusFailed || exec.ActionsSkipped != 1 {
			t.Errorf("exec = %+v", exec)
		}
		if len(exec.Failures) != 1 || exec.Failures[0].ActionIndex != 0 || exec.Failures[0].DeviceID != "ghost" {
			t.Errorf("failures = %+v", exec.Failures)
		}
		if devices.get("dev_2").IsOn {
			t.Error("action after a fail-fast failure ran")
		}
	})
}

func TestEngine_EmptySelectorSucceeds(t *testing.T) {
	devices := newFakeDevices()
	scene := testScene("s", SceneAction{Selector: &Selector{Type: device.TypeCurtain}, IsOn: on()})
	exec, err := NewEngine(newMemRepository(scene), devices, nil, nil).Activate(context.Background(), "s", "")
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if exec.Status != StatusCompleted || exec.DevicesChanged != 0 {
		t.Errorf("exec = %+v", exec)
	}
}

func TestEngine_CancelledDuringDelay(t *testing.T) {
	devices := newFakeDevices()
	scene := testScene("s",
		SceneAction{DeviceID: "dev_1", IsOn: off(), DelayMS: 5000},
		SceneAction{DeviceID: "dev_2", IsOn: on()},
	)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	exec, err := NewEngine(newMemRepository(scene), devices, nil, nil).Activate(ctx, "s", "")
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if exec.Status != StatusCancelled && exec.Status != StatusFailed {
		t.Errorf("Status = %q, want cancelled or failed", exec.Status)
	}
	if devices.get("dev_2").IsOn {
		t.Error("second group ran after cancellation")
	}
}

func TestGroupActions(t *testing.T) {
	a := SceneAction{DeviceID: "a"}
	b := SceneAction{DeviceID: "b", Parallel: true}
	c := SceneAction{DeviceID: "c", Parallel: true}
	d := SceneAction{DeviceID: "d"}

	groups := groupActions([]SceneAction{a, b, c, d})
	if len(groups) != 2 || len(groups[0]) != 3 || len(groups[1]) != 1 {
		t.Fatalf("groups = %+v", groups)
	}
	if groups[1][0].DeviceID != "d" {
		t.Errorf("second group = %+v", groups[1])
	}
	if groupActions(nil) != nil {
		t.Error("groupActions(nil) should be nil")
	}
}

func TestSelector_Matches(t *testing.T) {
	lamp := device.Device{Type: device.TypeLight, Room: "Living Room"}
	tests := []struct {
		sel  Selector
		want bool
	}{
		{Selector{Type: device.TypeLight}, true},
		{Selector{Room: "living room"}, true},
		{Selector{Type: device.TypeLight, Room: "Kitchen"}, false},
		{Selector{Type: device.TypeLock}, false},
	}
	for _, tt := range tests {
		if got := tt.sel.Matches(lamp); got != tt.want {
			t.Errorf("%+v.Matches() = %v, want %v", tt.sel, got, tt.want)
		}
	}
}
