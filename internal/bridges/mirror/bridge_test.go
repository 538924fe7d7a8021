package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/mqtt"
)

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]mqtt.MessageHandler
	notify    chan struct{}
	subErr    error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]mqtt.MessageHandler{}, notify: make(chan struct{}, 64)}
}

func (f *fakeClient) Topics() mqtt.Topics { return mqtt.NewTopics("omnihome") }
func (f *fakeClient) QoS() byte           { return 1 }

func (f *fakeClient) PublishRetained(topic string, payload []byte) error {
	f.mu.Lock()
	f.published = append(f.published, published{topic, payload})
	f.mu.Unlock()
	f.notify <- struct{}{}
	return nil
}

func (f *fakeClient) Subscribe(topic string, _ byte, h mqtt.MessageHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.mu.Lock()
	f.handlers[topic] = h
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.published))
	for i, p := range f.published {
		out[i] = p.topic
	}
	return out
}

func (f *fakeClient) last() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

func (f *fakeClient) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for publish %d of %d", i+1, n)
		}
	}
}

type fakeDevices struct {
	mu      sync.Mutex
	list    []device.Device
	updates []device.Update
	toggled []string
	sources []string
}

func (f *fakeDevices) Devices() []device.Device { return f.list }

func (f *fakeDevices) Update(_ context.Context, u device.Update, source string) (device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.list {
		if d.ID == u.ID {
			f.updates = append(f.updates, u)
			f.sources = append(f.sources, source)
			return device.Apply(d, u), nil
		}
	}
	return device.Device{}, device.ErrDeviceNotFound
}

func (f *fakeDevices) Toggle(_ context.Context, id, source string) (device.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled = append(f.toggled, id)
	f.sources = append(f.sources, source)
	return device.Device{ID: id}, nil
}

func startBridge(t *testing.T, client *fakeClient, devices *fakeDevices) *Bridge {
	t.Helper()
	b := New(client, devices, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
	return b
}

func TestBridge_PublishesInitialState(t *testing.T) {
	client := newFakeClient()
	devices := &fakeDevices{list: device.InitialDevices()}
	startBridge(t, client, devices)

	client.wait(t, len(devices.list))

	want := make([]string, 0, len(devices.list))
	for _, d := range devices.list {
		want = append(want, "omnihome/state/"+d.ID)
	}
	if diff := cmp.Diff(want, client.topics()); diff != "" {
		t.Errorf("published topics mismatch (-want +got):\n%s", diff)
	}
}

func TestBridge_ObservePublishesChanges(t *testing.T) {
	client := newFakeClient()
	b := startBridge(t, client, &fakeDevices{})

	lamp := device.Device{ID: "dev_1", Name: "Living Room Lamp", Type: device.TypeLight, IsOn: true, Value: 80.0}
	b.Observe(device.Change{Kind: device.ChangeUpdated, Device: &lamp, Source: device.SourceUser})
	client.wait(t, 1)

	got := client.last()
	if got.topic != "omnihome/state/dev_1" {
		t.Errorf("topic = %q", got.topic)
	}
	var decoded device.Device
	if err := json.Unmarshal(got.payload, &decoded); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if decoded.Name != lamp.Name || !decoded.IsOn {
		t.Errorf("decoded = %+v", decoded)
	}

	b.Observe(device.Change{Kind: device.ChangeDeleted, Device: &lamp})
	client.wait(t, 1)
	if got := client.last(); got.topic != "omnihome/state/dev_1" || len(got.payload) != 0 {
		t.Errorf("delete published %q with %d bytes, want empty retained", got.topic, len(got.payload))
	}

	b.Observe(device.Change{Kind: device.ChangeReplaced, Devices: device.InitialDevices()})
	client.wait(t, len(device.InitialDevices()))
}

func TestBridge_Commands(t *testing.T) {
	client := newFakeClient()
	devices := &fakeDevices{list: device.InitialDevices()}
	startBridge(t, client, devices)
	client.wait(t, len(devices.list))

	var handler mqtt.MessageHandler
	for i := 0; i < 100 && handler == nil; i++ {
		client.mu.Lock()
		handler = client.handlers["omnihome/command/+"]
		client.mu.Unlock()
		if handler == nil {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if handler == nil {
		t.Fatal("bridge did not subscribe to command topics")
	}

	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{name: "set value", topic: "omnihome/command/dev_2", payload: `{"is_on":true,"value":40}`},
		{name: "toggle", topic: "omnihome/command/dev_3", payload: `{"toggle":true}`},
		{name: "bad json", topic: "omnihome/command/dev_2", payload: `{`, wantErr: ErrInvalidCommand},
		{name: "empty command", topic: "omnihome/command/dev_2", payload: `{}`, wantErr: ErrInvalidCommand},
		{name: "bad topic", topic: "omnihome/command/a/b", payload: `{"toggle":true}`, wantErr: ErrInvalidTopic},
		{name: "unknown device", topic: "omnihome/command/dev_99", payload: `{"is_on":false}`, wantErr: device.ErrDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler(tt.topic, []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("handler() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	devices.mu.Lock()
	defer devices.mu.Unlock()
	if len(devices.updates) != 1 || devices.updates[0].ID != "dev_2" || devices.updates[0].Value != 40.0 {
		t.Errorf("updates = %+v", devices.updates)
	}
	if diff := cmp.Diff([]string{"dev_3"}, devices.toggled); diff != "" {
		t.Errorf("toggled mismatch (-want +got):\n%s", diff)
	}
	for _, s := range devices.sources {
		if s != device.SourceMQTT {
			t.Errorf("source = %q, want %q", s, device.SourceMQTT)
		}
	}
}

func TestBridge_SubscribeFailure(t *testing.T) {
	client := newFakeClient()
	client.subErr = mqtt.ErrNotConnected
	b := New(client, &fakeDevices{}, nil)
	if err := b.Run(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Run() error = %v, want ErrNotConnected", err)
	}
}
