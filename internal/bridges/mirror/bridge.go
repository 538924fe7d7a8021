package mirror

import (
	"context"
	"fmt"
	"sync"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/mqtt"
)

const queueSize = 256

// Client is the subset of *mqtt.Client the bridge uses.
type Client interface {
	Topics() mqtt.Topics
	QoS() byte
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// DeviceController applies commands and supplies the initial state.
type DeviceController interface {
	Devices() []device.Device
	Update(ctx context.Context, u device.Update, source string) (device.Device, error)
	Toggle(ctx context.Context, id, source string) (device.Device, error)
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// Bridge publishes store changes and applies incoming commands.
//
// Observe never blocks the store: changes are queued and published by Run.
// When the queue is full the change is dropped; the next change for the
// same device carries the full state again.
type Bridge struct {
	client  Client
	devices DeviceController
	topics  mqtt.Topics
	logger  Logger

	queue chan device.Change

	mu  sync.RWMutex
	ctx context.Context
}

// New creates a bridge. Call Run to start it.
func New(client Client, devices DeviceController, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		client:  client,
		devices: devices,
		topics:  client.Topics(),
		logger:  logger,
		queue:   make(chan device.Change, queueSize),
		ctx:     context.Background(),
	}
}

// Run subscribes to commands, publishes the current list and then
// publishes queued changes until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	topic := b.topics.AllDeviceCommands()
	if err := b.client.Subscribe(topic, b.client.QoS(), b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("mqtt bridge started", "commands", topic)

	b.publishAll(b.devices.Devices())

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-b.queue:
			b.publishChange(c)
		}
	}
}

// Observe is a device.Store listener.
func (b *Bridge) Observe(c device.Change) {
	select {
	case b.queue <- c:
	default:
		b.logger.Warn("mqtt publish queue full, dropping change", "kind", c.Kind)
	}
}

func (b *Bridge) publishChange(c device.Change) {
	switch c.Kind {
	case device.ChangeReplaced:
		b.publishAll(c.Devices)
	case device.ChangeDeleted:
		if c.Device != nil {
			b.clear(c.Device.ID)
		}
	default:
		if c.Device != nil {
			b.publish(*c.Device)
		}
	}
}

func (b *Bridge) publishAll(devices []device.Device) {
	for _, d := range devices {
		b.publish(d)
	}
}

func (b *Bridge) publish(d device.Device) {
	payload, err := statePayload(d)
	if err != nil {
		b.logger.Warn("encoding device state failed", "device_id", d.ID, "error", err)
		return
	}
	if err := b.client.PublishRetained(b.topics.DeviceState(d.ID), payload); err != nil {
		b.logger.Warn("publishing device state failed", "device_id", d.ID, "error", err)
	}
}

// clear removes the retained state of a deleted device.
func (b *Bridge) clear(id string) {
	if err := b.client.PublishRetained(b.topics.DeviceState(id), nil); err != nil {
		b.logger.Warn("clearing device state failed", "device_id", id, "error", err)
	}
}

func (b *Bridge) handleCommand(topic string, payload []byte) error {
	id, ok := b.topics.CommandDeviceID(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	cmd, err := parseCommand(payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	ctx := b.ctx
	b.mu.RUnlock()

	if cmd.Toggle {
		if _, err := b.devices.Toggle(ctx, id, device.SourceMQTT); err != nil {
			return fmt.Errorf("toggle %s: %w", id, err)
		}
		b.logger.Debug("mqtt toggle applied", "device_id", id)
		return nil
	}

	u := device.Update{ID: id, IsOn: cmd.IsOn, Value: cmd.Value}
	if _, err := b.devices.Update(ctx, u, device.SourceMQTT); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	b.logger.Debug("mqtt command applied", "device_id", id)
	return nil
}
