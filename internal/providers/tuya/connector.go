package tuya

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mblarson/omnihome/internal/device"
)

// Logger is the logging interface used by the tuya package.
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

const statusConcurrency = 4

// Options configures a Connector.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client

	// SyncDelay paces the simulated import used when the cloud is
	// unreachable.
	SyncDelay time.Duration

	Logger Logger
}

// Connector imports devices from a Tuya cloud project and forwards state
// changes back to them. When the cloud cannot be reached it switches to a
// simulated mode with a canned device list.
type Connector struct {
	client    *Client
	syncDelay time.Duration
	logger    Logger

	mu        sync.RWMutex
	simulated bool
}

// NewConnector validates creds and creates a connector.
func NewConnector(creds Credentials, opts Options) (*Connector, error) {
	client, err := NewClient(creds, opts.BaseURL, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Connector{client: client, syncDelay: opts.SyncDelay, logger: opts.Logger}, nil
}

// Name returns the provider name.
func (c *Connector) Name() string { return "Tuya" }

// Simulated reports whether the connector fell back to canned data.
func (c *Connector) Simulated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.simulated
}

func (c *Connector) fallBack(op string, err error) {
	c.mu.Lock()
	c.simulated = true
	c.mu.Unlock()
	c.logger.Warn("tuya cloud unreachable, using simulated devices", "op", op, "error", err)
}

// Connect authenticates with the cloud. An unreachable cloud is not an
// error; the connector continues in simulated mode.
func (c *Connector) Connect(ctx context.Context) error {
	err := c.client.Connect(ctx)
	switch {
	case err == nil:
		c.logger.Info("tuya authentication successful")
		return nil
	case errors.Is(err, ErrTransport):
		c.fallBack("connect", err)
		return nil
	default:
		return err
	}
}

// SyncDevices lists and maps every device. Devices listed without status
// are queried individually.
func (c *Connector) SyncDevices(ctx context.Context) ([]device.Device, error) {
	if c.Simulated() {
		return c.simulatedDevices(ctx)
	}

	listed, err := c.client.Devices(ctx)
	if errors.Is(err, ErrTransport) {
		c.fallBack("sync", err)
		return c.simulatedDevices(ctx)
	}
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for i := range listed {
		if len(listed[i].Status) > 0 {
			continue
		}
		g.Go(func() error {
			st, err := c.client.DeviceStatus(gctx, listed[i].ID)
			if err != nil {
				c.logger.Warn("reading tuya device status", "device_id", listed[i].ID, "error", err)
				return nil
			}
			listed[i].Status = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]device.Device, 0, len(listed))
	for _, td := range listed {
		out = append(out, MapDevice(td))
	}
	c.logger.Info("tuya devices imported", "count", len(out))
	return out, nil
}

func (c *Connector) simulatedDevices(ctx context.Context) ([]device.Device, error) {
	if c.syncDelay > 0 {
		t := time.NewTimer(c.syncDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return FallbackDevices(), nil
}

// Handles reports whether d is a real Tuya device this connector controls.
func (c *Connector) Handles(d device.Device) bool {
	return d.Provider == device.ProviderTuya && d.ExternalID != "" && !c.Simulated()
}

// Actuate sends u to the physical device behind d.
func (c *Connector) Actuate(ctx context.Context, d device.Device, u device.Update) error {
	cmds := CommandsFor(d, u)
	if len(cmds) == 0 {
		return nil
	}
	if err := c.client.SendCommand(ctx, d.ExternalID, cmds); err != nil {
		return fmt.Errorf("actuating %s: %w", d.Name, err)
	}
	return nil
}
