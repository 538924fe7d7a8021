package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/infrastructure/docstore"
)

// Mode is the active storage mode.
type Mode string

// Storage modes.
const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ConfigSource names where the remote configuration in use came from.
type ConfigSource string

// Config sources.
const (
	SourceNone     ConfigSource = ""
	SourceFile     ConfigSource = "config"
	SourceOverride ConfigSource = "override"
)

// Logger is the logging interface used by the persistence package.
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

// RemoteBackend is the remote document store. docstore.Client implements it.
type RemoteBackend interface {
	SaveDevices(ctx context.Context, devices []device.Device) error
	UpsertDevice(ctx context.Context, d device.Device) error
	UpdateDevice(ctx context.Context, u device.Update) error
	DeleteDevice(ctx context.Context, id string) error
	SubscribeDevices(ctx context.Context, onData func([]device.Device), onError func(error)) func()
	SaveIntegration(ctx context.Context, provider string, data map[string]any) error
	GetIntegration(ctx context.Context, provider string) (map[string]any, error)
	Close() error
}

// Opener connects to a remote backend.
type Opener func(ctx context.Context, cfg config.RemoteConfig) (RemoteBackend, error)

// OpenDocstore is the production Opener.
func OpenDocstore(ctx context.Context, cfg config.RemoteConfig) (RemoteBackend, error) {
	c, err := docstore.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options configures an Adapter.
type Options struct {
	Local    device.Repository
	Settings *SettingsRepository

	// Defaults is the remote configuration from the config file.
	Defaults config.RemoteConfig

	// OverrideKey is the settings key of a user-supplied remote configuration.
	OverrideKey string

	// Open defaults to OpenDocstore.
	Open Opener

	Logger Logger
}

// Status describes the adapter for the settings screen.
type Status struct {
	Mode      Mode                `json:"mode"`
	Connected bool                `json:"connected"`
	Source    ConfigSource        `json:"source"`
	Config    config.RemoteConfig `json:"config"`
	LastError string              `json:"last_error,omitempty"`
}

// Adapter stores device records locally and, when a valid remote
// configuration is present, mirrors them to the remote document store.
//
// Every write goes to the local store first. In remote mode the same write
// is then sent to the remote store; a remote failure is returned wrapped
// in ErrRemoteWrite but the local write stands.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Local listeners run on the writer's goroutine after the local write.
//   - Re-initialisation swaps the remote store under mu; in-flight writes
//     finish against the store they started with.
type Adapter struct {
	local       device.Repository
	settings    *SettingsRepository
	overrideKey string
	open        Opener
	logger      Logger

	mu       sync.RWMutex
	defaults config.RemoteConfig
	remote   RemoteBackend
	active   config.RemoteConfig
	source   ConfigSource
	lastErr  string

	listenMu       sync.Mutex
	nextID         int
	localListen    map[int]func([]device.Device)
	reconfigListen map[int]func(Mode)
}

// New creates an adapter and selects the storage mode.
//
// It performs the following setup:
//  1. Fills defaults for the opener, logger and override key
//  2. Reads the stored override, falling back to the file defaults
//  3. Opens the remote store when that configuration is valid
//  4. Falls back to local mode, logging why, when the open fails
//
// Parameters:
//   - ctx: Bounds the settings read and remote open
//   - opts: Local repositories, file defaults and remote opener
//
// Returns:
//   - *Adapter: Ready in local or remote mode
//   - error: Only when the local repositories are missing
func New(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.Local == nil || opts.Settings == nil {
		return nil, errors.New("persistence: local repository and settings are required")
	}
	if opts.Open == nil {
		opts.Open = OpenDocstore
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.OverrideKey == "" {
		opts.OverrideKey = "omnihome_firebase_config"
	}

	a := &Adapter{
		local:          opts.Local,
		settings:       opts.Settings,
		overrideKey:    opts.OverrideKey,
		open:           opts.Open,
		logger:         opts.Logger,
		defaults:       opts.Defaults,
		localListen:    make(map[int]func([]device.Device)),
		reconfigListen: make(map[int]func(Mode)),
	}
	a.init(ctx)
	return a, nil
}

// init picks the configuration (stored override first, then file
// defaults) and opens the remote store when it is valid.
// Callers must not hold mu.
func (a *Adapter) init(ctx context.Context) {
	cfg, source := a.selectConfig(ctx)

	var (
		remote  RemoteBackend
		lastErr string
	)
	if source != SourceNone && cfg.Valid() {
		r, err := a.open(ctx, cfg)
		if err != nil {
			a.logger.Warn("remote store unavailable, using local storage", "project_id", cfg.ProjectID, "error", err)
			lastErr = err.Error()
		} else {
			remote = r
		}
	}

	a.mu.Lock()
	old := a.remote
	a.remote = remote
	a.active = cfg
	a.source = source
	a.lastErr = lastErr
	a.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			a.logger.Warn("closing previous remote store", "error", err)
		}
	}

	mode := a.Mode()
	a.logger.Info("storage initialised", "mode", mode, "source", source, "project_id", cfg.ProjectID)
	a.notifyReconfigure(mode)
}

func (a *Adapter) selectConfig(ctx context.Context) (config.RemoteConfig, ConfigSource) {
	var override config.RemoteConfig
	err := a.settings.Get(ctx, a.overrideKey, &override)
	switch {
	case err == nil && override.ProjectID != "":
		return override, SourceOverride
	case err != nil && !errors.Is(err, ErrSettingNotFound):
		a.logger.Warn("ignoring unreadable storage override", "error", err)
	}

	a.mu.RLock()
	defaults := a.defaults
	a.mu.RUnlock()
	if defaults.Valid() {
		return defaults, SourceFile
	}
	return config.RemoteConfig{}, SourceNone
}

// Mode returns the active storage mode.
func (a *Adapter) Mode() Mode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.remote != nil {
		return ModeRemote
	}
	return ModeLocal
}

// IsConnected reports whether the remote store is in use.
func (a *Adapter) IsConnected() bool {
	return a.Mode() == ModeRemote
}

// ActiveConfig returns the remote configuration in use with credentials
// masked. It is zero in local mode without a configured project.
func (a *Adapter) ActiveConfig() config.RemoteConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active.Masked()
}

// Status returns the mode and the masked configuration in use.
func (a *Adapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	mode := ModeLocal
	if a.remote != nil {
		mode = ModeRemote
	}
	return Status{
		Mode:      mode,
		Connected: a.remote != nil,
		Source:    a.source,
		Config:    a.active.Masked(),
		LastError: a.lastErr,
	}
}

func (a *Adapter) backend() RemoteBackend {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.remote
}

func (a *Adapter) remoteFailed(op string, err error) error {
	a.mu.Lock()
	a.lastErr = err.Error()
	a.mu.Unlock()
	a.logger.Error("remote write failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrRemoteWrite, op, err)
}

// LoadLocal returns the locally stored list.
func (a *Adapter) LoadLocal(ctx context.Context) ([]device.Device, error) {
	return a.local.List(ctx)
}

// SaveDevices replaces the local list and emits a local update, then writes
// every device to the remote store.
func (a *Adapter) SaveDevices(ctx context.Context, devices []device.Device) error {
	if err := a.local.ReplaceAll(ctx, devices); err != nil {
		return fmt.Errorf("saving devices locally: %w", err)
	}
	a.emitLocal(ctx)

	if remote := a.backend(); remote != nil {
		if err := remote.SaveDevices(ctx, devices); err != nil {
			return a.remoteFailed("save devices", err)
		}
		a.logger.Debug("devices saved to remote store", "count", len(devices))
	}
	return nil
}

// UpdateDevice merges u into the local record and emits a local update,
// then updates the remote document. A device missing locally is skipped
// locally but still sent to the remote store.
func (a *Adapter) UpdateDevice(ctx context.Context, u device.Update) error {
	if _, err := a.local.Patch(ctx, u); err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			return fmt.Errorf("updating device locally: %w", err)
		}
		a.logger.Debug("device not stored locally", "device_id", u.ID)
	} else {
		a.emitLocal(ctx)
	}

	if remote := a.backend(); remote != nil {
		if err := remote.UpdateDevice(ctx, u); err != nil {
			return a.remoteFailed("update device", err)
		}
	}
	return nil
}

// CreateDevice stores a new device locally, then remotely.
func (a *Adapter) CreateDevice(ctx context.Context, d device.Device) error {
	if err := a.local.Upsert(ctx, &d); err != nil {
		return fmt.Errorf("creating device locally: %w", err)
	}
	a.emitLocal(ctx)

	if remote := a.backend(); remote != nil {
		if err := remote.UpsertDevice(ctx, d); err != nil {
			return a.remoteFailed("create device", err)
		}
	}
	return nil
}

// DeleteDevice removes a device locally, then remotely.
func (a *Adapter) DeleteDevice(ctx context.Context, id string) error {
	if err := a.local.Delete(ctx, id); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		return fmt.Errorf("deleting device locally: %w", err)
	}
	a.emitLocal(ctx)

	if remote := a.backend(); remote != nil {
		if err := remote.DeleteDevice(ctx, id); err != nil {
			return a.remoteFailed("delete device", err)
		}
	}
	return nil
}

// SubscribeToDevices delivers the device list to onData.
//
// In local mode the stored list (empty when nothing is stored) is delivered
// once. In remote mode every remote snapshot is delivered, sorted by name;
// if the listener fails, onError receives the error (ErrPermissionDenied for
// rejected access) and the local list is delivered as a fallback.
//
// The returned function stops the subscription.
func (a *Adapter) SubscribeToDevices(ctx context.Context, onData func([]device.Device), onError func(error)) func() {
	if onError == nil {
		onError = func(error) {}
	}

	remote := a.backend()
	if remote == nil {
		list, err := a.local.List(ctx)
		if err != nil {
			onError(fmt.Errorf("loading local devices: %w", err))
			list = []device.Device{}
		}
		onData(list)
		return func() {}
	}

	return remote.SubscribeDevices(ctx, onData, func(err error) {
		a.mu.Lock()
		a.lastErr = ErrorCode(err)
		a.mu.Unlock()
		a.logger.Error("remote subscription failed, falling back to local list", "error", err)
		onError(err)

		list, lerr := a.local.List(ctx)
		if lerr != nil {
			a.logger.Error("loading local fallback list", "error", lerr)
			return
		}
		if len(list) > 0 {
			onData(list)
		}
	})
}

// ListenLocal registers fn for every local write. It receives the full
// stored list. The returned function removes the listener.
func (a *Adapter) ListenLocal(fn func([]device.Device)) func() {
	a.listenMu.Lock()
	id := a.nextID
	a.nextID++
	a.localListen[id] = fn
	a.listenMu.Unlock()
	return func() {
		a.listenMu.Lock()
		delete(a.localListen, id)
		a.listenMu.Unlock()
	}
}

// OnReconfigure registers fn for every re-initialisation.
func (a *Adapter) OnReconfigure(fn func(Mode)) func() {
	a.listenMu.Lock()
	id := a.nextID
	a.nextID++
	a.reconfigListen[id] = fn
	a.listenMu.Unlock()
	return func() {
		a.listenMu.Lock()
		delete(a.reconfigListen, id)
		a.listenMu.Unlock()
	}
}

func (a *Adapter) emitLocal(ctx context.Context) {
	a.listenMu.Lock()
	fns := make([]func([]device.Device), 0, len(a.localListen))
	for _, fn := range a.localListen {
		fns = append(fns, fn)
	}
	a.listenMu.Unlock()
	if len(fns) == 0 {
		return
	}

	list, err := a.local.List(ctx)
	if err != nil {
		a.logger.Warn("reading local list for listeners", "error", err)
		return
	}
	for _, fn := range fns {
		fn(list)
	}
}

func (a *Adapter) notifyReconfigure(mode Mode) {
	a.listenMu.Lock()
	fns := make([]func(Mode), 0, len(a.reconfigListen))
	for _, fn := range a.reconfigListen {
		fns = append(fns, fn)
	}
	a.listenMu.Unlock()
	for _, fn := range fns {
		fn(mode)
	}
}

func integrationKey(provider string) string {
	return docstore.IntegrationDocID(provider)
}

// SaveIntegrationConfig stores provider credentials: in the remote settings
// collection in remote mode, in the local settings table otherwise.
func (a *Adapter) SaveIntegrationConfig(ctx context.Context, provider string, creds map[string]any) error {
	if strings.TrimSpace(provider) == "" {
		return errors.New("persistence: provider is required")
	}
	if remote := a.backend(); remote != nil {
		if err := remote.SaveIntegration(ctx, provider, creds); err != nil {
			return a.remoteFailed("save integration", err)
		}
		return nil
	}
	return a.settings.Put(ctx, integrationKey(provider), creds)
}

// GetIntegrationConfig returns stored provider credentials, or nil.
func (a *Adapter) GetIntegrationConfig(ctx context.Context, provider string) (map[string]any, error) {
	if remote := a.backend(); remote != nil {
		return remote.GetIntegration(ctx, provider)
	}
	var creds map[string]any
	err := a.settings.Get(ctx, integrationKey(provider), &creds)
	if errors.Is(err, ErrSettingNotFound) {
		return nil, nil
	}
	return creds, err
}

// UpdateConfig stores a remote configuration override and re-initialises.
//
// Parameters:
//   - ctx: Bounds the settings write and remote open
//   - cfg: Override to store; ProjectID is required
//
// Returns:
//   - error: ErrInvalidConfig, or the settings write error
func (a *Adapter) UpdateConfig(ctx context.Context, cfg config.RemoteConfig) error {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return fmt.Errorf("%w: project_id is required", ErrInvalidConfig)
	}
	if err := a.settings.Put(ctx, a.overrideKey, cfg); err != nil {
		return err
	}
	a.init(ctx)
	return nil
}

// ResetConfig removes the override and re-initialises from the file defaults.
func (a *Adapter) ResetConfig(ctx context.Context) error {
	if err := a.settings.Delete(ctx, a.overrideKey); err != nil {
		return err
	}
	a.init(ctx)
	return nil
}

// Reconfigure replaces the file defaults, as after a config file reload,
// and re-initialises when they changed.
func (a *Adapter) Reconfigure(ctx context.Context, defaults config.RemoteConfig) {
	a.mu.Lock()
	changed := a.defaults != defaults
	a.defaults = defaults
	a.mu.Unlock()
	if changed {
		a.init(ctx)
	}
}

// Close closes the remote store, if any.
func (a *Adapter) Close() error {
	a.mu.Lock()
	remote := a.remote
	a.remote = nil
	a.mu.Unlock()
	if remote == nil {
		return nil
	}
	return remote.Close()
}
