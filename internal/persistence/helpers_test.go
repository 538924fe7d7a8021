package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/infrastructure/database"
	_ "github.com/mblarson/omnihome/migrations"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeRemote records writes and lets tests drive the snapshot listener.
type fakeRemote struct {
	mu           sync.Mutex
	saved        [][]device.Device
	updates      []device.Update
	upserts      []device.Device
	deletes      []string
	integrations map[string]map[string]any
	writeErr     error
	closed       bool

	onData  func([]device.Device)
	onError func(error)
	subs    int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{integrations: make(map[string]map[string]any)}
}

func (f *fakeRemote) SaveDevices(_ context.Context, devices []device.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.saved = append(f.saved, devices)
	return nil
}

func (f *fakeRemote) UpsertDevice(_ context.Context, d device.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.upserts = append(f.upserts, d)
	return nil
}

func (f *fakeRemote) UpdateDevice(_ context.Context, u device.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeRemote) DeleteDevice(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeRemote) SubscribeDevices(_ context.Context, onData func([]device.Device), onError func(error)) func() {
	f.mu.Lock()
	f.onData = onData
	f.onError = onError
	f.subs++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.onData = nil
		f.onError = nil
		f.mu.Unlock()
	}
}

func (f *fakeRemote) SaveIntegration(_ context.Context, provider string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.integrations[provider] = data
	return nil
}

func (f *fakeRemote) GetIntegration(_ context.Context, provider string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.integrations[provider], nil
}

func (f *fakeRemote) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) push(devices []device.Device) {
	f.mu.Lock()
	fn := f.onData
	f.mu.Unlock()
	if fn != nil {
		fn(devices)
	}
}

func (f *fakeRemote) fail(err error) {
	f.mu.Lock()
	fn := f.onError
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (f *fakeRemote) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs
}

// opener returns an Opener handing out remote, counting calls.
func opener(remote *fakeRemote, calls *int) Opener {
	return func(context.Context, config.RemoteConfig) (RemoteBackend, error) {
		if calls != nil {
			*calls++
		}
		return remote, nil
	}
}

func failingOpener(context.Context, config.RemoteConfig) (RemoteBackend, error) {
	return nil, errors.New("dial failed")
}

var validRemote = config.RemoteConfig{ProjectID: "omnihome-test", APIKey: "AIza-test"}

func newAdapter(t *testing.T, db *database.DB, defaults config.RemoteConfig, open Opener) *Adapter {
	t.Helper()
	a, err := New(context.Background(), Options{
		Local:    device.NewSQLiteRepository(db.DB),
		Settings: NewSettingsRepository(db.DB),
		Defaults: defaults,
		Open:     open,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}
