package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
)

const (
	devicesCollection  = "devices"
	settingsCollection = "settings"
	integrationPrefix  = "integration_"

	// maxBatchWrites is Firestore's per-transaction write limit.
	maxBatchWrites = 500

	pingTimeout = 5 * time.Second
)

// Client is the remote document store holding the shared device list and
// integration settings.
type Client struct {
	fs *firestore.Client
}

// Open connects to Firestore. The emulator host, when set, is exported
// through FIRESTORE_EMULATOR_HOST, which the Firestore library reads.
func Open(ctx context.Context, cfg config.RemoteConfig) (*Client, error) {
	if !cfg.Valid() {
		return nil, ErrInvalidConfig
	}

	var opts []option.ClientOption
	switch {
	case cfg.EmulatorHost != "":
		if err := os.Setenv("FIRESTORE_EMULATOR_HOST", cfg.EmulatorHost); err != nil {
			return nil, fmt.Errorf("setting emulator host: %w", err)
		}
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	databaseID := cfg.DatabaseID
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	fs, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, databaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to firestore: %w", MapError(err))
	}
	return &Client{fs: fs}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if err := c.fs.Close(); err != nil {
		return fmt.Errorf("closing firestore: %w", err)
	}
	return nil
}

// HealthCheck reads one device document to prove the project, database and
// security rules accept this client.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	it := c.fs.Collection(devicesCollection).Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return MapError(err)
	}
	return nil
}

// SaveDevices writes every device to the devices collection, one document
// per id. Existing documents not in the list are left alone.
func (c *Client) SaveDevices(ctx context.Context, devices []device.Device) error {
	col := c.fs.Collection(devicesCollection)
	for start := 0; start < len(devices); start += maxBatchWrites {
		end := min(start+maxBatchWrites, len(devices))
		chunk := devices[start:end]
		err := c.fs.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
			for _, d := range chunk {
				if err := tx.Set(col.Doc(d.ID), encodeDevice(d)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("saving devices: %w", MapError(err))
		}
	}
	return nil
}

// UpsertDevice writes a single device document.
func (c *Client) UpsertDevice(ctx context.Context, d device.Device) error {
	if _, err := c.fs.Collection(devicesCollection).Doc(d.ID).Set(ctx, encodeDevice(d)); err != nil {
		return fmt.Errorf("writing device %s: %w", d.ID, MapError(err))
	}
	return nil
}

// UpdateDevice writes only the fields present in u. A missing document is
// ErrNotFound.
func (c *Client) UpdateDevice(ctx context.Context, u device.Update) error {
	updates := []firestore.Update{{Path: fieldUpdatedAt, Value: firestore.ServerTimestamp}}
	if u.IsOn != nil {
		updates = append(updates, firestore.Update{Path: fieldIsOn, Value: *u.IsOn})
	}
	if u.Value != nil {
		updates = append(updates, firestore.Update{Path: fieldValue, Value: device.NormalizeValue(u.Value)})
	}
	if _, err := c.fs.Collection(devicesCollection).Doc(u.ID).Update(ctx, updates); err != nil {
		return fmt.Errorf("updating device %s: %w", u.ID, MapError(err))
	}
	return nil
}

// DeleteDevice removes a device document. Deleting a missing document succeeds.
func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	if _, err := c.fs.Collection(devicesCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("deleting device %s: %w", id, MapError(err))
	}
	return nil
}

// SubscribeDevices streams the device collection. onData receives the full
// list, sorted by name, on every change. onError receives a terminal
// listener error, after which no more callbacks are made. The returned
// function stops the listener and waits for it to exit.
func (c *Client) SubscribeDevices(ctx context.Context, onData func([]device.Device), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	it := c.fs.Collection(devicesCollection).Snapshots(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				onError(MapError(err))
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				onError(MapError(err))
				return
			}
			devices := make([]device.Device, 0, len(docs))
			for _, doc := range docs {
				devices = append(devices, decodeDevice(doc.Ref.ID, doc.Data()))
			}
			device.SortByName(devices)
			onData(devices)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// IntegrationDocID returns the settings document id for a provider.
func IntegrationDocID(provider string) string {
	return integrationPrefix + strings.ToLower(provider)
}

// SaveIntegration stores provider credentials in settings/integration_<provider>.
func (c *Client) SaveIntegration(ctx context.Context, provider string, data map[string]any) error {
	doc := make(map[string]any, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}
	doc[fieldUpdatedAt] = firestore.ServerTimestamp
	if _, err := c.fs.Collection(settingsCollection).Doc(IntegrationDocID(provider)).Set(ctx, doc); err != nil {
		return fmt.Errorf("saving %s integration: %w", provider, MapError(err))
	}
	return nil
}

// GetIntegration returns stored credentials, or nil when none exist.
func (c *Client) GetIntegration(ctx context.Context, provider string) (map[string]any, error) {
	snap, err := c.fs.Collection(settingsCollection).Doc(IntegrationDocID(provider)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s integration: %w", provider, MapError(err))
	}
	data := snap.Data()
	delete(data, fieldUpdatedAt)
	return data, nil
}
