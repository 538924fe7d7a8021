package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists device records locally.
type Repository interface {
	// List returns all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// Get returns a device by id, or ErrDeviceNotFound.
	Get(ctx context.Context, id string) (*Device, error)

	// Create inserts a device, or returns ErrDeviceExists.
	Create(ctx context.Context, d *Device) error

	// Upsert inserts or overwrites a device.
	Upsert(ctx context.Context, d *Device) error

	// ReplaceAll makes the stored list exactly devices, atomically.
	ReplaceAll(ctx context.Context, devices []Device) error

	// Patch merges u into the stored device and returns the result.
	Patch(ctx context.Context, u Update) (*Device, error)

	// Delete removes a device, or returns ErrDeviceNotFound.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectDevice = `
	SELECT id, name, type, room, is_on, value, unit, provider, external_id, updated_at
	FROM devices`

// List returns all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectDevice+" ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Get returns a device by id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, selectDevice+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	args, err := deviceArgs(d)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, type, room, is_on, value, unit, provider, external_id, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, append(args, args[len(args)-1])...)
	if isUniqueConstraintError(err) {
		return ErrDeviceExists
	}
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Upsert inserts or overwrites a device, keeping its original created_at.
func (r *SQLiteRepository) Upsert(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}
	return upsert(ctx, r.db, d)
}

// ReplaceAll makes the stored list exactly devices.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, devices []Device) error {
	if err := ValidateList(devices); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	keep := make([]any, 0, len(devices))
	for i := range devices {
		if err := upsert(ctx, tx, &devices[i]); err != nil {
			return err
		}
		keep = append(keep, devices[i].ID)
	}

	del := "DELETE FROM devices"
	if len(keep) > 0 {
		del += " WHERE id NOT IN (?" + strings.Repeat(",?", len(keep)-1) + ")"
	}
	if _, err := tx.ExecContext(ctx, del, keep...); err != nil {
		return fmt.Errorf("removing stale devices: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device list: %w", err)
	}
	return nil
}

// Patch merges u into the stored device.
func (r *SQLiteRepository) Patch(ctx context.Context, u Update) (*Device, error) {
	if err := ValidateValue(u.Value); err != nil {
		return nil, err
	}
	current, err := r.Get(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	next := Apply(*current, u)
	next.UpdatedAt = time.Now().UTC()

	value, err := encodeValue(next.Value)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE devices SET is_on = ?, value = ?, updated_at = ? WHERE id = ?",
		boolToInt(next.IsOn), value, next.UpdatedAt.Format(time.RFC3339Nano), next.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating device state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports
		return nil, ErrDeviceNotFound
	}
	return &next, nil
}

// Delete removes a device by id.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports
		return ErrDeviceNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, d *Device) error {
	args, err := deviceArgs(d)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO devices (id, name, type, room, is_on, value, unit, provider, external_id, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			room = excluded.room,
			is_on = excluded.is_on,
			value = excluded.value,
			unit = excluded.unit,
			provider = excluded.provider,
			external_id = excluded.external_id,
			updated_at = excluded.updated_at`, append(args, args[len(args)-1])...)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", d.ID, err)
	}
	return nil
}

// deviceArgs returns column values in insert order, ending with updated_at.
func deviceArgs(d *Device) ([]any, error) {
	value, err := encodeValue(d.Value)
	if err != nil {
		return nil, err
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	provider := d.Provider
	if provider == "" {
		provider = ProviderLocal
	}
	return []any{
		d.ID, strings.TrimSpace(d.Name), string(d.Type), d.Room, boolToInt(d.IsOn),
		value, d.Unit, provider, d.ExternalID, d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d         Device
		typ       string
		isOn      int
		value     sql.NullString
		updatedAt string
	)
	if err := row.Scan(&d.ID, &d.Name, &typ, &d.Room, &isOn, &value, &d.Unit, &d.Provider, &d.ExternalID, &updatedAt); err != nil {
		return nil, err
	}
	d.Type = DeviceType(typ)
	d.IsOn = isOn != 0
	if value.Valid {
		if err := json.Unmarshal([]byte(value.String), &d.Value); err != nil {
			return nil, fmt.Errorf("decoding value: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	d.UpdatedAt = t
	return &d, nil
}

func encodeValue(v any) (sql.NullString, error) {
	v = NormalizeValue(v)
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
