package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/mblarson/omnihome/internal/infrastructure/config"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	connectionTimeout = 5 * time.Second
	connMaxIdleTime   = 30 * time.Minute

	// MemoryPath opens a private in-memory database. Used by tests.
	MemoryPath = ":memory:"
)

// DB wraps a sql.DB connection to the local SQLite store.
// It holds every record that must survive without the remote store:
// devices, settings, scenes, users and the audit trail.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the SQLite database described by cfg.
//
// It performs the following setup:
//  1. Creates the parent directory for file databases
//  2. Builds the DSN with busy timeout, foreign keys and optional WAL
//  3. Limits the pool to one connection
//  4. Pings within connectionTimeout
//
// Parameters:
//   - ctx: Bounds the initial ping
//   - cfg: Database section of config.yaml; MemoryPath selects in-memory
//
// Returns:
//   - *DB: Open database; call Migrate before use
//   - error: If the directory, driver or ping fails
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dsn := cfg.Path
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = "file:" + cfg.Path
	}

	// See https://github.com/mattn/go-sqlite3#connection-string
	dsn += fmt.Sprintf("?_busy_timeout=%d&_foreign_keys=on", cfg.BusyTimeout*int(time.Second/time.Millisecond))
	if cfg.WALMode && cfg.Path != MemoryPath {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// is private to the connection that created it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	if cfg.Path != MemoryPath {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if cfg.Path != MemoryPath {
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // file may not exist until first write
	}

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// OpenMemory opens a migrated in-memory database.
func OpenMemory(ctx context.Context) (*DB, error) {
	db, err := Open(ctx, config.DatabaseConfig{Path: MemoryPath, BusyTimeout: 5})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the database answers queries.
//
// Parameters:
//   - ctx: Bounds the check query
//
// Returns:
//   - error: nil if SELECT 1 succeeds
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
//
//	err := db.WithTx(ctx, func(tx *sql.Tx) error {
//	    _, err := tx.ExecContext(ctx, "DELETE FROM devices")
//	    return err
//	})
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
