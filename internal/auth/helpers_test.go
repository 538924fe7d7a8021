package auth

import (
	"context"
	"database/sql"
	"testing"

	"github.com/mblarson/omnihome/internal/infrastructure/database"
	_ "github.com/mblarson/omnihome/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.DB
}

func createUser(t *testing.T, repo UserRepository, username, password string, role Role, active bool) *User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	u := &User{Username: username, DisplayName: username, PasswordHash: hash, Role: role, IsActive: active}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create(%s) error = %v", username, err)
	}
	return u
}

type recordLogger struct {
	warns []string
}

func (l *recordLogger) Info(string, ...any)       {}
func (l *recordLogger) Warn(msg string, _ ...any) { l.warns = append(l.warns, msg) }
