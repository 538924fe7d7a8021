package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/auth"
	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/infrastructure/database"
	"github.com/mblarson/omnihome/internal/infrastructure/logging"
	_ "github.com/mblarson/omnihome/migrations"
)

const testSecret = "test-secret-key-at-least-32-chars!"

// testEnv is a server over real SQLite repositories and an in-memory
// device store loaded with the starter household.
type testEnv struct {
	srv     *Server
	handler http.Handler
	store   *device.Store
	users   *auth.SQLiteUserRepository
	audit   *audit.SQLiteRepository
	admin   *auth.User
	member  *auth.User
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := device.NewStore(nil)
	store.Load(device.InitialDevices())

	env := &testEnv{
		store: store,
		users: auth.NewUserRepository(db.DB),
		audit: audit.NewSQLiteRepository(db.DB),
	}
	env.admin = createTestUser(t, env.users, "alex", "Alex Doe", auth.RoleAdmin)
	env.member = createTestUser(t, env.users, "sam", "Sam Lee", auth.RoleUser)

	deps := Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 8080},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15}},
		Logger:   logging.Discard(),
		Version:  "test",
		Devices:  store,
		Users:    env.users,
		Audit:    env.audit,
		Recorder: audit.NewRecorder(env.audit, nil),
		DB:       db.DB,
		Location: time.UTC,
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	env.srv = srv
	env.handler = srv.buildRouter()
	return env
}

func createTestUser(t *testing.T, repo auth.UserRepository, username, name string, role auth.Role) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	u := &auth.User{Username: username, DisplayName: name, PasswordHash: hash, Role: role, IsActive: true}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create(%s) error = %v", username, err)
	}
	return u
}

func (e *testEnv) token(t *testing.T, u *auth.User) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(u, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return tok
}

// do sends a request as u, or anonymously when u is nil.
func (e *testEnv) do(t *testing.T, u *auth.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, u))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, want, w.Body.String())
	}
}

func (e *testEnv) auditActions(t *testing.T, filter audit.Filter) []string {
	t.Helper()
	res, err := e.audit.List(context.Background(), filter)
	if err != nil {
		t.Fatalf("audit List() error = %v", err)
	}
	actions := make([]string, 0, len(res.Logs))
	for _, l := range res.Logs {
		actions = append(actions, l.Action)
	}
	return actions
}
