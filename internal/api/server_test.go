package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/auth"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/infrastructure/logging"
)

func TestNew_RequiresDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{}},
		{"no devices", Deps{Logger: logging.Discard()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, nil, http.MethodGet, "/api/v1/health", nil)
	wantStatus(t, w, http.StatusOK)

	body := decode[map[string]any](t, w)
	if body["status"] != "ok" || body["version"] != "test" || body["loaded"] != true {
		t.Errorf("health = %v", body)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, nil, http.MethodGet, "/api/v1/health", nil)
	if got := w.Header().Get("X-Request-ID"); len(got) != 2*requestIDBytes {
		t.Errorf("generated X-Request-ID = %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.CORS = config.CORSConfig{AllowedOrigins: []string{"http://dash.local"}}
	})

	tests := []struct {
		origin string
		want   string
	}{
		{"http://dash.local", "http://dash.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: Allow-Origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)

	ticket, err := auth.GenerateTicket(env.admin, testSecret)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not-a-jwt"},
		{"ticket as access token", "Bearer " + ticket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.handler.ServeHTTP(w, req)
			wantStatus(t, w, http.StatusUnauthorized)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	env := newTestEnv(t, nil)

	wantStatus(t, env.do(t, env.member, http.MethodGet, "/api/v1/audit", nil), http.StatusForbidden)
	wantStatus(t, env.do(t, env.admin, http.MethodGet, "/api/v1/audit", nil), http.StatusOK)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, nil, http.MethodPost, "/api/v1/auth/login", loginRequest{Username: "alex", Password: "correct-horse"})
	wantStatus(t, w, http.StatusOK)

	resp := decode[loginResponse](t, w)
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 15*60 {
		t.Errorf("token_type = %q, expires_in = %d", resp.TokenType, resp.ExpiresIn)
	}
	claims, err := auth.ParseToken(resp.AccessToken, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != env.admin.ID || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}

	got := env.auditActions(t, audit.Filter{EntityType: audit.EntityUser})
	if len(got) != 1 || got[0] != audit.ActionLogin {
		t.Errorf("audit actions = %v, want [login]", got)
	}
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"missing fields", loginRequest{Username: "alex"}, http.StatusBadRequest},
		{"wrong password", loginRequest{Username: "alex", Password: "nope"}, http.StatusUnauthorized},
		{"unknown user", loginRequest{Username: "ghost", Password: "correct-horse"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantStatus(t, env.do(t, nil, http.MethodPost, "/api/v1/auth/login", tt.body), tt.want)
		})
	}

	got := env.auditActions(t, audit.Filter{Action: audit.ActionLoginFails})
	if len(got) != 2 {
		t.Errorf("login_failed entries = %d, want 2", len(got))
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, env.member, http.MethodGet, "/api/v1/auth/me", nil)
	wantStatus(t, w, http.StatusOK)
	got := decode[auth.User](t, w)
	if got.Username != "sam" || got.Role != auth.RoleUser {
		t.Errorf("me = %+v", got)
	}

	ghost := &auth.User{ID: "usr-gone", Role: auth.RoleUser}
	wantStatus(t, env.do(t, ghost, http.MethodGet, "/api/v1/auth/me", nil), http.StatusUnauthorized)
}

func TestWSTicket(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, env.member, http.MethodPost, "/api/v1/auth/ws-ticket", nil)
	wantStatus(t, w, http.StatusOK)
	body := decode[map[string]any](t, w)

	ticket, _ := body["ticket"].(string)
	claims, err := auth.ParseTicket(ticket, testSecret)
	if err != nil {
		t.Fatalf("ParseTicket() error = %v", err)
	}
	if claims.Subject != env.member.ID {
		t.Errorf("ticket subject = %q, want %q", claims.Subject, env.member.ID)
	}
}

func TestTicketGuard(t *testing.T) {
	g := newTicketGuard()
	ticket, err := auth.GenerateTicket(&auth.User{ID: "usr-1", Role: auth.RoleUser}, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := auth.ParseTicket(ticket, testSecret)
	if err != nil {
		t.Fatal(err)
	}

	if !g.spend(claims) {
		t.Fatal("first spend() = false")
	}
	if g.spend(claims) {
		t.Error("second spend() = true, want false")
	}

	g.sweep(time.Now())
	if len(g.used) != 1 {
		t.Errorf("sweep before expiry removed the ticket")
	}
	g.sweep(claims.ExpiresAt.Add(time.Second))
	if len(g.used) != 0 {
		t.Errorf("sweep after expiry kept %d tickets", len(g.used))
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.now = func() time.Time { return time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC) }

	w := env.do(t, env.admin, http.MethodGet, "/api/v1/dashboard", nil)
	wantStatus(t, w, http.StatusOK)
	got := decode[dashboardResponse](t, w)

	if got.Greeting != "Good Afternoon" {
		t.Errorf("greeting = %q", got.Greeting)
	}
	if got.User.FirstName != "Alex" {
		t.Errorf("first name = %q", got.User.FirstName)
	}
	if got.Stats.Total != 6 || got.Stats.Active != 4 || got.Stats.Temperature != 22 {
		t.Errorf("stats = %+v", got.Stats)
	}
	if got.Loading {
		t.Error("loading = true after Load")
	}
	if got.HubLabel != "Hub Disconnected" || got.Storage.Mode != "local" {
		t.Errorf("hub_label = %q, storage = %+v", got.HubLabel, got.Storage)
	}
}

func TestEnergy_StaticFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, env.member, http.MethodGet, "/api/v1/energy", nil)
	wantStatus(t, w, http.StatusOK)

	body := decode[map[string][]map[string]any](t, w)
	if len(body["points"]) == 0 {
		t.Error("no energy points")
	}
}

func TestServer_HealthCheckBeforeStart(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.srv.HealthCheck(t.Context()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
}

func TestWebUIMount(t *testing.T) {
	ui := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("dashboard"))
	})
	env := newTestEnv(t, func(d *Deps) { d.WebUI = ui })

	w := env.do(t, nil, http.MethodGet, "/settings", nil)
	wantStatus(t, w, http.StatusOK)
	if w.Body.String() != "dashboard" {
		t.Errorf("GET /settings body = %q, want dashboard", w.Body.String())
	}

	w = env.do(t, nil, http.MethodGet, "/api/v1/health", nil)
	wantStatus(t, w, http.StatusOK)
	if w.Body.String() == "dashboard" {
		t.Error("API route served by the web UI")
	}
}

func TestWebUIUnset(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, nil, http.MethodGet, "/settings", nil)
	wantStatus(t, w, http.StatusNotFound)
}
