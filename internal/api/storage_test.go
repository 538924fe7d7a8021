package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/persistence"
)

type fakeStorage struct {
	status persistence.Status
	reset  bool
}

func (f *fakeStorage) Status() persistence.Status { return f.status }

func (f *fakeStorage) UpdateConfig(_ context.Context, cfg config.RemoteConfig) error {
	if cfg.ProjectID == "" {
		return persistence.ErrInvalidConfig
	}
	f.status = persistence.Status{Mode: persistence.ModeRemote, Connected: true, Source: persistence.SourceOverride, Config: cfg}
	return nil
}

func (f *fakeStorage) ResetConfig(context.Context) error {
	f.reset = true
	f.status = persistence.Status{Mode: persistence.ModeLocal, Source: persistence.SourceNone}
	return nil
}

func TestStorageSettings(t *testing.T) {
	fs := &fakeStorage{status: persistence.Status{Mode: persistence.ModeLocal}}
	env := newTestEnv(t, func(d *Deps) { d.Storage = fs })

	wantStatus(t, env.do(t, env.member, http.MethodGet, "/api/v1/settings/storage", nil), http.StatusForbidden)
	wantStatus(t, env.do(t, env.admin, http.MethodGet, "/api/v1/settings/storage", nil), http.StatusOK)

	w := env.do(t, env.admin, http.MethodPut, "/api/v1/settings/storage", config.RemoteConfig{APIKey: "AIzaKey"})
	wantStatus(t, w, http.StatusBadRequest)

	w = env.do(t, env.admin, http.MethodPut, "/api/v1/settings/storage", config.RemoteConfig{ProjectID: "home-prod", APIKey: "AIzaSecretValue"})
	wantStatus(t, w, http.StatusOK)
	got := decode[persistence.Status](t, w)
	if got.Mode != persistence.ModeRemote || !got.Connected {
		t.Errorf("status = %+v", got)
	}
	if got.Config.APIKey == "AIzaSecretValue" {
		t.Error("api key returned unmasked")
	}

	wantStatus(t, env.do(t, env.admin, http.MethodDelete, "/api/v1/settings/storage", nil), http.StatusOK)
	if !fs.reset {
		t.Error("ResetConfig not called")
	}
	if got := env.auditActions(t, audit.Filter{EntityType: audit.EntityStorage}); len(got) != 2 {
		t.Errorf("storage audit entries = %v, want 2", got)
	}
}

func TestStorageSettings_Unavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	wantStatus(t, env.do(t, env.admin, http.MethodGet, "/api/v1/settings/storage", nil), http.StatusServiceUnavailable)
}
