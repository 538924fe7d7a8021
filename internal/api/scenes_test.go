package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/automation"
)

type fakeScenes struct {
	scenes    []automation.Scene
	gotSource string
}

func (f *fakeScenes) Scenes(context.Context) ([]automation.Scene, error) {
	return f.scenes, nil
}

func (f *fakeScenes) Activate(_ context.Context, id, source string) (*automation.Execution, error) {
	f.gotSource = source
	for _, s := range f.scenes {
		if s.ID != id {
			continue
		}
		if !s.Enabled {
			return nil, automation.ErrSceneDisabled
		}
		return &automation.Execution{SceneID: id, SceneName: s.Name, Status: automation.StatusCompleted, DevicesChanged: 3}, nil
	}
	return nil, automation.ErrSceneNotFound
}

func TestScenes(t *testing.T) {
	fs := &fakeScenes{scenes: []automation.Scene{
		{ID: "scene-night", Name: "Good Night", Enabled: true},
		{ID: "scene-party", Name: "Party", Enabled: false},
	}}
	env := newTestEnv(t, func(d *Deps) { d.Scenes = fs })

	w := env.do(t, env.member, http.MethodGet, "/api/v1/scenes", nil)
	wantStatus(t, w, http.StatusOK)
	if got := decode[map[string]any](t, w); got["count"] != 2.0 {
		t.Errorf("count = %v", got["count"])
	}

	tests := []struct {
		id   string
		want int
	}{
		{"scene-night", http.StatusOK},
		{"scene-party", http.StatusConflict},
		{"scene-none", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			wantStatus(t, env.do(t, env.member, http.MethodPost, "/api/v1/scenes/"+tt.id+"/activate", nil), tt.want)
		})
	}

	if fs.gotSource != "user" {
		t.Errorf("source = %q", fs.gotSource)
	}
	if got := env.auditActions(t, audit.Filter{EntityType: audit.EntityScene}); len(got) != 1 || got[0] != audit.ActionActivate {
		t.Errorf("audit = %v", got)
	}
}

func TestScenes_Unavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	wantStatus(t, env.do(t, env.member, http.MethodGet, "/api/v1/scenes", nil), http.StatusServiceUnavailable)
}
