package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/device"
)

func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	if s.scenes == nil {
		writeUnavailable(w, "scenes are not enabled")
		return
	}
	scenes, err := s.scenes.Scenes(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

// handleActivateScene runs a scene and returns its execution record.
// Partial failures are reported in the record with status 200.
func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	if s.scenes == nil {
		writeUnavailable(w, "scenes are not enabled")
		return
	}
	exec, err := s.scenes.Activate(r.Context(), chi.URLParam(r, "id"), device.SourceUser)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.recorder.Record(r.Context(), audit.AuditLog{
		Action:     audit.ActionActivate,
		EntityType: audit.EntityScene,
		EntityID:   exec.SceneID,
		UserID:     userID(r.Context()),
		Source:     device.SourceUser,
		Details: map[string]any{
			"status":          string(exec.Status),
			"devices_changed": exec.DevicesChanged,
			"actions_failed":  exec.ActionsFailed,
		},
	})
	writeJSON(w, http.StatusOK, exec)
}
