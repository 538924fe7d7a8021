package api

import (
	"encoding/json"
	"net/http"

	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/infrastructure/config"
	"github.com/mblarson/omnihome/internal/persistence"
)

// storageStatus masks the API key before it leaves the server.
func storageStatus(st persistence.Status) persistence.Status {
	st.Config = st.Config.Masked()
	return st
}

func (s *Server) handleStorageStatus(w http.ResponseWriter, _ *http.Request) {
	if s.storage == nil {
		writeUnavailable(w, "storage settings are not available")
		return
	}
	writeJSON(w, http.StatusOK, storageStatus(s.storage.Status()))
}

// handleUpdateStorage saves a remote store override and switches to it.
func (s *Server) handleUpdateStorage(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		writeUnavailable(w, "storage settings are not available")
		return
	}
	var cfg config.RemoteConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.storage.UpdateConfig(r.Context(), cfg); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	st := s.storage.Status()
	s.recorder.Record(r.Context(), audit.AuditLog{
		Action:     audit.ActionConfigure,
		EntityType: audit.EntityStorage,
		EntityID:   cfg.ProjectID,
		UserID:     userID(r.Context()),
		Source:     device.SourceUser,
		Details:    map[string]any{"mode": string(st.Mode), "connected": st.Connected},
	})
	writeJSON(w, http.StatusOK, storageStatus(st))
}

// handleResetStorage drops the override and returns to the defaults.
func (s *Server) handleResetStorage(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		writeUnavailable(w, "storage settings are not available")
		return
	}
	if err := s.storage.ResetConfig(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	st := s.storage.Status()
	s.recorder.Record(r.Context(), audit.AuditLog{
		Action:     audit.ActionConfigure,
		EntityType: audit.EntityStorage,
		UserID:     userID(r.Context()),
		Source:     device.SourceUser,
		Details:    map[string]any{"reset": true, "mode": string(st.Mode)},
	})
	writeJSON(w, http.StatusOK, storageStatus(st))
}
