package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mblarson/omnihome/internal/device"
)

// handleListDevices lists devices, optionally narrowed by ?room= (exact,
// case-insensitive) and ?q= (substring of the name).
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))

	all := s.devices.Devices()
	devices := make([]device.Device, 0, len(all))
	for _, d := range all {
		if room != "" && !strings.EqualFold(d.Room, room) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(d.Name), q) {
			continue
		}
		devices = append(devices, d)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
		"loading": !s.devices.Loaded(),
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.devices.Rooms()
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.devices.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var d device.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	created, err := s.devices.Create(r.Context(), d, device.SourceUser)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleReplaceDevices swaps the whole list, as an import does.
func (s *Server) handleReplaceDevices(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Devices []device.Device `json:"devices"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Devices == nil {
		writeBadRequest(w, "devices is required")
		return
	}
	if err := s.devices.Replace(r.Context(), body.Devices, device.SourceImport); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": s.devices.Devices(), "count": len(body.Devices)})
}

// updateRequest is the PATCH body. A null value cannot clear Value; the
// store treats a nil Value as unchanged.
type updateRequest struct {
	IsOn  *bool `json:"is_on"`
	Value any   `json:"value"`
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	d, err := s.devices.Update(r.Context(), device.Update{
		ID:    chi.URLParam(r, "id"),
		IsOn:  req.IsOn,
		Value: req.Value,
	}, device.SourceUser)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleToggleDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.devices.Toggle(r.Context(), chi.URLParam(r, "id"), device.SourceUser)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Delete(r.Context(), chi.URLParam(r, "id"), device.SourceUser); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
