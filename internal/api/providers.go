package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/providers"
	"github.com/mblarson/omnihome/internal/providers/tuya"
)

func (s *Server) handleProviderStatus(w http.ResponseWriter, _ *http.Request) {
	if s.providers == nil {
		writeJSON(w, http.StatusOK, providers.Status{Step: providers.StepSelect, HubLabel: providers.HubLabel("")})
		return
	}
	writeJSON(w, http.StatusOK, s.providers.Status())
}

// handleConnectAlexa starts the Alexa flow. The response carries the
// authorization URL; progress arrives on the provider.link channel.
func (s *Server) handleConnectAlexa(w http.ResponseWriter, r *http.Request) {
	if s.providers == nil {
		writeUnavailable(w, "providers are not enabled")
		return
	}
	st, err := s.providers.ConnectAlexa(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// handleAlexaCallback receives the Amazon redirect.
func (s *Server) handleAlexaCallback(w http.ResponseWriter, r *http.Request) {
	if s.providers == nil {
		writeUnavailable(w, "providers are not enabled")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeBadRequest(w, "authorization denied: "+e)
		return
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		writeBadRequest(w, "code and state are required")
		return
	}
	if err := s.providers.CompleteAlexa(r.Context(), code, state); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Alexa account linked. You can close this window."})
}

func (s *Server) handleConnectTuya(w http.ResponseWriter, r *http.Request) {
	if s.providers == nil {
		writeUnavailable(w, "providers are not enabled")
		return
	}
	var creds tuya.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	st, err := s.providers.ConnectTuya(r.Context(), creds)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (s *Server) handleDisconnectProvider(w http.ResponseWriter, r *http.Request) {
	if s.providers == nil {
		writeUnavailable(w, "providers are not enabled")
		return
	}
	prev := s.providers.Disconnect()
	if prev != "" {
		s.recorder.Record(r.Context(), audit.AuditLog{
			Action:     audit.ActionUnlink,
			EntityType: audit.EntityProvider,
			EntityID:   prev,
			UserID:     userID(r.Context()),
			Source:     device.SourceUser,
		})
	}
	writeJSON(w, http.StatusOK, s.providers.Status())
}

// handleDismissProvider clears a failed flow.
func (s *Server) handleDismissProvider(w http.ResponseWriter, _ *http.Request) {
	if s.providers == nil {
		writeUnavailable(w, "providers are not enabled")
		return
	}
	s.providers.Dismiss()
	writeJSON(w, http.StatusOK, s.providers.Status())
}

// observeProvider relays link progress and records completed links.
func (s *Server) observeProvider(st providers.Status) {
	s.hub.Broadcast(EventProviderLink, st)
	if st.Step == providers.StepSuccess {
		s.recorder.Record(context.Background(), audit.AuditLog{
			Action:     audit.ActionLink,
			EntityType: audit.EntityProvider,
			EntityID:   st.ActiveProvider,
			Source:     device.SourceUser,
			Details:    map[string]any{"imported": st.Imported, "simulated": st.Simulated},
		})
	}
}
