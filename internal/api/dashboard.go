package api

import (
	"net/http"

	"github.com/mblarson/omnihome/internal/auth"
	"github.com/mblarson/omnihome/internal/device"
	"github.com/mblarson/omnihome/internal/energy"
	"github.com/mblarson/omnihome/internal/providers"
)

// dashboardResponse is everything the overview screen renders in one call.
type dashboardResponse struct {
	Greeting string         `json:"greeting"`
	User     dashboardUser  `json:"user"`
	Stats    device.Stats   `json:"stats"`
	Loading  bool           `json:"loading"`
	HubLabel string         `json:"hub_label"`
	Storage  storageSummary `json:"storage"`
}

type dashboardUser struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	FirstName   string    `json:"first_name"`
	Role        auth.Role `json:"role"`
}

type storageSummary struct {
	Mode      string `json:"mode"`
	Connected bool   `json:"connected"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	name := claims.Name
	if name == "" {
		name = auth.DefaultDisplayName
	}

	resp := dashboardResponse{
		Greeting: auth.Greeting(s.now().In(s.location).Hour()),
		User: dashboardUser{
			ID:          claims.Subject,
			DisplayName: name,
			FirstName:   auth.FirstName(name),
			Role:        claims.Role,
		},
		Stats:    s.devices.Stats(),
		Loading:  !s.devices.Loaded(),
		HubLabel: providers.HubLabel(""),
		Storage:  storageSummary{Mode: "local"},
	}
	if s.providers != nil {
		resp.HubLabel = s.providers.Status().HubLabel
	}
	if s.storage != nil {
		st := s.storage.Status()
		resp.Storage = storageSummary{Mode: string(st.Mode), Connected: st.Connected}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEnergy returns the usage chart. Without a configured source the
// canned daily curve is served.
func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	src := s.energy
	if src == nil {
		src = energy.StaticSource{}
	}
	points, err := src.Usage(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}
