package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// Amazon redirects the browser here; the OAuth state is the check.
		r.Get("/providers/alexa/callback", s.handleAlexaCallback)

		// WebSockets authenticate with a ticket.
		r.Get("/ws", s.handleWebSocket)
		r.Get("/voice", s.handleVoice)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/metrics", s.handleMetrics)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/energy", s.handleEnergy)
			r.Get("/rooms", s.handleListRooms)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Put("/", s.handleReplaceDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/toggle", s.handleToggleDevice)
				})
			})

			r.Route("/scenes", func(r chi.Router) {
				r.Get("/", s.handleListScenes)
				r.Post("/{id}/activate", s.handleActivateScene)
			})

			r.Get("/providers", s.handleProviderStatus)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Route("/settings/storage", func(r chi.Router) {
					r.Get("/", s.handleStorageStatus)
					r.Put("/", s.handleUpdateStorage)
					r.Delete("/", s.handleResetStorage)
				})

				r.Post("/providers/alexa/connect", s.handleConnectAlexa)
				r.Post("/providers/tuya/connect", s.handleConnectTuya)
				r.Post("/providers/disconnect", s.handleDisconnectProvider)
				r.Post("/providers/dismiss", s.handleDismissProvider)

				r.Get("/audit", s.handleListAudit)
			})
		})
	})

	if s.webui != nil {
		r.Handle("/*", s.webui)
	}

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"loaded":  s.devices.Loaded(),
	})
}
