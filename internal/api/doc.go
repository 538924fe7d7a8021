// Package api provides the HTTP REST API and WebSocket endpoints for the
// OmniHome dashboard.
//
// All routes live under /api/v1. Except for health, login and the Alexa
// OAuth callback they require a bearer access token. The two WebSocket
// endpoints, /ws for events and /voice for the voice assistant, take a
// short-lived ticket in the query string instead because browsers cannot
// set headers on a WebSocket handshake:
//
//	POST /api/v1/auth/ws-ticket         -> {"ticket": "...", "expires_in": 60}
//	GET  /api/v1/ws?ticket=...
//
// When Deps.WebUI is set, every path outside /api is handed to it.
//
// Errors use one JSON shape:
//
//	{"status": 404, "code": "not_found", "message": "device not found"}
package api
