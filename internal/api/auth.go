package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/mblarson/omnihome/internal/audit"
	"github.com/mblarson/omnihome/internal/auth"
)

// ticketCleanupInterval is how often spent ticket IDs are forgotten.
const ticketCleanupInterval = time.Minute

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresIn   int        `json:"expires_in"`
	User        *auth.User `json:"user"`
}

// handleLogin exchanges a username and password for an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := auth.Authenticate(r.Context(), s.users, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUserInactive) {
			s.recorder.Record(r.Context(), audit.AuditLog{
				Action:     audit.ActionLoginFails,
				EntityType: audit.EntityUser,
				Source:     "api",
				Details:    map[string]any{"username": req.Username},
			})
			// Inactive accounts get the same answer as a bad password.
			writeUnauthorized(w, auth.ErrInvalidCredentials.Error())
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	ttl := time.Duration(s.secCfg.JWT.AccessTokenTTL) * time.Minute
	token, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	s.recorder.Record(r.Context(), audit.AuditLog{
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		UserID:     user.ID,
		Source:     "api",
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		User:        user,
	})
}

// handleMe returns the signed-in user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), userID(r.Context()))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "account no longer exists")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleWSTicket issues a short-lived ticket for opening /ws or /voice.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	user := &auth.User{ID: claims.Subject, Role: claims.Role, DisplayName: claims.Name}
	ticket, err := auth.GenerateTicket(user, s.secCfg.JWT.Secret)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ticket": ticket, "expires_in": 60})
}

// ticketClaims validates and spends the ticket query parameter. On failure
// it writes the response and returns false.
func (s *Server) ticketClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return nil, false
	}
	claims, err := auth.ParseTicket(ticket, s.secCfg.JWT.Secret)
	if err != nil || !s.tickets.spend(claims) {
		writeUnauthorized(w, "invalid or expired ticket")
		return nil, false
	}
	return claims, true
}

// ticketGuard remembers spent ticket IDs until they expire, so a ticket
// opens exactly one connection.
type ticketGuard struct {
	mu   sync.Mutex
	used map[string]time.Time
}

func newTicketGuard() *ticketGuard {
	return &ticketGuard{used: make(map[string]time.Time)}
}

// spend marks the ticket used. It returns false if it was already spent.
func (g *ticketGuard) spend(c *auth.Claims) bool {
	if c.ID == "" || c.ExpiresAt == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, seen := g.used[c.ID]; seen {
		return false
	}
	g.used[c.ID] = c.ExpiresAt.Time
	return true
}

// sweep forgets tickets that expired before now.
func (g *ticketGuard) sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, exp := range g.used {
		if now.After(exp) {
			delete(g.used, id)
		}
	}
}

func (g *ticketGuard) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.sweep(now)
		}
	}
}
