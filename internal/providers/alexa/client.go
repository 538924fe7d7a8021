package alexa

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/amazon"

	"github.com/mblarson/omnihome/internal/device"
)

// Scope requested from Login with Amazon.
const Scope = "alexa::skills:account_linking"

// Simulated link pacing.
const (
	DefaultPollDelay = 3 * time.Second
	DefaultSyncDelay = 1500 * time.Millisecond
)

// Config holds the Login with Amazon security profile.
type Config struct {
	// OAuth carries the client id, secret and redirect URL. An empty
	// Endpoint means amazon.Endpoint; empty Scopes means Scope.
	OAuth oauth2.Config

	// PollDelay and SyncDelay pace the simulated link used when no client
	// secret is configured.
	PollDelay time.Duration
	SyncDelay time.Duration

	HTTPClient *http.Client
}

// Client links an Alexa account and discovers its devices.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - NewState resets the pending link; a later Complete closes it.
type Client struct {
	cfg Config

	mu     sync.Mutex
	token  *oauth2.Token
	linked chan struct{}
	done   bool
}

// NewClient creates a client, filling unset fields with defaults.
//
// Parameters:
//   - cfg: Security profile and simulated-link pacing
//
// Returns:
//   - *Client: Ready to start a link with NewState
func NewClient(cfg Config) *Client {
	if cfg.OAuth.Endpoint.AuthURL == "" {
		cfg.OAuth.Endpoint.AuthURL = amazon.Endpoint.AuthURL
	}
	if cfg.OAuth.Endpoint.TokenURL == "" {
		cfg.OAuth.Endpoint.TokenURL = amazon.Endpoint.TokenURL
	}
	// LWA takes client credentials in the form body.
	if cfg.OAuth.Endpoint.AuthStyle == oauth2.AuthStyleAutoDetect {
		cfg.OAuth.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = []string{Scope}
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = DefaultPollDelay
	}
	if cfg.SyncDelay <= 0 {
		cfg.SyncDelay = DefaultSyncDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, linked: make(chan struct{})}
}

// Name returns the provider name.
func (c *Client) Name() string { return "Alexa" }

// Simulated reports whether linking is simulated. It is when no client
// secret is configured, since the code cannot be exchanged.
func (c *Client) Simulated() bool {
	return c.cfg.OAuth.ClientSecret == "" || c.cfg.OAuth.ClientID == ""
}

// NewState starts a link flow and returns its CSRF token.
func (c *Client) NewState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}

	c.mu.Lock()
	c.linked = make(chan struct{})
	c.done = false
	c.mu.Unlock()

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthURL returns the Login with Amazon authorization URL for state.
func (c *Client) AuthURL(state string) string {
	return c.cfg.OAuth.AuthCodeURL(state)
}

// PollForConnection blocks until the account is linked. In simulated mode
// it returns after PollDelay.
func (c *Client) PollForConnection(ctx context.Context) error {
	if c.Simulated() {
		return sleep(ctx, c.cfg.PollDelay)
	}

	c.mu.Lock()
	linked := c.linked
	c.mu.Unlock()

	select {
	case <-linked:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete finishes a flow with the authorization code from the callback.
func (c *Client) Complete(ctx context.Context, code string) error {
	if !c.Simulated() {
		tok, err := c.ExchangeCode(ctx, code)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.done = true
		close(c.linked)
	}
	return nil
}

// ExchangeCode trades an authorization code for tokens.
//
// Parameters:
//   - ctx: Bounds the token request
//   - code: Authorization code from the redirect
//
// Returns:
//   - *oauth2.Token: Access and refresh tokens with Expiry set
//   - error: ErrNotConfigured without credentials, ErrTokenExchange when
//     the endpoint rejects the code
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if c.Simulated() {
		return nil, ErrNotConfigured
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
	tok, err := c.cfg.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	return tok, nil
}

// Token returns a copy of the current token, or nil before a real link.
func (c *Client) Token() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

// SyncDevices returns the devices discovered through the linked skill.
// Discovery is simulated: after SyncDelay it returns the household list
// tagged with the Alexa provider.
func (c *Client) SyncDevices(ctx context.Context) ([]device.Device, error) {
	if err := sleep(ctx, c.cfg.SyncDelay); err != nil {
		return nil, err
	}
	devices := device.InitialDevices()
	for i := range devices {
		devices[i].ExternalID = devices[i].ID
		devices[i].Provider = device.ProviderAlexa
	}
	return devices, nil
}

// Disconnect forgets the token.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
