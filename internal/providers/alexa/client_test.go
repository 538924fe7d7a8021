package alexa

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/amazon"

	"github.com/mblarson/omnihome/internal/device"
)

func TestClient_AuthURL(t *testing.T) {
	c := NewClient(Config{OAuth: oauth2.Config{ClientID: "amzn1.client", RedirectURL: "http://localhost:8080/cb"}})
	raw := c.AuthURL("xyz")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthURL() not a URL: %v", err)
	}
	if got := u.Scheme + "://" + u.Host + u.Path; got != amazon.Endpoint.AuthURL {
		t.Errorf("endpoint = %q, want %q", got, amazon.Endpoint.AuthURL)
	}
	q := u.Query()
	want := map[string]string{
		"client_id":     "amzn1.client",
		"scope":         "alexa::skills:account_linking",
		"response_type": "code",
		"redirect_uri":  "http://localhost:8080/cb",
		"state":         "xyz",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestClient_NewStateIsRandom(t *testing.T) {
	c := NewClient(Config{})
	a, err := c.NewState()
	if err != nil {
		t.Fatalf("NewState() error = %v", err)
	}
	b, _ := c.NewState()
	if a == "" || a == b {
		t.Errorf("states %q and %q should be distinct and non-empty", a, b)
	}
}

func TestClient_SimulatedLink(t *testing.T) {
	c := NewClient(Config{PollDelay: time.Millisecond, SyncDelay: time.Millisecond})
	if !c.Simulated() {
		t.Fatal("client without secret should be simulated")
	}
	if err := c.PollForConnection(context.Background()); err != nil {
		t.Fatalf("PollForConnection() error = %v", err)
	}
	devices, err := c.SyncDevices(context.Background())
	if err != nil {
		t.Fatalf("SyncDevices() error = %v", err)
	}
	if len(devices) != len(device.InitialDevices()) {
		t.Fatalf("SyncDevices() = %d devices", len(devices))
	}
	for _, d := range devices {
		if d.Provider != device.ProviderAlexa || d.ExternalID == "" {
			t.Errorf("device %s provider=%q external=%q", d.ID, d.Provider, d.ExternalID)
		}
	}
	if _, err := c.ExchangeCode(context.Background(), "code"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ExchangeCode() error = %v, want ErrNotConfigured", err)
	}
}

func TestClient_PollHonoursContext(t *testing.T) {
	c := NewClient(Config{PollDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.PollForConnection(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("PollForConnection() error = %v, want context.Canceled", err)
	}
}

func TestClient_RealLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code") != "good" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		if r.Form.Get("client_id") != "id" || r.Form.Get("client_secret") != "secret" {
			t.Errorf("client credentials = %q/%q, want them in the form body", r.Form.Get("client_id"), r.Form.Get("client_secret"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"Atza|abc","refresh_token":"Atzr|def","token_type":"bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	c := NewClient(Config{OAuth: oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL},
	}})
	if _, err := c.NewState(); err != nil {
		t.Fatalf("NewState() error = %v", err)
	}

	if err := c.Complete(context.Background(), "bad"); !errors.Is(err, ErrTokenExchange) {
		t.Fatalf("Complete(bad) error = %v, want ErrTokenExchange", err)
	}

	polled := make(chan error, 1)
	go func() { polled <- c.PollForConnection(context.Background()) }()

	if err := c.Complete(context.Background(), "good"); err != nil {
		t.Fatalf("Complete(good) error = %v", err)
	}
	select {
	case err := <-polled:
		if err != nil {
			t.Errorf("PollForConnection() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PollForConnection() did not return after Complete")
	}

	tok := c.Token()
	if tok == nil || tok.AccessToken != "Atza|abc" || tok.RefreshToken != "Atzr|def" {
		t.Fatalf("Token() = %+v", tok)
	}
	if tok.Expiry.Before(time.Now()) {
		t.Error("token expiry not set from expires_in")
	}

	// A second callback for the same flow is harmless.
	if err := c.Complete(context.Background(), "good"); err != nil {
		t.Errorf("second Complete() error = %v", err)
	}

	c.Disconnect()
	if c.Token() != nil {
		t.Error("Disconnect() kept the token")
	}
}
