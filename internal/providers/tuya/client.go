package tuya

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Device is a device as listed by the cloud.
type Device struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	ProductName string   `json:"product_name"`
	Online      bool     `json:"online"`
	Status      []Status `json:"status"`
}

// Status is one data point of a device.
type Status struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

// Command sets one data point.
type Command struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

type tokenResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireTime   int64  `json:"expire_time"`
	UID          string `json:"uid"`
}

type devicePage struct {
	Devices    []Device `json:"devices"`
	HasMore    bool     `json:"has_more"`
	LastRowKey string   `json:"last_row_key"`
}

const (
	pageSize = 50
	maxPages = 20
)

// Client calls the Tuya OpenAPI with signed requests.
type Client struct {
	creds   Credentials
	baseURL string
	http    *http.Client
	now     func() time.Time
	nonce   func() string

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClient creates a client for creds. baseURL overrides the region
// endpoint when non-empty.
func NewClient(creds Credentials, baseURL string, httpClient *http.Client) (*Client, error) {
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}
	if baseURL == "" {
		var err error
		if baseURL, err = Endpoint(creds.Region); err != nil {
			return nil, err
		}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		creds:   creds,
		baseURL: baseURL,
		http:    httpClient,
		now:     time.Now,
		nonce:   func() string { return uuid.NewString() },
	}, nil
}

// Connect obtains an access token.
func (c *Client) Connect(ctx context.Context) error {
	if len(c.creds.AccessID) < minAccessIDLength {
		return ErrInvalidAccessID
	}

	var res tokenResult
	q := url.Values{"grant_type": {"1"}}
	if err := c.do(ctx, http.MethodGet, "/v1.0/token", q, nil, &res, false); err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}

	c.mu.Lock()
	c.token = res.AccessToken
	c.expiry = c.now().Add(time.Duration(res.ExpireTime) * time.Second)
	c.mu.Unlock()
	return nil
}

// Connected reports whether an unexpired token is held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != "" && c.now().Before(c.expiry)
}

// Devices lists every device linked to the project's app accounts.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var (
		all     []Device
		lastRow string
	)
	for page := 0; page < maxPages; page++ {
		q := url.Values{"size": {strconv.Itoa(pageSize)}}
		if lastRow != "" {
			q.Set("last_row_key", lastRow)
		}
		var res devicePage
		if err := c.do(ctx, http.MethodGet, "/v1.0/iot-01/associated-users/devices", q, nil, &res, true); err != nil {
			return nil, fmt.Errorf("listing devices: %w", err)
		}
		all = append(all, res.Devices...)
		if !res.HasMore || res.LastRowKey == "" {
			break
		}
		lastRow = res.LastRowKey
	}
	return all, nil
}

// DeviceStatus returns the current data points of one device.
func (c *Client) DeviceStatus(ctx context.Context, id string) ([]Status, error) {
	var res []Status
	if err := c.do(ctx, http.MethodGet, "/v1.0/iot-03/devices/"+url.PathEscape(id)+"/status", nil, nil, &res, true); err != nil {
		return nil, fmt.Errorf("reading status of %s: %w", id, err)
	}
	return res, nil
}

// SendCommand sets data points on a device.
func (c *Client) SendCommand(ctx context.Context, id string, commands []Command) error {
	body := map[string]any{"commands": commands}
	var ok bool
	if err := c.do(ctx, http.MethodPost, "/v1.0/iot-03/devices/"+url.PathEscape(id)+"/commands", nil, body, &ok, true); err != nil {
		return fmt.Errorf("sending command to %s: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, withToken bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	token := ""
	if withToken {
		c.mu.Lock()
		token = c.token
		c.mu.Unlock()
		if token == "" {
			return ErrNotConnected
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	t := strconv.FormatInt(c.now().UnixMilli(), 10)
	nonce := c.nonce()
	sign := Sign(c.creds.AccessID, c.creds.AccessSecret, token, t, nonce, StringToSign(method, payload, "", path, query))

	req.Header.Set("client_id", c.creds.AccessID)
	req.Header.Set("sign", sign)
	req.Header.Set("t", t)
	req.Header.Set("nonce", nonce)
	req.Header.Set("sign_method", SignMethod)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("access_token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrTransport, err)
	}
	if !env.Success {
		return &APIError{Code: env.Code, Msg: env.Msg}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	}
	return nil
}
