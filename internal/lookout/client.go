package lookout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ErrMissingAppKey is returned when no upstream credential is
// configured. Callers treat this as a configuration problem, not a
// transient upstream failure.
var ErrMissingAppKey = errors.New("lookout app key is empty")

// refreshMargin is how long before literal expiry a cached token is
// considered stale.
const refreshMargin = 60 * time.Second

// maxErrorBody bounds how much of an upstream error response is kept
// for diagnostics.
const maxErrorBody = 500

var whitespace = regexp.MustCompile(`\s+`)

// AuthError reports a rejected token exchange.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("lookout token request failed: %d %s", e.Status, e.Body)
}

// APIError reports a non-success response from the device-listing API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lookout api error: %d %s", e.Status, e.Body)
}

// Device is one vendor record from the device-listing API.
type Device struct {
	GUID           string `json:"guid"`
	Email          string `json:"email"`
	SecurityStatus string `json:"security_status"`
	UpdatedTime    string `json:"updated_time"`
}

// DeviceListResponse is the device-listing API envelope.
type DeviceListResponse struct {
	Devices []Device `json:"devices"`
	Count   int      `json:"count"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Config configures the upstream client.
type Config struct {
	AppKey         string
	BaseURL        string
	TokenURL       string
	EnterpriseGUID string
	Timeout        time.Duration
}

// Client talks to the Lookout API. It owns the process-wide access
// token slot: the token is cached until shortly before expiry and
// replaced wholesale on refresh.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func New(cfg Config) *Client {
	// Credentials pasted from key material often carry stray newlines;
	// strip all whitespace before the key goes into a header.
	cfg.AppKey = whitespace.ReplaceAllString(cfg.AppKey, "")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Token returns a valid access token, exchanging client credentials
// with the token endpoint when the cached one is missing or within the
// refresh margin of expiry.
func (c *Client) Token(ctx context.Context) (string, error) {
	if c.cfg.AppKey == "" {
		return "", ErrMissingAppKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiresAt) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL,
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AppKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthError{Status: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.token = tr.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - refreshMargin)

	return c.token, nil
}

// ListDevices fetches devices updated since the given time. The limit
// is fixed at 200: the API silently caps unqualified requests at 20
// devices, so the query must always carry an explicit value well above
// that.
func (c *Client) ListDevices(ctx context.Context, since time.Time) (*DeviceListResponse, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("limit", "200")
	params.Set("updated_since", since.UTC().Format(time.RFC3339))
	if c.cfg.EnterpriseGUID != "" {
		params.Set("enterprise_guid", c.cfg.EnterpriseGUID)
	}

	reqURL := c.cfg.BaseURL + "/mra/api/v2/devices?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build device request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call device api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var list DeviceListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode device response: %w", err)
	}

	return &list, nil
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(b)
}
