package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/franksrp-ld/ssf/internal/metrics"
)

const contentType = "application/secevent+jwt"

// maxErrorBody bounds how much of a failed response is kept for
// diagnostics.
const maxErrorBody = 500

// Error reports a failed delivery attempt. Status is zero when the
// request never produced a response.
type Error struct {
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver security event: %v", e.Err)
	}
	return fmt.Sprintf("receiver rejected security event: %d %s", e.Status, e.Body)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client pushes signed SETs to the downstream receiver's event-intake
// endpoint. There is no retry here; the caller owns that decision.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a delivery client for the given receiver org URL.
func New(orgURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(orgURL, "/") + "/security/api/v1/security-events",
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver POSTs the compact signed token and classifies the outcome.
func (c *Client) Deliver(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(token))
	if err != nil {
		return &Error{Err: fmt.Errorf("build delivery request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("network_error").Inc()
		return &Error{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		metrics.DeliveriesTotal.WithLabelValues("rejected").Inc()
		return &Error{Status: resp.StatusCode, Body: string(body)}
	}

	metrics.DeliveriesTotal.WithLabelValues("accepted").Inc()
	return nil
}
