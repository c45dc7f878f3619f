package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"garage-sentry-backend/config"
	"garage-sentry-backend/internal/door"
)

// ClosedStatus is the door_status result reported for a closed door. Any
// other value means open.
const ClosedStatus = "Door Closed"

const (
	statusEndpoint = "door_status"
	toggleEndpoint = "door_toggle"
)

var (
	errMissingResult = errors.New("response has no result field")
)

// Snapshot is the normalized fact read from the device.
type Snapshot struct {
	IsClosed   bool
	ObservedAt time.Time
}

// statusResponse models the variable read returned by the cloud API.
type statusResponse struct {
	Name   string  `json:"name"`
	Result *string `json:"result"`
}

// Client issues requests against {url}/devices/{device_id}. It holds no
// mutable state and is shared by the poller, reconciler and command gateway.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	now     func() time.Time
}

// NewClient creates a device client from the device configuration.
func NewClient(cfg *config.DeviceConfig, logger *zap.Logger) (*Client, error) {
	base, err := url.JoinPath(cfg.URL, "devices", cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("invalid device url %q: %w", cfg.URL, err)
	}

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid proxy url, device client will not use a proxy",
				zap.String("http_proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: base,
		token:   cfg.AccessToken,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		now: time.Now,
	}, nil
}

// FetchState reads door_status and reports whether the door is closed.
func (c *Client) FetchState(ctx context.Context) (Snapshot, error) {
	body, err := c.do(ctx, http.MethodGet, statusEndpoint)
	if err != nil {
		return Snapshot{}, err
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Snapshot{}, &TransportError{Op: "fetch state", Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if resp.Result == nil {
		return Snapshot{}, &TransportError{Op: "fetch state", Err: errMissingResult}
	}

	return Snapshot{
		IsClosed:   *resp.Result == ClosedStatus,
		ObservedAt: c.now().UTC(),
	}, nil
}

// SendCommand posts door_toggle. The remote device only knows how to toggle,
// so action is informational; whether the door moved is discovered by polling.
func (c *Client) SendCommand(ctx context.Context, action door.Action) error {
	if _, err := c.do(ctx, http.MethodPost, toggleEndpoint); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string) ([]byte, error) {
	op := method + " " + endpoint

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return body, nil
}
