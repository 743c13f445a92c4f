// Package alpaca implements ASCOM Alpaca REST clients for the devices the
// modeler consumes: a dome that follows the telescope and an observing
// conditions sensor feeding refraction data.
// Reference: https://ascom-standards.org/Developer/Alpaca.htm
package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/mount-modeler/pkg/config"
)

// Client talks to one Alpaca device. It is safe for concurrent use.
type Client struct {
	// config addresses the device
	config config.AlpacaConfig

	// deviceType is the Alpaca device type in the URL, e.g. "dome"
	deviceType string

	// clientID is a unique identifier for this client instance
	// Generated at client creation to comply with Alpaca specification
	clientID int

	// transaction numbers each request
	transaction atomic.Int64

	httpClient *http.Client

	// limiter paces requests so polling never floods the device
	limiter *rate.Limiter

	connected atomic.Bool
}

// NewClient creates a client for the device of the given type.
func NewClient(deviceType string, cfg config.AlpacaConfig) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		config:     cfg,
		deviceType: deviceType,
		clientID:   generateClientID(),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// generateClientID creates a unique client ID for this Alpaca session.
// Uses the Unix timestamp to ensure uniqueness across sessions.
func generateClientID() int {
	return int(time.Now().Unix() % 2147483647)
}

// Connect establishes a connection to the device.
// Implements: PUT /api/v1/{device_type}/{device_number}/connected
func (c *Client) Connect(ctx context.Context) error {
	resp, err := c.put(ctx, "connected", url.Values{"Connected": {"true"}})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.deviceType, err)
	}
	if err := resp.Error(); err != nil {
		return err
	}
	c.connected.Store(true)
	return nil
}

// Disconnect closes the connection to the device.
func (c *Client) Disconnect(ctx context.Context) error {
	if !c.connected.Load() {
		return nil
	}
	resp, err := c.put(ctx, "connected", url.Values{"Connected": {"false"}})
	if err != nil {
		return fmt.Errorf("failed to disconnect from %s: %w", c.deviceType, err)
	}
	c.connected.Store(false)
	return resp.Error()
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// getFloat reads a numeric property.
func (c *Client) getFloat(ctx context.Context, endpoint string) (float64, error) {
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", endpoint, err)
	}
	if err := resp.Error(); err != nil {
		return 0, err
	}
	v, ok := resp.Value.(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected response type for %s", endpoint)
	}
	return v, nil
}

// getBool reads a boolean property.
func (c *Client) getBool(ctx context.Context, endpoint string) (bool, error) {
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", endpoint, err)
	}
	if err := resp.Error(); err != nil {
		return false, err
	}
	v, ok := resp.Value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected response type for %s", endpoint)
	}
	return v, nil
}

func (c *Client) endpoint(name string) string {
	return fmt.Sprintf("%s/api/v1/%s/%d/%s",
		strings.TrimRight(c.config.BaseURL, "/"), c.deviceType, c.config.DeviceNumber, name)
}

func (c *Client) ids() url.Values {
	return url.Values{
		"ClientID":            {strconv.Itoa(c.clientID)},
		"ClientTransactionID": {strconv.FormatInt(c.transaction.Add(1), 10)},
	}
}

// get performs an HTTP GET request to an Alpaca endpoint.
func (c *Client) get(ctx context.Context, name string) (*alpacaResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	fullURL := c.endpoint(name) + "?" + c.ids().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// put performs an HTTP PUT request with a form-encoded body.
func (c *Client) put(ctx context.Context, name string, params url.Values) (*alpacaResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	for k, v := range c.ids() {
		params[k] = v
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint(name), strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*alpacaResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: HTTP %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	var alpacaResp alpacaResponse
	if err := parseAlpacaResponse(resp.Body, &alpacaResp); err != nil {
		return nil, err
	}
	return &alpacaResp, nil
}

// alpacaResponse represents the standard Alpaca API response format.
type alpacaResponse struct {
	// Value contains the response data (type varies by endpoint)
	Value interface{} `json:"Value"`

	ClientTransactionID int `json:"ClientTransactionID"`
	ServerTransactionID int `json:"ServerTransactionID"`

	// ErrorNumber is non-zero if an error occurred
	ErrorNumber int `json:"ErrorNumber"`

	// ErrorMessage describes the error if ErrorNumber is non-zero
	ErrorMessage string `json:"ErrorMessage"`
}

// Error returns an error if the Alpaca response indicates failure.
func (r *alpacaResponse) Error() error {
	if r.ErrorNumber != 0 {
		return fmt.Errorf("alpaca error %d: %s", r.ErrorNumber, r.ErrorMessage)
	}
	return nil
}

// parseAlpacaResponse parses an Alpaca JSON response from an io.Reader.
func parseAlpacaResponse(body io.Reader, resp *alpacaResponse) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
