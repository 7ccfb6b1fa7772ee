// Package gateway is the HTTP transport for the smart-home gateway's device API.
//
// It issues exactly one request per call. Retries, timeouts per command and
// concurrency limits belong to the dispatch package layered above it.
package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/gatewayctl/internal/device"
)

// DefaultTimeout applies when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 4 << 20

// Config holds the connection settings for a Client.
type Config struct {
	BaseURL            string        // e.g. http://192.168.0.109
	Token              string        // static bearer credential
	InsecureSkipVerify bool          // accept self-signed gateway certificates
	Timeout            time.Duration // transport default for every request
	UserAgent          string
}

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client talks to one gateway. Each Client owns its own connection pool, so
// separate Clients never share sockets.
//
// A Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     Logger
}

// commandBody is the JSON body of POST /devices/{id}/commands.
type commandBody struct {
	Attribute string `json:"attribute"`
	Value     any    `json:"value"`
}

// New creates a Client with a dedicated HTTP transport.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "gatewayctl"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed gateway on the local network
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// Close releases idle connections held by the client's transport.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// ListDevices fetches GET /devices and returns the "result" array in gateway order.
func (c *Client) ListDevices(ctx context.Context) ([]device.Device, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/devices", nil)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("listing devices: %w: %d", ErrUnexpectedStatus, status)
	}

	var resp struct {
		Result *[]device.Device `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("listing devices: %w: %w", ErrInvalidResponse, err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("listing devices: %w: missing result", ErrInvalidResponse)
	}
	return *resp.Result, nil
}

// DeviceStatus fetches GET /devices/{id} and returns the decoded
// result.status member, which may be a bool or an object.
func (c *Client) DeviceStatus(ctx context.Context, id string) (any, error) {
	status, body, err := c.do(ctx, http.MethodGet, devicePath(id), nil)
	if err != nil {
		return nil, fmt.Errorf("reading status of %s: %w", id, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("reading status of %s: %w: %d", id, ErrUnexpectedStatus, status)
	}

	var resp struct {
		Result *struct {
			Status any `json:"status"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("reading status of %s: %w: %w", id, ErrInvalidResponse, err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("reading status of %s: %w: missing result", id, ErrInvalidResponse)
	}
	return resp.Result.Status, nil
}

// SendCommand posts one attribute/value pair to POST /devices/{id}/commands.
//
// Any HTTP response is returned as its status code with a nil error; only
// transport failures (including context expiry) produce an error. Callers
// decide what status counts as success.
func (c *Client) SendCommand(ctx context.Context, id, attribute string, value any) (int, error) {
	payload, err := json.Marshal(commandBody{Attribute: attribute, Value: value})
	if err != nil {
		return 0, fmt.Errorf("marshaling command: %w", err)
	}

	status, _, err := c.do(ctx, http.MethodPost, devicePath(id)+"/commands", payload)
	if err != nil {
		return 0, fmt.Errorf("sending %s to %s: %w", attribute, id, err)
	}
	return status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("gateway request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.StatusCode, respBody, nil
}

func devicePath(id string) string {
	return "/devices/" + url.PathEscape(id)
}
