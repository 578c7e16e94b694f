package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Client talks to the HTTP API of a running everlast daemon.
type Client struct {
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	token    string
	username string
	password string
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification

	// Token is sent as a Bearer credential. Username/Password are sent as
	// basic auth when no token is set.
	Token    string
	Username string
	Password string
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool
	CACert     string // CA certificate file path
	ClientCert string
	ClientKey  string
	ServerName string
	SkipVerify bool
}

// APIError is returned for any non-2xx answer.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// IsUnauthorized reports whether the daemon refused the credentials.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL:  config.BaseURL,
		logger:   config.Logger,
		token:    config.Token,
		username: config.Username,
		password: config.Password,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// Login exchanges username/password for a token, which is then used for
// every later request.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/login", loginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return out, err
	}
	if out.Token != nil {
		c.token = out.Token.Value
	}
	return out, nil
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Count(ctx)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

// StartChildren starts the given children and returns their indices.
func (c *Client) StartChildren(ctx context.Context, specs ...ChildSpec) ([]int, error) {
	c.logger.Debug("Starting children", "count", len(specs))
	var resp StartResponse
	err := c.do(ctx, http.MethodPost, "/children", specs, &resp)
	if err != nil {
		return resp.Indices, err
	}
	return resp.Indices, nil
}

// Children lists every occupied slot.
func (c *Client) Children(ctx context.Context) ([]ChildInfo, error) {
	var out []ChildInfo
	err := c.do(ctx, http.MethodGet, "/children", nil, &out)
	return out, err
}

// Child returns the slot at idx.
func (c *Client) Child(ctx context.Context, idx int) (ChildInfo, error) {
	var out ChildInfo
	err := c.do(ctx, http.MethodGet, childPath(idx, ""), nil, &out)
	return out, err
}

// StartChildAt starts a stopped child again.
func (c *Client) StartChildAt(ctx context.Context, idx int) error {
	return c.do(ctx, http.MethodPost, childPath(idx, "/start"), nil, nil)
}

// StopChild asks the child at idx to terminate.
func (c *Client) StopChild(ctx context.Context, idx int) error {
	return c.do(ctx, http.MethodPost, childPath(idx, "/stop"), nil, nil)
}

// RestartChild stops the child at idx and starts it again.
func (c *Client) RestartChild(ctx context.Context, idx int) error {
	return c.do(ctx, http.MethodPost, childPath(idx, "/restart"), nil, nil)
}

// DeleteChild frees a stopped slot.
func (c *Client) DeleteChild(ctx context.Context, idx int) error {
	return c.do(ctx, http.MethodDelete, childPath(idx, ""), nil, nil)
}

// StopAll stops every child except those in ignore and disables restarts.
func (c *Client) StopAll(ctx context.Context, ignore ...int) error {
	return c.do(ctx, http.MethodPost, "/stop-all", stopAllRequest{Ignore: ignore}, nil)
}

// Count returns the number of occupied slots.
func (c *Client) Count(ctx context.Context) (int, error) {
	var out countResponse
	err := c.do(ctx, http.MethodGet, "/count", nil, &out)
	return out.Count, err
}

// Check validates specs on the daemon without starting anything.
func (c *Client) Check(ctx context.Context, specs []map[string]any) (bool, error) {
	var out checkResponse
	err := c.do(ctx, http.MethodPost, "/check", specs, &out)
	return out.Valid, err
}

// Strategy returns the active restart strategy, empty after StopAll.
func (c *Client) Strategy(ctx context.Context) (string, error) {
	var out strategyBody
	err := c.do(ctx, http.MethodGet, "/strategy", nil, &out)
	return out.Strategy, err
}

// SetStrategy installs a new restart strategy.
func (c *Client) SetStrategy(ctx context.Context, kind string) error {
	return c.do(ctx, http.MethodPut, "/strategy", strategyBody{Strategy: kind}, nil)
}

func childPath(idx int, suffix string) string {
	return "/children/" + strconv.Itoa(idx) + suffix
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- opt-in
		return tlsConfig, nil
	}
	if config.TLS == nil {
		return tlsConfig, nil
	}
	tlsConfig.InsecureSkipVerify = config.TLS.SkipVerify // #nosec G402 -- opt-in
	tlsConfig.ServerName = config.TLS.ServerName
	if config.TLS.CACert != "" {
		if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
	}
	if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath) // #nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}

// do sends body as JSON (when non-nil) and decodes a 2xx answer into out.
// Non-2xx answers become *APIError; a start that partially failed still
// decodes into out before the error is returned.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if out != nil {
		_ = json.Unmarshal(raw, out)
	}
	var er ErrorResponse
	_ = json.Unmarshal(raw, &er)
	msg := er.Error
	if er.Message != "" {
		msg = er.Message
	}
	c.logger.Debug("API request failed", "error", msg, "status", resp.StatusCode)
	return &APIError{Status: resp.StatusCode, Message: msg}
}
