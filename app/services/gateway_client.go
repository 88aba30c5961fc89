// Package services provides external service integrations and technical concerns like gateway access and tokens
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/wa-pool/config"
	"golang.org/x/time/rate"
)

var (
	// ErrGatewayUnreachable covers transport failures and 5xx answers from the gateway
	ErrGatewayUnreachable = errors.New("gateway unreachable")
	// ErrMalformedGatewayResponse is returned when a response lacks the fields the caller depends on
	ErrMalformedGatewayResponse = errors.New("malformed gateway response")
)

// GatewaySessionStatus is the validated result of a status query.
// State is the raw vendor state string and is never empty.
type GatewaySessionStatus struct {
	State    string
	Identity *string
}

// GatewayClient is the boundary to the external messaging gateway. It holds no local state.
type GatewayClient interface {
	StartSession(ctx context.Context, name string) error
	StopSession(ctx context.Context, name string) error
	GetSessionStatus(ctx context.Context, name string) (*GatewaySessionStatus, error)
	GetQRCode(ctx context.Context, name string) (string, error)
	GetPairingCode(ctx context.Context, name, phoneNumber string) (string, error)
}

// HTTPGatewayClient talks to a WAHA-compatible HTTP API
type HTTPGatewayClient struct {
	cfg     config.GatewayConfig
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewGatewayClient returns the mock client for provider "mock" and the HTTP client otherwise
func NewGatewayClient(cfg config.GatewayConfig) GatewayClient {
	if cfg.Provider == "mock" {
		return NewMockGatewayClient()
	}
	return NewHTTPGatewayClient(cfg)
}

// NewHTTPGatewayClient creates a rate-limited gateway client
func NewHTTPGatewayClient(cfg config.GatewayConfig) *HTTPGatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &HTTPGatewayClient{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type sessionRequest struct {
	Name   string         `json:"name"`
	Logout *bool          `json:"logout,omitempty"`
	Config *sessionConfig `json:"config,omitempty"`
}

type sessionConfig struct {
	Webhooks []sessionWebhook `json:"webhooks,omitempty"`
}

type sessionWebhook struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type sessionStatusResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Me     *struct {
		ID       string `json:"id"`
		PushName string `json:"pushName"`
	} `json:"me"`
}

// StartSession creates and starts a named session on the gateway
func (c *HTTPGatewayClient) StartSession(ctx context.Context, name string) error {
	payload := sessionRequest{Name: name}
	if c.cfg.WebhookURL != "" {
		payload.Config = &sessionConfig{
			Webhooks: []sessionWebhook{{URL: c.cfg.WebhookURL, Events: []string{"session.status", "message"}}},
		}
	}
	return c.do(ctx, http.MethodPost, "/api/sessions/start", payload, nil)
}

// StopSession stops a session without logging the account out
func (c *HTTPGatewayClient) StopSession(ctx context.Context, name string) error {
	logout := false
	return c.do(ctx, http.MethodPost, "/api/sessions/stop", sessionRequest{Name: name, Logout: &logout}, nil)
}

// GetSessionStatus fetches the live session state; the identity is the account phone number when paired
func (c *HTTPGatewayClient) GetSessionStatus(ctx context.Context, name string) (*GatewaySessionStatus, error) {
	var out sessionStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}

	state := strings.TrimSpace(out.Status)
	if state == "" {
		return nil, fmt.Errorf("%w: session %s has no status", ErrMalformedGatewayResponse, name)
	}

	status := &GatewaySessionStatus{State: state}
	if out.Me != nil {
		if phone := identityToPhone(out.Me.ID); phone != "" {
			status.Identity = &phone
		}
	}
	return status, nil
}

// GetQRCode returns the raw QR payload for the session
func (c *HTTPGatewayClient) GetQRCode(ctx context.Context, name string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	path := "/api/" + url.PathEscape(name) + "/auth/qr?format=raw"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if out.Value == "" {
		return "", fmt.Errorf("%w: empty qr for session %s", ErrMalformedGatewayResponse, name)
	}
	return out.Value, nil
}

// GetPairingCode requests a short pairing code bound to phoneNumber
func (c *HTTPGatewayClient) GetPairingCode(ctx context.Context, name, phoneNumber string) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	payload := struct {
		PhoneNumber string `json:"phoneNumber"`
	}{PhoneNumber: phoneNumber}

	path := "/api/" + url.PathEscape(name) + "/auth/request-code"
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return "", err
	}
	if out.Code == "" {
		return "", fmt.Errorf("%w: empty pairing code for session %s", ErrMalformedGatewayResponse, name)
	}
	return out.Code, nil
}

func (c *HTTPGatewayClient) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gateway rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode gateway request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrGatewayUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s %s returned %d", ErrGatewayUnreachable, method, path, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gateway %s %s http status: %d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedGatewayResponse, err)
	}
	return nil
}

// identityToPhone strips the "@c.us" style suffix from a gateway account id
func identityToPhone(id string) string {
	id = strings.TrimSpace(id)
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon >= 0 {
		id = id[:colon]
	}
	return id
}
