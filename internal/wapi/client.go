// Package wapi is the transport client for the remote messaging-channel
// provisioning API. It owns wire formats, bounded retry and rate limiting;
// interpreting connection states is the caller's job.
package wapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultRateRPS   = 5
	defaultRateBurst = 10
)

// Client is the remote channel client consumed by the orchestrator.
type Client interface {
	CreateInstance(ctx context.Context, name string, wantsQR bool, webhookURL string) (*CreateResult, error)
	ConnectionState(ctx context.Context, name string) (string, error)
	Restart(ctx context.Context, name string) error
	Logout(ctx context.Context, name string) error
	DeleteInstance(ctx context.Context, name string) error
	SendText(ctx context.Context, name, to, text string) error
}

// Config holds connection settings for the provisioning API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   RetryConfig
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   RetryConfig
	limiter *rate.Limiter
}

// NewHTTPClient creates a client for the provisioning API.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("wapi base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid wapi base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retryCfg := cfg.Retry
	if retryCfg.BaseDelay <= 0 {
		retryCfg = DefaultRetryConfig()
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		retry:   retryCfg,
		limiter: rate.NewLimiter(rate.Limit(defaultRateRPS), defaultRateBurst),
	}, nil
}

// CreateInstance provisions a new remote instance, requesting a pairing
// code and registering webhookURL as the inbound event target.
// Returns ErrNameInUse when the provider rejects the name as taken.
func (c *HTTPClient) CreateInstance(ctx context.Context, name string, wantsQR bool, webhookURL string) (*CreateResult, error) {
	req := createInstanceRequest{
		InstanceName: name,
		QRCode:       wantsQR,
		Integration:  "WHATSAPP-BAILEYS",
		WebhookURL:   webhookURL,
	}
	if webhookURL != "" {
		req.Events = []string{"MESSAGES_UPSERT", "CONNECTION_UPDATE"}
	}

	return executeWithRetry(ctx, c.retry, func() (*CreateResult, error) {
		var resp createInstanceResponse
		if err := c.do(ctx, http.MethodPost, "/instance/create", req, &resp); err != nil {
			return nil, err
		}
		return &CreateResult{
			RemoteInstanceID: resp.Instance.InstanceID,
			QRBase64:         resp.QRCode.Base64,
			QRRaw:            resp.QRCode.Code,
		}, nil
	})
}

// ConnectionState queries the remote connection state for an instance.
// The returned state is the provider's free-form token; classification is
// the caller's responsibility.
func (c *HTTPClient) ConnectionState(ctx context.Context, name string) (string, error) {
	// No retry here: the poller already supplies the cadence, a failed
	// tick is simply skipped.
	var resp connectionStateResponse
	if err := c.do(ctx, http.MethodGet, "/instance/connectionState/"+url.PathEscape(name), nil, &resp); err != nil {
		return "", err
	}
	return resp.rawState(), nil
}

// Restart asks the provider to restart a stuck instance handshake.
func (c *HTTPClient) Restart(ctx context.Context, name string) error {
	_, err := executeWithRetry(ctx, c.retry, func() (struct{}, error) {
		return struct{}{}, c.do(ctx, http.MethodPut, "/instance/restart/"+url.PathEscape(name), nil, nil)
	})
	return err
}

// Logout disconnects the remote session. Idempotent: a missing instance
// is not an error.
func (c *HTTPClient) Logout(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/instance/logout/"+url.PathEscape(name), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// DeleteInstance removes the remote instance. Idempotent like Logout.
func (c *HTTPClient) DeleteInstance(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/instance/delete/"+url.PathEscape(name), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// SendText sends a plain text message through an authorized instance.
func (c *HTTPClient) SendText(ctx context.Context, name, to, text string) error {
	req := sendTextRequest{Number: to, Text: text}
	return c.do(ctx, http.MethodPost, "/message/sendText/"+url.PathEscape(name), req, nil)
}

// --- Transport ---

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.classifyError(method, path, resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// classifyError maps provider error responses onto sentinel errors. The
// provider reports a name conflict as 403 with an "already in use" message;
// some versions use 409.
func (c *HTTPClient) classifyError(method, path string, status int, body []byte) error {
	var ae apiError
	json.Unmarshal(body, &ae)

	msg := flattenMessage(ae.Message)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch {
	case status == http.StatusConflict,
		status == http.StatusForbidden && strings.Contains(strings.ToLower(msg), "already in use"):
		return fmt.Errorf("%w: %s", ErrNameInUse, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	}

	slog.Debug("wapi error response", "method", method, "path", path, "status", status, "message", msg)
	return fmt.Errorf("%s %s: status %d: %s", method, path, status, msg)
}

// flattenMessage handles the provider's string-or-array message field.
func flattenMessage(m any) string {
	switch v := m.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			if s, ok := p.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

// isPermanent marks errors that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, ErrNameInUse) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
