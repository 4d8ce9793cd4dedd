package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/epiguard-backend/pkg/errors"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	responseBodyReadLimit = 4 << 10
)

// WebhookClient posts JSON payloads to a single configured URL.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

// WebhookOption customizes the webhook client.
type WebhookOption func(*WebhookClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(c *WebhookClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewWebhookClient builds a client for url. A zero timeout falls back to 5s.
func NewWebhookClient(url string, timeout time.Duration, opts ...WebhookOption) (*WebhookClient, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook url is required")
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	client := &WebhookClient{
		url:        trimmed,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Post sends payload as JSON. Any non-2xx response is a dependency error.
func (c *WebhookClient) Post(ctx context.Context, payload any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "webhook client not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute webhook request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "webhook request failed")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
