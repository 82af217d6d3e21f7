package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
	"github.com/oszuidwest/zwfm-audioswitch/internal/util"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// webhookTimeout bounds a single delivery, token fetch included.
const webhookTimeout = 10000 * time.Millisecond

// Webhook event names.
const (
	EventSessionActivated   = "session_activated"
	EventSessionDeactivated = "session_deactivated"
	EventRouteChanged       = "route_changed"
	EventTest               = "test"
)

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event      string            `json:"event"`
	SessionID  string            `json:"session_id,omitempty"`
	Device     string            `json:"device,omitempty"`
	Kind       audio.Kind        `json:"kind,omitempty"`
	Reason     types.RouteReason `json:"reason,omitempty"`
	Applied    *bool             `json:"applied,omitempty"`
	Focus      audio.FocusResult `json:"focus,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Error      string            `json:"error,omitempty"`
	Message    string            `json:"message,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

// WebhookConfig holds the endpoint and optional OAuth2 client credentials.
type WebhookConfig struct {
	URL          string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// WebhookClient posts event payloads to a webhook endpoint. When a token URL
// is configured, requests carry a bearer token from the client credentials
// grant.
type WebhookClient struct {
	url        string
	httpClient *http.Client
}

// NewWebhookClient creates a webhook client.
func NewWebhookClient(cfg *WebhookConfig) (*WebhookClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}

	baseClient := &http.Client{Timeout: webhookTimeout}
	httpClient := baseClient
	if cfg.TokenURL != "" {
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("client ID and client secret are required with a token URL")
		}
		conf := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)
		httpClient = conf.Client(ctx)
	}

	return &WebhookClient{url: cfg.URL, httpClient: httpClient}, nil
}

// Send delivers a payload. Non-2xx responses are errors.
func (c *WebhookClient) Send(ctx context.Context, payload *WebhookPayload) error {
	if payload.Timestamp == "" {
		payload.Timestamp = timestampUTC()
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return util.WrapError("create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", AppName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Response body fully handled by status check

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// activatedPayload builds the payload for a session start.
func activatedPayload(r *types.SessionReport) *WebhookPayload {
	return &WebhookPayload{
		Event:     EventSessionActivated,
		SessionID: r.ID,
		Focus:     r.Focus,
		Timestamp: r.StartedAt.UTC().Format(time.RFC3339),
	}
}

// deactivatedPayload builds the payload for a session end.
func deactivatedPayload(r *types.SessionReport) *WebhookPayload {
	return &WebhookPayload{
		Event:      EventSessionDeactivated,
		SessionID:  r.ID,
		DurationMs: r.Duration().Milliseconds(),
		Error:      r.Error,
		Timestamp:  r.EndedAt.UTC().Format(time.RFC3339),
	}
}

// routePayload builds the payload for a route change.
func routePayload(sessionID string, c *types.RouteChange) *WebhookPayload {
	applied := c.Applied
	return &WebhookPayload{
		Event:     EventRouteChanged,
		SessionID: sessionID,
		Device:    c.Device.Name,
		Kind:      c.Device.Kind,
		Reason:    c.Reason,
		Applied:   &applied,
		Timestamp: c.At.UTC().Format(time.RFC3339),
	}
}
