package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oszuidwest/zwfm-audioswitch/internal/config"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
	"github.com/oszuidwest/zwfm-audioswitch/internal/util"
)

// deliveryQueueSize is the number of events that can wait for delivery.
const deliveryQueueSize = 64

// RouteNotifier delivers session and route events to the configured
// webhook. Deliveries run in the background on a single worker, in the
// order the events were raised.
type RouteNotifier struct {
	cfg *config.Config

	// mu protects client
	mu     sync.Mutex
	client *WebhookClient

	queue     chan *WebhookPayload
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewRouteNotifier returns a RouteNotifier configured with the given config.
func NewRouteNotifier(cfg *config.Config) *RouteNotifier {
	return &RouteNotifier{
		cfg:   cfg,
		queue: make(chan *WebhookPayload, deliveryQueueSize),
	}
}

// InvalidateClient clears the cached webhook client.
// Call this when webhook configuration changes.
func (n *RouteNotifier) InvalidateClient() {
	n.mu.Lock()
	n.client = nil
	n.mu.Unlock()
}

// BuildWebhookConfig creates a WebhookConfig from the config snapshot.
//
//nolint:gocritic // hugeParam: copy is acceptable for infrequent notification events
func BuildWebhookConfig(cfg config.Snapshot) *WebhookConfig {
	return &WebhookConfig{
		URL:          cfg.WebhookURL,
		TokenURL:     cfg.WebhookTokenURL,
		ClientID:     cfg.WebhookClientID,
		ClientSecret: cfg.WebhookClientSecret,
		Scopes:       cfg.WebhookScopes,
	}
}

// getOrCreateClient returns the cached webhook client, creating it if needed.
func (n *RouteNotifier) getOrCreateClient() (*WebhookClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.client != nil {
		return n.client, nil
	}

	client, err := NewWebhookClient(BuildWebhookConfig(n.cfg.Snapshot()))
	if err != nil {
		return nil, err
	}
	n.client = client
	return client, nil
}

// SessionActivated notifies the start of a session.
func (n *RouteNotifier) SessionActivated(r types.SessionReport) {
	n.dispatch(activatedPayload(&r))
}

// SessionDeactivated notifies the end of a session.
func (n *RouteNotifier) SessionDeactivated(r types.SessionReport) {
	n.dispatch(deactivatedPayload(&r))
}

// RouteChanged notifies a route change.
func (n *RouteNotifier) RouteChanged(sessionID string, c types.RouteChange) {
	n.dispatch(routePayload(sessionID, &c))
}

// SendTest sends a test notification and waits for the result.
func (n *RouteNotifier) SendTest(ctx context.Context) error {
	cfg := n.cfg.Snapshot()
	if !cfg.HasWebhook() {
		return fmt.Errorf("webhook URL not configured")
	}
	client, err := n.getOrCreateClient()
	if err != nil {
		return util.WrapError("create webhook client", err)
	}
	return client.Send(ctx, &WebhookPayload{
		Event:   EventTest,
		Message: "This is a test notification from " + AppName,
	})
}

// Wait blocks until queued deliveries have finished.
func (n *RouteNotifier) Wait() {
	n.wg.Wait()
}

// dispatch queues payload for delivery if a webhook is configured. Events
// are dropped when the queue is full.
func (n *RouteNotifier) dispatch(payload *WebhookPayload) {
	cfg := n.cfg.Snapshot()
	if !cfg.HasWebhook() {
		return
	}

	n.startOnce.Do(func() { go n.deliveryWorker() })
	n.wg.Add(1)
	select {
	case n.queue <- payload:
	default:
		n.wg.Done()
		slog.Warn("webhook queue full, event dropped", "event", payload.Event, "session_id", payload.SessionID)
	}
}

// deliveryWorker sends queued payloads one at a time.
func (n *RouteNotifier) deliveryWorker() {
	for payload := range n.queue {
		_ = util.LogDelivery(payload.Event, payload.SessionID, func() error {
			client, err := n.getOrCreateClient()
			if err != nil {
				return util.WrapError("create webhook client", err)
			}
			return client.Send(context.Background(), payload)
		})
		n.wg.Done()
	}
}
