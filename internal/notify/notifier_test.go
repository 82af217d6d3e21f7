package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/oszuidwest/zwfm-audioswitch/internal/config"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookSink struct {
	mu       sync.Mutex
	payloads []WebhookPayload
	auth     []string
	status   int
}

func (s *webhookSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var p WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	status := s.status
	s.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
	}
}

func (s *webhookSink) received() []WebhookPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WebhookPayload(nil), s.payloads...)
}

func newConfig(t *testing.T, webhookURL string) *config.Config {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.SetWebhookURL(webhookURL))
	return cfg
}

func TestRouteNotifierDeliversEvents(t *testing.T) {
	sink := &webhookSink{}
	srv := httptest.NewServer(sink)
	defer srv.Close()

	n := NewRouteNotifier(newConfig(t, srv.URL))
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	report := types.SessionReport{ID: "abc", StartedAt: start, EndedAt: start.Add(time.Minute), Focus: audio.FocusGranted}

	n.SessionActivated(report)
	n.Wait()
	n.RouteChanged("abc", types.RouteChange{At: start, Device: audio.WiredHeadset(), Reason: types.ReasonDeviceConnected, Applied: true})
	n.Wait()
	n.SessionDeactivated(report)
	n.Wait()

	got := sink.received()
	require.Len(t, got, 3)

	assert.Equal(t, EventSessionActivated, got[0].Event)
	assert.Equal(t, audio.FocusGranted, got[0].Focus)
	assert.Equal(t, "2026-01-02T03:04:05Z", got[0].Timestamp)

	assert.Equal(t, EventRouteChanged, got[1].Event)
	assert.Equal(t, "Wired Headset", got[1].Device)
	assert.Equal(t, audio.KindWiredHeadset, got[1].Kind)
	assert.Equal(t, types.ReasonDeviceConnected, got[1].Reason)
	require.NotNil(t, got[1].Applied)
	assert.True(t, *got[1].Applied)

	assert.Equal(t, EventSessionDeactivated, got[2].Event)
	assert.Equal(t, int64(60000), got[2].DurationMs)
}

func TestRouteNotifierPreservesOrder(t *testing.T) {
	sink := &webhookSink{}
	srv := httptest.NewServer(sink)
	defer srv.Close()

	n := NewRouteNotifier(newConfig(t, srv.URL))
	report := types.SessionReport{ID: "abc", StartedAt: time.Now(), EndedAt: time.Now()}

	n.SessionActivated(report)
	for range 5 {
		n.RouteChanged("abc", types.RouteChange{Device: audio.Speakerphone(), Reason: types.ReasonUserSelected, Applied: true})
	}
	n.SessionDeactivated(report)
	n.Wait()

	got := sink.received()
	require.Len(t, got, 7)
	assert.Equal(t, EventSessionActivated, got[0].Event)
	for _, p := range got[1:6] {
		assert.Equal(t, EventRouteChanged, p.Event)
	}
	assert.Equal(t, EventSessionDeactivated, got[6].Event)
}

func TestRouteNotifierSkipsWithoutWebhook(t *testing.T) {
	n := NewRouteNotifier(config.New(filepath.Join(t.TempDir(), "config.json")))
	n.RouteChanged("abc", types.RouteChange{Device: audio.Earpiece()})
	n.Wait()

	assert.ErrorContains(t, n.SendTest(context.Background()), "not configured")
}

func TestSendTestReportsStatus(t *testing.T) {
	sink := &webhookSink{status: http.StatusBadGateway}
	srv := httptest.NewServer(sink)
	defer srv.Close()

	n := NewRouteNotifier(newConfig(t, srv.URL))
	err := n.SendTest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	got := sink.received()
	require.Len(t, got, 1)
	assert.Equal(t, EventTest, got[0].Event)
	assert.NotEmpty(t, got[0].Timestamp)
}

func TestWebhookClientCredentials(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	sink := &webhookSink{}
	srv := httptest.NewServer(sink)
	defer srv.Close()

	client, err := NewWebhookClient(&WebhookConfig{
		URL:          srv.URL,
		TokenURL:     tokenSrv.URL,
		ClientID:     "switcher",
		ClientSecret: "secret",
		Scopes:       []string{"hooks.write"},
	})
	require.NoError(t, err)
	require.NoError(t, client.Send(context.Background(), &WebhookPayload{Event: EventTest}))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.auth, 1)
	assert.Equal(t, "Bearer tok-123", sink.auth[0])
}

func TestNewWebhookClientValidation(t *testing.T) {
	_, err := NewWebhookClient(&WebhookConfig{})
	assert.Error(t, err)

	_, err = NewWebhookClient(&WebhookConfig{URL: "https://example.com", TokenURL: "https://auth.example.com"})
	assert.Error(t, err)
}

func TestInvalidateClientPicksUpNewURL(t *testing.T) {
	first := &webhookSink{}
	srv1 := httptest.NewServer(first)
	defer srv1.Close()
	second := &webhookSink{}
	srv2 := httptest.NewServer(second)
	defer srv2.Close()

	cfg := newConfig(t, srv1.URL)
	n := NewRouteNotifier(cfg)
	require.NoError(t, n.SendTest(context.Background()))

	require.NoError(t, cfg.SetWebhookURL(srv2.URL))
	n.InvalidateClient()
	require.NoError(t, n.SendTest(context.Background()))

	assert.Len(t, first.received(), 1)
	assert.Len(t, second.received(), 1)
}
