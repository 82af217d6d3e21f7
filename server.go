package main

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-audioswitch/internal/config"
	"github.com/oszuidwest/zwfm-audioswitch/internal/metrics"
	"github.com/oszuidwest/zwfm-audioswitch/internal/platform"
	"github.com/oszuidwest/zwfm-audioswitch/internal/server"
	"github.com/oszuidwest/zwfm-audioswitch/internal/switcher"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Server is an HTTP server that exposes the audio switcher over a JSON API
// and a WebSocket.
type Server struct {
	config   *config.Config
	switcher *switcher.Switcher
	devices  *platform.Simulator
	commands *server.CommandHandler
	registry *prometheus.Registry
}

// NewServer returns a new Server for the given switcher and simulated platform.
func NewServer(cfg *config.Config, sw *switcher.Switcher, sim *platform.Simulator, notifier server.WebhookNotifier, reg *prometheus.Registry, eventLogPath string) *Server {
	return &Server{
		config:   cfg,
		switcher: sw,
		devices:  sim,
		commands: server.NewCommandHandler(cfg, sw, sim, notifier, eventLogPath),
		registry: reg,
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Only the writer goroutine writes to the connection.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes status periodically and after each command.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	statusTicker := time.NewTicker(types.StatusInterval)
	defer statusTicker.Stop()

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	return types.WSStatusResponse{
		Type:     "status",
		Switcher: s.switcher.Status(),
		Version:  Version,
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Metrics are public for scraping
	mux.Handle("GET /metrics", metrics.Handler(s.registry))

	mux.HandleFunc("GET /api/status", s.apiKeyAuth(s.handleStatus))
	mux.HandleFunc("POST /api/session/activate", s.apiKeyAuth(s.handleActivate))
	mux.HandleFunc("POST /api/session/deactivate", s.apiKeyAuth(s.handleDeactivate))
	mux.HandleFunc("POST /api/route/select", s.apiKeyAuth(s.handleSelectRoute))
	mux.HandleFunc("PUT /api/route/preferred", s.apiKeyAuth(s.handlePreferred))
	mux.HandleFunc("POST /api/mute", s.apiKeyAuth(s.handleMute))
	mux.HandleFunc("GET /api/devices", s.apiKeyAuth(s.handleListDevices))
	mux.HandleFunc("POST /api/devices/plug", s.apiKeyAuth(s.handlePlug))
	mux.HandleFunc("POST /api/devices/unplug", s.apiKeyAuth(s.handleUnplug))
	mux.HandleFunc("POST /api/devices/focus", s.apiKeyAuth(s.handleFocus))
	mux.HandleFunc("GET /api/events", s.apiKeyAuth(s.handleEvents))
	mux.HandleFunc("PUT /api/notifications/webhook", s.apiKeyAuth(s.handleUpdateWebhook))
	mux.HandleFunc("POST /api/notifications/test", s.apiKeyAuth(s.handleTestWebhook))
	mux.HandleFunc("POST /api/archive/test", s.apiKeyAuth(s.handleTestArchive))

	mux.HandleFunc("GET /ws", s.apiKeyAuth(s.handleWebSocket))

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// apiKeyAuth returns middleware for API key authentication. The key is read
// from the X-API-Key header or the api_key query parameter. Requests pass
// unchecked when no key is configured.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.Snapshot().APIKey
		if apiKey == "" {
			next(w, r)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if providedKey == "" {
			providedKey = r.URL.Query().Get("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
