package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-audioswitch/internal/server"
	"github.com/oszuidwest/zwfm-audioswitch/internal/switcher"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
)

// webhookTestTimeout bounds a test webhook delivery.
const webhookTestTimeout = 15 * time.Second

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parseJSON reads, parses and validates JSON from the request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	if err := server.Validate(&v); err != nil {
		s.writeValidationError(w, err)
		return v, false
	}
	return v, true
}

// writeValidationError writes validator errors as a 400 response.
func (s *Server) writeValidationError(w http.ResponseWriter, err error) {
	verr := types.NewValidationError()
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, e := range fieldErrs {
			verr.Add(e.Field(), "failed validation '"+e.Tag()+"'", e.Value())
		}
	} else {
		verr.Add("", err.Error(), nil)
	}
	s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr})
}

// writeOpError maps a switcher or command error to an HTTP status.
func (s *Server) writeOpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, switcher.ErrNotStarted), errors.Is(err, switcher.ErrNotActivated):
		status = http.StatusConflict
	case errors.Is(err, switcher.ErrDeviceUnavailable), errors.Is(err, server.ErrDeviceNotAttached):
		status = http.StatusNotFound
	case errors.Is(err, server.ErrNoInterruption), errors.Is(err, server.ErrFocusRefused):
		status = http.StatusConflict
	}
	s.writeError(w, status, err.Error())
}

// handleStatus returns the switcher status.
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.switcher.Status())
}

// handleActivate starts a voice session.
// POST /api/session/activate
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.switcher.Activate(); err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.switcher.Status())
}

// handleDeactivate ends the voice session and restores the OS audio state.
// POST /api/session/deactivate
func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.switcher.Deactivate()
	s.writeJSON(w, http.StatusOK, s.switcher.Status())
}

// handleSelectRoute selects a device, or automatic selection for an empty device.
// POST /api/route/select
func (s *Server) handleSelectRoute(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.RouteSelectRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.commands.SelectRoute(&req); err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.switcher.Status())
}

// handlePreferred replaces the device preference order.
// PUT /api/route/preferred
func (s *Server) handlePreferred(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.PreferredRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.commands.SetPreferred(&req); err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.switcher.Status())
}

// handleMute sets the microphone mute state.
// POST /api/mute
func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.MuteRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.commands.SetMute(&req); err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"muted": *req.Muted})
}

// handleListDevices returns the simulated OS audio state.
// GET /api/devices
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.devices.State())
}

// handlePlug attaches a simulated device.
// POST /api/devices/plug
func (s *Server) handlePlug(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.DeviceRequest](s, w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusCreated, s.commands.PlugDevice(&req))
}

// handleUnplug detaches a simulated device.
// POST /api/devices/unplug
func (s *Server) handleUnplug(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.DeviceRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.commands.UnplugDevice(&req); err != nil {
		s.writeOpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFocus simulates another application taking or releasing audio focus.
// POST /api/devices/focus
func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.FocusInterruptRequest](s, w, r)
	if !ok {
		return
	}
	state, err := s.commands.InterruptFocus(&req)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// handleEvents returns a page of the event log, newest first.
// GET /api/events?limit=50&offset=0&filter=route
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := server.EventsQuery{Filter: q.Get("filter")}
	for name, dst := range map[string]*int{"limit": &query.Limit, "offset": &query.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid "+name+": "+v)
			return
		}
		*dst = n
	}
	if err := server.Validate(&query); err != nil {
		s.writeValidationError(w, err)
		return
	}

	page, err := s.commands.ReadEvents(&query)
	if err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

// handleUpdateWebhook stores a new webhook URL.
// PUT /api/notifications/webhook
func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	req, ok := parseJSON[server.WebhookUpdateRequest](s, w, r)
	if !ok {
		return
	}
	if err := s.commands.UpdateWebhook(&req); err != nil {
		s.writeOpError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": req.URL})
}

// handleTestWebhook sends a test event to the configured webhook.
// POST /api/notifications/test
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), webhookTestTimeout)
	defer cancel()

	if err := s.commands.TestWebhook(ctx); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleTestArchive uploads and removes a probe object in the archive bucket.
// POST /api/archive/test
func (s *Server) handleTestArchive(w http.ResponseWriter, r *http.Request) {
	if err := s.commands.TestArchive(r.Context()); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
