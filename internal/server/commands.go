package server

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/oszuidwest/zwfm-audioswitch/internal/archive"
	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/oszuidwest/zwfm-audioswitch/internal/config"
	"github.com/oszuidwest/zwfm-audioswitch/internal/eventlog"
	"github.com/oszuidwest/zwfm-audioswitch/internal/platform"
	"github.com/oszuidwest/zwfm-audioswitch/internal/switcher"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
)

// DefaultEventLimit is the number of events returned when no limit is given.
const DefaultEventLimit = 50

// Errors returned by command operations.
var (
	ErrDeviceNotAttached    = errors.New("no device of that type is attached")
	ErrArchiveNotConfigured = errors.New("session archive not configured")
	ErrFocusRefused         = errors.New("audio focus request refused")
	ErrNoInterruption       = errors.New("no focus interruption active")
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Router is the route control surface driven by commands.
type Router interface {
	Activate() error
	Deactivate()
	SelectDevice(d *audio.Device) error
	SetPreferred(kinds []audio.Kind)
	Mute(muted bool) error
	Status() types.Status
}

// DeviceSimulator attaches and detaches simulated devices.
type DeviceSimulator interface {
	Plug(spec platform.DeviceSpec) audio.DeviceInfo
	Unplug(t audio.HardwareType) bool
	Interrupt(gain audio.FocusGain) audio.FocusResult
	EndInterruption() bool
	State() platform.State
}

// WebhookNotifier is the webhook surface used by commands.
type WebhookNotifier interface {
	SendTest(ctx context.Context) error
	InvalidateClient()
}

// EventsPage is a page of event log entries.
type EventsPage struct {
	Events  []eventlog.Event `json:"events"`
	HasMore bool             `json:"has_more"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg          *config.Config
	router       Router
	devices      DeviceSimulator
	notifier     WebhookNotifier
	eventLogPath string
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, router Router, devices DeviceSimulator, notifier WebhookNotifier, eventLogPath string) *CommandHandler {
	return &CommandHandler{
		cfg:          cfg,
		router:       router,
		devices:      devices,
		notifier:     notifier,
		eventLogPath: eventLogPath,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "session/activate", "route/select")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "session":
		h.handleSession(action, cmd, send)
	case "route":
		h.handleRoute(action, cmd, send)
	case "devices":
		h.handleDevices(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "archive":
		h.handleArchive(action, cmd, send)
	case "status":
		h.handleStatus(action, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleSession routes session/* commands
func (h *CommandHandler) handleSession(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "activate":
		if err := h.router.Activate(); err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, h.router.Status())
	case "deactivate":
		h.router.Deactivate()
		SendSuccess(send, cmd.Type, h.router.Status())
	default:
		slog.Warn("unknown session action", "action", action)
	}
}

// handleRoute routes route/* commands
func (h *CommandHandler) handleRoute(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "select":
		HandleCommand(h, cmd, send, h.SelectRoute)
	case "mute":
		HandleCommand(h, cmd, send, h.SetMute)
	case "preferred":
		HandleCommand(h, cmd, send, h.SetPreferred)
	default:
		slog.Warn("unknown route action", "action", action)
	}
}

// handleDevices routes devices/* commands
func (h *CommandHandler) handleDevices(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "plug":
		var req DeviceRequest
		if !DecodeAndValidate(cmd, send, &req) {
			return
		}
		SendSuccess(send, cmd.Type, h.PlugDevice(&req))
	case "unplug":
		HandleCommand(h, cmd, send, h.UnplugDevice)
	case "focus":
		var req FocusInterruptRequest
		if !DecodeAndValidate(cmd, send, &req) {
			return
		}
		state, err := h.InterruptFocus(&req)
		if err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, state)
	case "list":
		SendSuccess(send, cmd.Type, h.devices.State())
	default:
		slog.Warn("unknown devices action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "webhook":
		switch subaction {
		case "update":
			HandleCommand(h, cmd, send, h.UpdateWebhook)
		case "test":
			HandleActionAsync(cmd, send, func() (any, error) {
				return nil, h.TestWebhook(context.Background())
			})
		default:
			slog.Warn("unknown webhook action", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "list":
		q := EventsQuery{Limit: DefaultEventLimit}
		if len(cmd.Data) > 0 && !DecodeAndValidate(cmd, send, &q) {
			return
		}
		page, err := h.ReadEvents(&q)
		if err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, page)
	default:
		slog.Warn("unknown events action", "action", action)
	}
}

// handleArchive routes archive/* commands
func (h *CommandHandler) handleArchive(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "test":
		HandleActionAsync(cmd, send, func() (any, error) {
			return nil, h.TestArchive(context.Background())
		})
	default:
		slog.Warn("unknown archive action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string, send chan<- any) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}

// --- Operations shared with the HTTP API ---

// SelectRoute selects the requested device, or automatic selection when empty.
func (h *CommandHandler) SelectRoute(req *RouteSelectRequest) error {
	if req.Device == "" {
		return h.router.SelectDevice(nil)
	}
	kind, err := audio.ParseKind(req.Device)
	if err != nil {
		return err
	}
	return h.router.SelectDevice(&audio.Device{Kind: kind})
}

// SetPreferred stores and applies a new device preference order.
func (h *CommandHandler) SetPreferred(req *PreferredRequest) error {
	kinds, err := switcher.PreferredKinds(req.Devices)
	if err != nil {
		return err
	}
	if err := h.cfg.SetPreferredDevices(req.Devices); err != nil {
		return err
	}
	h.router.SetPreferred(kinds)
	return nil
}

// SetMute sets the microphone mute state of the active session.
func (h *CommandHandler) SetMute(req *MuteRequest) error {
	return h.router.Mute(*req.Muted)
}

// PlugDevice attaches a simulated device.
func (h *CommandHandler) PlugDevice(req *DeviceRequest) audio.DeviceInfo {
	info := h.devices.Plug(platform.DeviceSpec{Type: audio.HardwareType(req.Type), Name: req.Name})
	slog.Info("device plugged", "type", info.Type, "id", info.ID, "name", info.ProductName)
	return info
}

// UnplugDevice detaches the first simulated device of the requested type.
func (h *CommandHandler) UnplugDevice(req *DeviceRequest) error {
	if !h.devices.Unplug(audio.HardwareType(req.Type)) {
		return ErrDeviceNotAttached
	}
	slog.Info("device unplugged", "type", req.Type)
	return nil
}

// InterruptFocus lets another application take or give back audio focus.
func (h *CommandHandler) InterruptFocus(req *FocusInterruptRequest) (platform.State, error) {
	if req.Release {
		if !h.devices.EndInterruption() {
			return platform.State{}, ErrNoInterruption
		}
		slog.Info("focus interruption ended")
		return h.devices.State(), nil
	}

	gain := cmp.Or(audio.FocusGain(req.Gain), audio.FocusGainTransient)
	if result := h.devices.Interrupt(gain); result != audio.FocusGranted {
		return platform.State{}, ErrFocusRefused
	}
	slog.Info("focus taken by another application", "gain", gain)
	return h.devices.State(), nil
}

// UpdateWebhook stores a new webhook URL.
func (h *CommandHandler) UpdateWebhook(req *WebhookUpdateRequest) error {
	if err := h.cfg.SetWebhookURL(req.URL); err != nil {
		return err
	}
	h.notifier.InvalidateClient()
	return nil
}

// TestWebhook sends a test event to the configured webhook.
func (h *CommandHandler) TestWebhook(ctx context.Context) error {
	return h.notifier.SendTest(ctx)
}

// TestArchive checks that the configured bucket accepts uploads.
func (h *CommandHandler) TestArchive(ctx context.Context) error {
	cfg := h.cfg.Snapshot()
	if !cfg.HasArchive() {
		return ErrArchiveNotConfigured
	}
	return archive.CheckConnection(ctx, &archive.S3Config{
		Endpoint:        cfg.ArchiveEndpoint,
		Bucket:          cfg.ArchiveBucket,
		AccessKeyID:     cfg.ArchiveAccessKeyID,
		SecretAccessKey: cfg.ArchiveSecretAccessKey,
		Prefix:          cfg.ArchivePrefix,
	})
}

// ReadEvents returns a page of the event log, newest first.
func (h *CommandHandler) ReadEvents(q *EventsQuery) (EventsPage, error) {
	limit := q.Limit
	if limit == 0 {
		limit = DefaultEventLimit
	}
	filter, err := eventlog.ParseFilter(q.Filter)
	if err != nil {
		return EventsPage{}, err
	}
	events, more, err := eventlog.ReadLast(h.eventLogPath, limit, q.Offset, filter)
	if err != nil {
		return EventsPage{}, err
	}
	return EventsPage{Events: events, HasMore: more}, nil
}
