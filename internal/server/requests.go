package server

// Request types shared by WebSocket commands and the HTTP API. Validation
// uses go-playground/validator struct tags.

// --- Route control ---

// RouteSelectRequest is the request body for route/select. An empty device
// returns to automatic selection.
type RouteSelectRequest struct {
	Device string `json:"device" validate:"omitempty,oneof=earpiece speakerphone wired_headset bluetooth_headset"`
}

// MuteRequest is the request body for route/mute.
type MuteRequest struct {
	Muted *bool `json:"muted" validate:"required"`
}

// PreferredRequest is the request body for route/preferred. Devices not
// listed keep their default relative order.
type PreferredRequest struct {
	Devices []string `json:"devices" validate:"max=4,dive,oneof=earpiece speakerphone wired_headset bluetooth_headset"`
}

// --- Simulated devices ---

// DeviceRequest is the request body for devices/plug and devices/unplug.
type DeviceRequest struct {
	Type string `json:"type" validate:"required,oneof=builtin_earpiece builtin_speaker wired_headset wired_headphones bluetooth_sco bluetooth_a2dp usb_headset hdmi telephony"`
	Name string `json:"name" validate:"omitempty,max=100"`
}

// FocusInterruptRequest is the request body for devices/focus. Release ends
// the interruption; otherwise another application takes focus with Gain,
// transient when empty.
type FocusInterruptRequest struct {
	Gain    string `json:"gain" validate:"omitempty,oneof=gain gain_transient gain_transient_may_duck gain_transient_exclusive"`
	Release bool   `json:"release"`
}

// --- Notification settings ---

// WebhookUpdateRequest is the request body for notifications/webhook/update.
type WebhookUpdateRequest struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"`
}

// --- Event log ---

// EventsQuery holds the query parameters for the event log.
type EventsQuery struct {
	Limit  int    `json:"limit" validate:"gte=0,lte=500"`
	Offset int    `json:"offset" validate:"gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=session route archive"`
}
