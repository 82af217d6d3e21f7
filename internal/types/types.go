// Package types provides shared type definitions used across the audio switcher.
package types

import (
	"time"

	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
)

// SwitcherState represents the lifecycle state of the switcher.
type SwitcherState string

const (
	// StateStopped indicates the switcher is not monitoring devices.
	StateStopped SwitcherState = "stopped"
	// StateStarted indicates devices are monitored but no session is active.
	StateStarted SwitcherState = "started"
	// StateActivated indicates a voice session holds focus and a route.
	StateActivated SwitcherState = "activated"
)

// RouteReason explains why a route was (re)selected.
type RouteReason string

const (
	// ReasonStart is a selection made when the switcher starts.
	ReasonStart RouteReason = "start"
	// ReasonUserSelected is a selection requested by the user.
	ReasonUserSelected RouteReason = "user_selected"
	// ReasonDeviceConnected follows a device becoming available.
	ReasonDeviceConnected RouteReason = "device_connected"
	// ReasonDeviceDisconnected follows a device going away.
	ReasonDeviceDisconnected RouteReason = "device_disconnected"
	// ReasonActivate is the route applied when a session begins.
	ReasonActivate RouteReason = "activate"
	// ReasonPreference follows a change of the device preference order.
	ReasonPreference RouteReason = "preference"
	// ReasonRouteLost follows the OS dropping the routed communication device.
	ReasonRouteLost RouteReason = "route_lost"
)

// RouteChange records a route applied during a session.
type RouteChange struct {
	At      time.Time    `json:"at"`
	Device  audio.Device `json:"device"`
	Reason  RouteReason  `json:"reason"`
	Applied bool         `json:"applied"` // false when the OS had no matching device
}

// SessionReport summarizes one activated session.
type SessionReport struct {
	ID        string             `json:"id"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at"`
	Level     audio.Level        `json:"level"`
	Focus     audio.FocusResult  `json:"focus"`
	Saved     audio.AmbientState `json:"saved"`
	Restored  audio.AmbientState `json:"restored"`
	Routes    []RouteChange      `json:"routes"`
	Error     string             `json:"error,omitempty"`
}

// Duration returns how long the session was active.
func (r *SessionReport) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Status is a point-in-time view of the switcher.
type Status struct {
	State        SwitcherState      `json:"state"`
	Available    []audio.Device     `json:"available"`
	Selected     *audio.Device      `json:"selected,omitempty"`
	SessionID    string             `json:"session_id,omitempty"`
	Level        audio.Level        `json:"level"`
	Capabilities audio.Capabilities `json:"capabilities"`
	Current      audio.AmbientState `json:"current"`
}

// WSStatusResponse is the periodic status message sent to WebSocket clients.
type WSStatusResponse struct {
	Type     string `json:"type"` // "status"
	Switcher Status `json:"switcher"`
	Version  string `json:"version"`
}

const (
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
	// StatusInterval is the interval between WebSocket status pushes.
	StatusInterval = 3000 * time.Millisecond
)
