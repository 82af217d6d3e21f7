// Package eventlog records switcher activity as JSON lines: session
// lifecycle, route changes, device availability and archive uploads.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/oszuidwest/zwfm-audioswitch/internal/types"
)

// EventType represents the type of event.
type EventType string

// Session event types.
const (
	SessionActivated   EventType = "session_activated"
	SessionDeactivated EventType = "session_deactivated"
	FocusDenied        EventType = "focus_denied"
	FocusChanged       EventType = "focus_changed"
)

// Route event types.
const (
	RouteChanged   EventType = "route_changed"
	DevicesChanged EventType = "devices_changed"
)

// Archive event types.
const (
	ArchiveUploaded EventType = "archive_uploaded"
	ArchiveFailed   EventType = "archive_failed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SessionDetails contains session lifecycle details.
type SessionDetails struct {
	Focus      audio.FocusResult   `json:"focus,omitempty"`
	Level      audio.Level         `json:"level,omitempty"`
	Saved      *audio.AmbientState `json:"saved,omitempty"`
	Restored   *audio.AmbientState `json:"restored,omitempty"`
	DurationMs int64               `json:"duration_ms,omitempty"`
	Routes     int                 `json:"routes,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// RouteDetails contains route change details.
type RouteDetails struct {
	Device  string            `json:"device"`
	Kind    audio.Kind        `json:"kind"`
	Reason  types.RouteReason `json:"reason"`
	Applied bool              `json:"applied"`
}

// DevicesDetails contains device availability details.
type DevicesDetails struct {
	Available []string `json:"available"`
	Selected  string   `json:"selected,omitempty"`
}

// ArchiveDetails contains session report upload details.
type ArchiveDetails struct {
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath(port int) string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "audioswitch", "logs", fmt.Sprintf("%d", port), "audioswitch.jsonl")
	default: // linux, darwin
		//nolint:gocritic // Intentional absolute path for Unix systems
		return filepath.Join("/var/log/audioswitch", fmt.Sprintf("%d", port), "audioswitch.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	return l.encoder.Encode(event)
}

// LogSessionActivated logs the start of a session, and a focus_denied event
// when the OS did not grant focus.
func (l *Logger) LogSessionActivated(r *types.SessionReport) error {
	saved := r.Saved
	err := l.Log(&Event{
		Timestamp: r.StartedAt,
		Type:      SessionActivated,
		SessionID: r.ID,
		Details: &SessionDetails{
			Focus: r.Focus,
			Level: r.Level,
			Saved: &saved,
		},
	})
	if err != nil || r.Focus == audio.FocusGranted {
		return err
	}
	return l.Log(&Event{
		Timestamp: r.StartedAt,
		Type:      FocusDenied,
		SessionID: r.ID,
		Details:   &SessionDetails{Focus: r.Focus},
	})
}

// LogSessionDeactivated logs the end of a session.
func (l *Logger) LogSessionDeactivated(r *types.SessionReport) error {
	restored := r.Restored
	return l.Log(&Event{
		Timestamp: r.EndedAt,
		Type:      SessionDeactivated,
		SessionID: r.ID,
		Details: &SessionDetails{
			Restored:   &restored,
			DurationMs: r.Duration().Milliseconds(),
			Routes:     len(r.Routes),
			Error:      r.Error,
		},
	})
}

// LogFocusChange logs a focus change reported by the OS.
func (l *Logger) LogFocusChange(change audio.FocusChange) error {
	return l.Log(&Event{
		Type:    FocusChanged,
		Message: string(change),
	})
}

// LogRoute logs a route applied during a session.
func (l *Logger) LogRoute(sessionID string, c *types.RouteChange) error {
	return l.Log(&Event{
		Timestamp: c.At,
		Type:      RouteChanged,
		SessionID: sessionID,
		Details: &RouteDetails{
			Device:  c.Device.Name,
			Kind:    c.Device.Kind,
			Reason:  c.Reason,
			Applied: c.Applied,
		},
	})
}

// LogDevices logs a change in device availability or selection.
func (l *Logger) LogDevices(available []audio.Device, selected *audio.Device) error {
	names := make([]string, 0, len(available))
	for _, d := range available {
		names = append(names, d.Name)
	}
	details := &DevicesDetails{Available: names}
	if selected != nil {
		details.Selected = selected.Name
	}
	return l.Log(&Event{
		Type:    DevicesChanged,
		Message: strings.Join(names, ", "),
		Details: details,
	})
}

// LogArchive logs a session report upload result.
func (l *Logger) LogArchive(sessionID, key string, uploadErr error) error {
	event := &Event{
		Type:      ArchiveUploaded,
		SessionID: sessionID,
		Details:   &ArchiveDetails{Key: key},
	}
	if uploadErr != nil {
		event.Type = ArchiveFailed
		event.Details = &ArchiveDetails{Key: key, Error: uploadErr.Error()}
	}
	return l.Log(event)
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterSession TypeFilter = "session"
	FilterRoute   TypeFilter = "route"
	FilterArchive TypeFilter = "archive"
)

// ParseFilter returns the filter named by s.
func ParseFilter(s string) (TypeFilter, error) {
	switch f := TypeFilter(s); f {
	case FilterAll, FilterSession, FilterRoute, FilterArchive:
		return f, nil
	default:
		return "", fmt.Errorf("unknown event filter %q", s)
	}
}

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast reads events from the log file with pagination support.
// Returns up to n events starting from offset, filtered by type, newest
// first, and whether older matching events remain. The n parameter is
// capped at MaxReadLimit.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	skipped := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
			continue // Skip malformed lines
		}
		if !filter.Matches(event.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}

	return events, false, nil
}

// Matches reports whether events of type t pass the filter.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterSession:
		return IsSessionEvent(t)
	case FilterRoute:
		return IsRouteEvent(t)
	case FilterArchive:
		return IsArchiveEvent(t)
	default:
		return true
	}
}

// IsSessionEvent returns true if the event type is a session event.
func IsSessionEvent(t EventType) bool {
	return t == SessionActivated || t == SessionDeactivated || t == FocusDenied || t == FocusChanged
}

// IsRouteEvent returns true if the event type is a route event.
func IsRouteEvent(t EventType) bool {
	return t == RouteChanged || t == DevicesChanged
}

// IsArchiveEvent returns true if the event type is an archive event.
func IsArchiveEvent(t EventType) bool {
	return t == ArchiveUploaded || t == ArchiveFailed
}
