package util

import "log/slog"

// LogDelivery runs deliver and logs the outcome for the given event and
// session. The delivery error is returned unchanged.
func LogDelivery(event, sessionID string, deliver func() error) error {
	err := deliver()
	if err != nil {
		slog.Warn("event delivery failed", "event", event, "session_id", sessionID, "error", err)
		return err
	}
	slog.Debug("event delivered", "event", event, "session_id", sessionID)
	return nil
}
