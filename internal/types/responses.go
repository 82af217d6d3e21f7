package types

// WSCommandResult is the response to a WebSocket command.
type WSCommandResult struct {
	Type    string `json:"type"`            // "<command>_result"
	Success bool   `json:"success"`         // true if command succeeded
	Error   any    `json:"error,omitempty"` // error message or *ValidationError
	Data    any    `json:"data,omitempty"`  // Optional response data
}
