package schema

import (
	"strings"
	"time"
)

// NormalizeEmail is the one form of a user's email used as their id:
// trimmed and lowercased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ResponseStatus is the top-level status of a chat response.
type ResponseStatus string

const (
	StatusConfirmationRequired ResponseStatus = "confirmation_required"
	StatusOK                   ResponseStatus = "ok"
	StatusError                ResponseStatus = "error"
)

// ChatRequest is the inbound body of POST /chatRequest.
type ChatRequest struct {
	Message        string `json:"message" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	ConfirmExecute bool   `json:"confirmExecute"`
	RequestID      string `json:"requestId,omitempty" validate:"omitempty,max=64"`
}

// ChatResponse is the outbound body of POST /chatRequest.
// Which fields are populated depends on Status.
type ChatResponse struct {
	Status          ResponseStatus   `json:"status"`
	RequestID       string           `json:"requestId,omitempty"`
	Response        string           `json:"response,omitempty"`
	Message         string           `json:"message,omitempty"`
	OriginalMessage string           `json:"originalMessage,omitempty"`
	DetectedActions []DetectedAction `json:"detectedActions,omitempty"`
	Calendar        map[string]any   `json:"calendar,omitempty"`
	Actions         []Outcome        `json:"actions,omitempty"`
	Logs            []LogEntry       `json:"logs,omitempty"`
	StatusUpdates   []StatusUpdate   `json:"statusUpdates,omitempty"`
}

// ErrorResponse builds a well-formed error payload.
func ErrorResponse(message string) ChatResponse {
	return ChatResponse{Status: StatusError, Message: message}
}

// Log levels for user-facing log entries.
const (
	LogInfo  = "info"
	LogWarn  = "warn"
	LogError = "error"
)

// LogEntry is one timestamped line of the user-facing execution log.
type LogEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Level     string     `json:"level"`
	Kind      ActionKind `json:"kind,omitempty"`
	Message   string     `json:"message"`
}

// StatusUpdate is one progress event for a single action.
type StatusUpdate struct {
	// Sequence numbers updates within one request, starting at 1.
	Sequence  int64       `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"requestId"`
	Event     string      `json:"event"`
	Kind      ActionKind  `json:"kind,omitempty"`
	State     ActionState `json:"state,omitempty"`
	Message   string      `json:"message"`
}
