package store

import (
	"time"

	"github.com/rendis/actiondesk/pkg/schema"
)

// Event is a persisted status update.
type Event struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	Sequence  int64     `json:"sequence"`
	Type      string    `json:"event_type"`
	Kind      string    `json:"kind,omitempty"`
	State     string    `json:"state,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// EventFromUpdate converts a status update into its stored form.
func EventFromUpdate(u schema.StatusUpdate) *Event {
	return &Event{
		RequestID: u.RequestID,
		Sequence:  u.Sequence,
		Type:      u.Event,
		Kind:      string(u.Kind),
		State:     string(u.State),
		Message:   u.Message,
		Timestamp: u.Timestamp,
	}
}

// Update converts a stored event back into a status update.
func (e *Event) Update() schema.StatusUpdate {
	return schema.StatusUpdate{
		Sequence:  e.Sequence,
		Timestamp: e.Timestamp,
		RequestID: e.RequestID,
		Event:     e.Type,
		Kind:      schema.ActionKind(e.Kind),
		State:     schema.ActionState(e.State),
		Message:   e.Message,
	}
}
