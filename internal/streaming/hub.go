// Package streaming fans request status updates out to live subscribers.
package streaming

import (
	"context"

	"github.com/rendis/actiondesk/pkg/schema"
)

// EventFilter specifies which updates a subscriber wants to receive.
type EventFilter struct {
	RequestID  string   `json:"request_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for request status updates.
type EventHub interface {
	Publish(ctx context.Context, update schema.StatusUpdate) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan schema.StatusUpdate, func(), error)
}
