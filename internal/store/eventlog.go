package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/rendis/actiondesk/pkg/schema"
)

// EventLog records request status updates with a gap-free per-request
// sequence, and rebuilds per-action state from them.
type EventLog struct {
	store Store
	mu    sync.Mutex
}

// NewEventLog wraps a Store to provide sequenced request events.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// Record persists u. A zero Sequence is replaced with the next number for
// the request; the assigned update is returned.
func (el *EventLog) Record(ctx context.Context, u schema.StatusUpdate) (schema.StatusUpdate, error) {
	el.mu.Lock()
	defer el.mu.Unlock()

	if u.Sequence == 0 {
		last, err := el.store.LastSequence(ctx, u.RequestID)
		if err != nil {
			return u, fmt.Errorf("read sequence: %w", err)
		}
		u.Sequence = last + 1
	}
	e := EventFromUpdate(u)
	if err := el.store.AppendEvent(ctx, e); err != nil {
		return u, fmt.Errorf("append event: %w", err)
	}
	u.Timestamp = e.Timestamp
	return u, nil
}

// Updates returns the request's updates with sequence > since.
func (el *EventLog) Updates(ctx context.Context, requestID string, since int64) ([]schema.StatusUpdate, error) {
	events, err := el.store.GetEvents(ctx, requestID, since)
	if err != nil {
		return nil, err
	}
	out := make([]schema.StatusUpdate, 0, len(events))
	for _, e := range events {
		out = append(out, e.Update())
	}
	return out, nil
}

// ReplayStates rebuilds the last known state of each action in a request.
// A request id submitted more than once reports its latest run only.
// Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayStates(ctx context.Context, requestID string) (map[schema.ActionKind]schema.ActionState, error) {
	events, err := el.store.GetEvents(ctx, requestID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in request %s: expected %d, got %d", requestID, expected, e.Sequence)
		}
	}

	states := make(map[schema.ActionKind]schema.ActionState)
	for _, e := range events {
		if e.Type == schema.EventRequestStarted {
			clear(states)
		}
		if e.Kind == "" {
			continue
		}
		kind := schema.ActionKind(e.Kind)
		switch e.Type {
		case schema.EventActionStarted, schema.EventActionExtracted:
			states[kind] = schema.ActionExecuting
		case schema.EventActionSucceeded:
			states[kind] = schema.ActionSucceeded
		case schema.EventActionFailed:
			states[kind] = schema.ActionFailed
		case schema.EventActionAuthNeeded:
			states[kind] = schema.ActionAuthRequired
		default:
			if _, seen := states[kind]; !seen {
				states[kind] = schema.ActionNotStarted
			}
		}
	}
	return states, nil
}
