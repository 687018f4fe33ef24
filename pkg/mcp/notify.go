package mcp

import (
	"context"
	"errors"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/actiondesk/pkg/schema"
)

// UserNotifier delivers a status payload to wherever the user is connected.
type UserNotifier interface {
	Notify(ctx context.Context, userID string, payload map[string]any) error
}

// SessionNotifier remembers the MCP session each user last called from and
// pushes status payloads to it as logging notifications. A user with no
// live session is skipped silently.
type SessionNotifier struct {
	srv *server.MCPServer

	mu     sync.RWMutex
	byUser map[string]string
}

func NewSessionNotifier(srv *server.MCPServer) *SessionNotifier {
	return &SessionNotifier{srv: srv, byUser: make(map[string]string)}
}

// Attach points userID at sessionID. A reconnect replaces the old session.
func (n *SessionNotifier) Attach(userID, sessionID string) {
	n.mu.Lock()
	n.byUser[userID] = sessionID
	n.mu.Unlock()
}

// Detach forgets every user attached to sessionID.
func (n *SessionNotifier) Detach(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for user, sid := range n.byUser {
		if sid == sessionID {
			delete(n.byUser, user)
		}
	}
}

func (n *SessionNotifier) session(userID string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	sid, ok := n.byUser[userID]
	return sid, ok
}

func (n *SessionNotifier) Notify(_ context.Context, userID string, payload map[string]any) error {
	sid, ok := n.session(userID)
	if !ok {
		return nil
	}
	event, _ := payload["event"].(string)
	err := n.srv.SendNotificationToSpecificClient(sid, "notifications/message", map[string]any{
		"level":  levelFor(event),
		"logger": "actiondesk.status",
		"data":   payload,
	})
	if errors.Is(err, server.ErrSessionNotFound) {
		n.Detach(sid)
		return nil
	}
	return err
}

// levelFor maps a status event to an MCP logging level.
func levelFor(event string) string {
	switch event {
	case schema.EventActionFailed, schema.EventCircuitBreakerOpen:
		return "error"
	case schema.EventActionAuthNeeded:
		return "warning"
	default:
		return "info"
	}
}

var _ UserNotifier = (*SessionNotifier)(nil)
