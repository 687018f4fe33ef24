package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/actiondesk/pkg/schema"
)

func TestSessionNotifier_AttachAndDetach(t *testing.T) {
	n := NewSessionNotifier(server.NewMCPServer("t", "0"))

	n.Attach("ana@example.com", "s-old")
	n.Attach("ana@example.com", "s-new")
	n.Attach("ana+ops@example.com", "s-new")
	n.Attach("bo@example.com", "s-bo")

	sid, ok := n.session("ana@example.com")
	require.True(t, ok)
	assert.Equal(t, "s-new", sid, "reconnect replaces the session")

	n.Detach("s-new")
	_, ok = n.session("ana@example.com")
	assert.False(t, ok)
	_, ok = n.session("ana+ops@example.com")
	assert.False(t, ok)
	sid, ok = n.session("bo@example.com")
	require.True(t, ok)
	assert.Equal(t, "s-bo", sid)
}

func TestSessionNotifier_UnknownUserIsSkipped(t *testing.T) {
	n := NewSessionNotifier(server.NewMCPServer("t", "0"))
	require.NoError(t, n.Notify(context.Background(), "ana@example.com", map[string]any{"event": schema.EventRequestStarted}))
}

func TestSessionNotifier_ForgetsClosedSession(t *testing.T) {
	n := NewSessionNotifier(server.NewMCPServer("t", "0"))
	n.Attach("ana@example.com", "closed")

	require.NoError(t, n.Notify(context.Background(), "ana@example.com", map[string]any{"event": schema.EventActionStarted}))
	_, ok := n.session("ana@example.com")
	assert.False(t, ok)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, "error", levelFor(schema.EventActionFailed))
	assert.Equal(t, "warning", levelFor(schema.EventActionAuthNeeded))
	assert.Equal(t, "info", levelFor(schema.EventActionSucceeded))
	assert.Equal(t, "info", levelFor(""))
}
