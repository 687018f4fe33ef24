package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerDefaults(t *testing.T) {
	s := NewServer(ServerDeps{})
	require.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	// Without an injected notifier, status goes to the caller's session.
	assert.Same(t, s.sessions, s.notifier)

	custom := &recordingNotifier{}
	s = NewServer(ServerDeps{Notifier: custom})
	assert.Same(t, custom, s.notifier)
}

func TestServerExposesChatAndActions(t *testing.T) {
	s := NewServer(ServerDeps{})
	assert.Len(t, s.mcpServer.ListTools(), 2)

	chat := s.mcpServer.GetTool("actiondesk.chat")
	require.NotNil(t, chat)
	assert.Contains(t, chat.Tool.Description, "confirm_execute")
	assert.ElementsMatch(t, []string{"message", "email"}, chat.Tool.InputSchema.Required)
	for _, p := range []string{"message", "email", "confirm_execute", "request_id"} {
		assert.Contains(t, chat.Tool.InputSchema.Properties, p)
	}

	require.NotNil(t, s.mcpServer.GetTool("actiondesk.actions"))
}
