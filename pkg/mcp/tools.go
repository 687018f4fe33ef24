package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/internal/streaming"
	"github.com/rendis/actiondesk/pkg/schema"
)

// handleChat runs one turn of the chat protocol and returns the same JSON
// as POST /chatRequest.
func (s *Server) handleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.chat == nil {
		return mcp.NewToolResultError("chat is not available"), nil
	}
	message, err := req.RequireString("message")
	if err != nil || strings.TrimSpace(message) == "" {
		return mcp.NewToolResultError("message is required"), nil
	}
	email, err := req.RequireString("email")
	if err != nil {
		return mcp.NewToolResultError("email is required"), nil
	}
	email = schema.NormalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return mcp.NewToolResultError("email must be a valid email address"), nil
	}

	chatReq := schema.ChatRequest{
		Message:        strings.TrimSpace(message),
		Email:          email,
		ConfirmExecute: req.GetBool("confirm_execute", false),
		RequestID:      req.GetString("request_id", ""),
	}
	if chatReq.RequestID == "" {
		chatReq.RequestID = uuid.NewString()
	}

	s.captureSession(ctx, email)
	if chatReq.ConfirmExecute && s.hub != nil {
		stop := s.forwardStatus(ctx, chatReq.RequestID, email)
		defer stop()
	}

	resp := s.chat.ProcessRequest(ctx, chatReq)
	return marshalResult(resp)
}

// handleActions lists the supported action kinds.
func (s *Server) handleActions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var list []actions.ExecutorInfo
	if s.actions != nil {
		list = s.actions.List()
	} else {
		for _, info := range schema.ActionKinds {
			list = append(list, actions.ExecutorInfo{
				Kind:       info.Kind,
				AgentLabel: info.AgentLabel,
				Icon:       info.Icon,
				Provider:   info.Provider,
			})
		}
	}
	return marshalResult(map[string]any{"actions": list})
}

// forwardStatus relays the request's status updates to the user's session
// until the returned stop func is called. Updates already published when
// stop runs are still delivered.
func (s *Server) forwardStatus(ctx context.Context, requestID, userID string) (stop func()) {
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{RequestID: requestID})
	if err != nil {
		s.logger.Warn("status subscribe failed", slog.String("request_id", requestID), slog.String("error", err.Error()))
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		send := func(u schema.StatusUpdate) {
			if err := s.notifier.Notify(ctx, userID, statusPayload(u)); err != nil {
				s.logger.Debug("status notification failed", slog.String("error", err.Error()))
			}
		}
		for {
			select {
			case u := <-ch:
				send(u)
			case <-done:
				for {
					select {
					case u := <-ch:
						send(u)
					default:
						return
					}
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
		cancel()
	}
}

func statusPayload(u schema.StatusUpdate) map[string]any {
	return map[string]any{
		"requestId": u.RequestID,
		"seq":       u.Sequence,
		"event":     u.Event,
		"kind":      string(u.Kind),
		"state":     string(u.State),
		"message":   u.Message,
	}
}

// captureSession records which session the user is calling from.
func (s *Server) captureSession(ctx context.Context, userID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Attach(userID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
