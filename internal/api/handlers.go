package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/internal/logging"
	"github.com/rendis/actiondesk/pkg/schema"
)

// handleChat runs one turn of the chat protocol.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req schema.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body is too large")
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	req.Email = schema.NormalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if !s.limiter.allow("user:" + req.Email) {
		s.deps.Metrics.limited()
		writeError(w, http.StatusTooManyRequests, "Too many requests, please slow down.")
		return
	}

	resp := s.deps.Chat.ProcessRequest(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// handleAuthStart redirects the user to the Google consent screen.
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.OAuth == nil {
		writeError(w, http.StatusServiceUnavailable, "Google integration is not configured")
		return
	}
	email := schema.NormalizeEmail(r.URL.Query().Get("email"))
	if err := s.validate.Var(email, "required,email"); err != nil {
		writeError(w, http.StatusBadRequest, "email must be a valid email address")
		return
	}
	if !s.limiter.allow("ip:" + clientIP(r)) {
		s.deps.Metrics.limited()
		writeError(w, http.StatusTooManyRequests, "Too many requests, please slow down.")
		return
	}

	url, err := s.deps.OAuth.AuthURL(email)
	if err != nil {
		s.deps.Logger.Error("build consent url", slog.String("error", err.Error()))
		writeError(w, statusForError(err), errorText(err))
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// handleAuthCallback completes the consent flow and stores the credential.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.deps.OAuth == nil || s.deps.Credentials == nil {
		writeError(w, http.StatusServiceUnavailable, "Google integration is not configured")
		return
	}
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		writeError(w, http.StatusBadRequest, "Google account connection was not granted: "+denied)
		return
	}

	ctx := r.Context()
	userID, cred, err := s.deps.OAuth.Callback(ctx, q.Get("code"), q.Get("state"))
	if err != nil {
		logging.LogWith(ctx, s.deps.Logger).Warn("oauth callback failed", slog.String("error", err.Error()))
		writeError(w, statusForError(err), errorText(err))
		return
	}
	userID = schema.NormalizeEmail(userID)
	ctx = logging.WithUserID(ctx, userID)

	if err := s.deps.Credentials.Put(ctx, schema.ProviderGoogle, userID, *cred); err != nil {
		logging.LogWith(ctx, s.deps.Logger).Error("store google credential", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Could not save your Google account connection.")
		return
	}
	logging.LogWith(ctx, s.deps.Logger).Info("google account connected")

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  string(schema.StatusOK),
		"email":   userID,
		"message": "Google account connected. You can go back and confirm your request again.",
	})
}

// handleActions lists the supported action kinds.
func (s *Server) handleActions(w http.ResponseWriter, _ *http.Request) {
	var list []actions.ExecutorInfo
	if s.deps.Actions != nil {
		list = s.deps.Actions.List()
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
	writeJSON(w, http.StatusOK, map[string]any{"actions": list})
}

// handleActionStates reports where each action of a past request ended up.
func (s *Server) handleActionStates(w http.ResponseWriter, r *http.Request) {
	if s.deps.States == nil {
		writeError(w, http.StatusServiceUnavailable, "request history is not available")
		return
	}
	requestID := r.PathValue("requestId")
	states, err := s.deps.States.ReplayStates(r.Context(), requestID)
	if err != nil {
		s.deps.Logger.Error("replay action states", "request_id", requestID, "error", err)
		writeError(w, statusForError(err), errorText(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requestId": requestID, "actions": states})
}

// handleHealth runs every registered check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.deps.Checks))
	code := http.StatusOK
	for name, check := range s.deps.Checks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	status := "ok"
	if code != http.StatusOK {
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}
