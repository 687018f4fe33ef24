package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/actiondesk/pkg/schema"
)

func newTestApp(t *testing.T) (*app, Config) {
	t.Helper()
	isolateEnv(t)
	dir := t.TempDir()
	t.Setenv("ACTIONDESK_DB_PATH", filepath.Join(dir, "data", "actiondesk.db"))
	t.Setenv("ACTIONDESK_FILES_DIR", filepath.Join(dir, "files"))
	t.Setenv("ACTIONDESK_RATE_LIMIT_RPS", "0")

	cfg, err := loadConfig(viper.New(), "")
	require.NoError(t, err)

	a, err := buildApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, cfg
}

func TestBuildAppServesHealthAndActions(t *testing.T) {
	a, cfg := newTestApp(t)
	h, err := a.handler(cfg, a.logger)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Checks["database"])

	resp, err = http.Get(srv.URL + "/actions")
	require.NoError(t, err)
	var list struct {
		Actions []struct {
			Kind string `json:"kind"`
		} `json:"actions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Len(t, list.Actions, len(schema.ActionKinds))

	// Google is not configured, so the connect route is unavailable.
	resp, err = http.Get(srv.URL + "/auth/google?email=ana@example.com")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBuildAppChatRoundTrip(t *testing.T) {
	a, cfg := newTestApp(t)
	h, err := a.handler(cfg, a.logger)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	post := func(body string) schema.ChatResponse {
		t.Helper()
		resp, err := http.Post(srv.URL+"/chatRequest", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out schema.ChatResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	detect := post(`{"message":"Create a payment link for $20","email":"ana@example.com"}`)
	assert.Equal(t, schema.StatusConfirmationRequired, detect.Status)
	require.Len(t, detect.DetectedActions, 1)
	assert.Equal(t, schema.KindCreatePayment, detect.DetectedActions[0].Kind)

	run := post(`{"message":"Create a payment link for $20","email":"ana@example.com","confirmExecute":true,"requestId":"wire-1"}`)
	assert.Equal(t, schema.StatusOK, run.Status)
	assert.Equal(t, "wire-1", run.RequestID)
	require.Len(t, run.Actions, 1)
	assert.Equal(t, schema.KindCreatePayment, run.Actions[0].Kind)
	assert.Equal(t, schema.OutcomeError, run.Actions[0].Status, "stripe is not configured")

	// Status updates were persisted for replay.
	updates, err := a.events.Updates(context.Background(), "wire-1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, updates)
	assert.Equal(t, schema.EventRequestCompleted, updates[len(updates)-1].Event)

	resp, err := http.Get(srv.URL + "/requests/wire-1/actions")
	require.NoError(t, err)
	defer resp.Body.Close()
	var states struct {
		Actions map[schema.ActionKind]schema.ActionState `json:"actions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&states))
	assert.Contains(t, states.Actions, schema.KindCreatePayment)
}

func TestBuildAppRegistersJobs(t *testing.T) {
	a, _ := newTestApp(t)
	var names []string
	for _, j := range a.scheduler.Jobs() {
		names = append(names, j.Name)
	}
	// No Google client, so no refresh sweep.
	assert.Equal(t, []string{"event-prune"}, names)
	require.NoError(t, a.scheduler.RunNow(context.Background(), "event-prune"))
}

func TestBuildAppDetectionModeSwap(t *testing.T) {
	a, cfg := newTestApp(t)
	cfg.Detection.Mode = "llm"
	// Without a model the llm detector falls back to lexical rules.
	coord, err := a.coordinator(cfg, a.logger)
	require.NoError(t, err)
	require.NotNil(t, coord)

	cfg.Detection.Mode = "psychic"
	_, err = a.coordinator(cfg, a.logger)
	require.Error(t, err)
}
