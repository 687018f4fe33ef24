// Package api serves the chat protocol over HTTP: the chat endpoint, the
// Google account connection flow, live status streams and operational routes.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/internal/streaming"
	"github.com/rendis/actiondesk/pkg/schema"
)

// maxBodyBytes caps the size of a chat request body.
const maxBodyBytes = 1 << 20

// ChatProcessor runs one chat request. Satisfied by *coordinator.Coordinator.
type ChatProcessor interface {
	ProcessRequest(ctx context.Context, req schema.ChatRequest) schema.ChatResponse
}

// OAuthFlow is the Google consent flow. Satisfied by *google.OAuth.
type OAuthFlow interface {
	AuthURL(userID string) (string, error)
	Callback(ctx context.Context, code, state string) (string, *schema.Credential, error)
}

// CredentialWriter persists credentials obtained from the consent flow.
type CredentialWriter interface {
	Put(ctx context.Context, provider, userID string, cred schema.Credential) error
}

// UpdateSource replays recorded status updates. Satisfied by *store.EventLog.
type UpdateSource interface {
	Updates(ctx context.Context, requestID string, since int64) ([]schema.StatusUpdate, error)
}

// StateReplayer rebuilds per-action state from the event log. Satisfied by
// *store.EventLog.
type StateReplayer interface {
	ReplayStates(ctx context.Context, requestID string) (map[schema.ActionKind]schema.ActionState, error)
}

// ActionLister lists the registered executors. Satisfied by *actions.Registry.
type ActionLister interface {
	List() []actions.ExecutorInfo
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps holds the dependencies for the API server. Chat is required.
type Deps struct {
	Chat        ChatProcessor
	OAuth       OAuthFlow
	Credentials CredentialWriter
	Events      UpdateSource
	States      StateReplayer
	Hub         streaming.EventHub
	Actions     ActionLister
	Checks      map[string]HealthCheck
	RateLimit   RateLimitConfig
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer  prometheus.Gatherer
	Metrics   *Metrics
	Keepalive time.Duration
	Logger    *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	deps     Deps
	validate *validator.Validate
	limiter  *rateLimiter
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Hub == nil {
		deps.Hub = streaming.NewMemoryHub()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Keepalive <= 0 {
		deps.Keepalive = 15 * time.Second
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names in validation messages.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		deps:     deps,
		validate: v,
		limiter:  newRateLimiter(deps.RateLimit),
	}
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chatRequest", s.handleChat)

	mux.HandleFunc("GET /auth/google", s.handleAuthStart)
	mux.HandleFunc("GET /auth/google/callback", s.handleAuthCallback)

	mux.HandleFunc("GET /status/{requestId}", s.handleStatus)
	mux.HandleFunc("GET /requests/{requestId}/actions", s.handleActionStates)

	mux.HandleFunc("GET /actions", s.handleActions)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	return s.recoverJSON(s.instrument(mux))
}
