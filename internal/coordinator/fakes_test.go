package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/internal/detection"
	"github.com/rendis/actiondesk/internal/extraction"
	"github.com/rendis/actiondesk/internal/llm"
	"github.com/rendis/actiondesk/pkg/schema"
)

const testUser = "ana@example.com"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time { return time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC) }

// fixedDetector always reports the same actions.
type fixedDetector struct{ kinds []schema.ActionKind }

func (d fixedDetector) Detect(_ context.Context, _ string) detection.Result {
	out := make([]schema.DetectedAction, 0, len(d.kinds))
	for _, k := range d.kinds {
		out = append(out, schema.NewDetectedAction(k, "do "+string(k)))
	}
	return detection.Result{HasActions: len(out) > 0, Actions: out}
}

// stubExtractor returns canned params per kind, or an error. With hang set
// it blocks until its context ends, like a model that never answers.
type stubExtractor struct {
	mu       sync.Mutex
	params   map[schema.ActionKind]map[string]any
	fail     map[schema.ActionKind]error
	fallback bool
	hang     bool
	calls    []schema.ActionKind
}

func (s *stubExtractor) Extract(ctx context.Context, _ string, kind schema.ActionKind) (*extraction.Extraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, kind)
	if s.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := s.fail[kind]; err != nil {
		return nil, err
	}
	p := s.params[kind]
	if p == nil {
		p = map[string]any{}
	}
	return &extraction.Extraction{Params: p, FromFallback: s.fallback}, nil
}

func (s *stubExtractor) called() []schema.ActionKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.ActionKind(nil), s.calls...)
}

// spyExecutor records its inputs. Provider-backed kinds report
// AuthRequired when no credential is stored, like the real executors.
type spyExecutor struct {
	kind schema.ActionKind
	fn   func(ctx context.Context, in actions.Input) actions.Result

	mu    sync.Mutex
	calls []actions.Input
}

func newSpy(kind schema.ActionKind) *spyExecutor { return &spyExecutor{kind: kind} }

func (s *spyExecutor) Kind() schema.ActionKind { return s.kind }

func (s *spyExecutor) Schema() actions.ExecutorSchema {
	return actions.ExecutorSchema{Description: "spy " + string(s.kind)}
}

func (s *spyExecutor) Execute(ctx context.Context, in actions.Input) actions.Result {
	s.mu.Lock()
	s.calls = append(s.calls, in)
	s.mu.Unlock()

	if info, _ := s.kind.Info(); info.Provider != "" {
		cred, err := in.Credentials.Get(ctx, info.Provider, in.UserID)
		if err != nil {
			return actions.Result{Outcome: schema.Failed(s.kind, err)}
		}
		if cred == nil {
			return actions.Result{Outcome: schema.NeedsAuth(s.kind, "https://auth.example.com/connect?user="+in.UserID)}
		}
	}
	if s.fn != nil {
		return s.fn(ctx, in)
	}
	return actions.Result{Outcome: schema.Succeeded(s.kind, map[string]any{"prior": len(in.Prior)})}
}

func (s *spyExecutor) inputs() []actions.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]actions.Input(nil), s.calls...)
}

// memCreds is an in-memory credential store.
type memCreds struct {
	mu     sync.Mutex
	creds  map[string]schema.Credential
	putErr error
	puts   int
}

func newMemCreds() *memCreds { return &memCreds{creds: map[string]schema.Credential{}} }

func (m *memCreds) Get(_ context.Context, provider, userID string) (*schema.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[provider+"/"+userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memCreds) Put(_ context.Context, provider, userID string, cred schema.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.creds[provider+"/"+userID] = cred
	return nil
}

func (m *memCreds) connect(userID string) {
	m.creds[schema.ProviderGoogle+"/"+userID] = schema.Credential{AccessToken: "at-1", RefreshToken: "rt-1", Expiry: fixedNow().Add(time.Hour)}
}

// recorder collects status updates handed to the event log and numbers
// them per request id the way the event log does.
type recorder struct {
	mu      sync.Mutex
	updates []schema.StatusUpdate
	last    map[string]int64
	err     error
}

func (r *recorder) Record(_ context.Context, u schema.StatusUpdate) (schema.StatusUpdate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return u, r.err
	}
	if r.last == nil {
		r.last = map[string]int64{}
	}
	if u.Sequence == 0 {
		u.Sequence = r.last[u.RequestID] + 1
	}
	r.last[u.RequestID] = u.Sequence
	r.updates = append(r.updates, u)
	return u, nil
}

// scriptedCompleter answers every call with reply, or fails with err.
func scriptedCompleter(reply string, err error) (llm.Completer, *[]string) {
	var mu sync.Mutex
	var systems []string
	return llm.CompleterFunc(func(_ context.Context, system, _ string, _ float32) (string, error) {
		mu.Lock()
		systems = append(systems, system)
		mu.Unlock()
		return reply, err
	}), &systems
}

// hangingCompleter blocks every call until its context ends.
func hangingCompleter() llm.Completer {
	return llm.CompleterFunc(func(ctx context.Context, _, _ string, _ float32) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
}

var errBackendDown = errors.New("backend down")

type harness struct {
	registry  *actions.Registry
	extractor *stubExtractor
	creds     *memCreds
	events    *recorder
	metrics   *Metrics
	breakers  *Breakers
	completer llm.Completer
	detector  detection.Detector
	timeout   time.Duration
	llmWait   time.Duration
}

func newHarness(kinds ...schema.ActionKind) *harness {
	return &harness{
		registry:  actions.NewRegistry(),
		extractor: &stubExtractor{params: map[schema.ActionKind]map[string]any{}, fail: map[schema.ActionKind]error{}},
		creds:     newMemCreds(),
		events:    &recorder{},
		metrics:   MustNewMetrics(prometheus.NewRegistry()),
		breakers:  NewBreakers(DefaultBreakerConfig()).WithClock(fixedNow),
		detector:  fixedDetector{kinds: kinds},
	}
}

func (h *harness) register(execs ...actions.Executor) *harness {
	for _, e := range execs {
		if err := h.registry.Register(e); err != nil {
			panic(err)
		}
	}
	return h
}

func (h *harness) coordinator() *Coordinator {
	c, err := New(Config{
		Detector:        h.detector,
		Extractor:       h.extractor,
		Executors:       h.registry,
		Credentials:     h.creds,
		Completer:       h.completer,
		Events:          h.events,
		Breakers:        h.breakers,
		Metrics:         h.metrics,
		ExecutorTimeout: h.timeout,
		LLMTimeout:      h.llmWait,
		Now:             fixedNow,
		NewID:           func() string { return "req-1" },
		Logger:          quietLogger(),
	})
	if err != nil {
		panic(err)
	}
	return c
}

func confirmed(msg string) schema.ChatRequest {
	return schema.ChatRequest{Message: msg, Email: testUser, ConfirmExecute: true}
}
