// Package coordinator runs the two-phase chat protocol: detect and confirm,
// then extract and execute each action in order and summarize the results.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/actiondesk/internal/actions"
	"github.com/rendis/actiondesk/internal/detection"
	"github.com/rendis/actiondesk/internal/extraction"
	"github.com/rendis/actiondesk/internal/llm"
	"github.com/rendis/actiondesk/internal/logging"
	"github.com/rendis/actiondesk/internal/streaming"
	"github.com/rendis/actiondesk/pkg/schema"
)

// Defaults.
const (
	DefaultExecutorTimeout = 30 * time.Second
	DefaultLLMTimeout      = 45 * time.Second
	DefaultChatTemperature = 0.7
)

// ExecutorSource resolves the executor for a kind. Satisfied by *actions.Registry.
type ExecutorSource interface {
	Get(kind schema.ActionKind) (actions.Executor, error)
}

// ParamExtractor turns text into parameters for a kind. Satisfied by *extraction.Extractor.
type ParamExtractor interface {
	Extract(ctx context.Context, text string, kind schema.ActionKind) (*extraction.Extraction, error)
}

// CredentialStore reads and persists credentials. Satisfied by credentials.Store.
type CredentialStore interface {
	Get(ctx context.Context, provider, userID string) (*schema.Credential, error)
	Put(ctx context.Context, provider, userID string, cred schema.Credential) error
}

// EventRecorder persists status updates and assigns their sequence.
// Satisfied by *store.EventLog.
type EventRecorder interface {
	Record(ctx context.Context, u schema.StatusUpdate) (schema.StatusUpdate, error)
}

// Config holds the Coordinator's collaborators. Detector, Extractor,
// Executors and Credentials are required.
type Config struct {
	Detector    detection.Detector
	Extractor   ParamExtractor
	Executors   ExecutorSource
	Credentials CredentialStore
	// Completer writes plain replies and the final summary. Nil degrades
	// to the fixed fallback texts.
	Completer llm.Completer
	Hub       streaming.EventHub
	Events    EventRecorder
	Breakers  *Breakers
	Metrics   *Metrics

	ExecutorTimeout time.Duration
	// LLMTimeout bounds each detection, extraction, reply and summary call.
	LLMTimeout      time.Duration
	ChatTemperature float32
	Now             func() time.Time
	NewID           func() string
	Logger          *slog.Logger
}

// Coordinator processes chat requests.
type Coordinator struct {
	detector  detection.Detector
	extractor ParamExtractor
	executors ExecutorSource
	creds     CredentialStore
	completer llm.Completer
	hub       streaming.EventHub
	events    EventRecorder
	breakers  *Breakers
	metrics   *Metrics
	timeout   time.Duration
	llmWait   time.Duration
	chatTemp  float32
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger
}

// New validates cfg and creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	switch {
	case cfg.Detector == nil:
		return nil, schema.NewError(schema.ErrCodeValidation, "coordinator needs a detector")
	case cfg.Extractor == nil:
		return nil, schema.NewError(schema.ErrCodeValidation, "coordinator needs an extractor")
	case cfg.Executors == nil:
		return nil, schema.NewError(schema.ErrCodeValidation, "coordinator needs executors")
	case cfg.Credentials == nil:
		return nil, schema.NewError(schema.ErrCodeValidation, "coordinator needs a credential store")
	}
	c := &Coordinator{
		detector:  cfg.Detector,
		extractor: cfg.Extractor,
		executors: cfg.Executors,
		creds:     cfg.Credentials,
		completer: cfg.Completer,
		hub:       cfg.Hub,
		events:    cfg.Events,
		breakers:  cfg.Breakers,
		metrics:   cfg.Metrics,
		timeout:   cfg.ExecutorTimeout,
		llmWait:   cfg.LLMTimeout,
		chatTemp:  cfg.ChatTemperature,
		now:       cfg.Now,
		newID:     cfg.NewID,
		logger:    cfg.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultExecutorTimeout
	}
	if c.llmWait <= 0 {
		c.llmWait = DefaultLLMTimeout
	}
	if c.chatTemp <= 0 {
		c.chatTemp = DefaultChatTemperature
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.breakers == nil {
		c.breakers = NewBreakers(DefaultBreakerConfig())
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return c, nil
}

// requestState is the per-request scratch space. It never outlives ProcessRequest.
type requestState struct {
	id     string
	userID string
	text   string

	mu       sync.Mutex
	outcomes []schema.Outcome
	logs     []schema.LogEntry
	updates  []schema.StatusUpdate
	seq      int64
}

func (r *requestState) priorOutcomes() []schema.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.Outcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// ProcessRequest runs one chat request. It never returns an error and never
// panics; every failure becomes a well-formed response.
func (c *Coordinator) ProcessRequest(ctx context.Context, req schema.ChatRequest) (resp schema.ChatResponse) {
	reqID := strings.TrimSpace(req.RequestID)
	if reqID == "" {
		reqID = c.newID()
	}
	req.Email = schema.NormalizeEmail(req.Email)
	ctx = logging.WithRequestID(ctx, reqID)
	ctx = logging.WithUserID(ctx, req.Email)
	logger := logging.LogWith(ctx, c.logger)

	phase := "detect"
	if req.ConfirmExecute {
		phase = "execute"
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("request panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			resp = schema.ErrorResponse("Something went wrong while handling your request.")
			resp.RequestID = reqID
		}
		c.metrics.request(phase, resp.Status)
	}()

	text := strings.TrimSpace(req.Message)
	if text == "" {
		resp = schema.ErrorResponse("message is required")
		resp.RequestID = reqID
		return resp
	}

	dctx, cancel := context.WithTimeout(ctx, c.llmWait)
	detected := c.detector.Detect(dctx, text)
	cancel()
	logger.Info("detection done", slog.Bool("has_actions", detected.HasActions), slog.Int("actions", len(detected.Actions)))

	if !detected.HasActions {
		return c.converse(ctx, reqID, text)
	}
	if !req.ConfirmExecute {
		return schema.ChatResponse{
			Status:          schema.StatusConfirmationRequired,
			RequestID:       reqID,
			DetectedActions: detected.Actions,
			Message:         detection.ConfirmationMessage(detected.Actions),
			OriginalMessage: text,
		}
	}

	// Once confirmed, execution runs to completion even if the caller goes away.
	return c.execute(context.WithoutCancel(ctx), reqID, req.Email, text, detected.Actions)
}

// converse answers a message with no actions as plain conversation.
func (c *Coordinator) converse(ctx context.Context, reqID, text string) schema.ChatResponse {
	if c.completer == nil {
		return schema.ChatResponse{Status: schema.StatusError, RequestID: reqID, Message: "The assistant is not available right now."}
	}
	cctx, cancel := context.WithTimeout(ctx, c.llmWait)
	defer cancel()
	reply, err := c.completer.Complete(cctx, conversationPersona, text, c.chatTemp)
	if err != nil || strings.TrimSpace(reply) == "" {
		logging.LogWith(ctx, c.logger).Warn("conversation reply failed", slog.Any("error", err))
		return schema.ChatResponse{Status: schema.StatusError, RequestID: reqID, Message: "The assistant is not available right now."}
	}
	return schema.ChatResponse{Status: schema.StatusOK, RequestID: reqID, Response: strings.TrimSpace(reply)}
}

func (c *Coordinator) execute(ctx context.Context, reqID, userID, text string, detected []schema.DetectedAction) schema.ChatResponse {
	c.metrics.executing(1)
	defer c.metrics.executing(-1)

	run := &requestState{id: reqID, userID: userID, text: text}
	kinds := make([]schema.ActionKind, 0, len(detected))
	for _, a := range detected {
		kinds = append(kinds, a.Kind)
	}
	fsm := NewActionFSM(kinds)
	fsm.OnAfter(func(kind schema.ActionKind, _, to schema.ActionState) {
		if et := actionEventType(to); et != "" && to != schema.ActionExecuting {
			c.emit(ctx, run, et, kind, to, stateMessage(kind, to))
		}
	})

	c.emit(ctx, run, schema.EventRequestStarted, "", "", fmt.Sprintf("Executing %d action(s)", len(detected)))
	for _, action := range detected {
		o := c.runAction(ctx, run, fsm, action)
		run.mu.Lock()
		run.outcomes = append(run.outcomes, o)
		run.mu.Unlock()
	}
	logging.LogWith(ctx, c.logger).Info("actions finished", slog.Any("states", fsm.Snapshot()))

	summary := c.summarize(ctx, run)
	c.emit(ctx, run, schema.EventSummaryReady, "", "", "Summary ready")
	c.emit(ctx, run, schema.EventRequestCompleted, "", "", "Done")

	run.mu.Lock()
	defer run.mu.Unlock()
	resp := schema.ChatResponse{
		Status:        schema.StatusOK,
		RequestID:     reqID,
		Response:      summary,
		Actions:       run.outcomes,
		Logs:          run.logs,
		StatusUpdates: run.updates,
	}
	for _, o := range run.outcomes {
		if o.Kind == schema.KindSchedule && o.Status == schema.OutcomeSuccess {
			resp.Calendar = o.Result
			break
		}
	}
	return resp
}

// runAction drives one action through its state machine and returns its outcome.
func (c *Coordinator) runAction(ctx context.Context, run *requestState, fsm *ActionFSM, action schema.DetectedAction) (out schema.Outcome) {
	kind := action.Kind
	ctx = logging.WithActionKind(ctx, kind)
	logger := logging.LogWith(ctx, c.logger)
	start := c.now()
	defer func() { c.metrics.outcome(out, c.now().Sub(start)) }()

	finish := func(o schema.Outcome) schema.Outcome {
		if err := fsm.Transition(kind, schema.StateForOutcome(o.Status)); err != nil {
			logger.Error("illegal action transition", slog.String("error", err.Error()))
		}
		return o
	}

	exec, err := c.executors.Get(kind)
	if err != nil {
		c.log(run, schema.LogError, kind, err.Error())
		return finish(schema.Failed(kind, err))
	}
	if err := c.breakers.Allow(kind); err != nil {
		c.log(run, schema.LogWarn, kind, err.Error())
		return finish(schema.Failed(kind, err))
	}
	recorded := false
	defer func() {
		if !recorded {
			c.breakers.Release(kind)
		}
	}()

	// A kind whose account is not connected needs no extraction; the
	// executor reports AuthRequired without touching the network.
	if info, _ := kind.Info(); info.Provider != "" {
		cred, err := c.creds.Get(ctx, info.Provider, run.userID)
		switch {
		case err != nil:
			logger.Warn("credential lookup failed", slog.String("error", err.Error()))
		case cred == nil:
			res := c.invoke(ctx, exec, actions.Input{UserID: run.userID, Credentials: c.creds})
			if res.Outcome.Status == schema.OutcomeAuthRequired {
				c.log(run, schema.LogWarn, kind, fmt.Sprintf("%s needs a connected %s account", info.AgentLabel, info.Provider))
				return finish(res.Outcome)
			}
			// The executor found a credential after all; run the full path.
		}
	}

	if err := fsm.Transition(kind, schema.ActionExecuting); err != nil {
		logger.Error("illegal action transition", slog.String("error", err.Error()))
	}
	c.emit(ctx, run, schema.EventActionStarted, kind, schema.ActionExecuting, fmt.Sprintf("%s started", action.AgentLabel))
	c.log(run, schema.LogInfo, kind, fmt.Sprintf("%s: %s", action.AgentLabel, action.Description))

	xctx, cancel := context.WithTimeout(ctx, c.llmWait)
	x, err := c.extractor.Extract(xctx, run.text, kind)
	cancel()
	if err != nil {
		c.log(run, schema.LogError, kind, "Could not read the details: "+errMessage(err))
		return finish(schema.Failed(kind, err))
	}
	if x.FromFallback {
		c.log(run, schema.LogWarn, kind, "Used best-effort details from your message")
	}
	c.emit(ctx, run, schema.EventActionExtracted, kind, schema.ActionExecuting, "Details extracted")

	res := c.invoke(ctx, exec, actions.Input{
		UserID:      run.userID,
		Params:      x.Params,
		Credentials: c.creds,
		Prior:       run.priorOutcomes(),
	})
	if res.Refreshed != nil {
		c.persistRefreshed(ctx, run, kind, *res.Refreshed)
	}

	switch res.Outcome.Status {
	case schema.OutcomeSuccess:
		recorded = true
		c.breakers.RecordSuccess(kind)
		c.log(run, schema.LogInfo, kind, fmt.Sprintf("%s finished", action.AgentLabel))
	case schema.OutcomeError:
		recorded = true
		if state := c.breakers.RecordFailure(kind); state == CircuitOpen {
			c.emit(ctx, run, schema.EventCircuitBreakerOpen, kind, "", fmt.Sprintf("%s paused after repeated failures", action.AgentLabel))
		}
		c.log(run, schema.LogError, kind, res.Outcome.Error)
	case schema.OutcomeAuthRequired:
		c.log(run, schema.LogWarn, kind, "Account connection required")
	}
	return finish(res.Outcome)
}

// invoke runs the executor under the per-executor timeout and turns a
// panic into an Error outcome.
func (c *Coordinator) invoke(ctx context.Context, exec actions.Executor, in actions.Input) actions.Result {
	kind := exec.Kind()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan actions.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.LogWith(ctx, c.logger).Error("executor panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
				done <- actions.Result{Outcome: schema.Failed(kind, schema.NewErrorf(schema.ErrCodeInternal, "%s failed unexpectedly", kind))}
			}
		}()
		done <- exec.Execute(ctx, in)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return actions.Result{Outcome: schema.Failed(kind,
			schema.NewErrorf(schema.ErrCodeTimeout, "%s timed out after %s", kind, c.timeout))}
	}
}

func (c *Coordinator) persistRefreshed(ctx context.Context, run *requestState, kind schema.ActionKind, cred schema.Credential) {
	info, _ := kind.Info()
	if info.Provider == "" {
		return
	}
	if err := c.creds.Put(ctx, info.Provider, run.userID, cred); err != nil {
		c.metrics.credentialSaved(false)
		logging.LogWith(ctx, c.logger).Warn("refreshed credential not saved", slog.String("error", err.Error()))
		c.log(run, schema.LogWarn, kind, "Refreshed account access could not be saved")
		return
	}
	c.metrics.credentialSaved(true)
	c.emit(ctx, run, schema.EventCredentialSaved, kind, "", "Account access refreshed")
}

// emit records a status update, appends it to the request and publishes it.
// The event log numbers the update after whatever it already holds for the
// request id, so a resubmitted id continues the sequence. Without a log, or
// when recording fails, the request's own counter is used.
func (c *Coordinator) emit(ctx context.Context, run *requestState, event string, kind schema.ActionKind, state schema.ActionState, msg string) {
	run.mu.Lock()
	defer run.mu.Unlock()

	u := schema.StatusUpdate{
		Timestamp: c.now().UTC(),
		RequestID: run.id,
		Event:     event,
		Kind:      kind,
		State:     state,
		Message:   msg,
	}
	if c.events != nil {
		rec, err := c.events.Record(ctx, u)
		if err != nil {
			logging.LogWith(ctx, c.logger).Warn("status update not recorded", slog.String("error", err.Error()))
		} else {
			u.Sequence = rec.Sequence
		}
	}
	if u.Sequence == 0 {
		u.Sequence = run.seq + 1
	}
	run.seq = u.Sequence
	run.updates = append(run.updates, u)

	if c.hub != nil {
		_ = c.hub.Publish(ctx, u)
	}
}

func (c *Coordinator) log(run *requestState, level string, kind schema.ActionKind, msg string) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.logs = append(run.logs, schema.LogEntry{
		Timestamp: c.now().UTC(),
		Level:     level,
		Kind:      kind,
		Message:   msg,
	})
}

func stateMessage(kind schema.ActionKind, to schema.ActionState) string {
	info, _ := kind.Info()
	switch to {
	case schema.ActionSucceeded:
		return info.AgentLabel + " completed"
	case schema.ActionFailed:
		return info.AgentLabel + " failed"
	case schema.ActionAuthRequired:
		return info.AgentLabel + " needs account access"
	}
	return info.AgentLabel
}

func errMessage(err error) string {
	return schema.Failed(schema.KindNone, err).Error
}
