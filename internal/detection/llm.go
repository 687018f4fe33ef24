package detection

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rendis/actiondesk/internal/extraction"
	"github.com/rendis/actiondesk/internal/llm"
	"github.com/rendis/actiondesk/internal/logging"
	"github.com/rendis/actiondesk/pkg/schema"
)

const detectInstruction = `You classify a user's message into actions an assistant can perform.
Available kinds:
- schedule: create a calendar event or meeting
- send_email: send an email to someone
- generate_invoice: produce an invoice document
- create_payment: create a payment or checkout link
Respond with a JSON array only, no prose. Each element: {"kind": "<kind>", "description": "<short human-readable description>"}.
List actions in the order they should be carried out. Use [] when the message is ordinary conversation or a question.`

// LLMDetector asks the text-generation backend for the action list.
type LLMDetector struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewLLM creates an LLM-backed detector.
func NewLLM(c llm.Completer, logger *slog.Logger) *LLMDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMDetector{completer: c, logger: logger}
}

// Detect returns the model's action list. Unknown kinds are dropped and
// repeated kinds keep their first position. Backend or parse failures yield
// an empty result.
func (d *LLMDetector) Detect(ctx context.Context, text string) Result {
	logger := logging.LogWith(ctx, d.logger)
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	reply, err := d.completer.Complete(ctx, detectInstruction, text, llm.TemperatureDetect)
	if err != nil {
		logger.Warn("llm detection failed", "error", schema.NewError(schema.ErrCodeDetection, "classification call failed").WithCause(err))
		return Result{}
	}

	items, err := extraction.ParseArray(reply)
	if err != nil {
		logger.Warn("llm detection unparseable", "error", schema.NewError(schema.ErrCodeDetection, "classification reply is not a JSON array").WithCause(err))
		return Result{}
	}

	seen := make(map[schema.ActionKind]bool, len(items))
	actions := make([]schema.DetectedAction, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		raw, _ := m["kind"].(string)
		kind, err := schema.ParseActionKind(strings.TrimSpace(strings.ToLower(raw)))
		if err != nil || seen[kind] {
			continue
		}
		seen[kind] = true

		desc, _ := m["description"].(string)
		if strings.TrimSpace(desc) == "" {
			desc = defaultVerb(kind)
		}
		actions = append(actions, schema.NewDetectedAction(kind, strings.TrimSpace(desc)))
	}
	return Result{HasActions: len(actions) > 0, Actions: actions}
}

func defaultVerb(kind schema.ActionKind) string {
	for _, r := range DefaultRules() {
		if r.Kind == kind {
			return r.Verb
		}
	}
	return string(kind)
}

var _ Detector = (*LLMDetector)(nil)
