// Package detection decides which actions, if any, a user's message asks for.
// Detection never fails: any internal error degrades to "no actions".
package detection

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rendis/actiondesk/internal/expressions"
	"github.com/rendis/actiondesk/internal/llm"
	"github.com/rendis/actiondesk/internal/logging"
	"github.com/rendis/actiondesk/pkg/schema"
)

// Mode selects the detection strategy.
type Mode string

const (
	ModeLexical Mode = "lexical"
	ModeLLM     Mode = "llm"
)

// Result is the detector's verdict for one message.
type Result struct {
	HasActions bool                    `json:"hasActions"`
	Actions    []schema.DetectedAction `json:"actions"`
}

// Detector classifies a message. Implementations must be side-effect free
// and must not return errors.
type Detector interface {
	Detect(ctx context.Context, text string) Result
}

// Config holds detector construction options.
type Config struct {
	Mode      Mode
	Rules     []Rule
	Guards    *expressions.CELEngine
	Completer llm.Completer
	Logger    *slog.Logger
}

// New returns the detector for cfg.Mode. ModeLLM without a Completer falls
// back to lexical detection.
func New(cfg Config) (Detector, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	switch cfg.Mode {
	case ModeLLM:
		if cfg.Completer != nil {
			return NewLLM(cfg.Completer, logger), nil
		}
		logger.Warn("llm detection requested without a backend, using lexical rules")
	case ModeLexical, "":
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown detection mode %q", cfg.Mode)
	}
	return NewLexical(cfg.Rules, cfg.Guards, logger)
}

// LexicalDetector matches per-kind regex cues clause by clause.
type LexicalDetector struct {
	rules  []Rule
	guards *expressions.CELEngine
	logger *slog.Logger
}

// NewLexical builds a lexical detector. Nil rules use DefaultRules; a nil
// guard engine gets a fresh CEL engine.
func NewLexical(rules []Rule, guards *expressions.CELEngine, logger *slog.Logger) (*LexicalDetector, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	if guards == nil {
		g, err := expressions.NewCELEngine()
		if err != nil {
			return nil, err
		}
		guards = g
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &LexicalDetector{rules: rules, guards: guards, logger: logger}, nil
}

// clauseSepRe splits on sentence punctuation followed by whitespace (so
// "x.com" and "19.99" survive) and on sequencing connectives.
var clauseSepRe = regexp.MustCompile(`(?i)[.;!?]+(?:\s+|$)|\s*,?\s*\b(?:and then|and also|then|and)\b\s*`)

type hit struct {
	rule   Rule
	clause int
	prec   int
}

// Detect returns one DetectedAction per matched kind, ordered by the clause
// its first cue appears in; kinds cued in the same clause follow the
// precedence table.
func (d *LexicalDetector) Detect(ctx context.Context, text string) Result {
	logger := logging.LogWith(ctx, d.logger)

	clauses := SplitClauses(text)
	if len(clauses) == 0 {
		return Result{}
	}
	lowered := make([]string, len(clauses))
	for i, c := range clauses {
		lowered[i] = strings.ToLower(c)
	}
	whole := strings.ToLower(text)

	var hits []hit
	for _, r := range d.rules {
		info, ok := r.Kind.Info()
		if !ok {
			continue
		}
		idx := -1
		for i, c := range lowered {
			if r.Cue.MatchString(c) {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		if r.Guard != "" {
			pass, err := d.guards.EvalBool(ctx, r.Guard, map[string]any{"text": whole, "clauses": lowered})
			if err != nil {
				logger.Warn("detection guard failed",
					"kind", r.Kind,
					"error", schema.NewError(schema.ErrCodeDetection, "guard evaluation failed").WithCause(err))
				continue
			}
			if !pass {
				continue
			}
		}
		hits = append(hits, hit{rule: r, clause: idx, prec: info.Precedence})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].clause != hits[j].clause {
			return hits[i].clause < hits[j].clause
		}
		return hits[i].prec < hits[j].prec
	})

	actions := make([]schema.DetectedAction, 0, len(hits))
	for _, h := range hits {
		desc := fmt.Sprintf("%s: \"%s\"", h.rule.Verb, clauses[h.clause])
		actions = append(actions, schema.NewDetectedAction(h.rule.Kind, desc))
	}
	return Result{HasActions: len(actions) > 0, Actions: actions}
}

// SplitClauses breaks text into trimmed, non-empty clauses.
func SplitClauses(text string) []string {
	parts := clauseSepRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(p, " ,"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConfirmationMessage renders the human summary shown before execution.
func ConfirmationMessage(actions []schema.DetectedAction) string {
	var b strings.Builder
	b.WriteString("I can take care of that. Here's what I'm about to do:\n")
	for i, a := range actions {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, a.Icon, a.Description)
	}
	b.WriteString("Shall I proceed?")
	return b.String()
}

var _ Detector = (*LexicalDetector)(nil)
