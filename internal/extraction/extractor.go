// Package extraction turns free text into schema-validated action parameters.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/rendis/actiondesk/internal/llm"
	"github.com/rendis/actiondesk/internal/logging"
	"github.com/rendis/actiondesk/internal/validation"
	"github.com/rendis/actiondesk/pkg/schema"
)

// Extraction is the result of one extraction call.
type Extraction struct {
	Params map[string]any
	// FromFallback is true when the model path failed and the schema's
	// deterministic fallback produced Params.
	FromFallback bool
	// Cause is the model-path error that triggered the fallback.
	Cause error
}

// Config holds the Extractor's collaborators.
type Config struct {
	Completer llm.Completer
	Validator validation.Validator
	Clock     Clock
	Schemas   map[schema.ActionKind]*Schema
	Logger    *slog.Logger
}

// Extractor produces parameters for an action kind from the user's text.
type Extractor struct {
	completer llm.Completer
	validator validation.Validator
	clock     Clock
	schemas   map[schema.ActionKind]*Schema
	logger    *slog.Logger
}

// New creates an Extractor. Missing collaborators get working defaults; a
// nil Completer sends every call straight to the fallback.
func New(cfg Config) *Extractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	v := cfg.Validator
	if v == nil {
		v = validation.NewJSONSchemaValidator()
	}
	schemas := cfg.Schemas
	if schemas == nil {
		schemas = DefaultSchemas()
	}
	clock := cfg.Clock
	if clock.Loc == nil {
		clock.Loc = LoadZone(DefaultTimezone)
	}
	return &Extractor{
		completer: cfg.Completer,
		validator: v,
		clock:     clock,
		schemas:   schemas,
		logger:    logger,
	}
}

// Extract runs extraction for kind using its registered schema.
func (e *Extractor) Extract(ctx context.Context, text string, kind schema.ActionKind) (*Extraction, error) {
	s, ok := e.schemas[kind]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeActionUnavailable, "no extraction schema for %q", kind).WithKind(kind)
	}
	return e.ExtractWith(ctx, text, s)
}

// ExtractWith asks the model for a JSON object shaped by s, then applies
// defaults, normalization, required-field checks and JSON Schema validation.
// Any failure on that path is masked by s.Fallback when one exists. An
// EXTRACTION_ERROR is returned only when both paths fail.
func (e *Extractor) ExtractWith(ctx context.Context, text string, s *Schema) (*Extraction, error) {
	logger := logging.LogWith(ctx, e.logger)

	params, err := e.fromModel(ctx, text, s)
	if err == nil {
		return &Extraction{Params: params}, nil
	}

	if s.Fallback == nil {
		return nil, asExtractionError(err, s.Kind)
	}

	logger.Warn("extraction falling back", "entity", s.Entity, "error", err)

	fb, fbErr := s.Fallback(text, e.clock)
	if fbErr == nil {
		fb, fbErr = e.finalize(fb, s)
	}
	if fbErr != nil {
		xerr := asExtractionError(fbErr, s.Kind)
		if xerr.Details == nil {
			xerr.Details = map[string]any{}
		}
		xerr.Details["model_error"] = err.Error()
		return nil, xerr
	}
	return &Extraction{Params: fb, FromFallback: true, Cause: err}, nil
}

func (e *Extractor) fromModel(ctx context.Context, text string, s *Schema) (map[string]any, error) {
	if e.completer == nil {
		return nil, schema.NewError(schema.ErrCodeExternalCall, "no text-generation backend configured")
	}

	reply, err := e.completer.Complete(ctx, e.instruction(s), text, llm.TemperatureExtract)
	if err != nil {
		return nil, err
	}

	params, err := ParseObject(reply)
	if err != nil {
		return nil, err
	}
	return e.finalize(params, s)
}

// finalize applies defaults, normalizes, and checks the required-field invariant.
func (e *Extractor) finalize(params map[string]any, s *Schema) (map[string]any, error) {
	for k, v := range params {
		if isBlank(v) {
			delete(params, k)
		}
	}
	for k, v := range s.Defaults {
		if _, ok := params[k]; !ok {
			params[k] = v
		}
	}

	if s.Normalize != nil {
		if err := s.Normalize(params, e.clock); err != nil {
			return nil, err
		}
	}

	for _, field := range s.Required {
		if v, ok := params[field]; !ok || isBlank(v) {
			return nil, schema.NewErrorf(schema.ErrCodeExtraction, "required field %q is missing", field).
				WithKind(s.Kind).
				WithDetails(map[string]any{"field": field})
		}
	}

	if s.JSONSchema != "" {
		if err := e.validator.ValidateInput(params, []byte(s.JSONSchema)); err != nil {
			fields := validation.ViolatedFields(err)
			field := ""
			if len(fields) > 0 {
				field = fields[0]
			}
			return nil, schema.NewErrorf(schema.ErrCodeExtraction, "field %q is invalid", field).
				WithKind(s.Kind).
				WithCause(err).
				WithDetails(map[string]any{"field": field, "fields": fields})
		}
	}
	return params, nil
}

func (e *Extractor) instruction(s *Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You extract %s details from a user's message.\n", s.Entity)
	b.WriteString("Respond with exactly one JSON object and nothing else: no prose, no code fences.\n")
	fmt.Fprintf(&b, "Current time: %s (%s).\n\n", e.clock.Format(e.clock.now()), e.clock.loc())

	b.WriteString("Fields:\n")
	for _, f := range s.Required {
		fmt.Fprintf(&b, "- %s (required)\n", f)
	}
	for _, f := range s.Optional {
		fmt.Fprintf(&b, "- %s (optional)\n", f)
	}

	if len(s.Defaults) > 0 {
		keys := make([]string, 0, len(s.Defaults))
		for k := range s.Defaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nDefaults when not stated:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, s.Defaults[k])
		}
	}

	if s.Rules != "" {
		b.WriteString("\nRules:\n")
		b.WriteString(s.Rules)
		b.WriteString("\n")
	}
	if s.Examples != "" {
		b.WriteString("\nExamples:\n")
		b.WriteString(s.Examples)
		b.WriteString("\n")
	}
	return b.String()
}

func asExtractionError(err error, kind schema.ActionKind) *schema.Error {
	var se *schema.Error
	if !errors.As(err, &se) || se.Code != schema.ErrCodeExtraction {
		se = schema.NewErrorf(schema.ErrCodeExtraction, "could not extract parameters: %s", err.Error()).WithCause(err)
	}
	if se.Kind == "" {
		se.Kind = kind
	}
	return se
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
