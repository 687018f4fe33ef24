package expressions

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"

	"github.com/rendis/actiondesk/pkg/schema"
)

// GoJQEngine shapes provider responses (calendar events, sent messages,
// checkout sessions) into outcome payloads with jq.
type GoJQEngine struct {
	programs *programs[*gojq.Code]
}

func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{programs: newPrograms("jq", compileJQ)}
}

// compileJQ hides the process environment from $ENV and env.
func compileJQ(expression string) (*gojq.Code, error) {
	q, err := gojq.Parse(expression)
	if err != nil {
		return nil, err
	}
	return gojq.Compile(q, gojq.WithEnvironLoader(func() []string { return nil }))
}

func (e *GoJQEngine) Name() string { return "jq" }

// Evaluate collects every output: none is nil, one is returned bare and
// more come back as []any.
func (e *GoJQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	code, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}
	var outs []any
	iter := code.RunWithContext(ctx, data)
	for v, ok := iter.Next(); ok; v, ok = iter.Next() {
		if err, isErr := v.(error); isErr {
			return nil, evalError("jq", expression, err)
		}
		outs = append(outs, v)
	}
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		return outs[0], nil
	}
	return outs, nil
}

// Project applies expression to the JSON form of v and requires an object.
func (e *GoJQEngine) Project(ctx context.Context, expression string, v any) (map[string]any, error) {
	doc, err := ToJSONMap(v)
	if err != nil {
		return nil, err
	}
	out, err := e.Evaluate(ctx, expression, doc)
	if err != nil {
		return nil, err
	}
	obj, ok := out.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "projection %q gave %T, not an object", expression, out)
	}
	return obj, nil
}

// ToJSONMap round-trips v through encoding/json, which is the only value
// shape gojq accepts.
func ToJSONMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "value cannot be encoded as JSON").WithCause(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "value is not a JSON object").WithCause(err)
	}
	return m, nil
}

var _ Engine = (*GoJQEngine)(nil)
