package expressions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rendis/actiondesk/pkg/schema"
)

// CELEngine evaluates detector guards. A guard sees two variables:
// text (the lowercased message) and clauses (the message split on
// connectives such as "and" or "then").
type CELEngine struct {
	env      *cel.Env
	programs *programs[cel.Program]
}

func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("clauses", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	e := &CELEngine{env: env}
	e.programs = newPrograms("cel", e.compile)
	return e, nil
}

func (e *CELEngine) Name() string { return "cel" }

func (e *CELEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	return e.env.Program(ast)
}

// Evaluate reads "text" and "clauses" from data; either may be absent.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	prg, err := e.programs.get(expression)
	if err != nil {
		return nil, err
	}
	vars := map[string]any{"text": "", "clauses": []string{}}
	if text, ok := data["text"].(string); ok {
		vars["text"] = text
	}
	if clauses, ok := data["clauses"].([]string); ok && clauses != nil {
		vars["clauses"] = clauses
	}
	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return nil, evalError("cel", expression, err)
	}
	return out.Value(), nil
}

var errNotBool = errors.New("guard did not return a bool")

// EvalBool is Evaluate for guards, which must yield a bool.
func (e *CELEngine) EvalBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	v, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	pass, ok := v.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation, "guard %q returned %T", expression, v).WithCause(errNotBool)
	}
	return pass, nil
}

var _ Engine = (*CELEngine)(nil)
