package expressions

import "context"

// Engine evaluates an expression against a data map.
// CEL backs detector guards, gojq projects provider responses, and expr
// computes invoice arithmetic.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
