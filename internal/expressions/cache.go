package expressions

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rendis/actiondesk/pkg/schema"
)

// programCacheSize bounds compiled programs per engine. Guards, projections
// and invoice formulas come from config, so the working set is small.
const programCacheSize = 256

// programs compiles expressions once and keeps the result in an LRU.
// Two goroutines missing on the same text may both compile; the later Add wins.
type programs[P any] struct {
	engine  string
	cache   *lru.Cache[string, P]
	compile func(expression string) (P, error)
}

func newPrograms[P any](engine string, compile func(string) (P, error)) *programs[P] {
	cache, _ := lru.New[string, P](programCacheSize)
	return &programs[P]{engine: engine, cache: cache, compile: compile}
}

func (p *programs[P]) get(expression string) (P, error) {
	var zero P
	if expression == "" {
		return zero, schema.NewErrorf(schema.ErrCodeValidation, "empty %s expression", p.engine)
	}
	if prg, ok := p.cache.Get(expression); ok {
		return prg, nil
	}
	prg, err := p.compile(expression)
	if err != nil {
		return zero, schema.NewErrorf(schema.ErrCodeValidation, "%s: cannot compile %q: %s", p.engine, expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	p.cache.Add(expression, prg)
	return prg, nil
}

func (p *programs[P]) len() int { return p.cache.Len() }

func evalError(engine, expression string, err error) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeInternal, "%s: evaluating %q: %s", engine, expression, err.Error()).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}
