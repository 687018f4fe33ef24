package expressions

import (
	"context"
	"testing"

	"github.com/rendis/actiondesk/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprEngine_InvoiceFormulas(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()
	data := map[string]any{"amount": 1500.0, "tax_rate": 0.06}

	tax, err := e.EvaluateFloat(ctx, "amount * tax_rate", data)
	require.NoError(t, err)
	assert.InDelta(t, 90.0, tax, 1e-9)

	total, err := e.EvaluateFloat(ctx, "amount + amount * tax_rate", data)
	require.NoError(t, err)
	assert.InDelta(t, 1590.0, total, 1e-9)
}

func TestExprEngine_IntegerResult(t *testing.T) {
	e := NewExprEngine()
	got, err := e.EvaluateFloat(context.Background(), "2 + 3", nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)
}

func TestExprEngine_Errors(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, "amount +", map[string]any{"amount": 1.0})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.EvaluateFloat(ctx, `"text"`, nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestPrograms_CompilesOnce(t *testing.T) {
	calls := 0
	p := newPrograms("count", func(expression string) (string, error) {
		calls++
		return "compiled:" + expression, nil
	})
	for i := 0; i < 3; i++ {
		got, err := p.get("amount + tax")
		require.NoError(t, err)
		assert.Equal(t, "compiled:amount + tax", got)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, p.len())
}

func TestPrograms_CompileFailureIsNotCached(t *testing.T) {
	p := newPrograms("count", func(string) (int, error) {
		return 0, assert.AnError
	})
	_, err := p.get("x")
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Zero(t, p.len())
}
