package expressions

import (
	"context"
	"testing"

	"github.com/rendis/actiondesk/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvent struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	HTMLLink string `json:"htmlLink"`
	Start    struct {
		DateTime string `json:"dateTime"`
	} `json:"start"`
}

func TestGoJQEngine_Project(t *testing.T) {
	e := NewGoJQEngine()
	ev := fakeEvent{ID: "ev1", Summary: "Sync", HTMLLink: "https://cal/ev1"}
	ev.Start.DateTime = "2026-10-17T14:00:00+08:00"

	out, err := e.Project(context.Background(), `{id, summary, link: .htmlLink, start: .start.dateTime}`, ev)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":      "ev1",
		"summary": "Sync",
		"link":    "https://cal/ev1",
		"start":   "2026-10-17T14:00:00+08:00",
	}, out)
}

func TestGoJQEngine_ProjectNonObject(t *testing.T) {
	e := NewGoJQEngine()
	_, err := e.Project(context.Background(), `.id`, fakeEvent{ID: "x"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestGoJQEngine_Evaluate(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()
	data := map[string]any{"items": []any{1.0, 2.0, 3.0}}

	one, err := e.Evaluate(ctx, `.items | length`, data)
	require.NoError(t, err)
	assert.Equal(t, 3, one)

	many, err := e.Evaluate(ctx, `.items[]`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, many)

	none, err := e.Evaluate(ctx, `empty`, data)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGoJQEngine_Errors(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, ".[", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = e.Evaluate(ctx, `error("boom")`, map[string]any{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeInternal))

	_, err = e.Evaluate(ctx, `$ENV.HOME`, map[string]any{})
	require.NoError(t, err)
}
