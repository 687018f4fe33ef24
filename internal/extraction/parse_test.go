package extraction

import (
	"testing"

	"github.com/rendis/actiondesk/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject(t *testing.T) {
	want := map[string]any{"summary": "Sync", "amount": 1500.0}

	tests := []struct {
		name string
		raw  string
	}{
		{"bare", `{"summary":"Sync","amount":1500}`},
		{"json fence", "```json\n{\"summary\":\"Sync\",\"amount\":1500}\n```"},
		{"plain fence", "```\n{\"summary\":\"Sync\",\"amount\":1500}\n```"},
		{"prose around", "Sure! Here it is:\n{\"summary\":\"Sync\",\"amount\":1500}\nLet me know."},
		{"fence inside prose", "Result:\n```json\n{\"summary\":\"Sync\",\"amount\":1500}\n```\nDone."},
		{"trailing comma", `{"summary":"Sync","amount":1500,}`},
		{"single quotes", `{'summary': 'Sync', 'amount': 1500}`},
		{"unquoted keys", `{summary: "Sync", amount: 1500}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseObject(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseObject_Truncated(t *testing.T) {
	got, err := ParseObject(`{"summary": "Sync", "description": "weekly`)
	require.NoError(t, err)
	assert.Equal(t, "Sync", got["summary"])
}

func TestParseObject_Failures(t *testing.T) {
	for _, raw := range []string{"", "no json here", "I cannot help with that."} {
		_, err := ParseObject(raw)
		require.Error(t, err, raw)
		assert.True(t, schema.IsCode(err, schema.ErrCodeExtraction))
	}
}

func TestParseArray(t *testing.T) {
	got, err := ParseArray("```json\n[{\"kind\":\"schedule\"},{\"kind\":\"send_email\"}]\n```")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "send_email", got[1].(map[string]any)["kind"])

	wrapped, err := ParseArray(`{"actions": [{"kind": "schedule"}]}`)
	require.NoError(t, err)
	assert.Len(t, wrapped, 1)

	empty, err := ParseArray("[]")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseArray(`{"kind": "schedule"}`)
	assert.True(t, schema.IsCode(err, schema.ErrCodeExtraction))
}
