package extraction

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rendis/actiondesk/pkg/schema"
)

var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \\t]*\\r?\\n?(.*?)```")

// ParseObject pulls the first JSON object out of model output. It tolerates
// code fences, surrounding prose, and the usual malformations (single
// quotes, trailing commas, unquoted keys, truncation). Numbers decode as float64.
func ParseObject(raw string) (map[string]any, error) {
	v, err := parseValue(raw, '{', '}')
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExtraction, "model output is %T, want object", v)
	}
	return obj, nil
}

// ParseArray pulls the first JSON array out of model output with the same
// tolerance as ParseObject.
func ParseArray(raw string) ([]any, error) {
	v, err := parseValue(raw, '[', ']')
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExtraction, "model output is %T, want array", v)
	}
	return arr, nil
}

func parseValue(raw string, open, closing byte) (any, error) {
	text := stripFences(raw)
	start := strings.IndexByte(text, open)
	if start < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeExtraction, "no JSON %q found in model output", string(open))
	}
	candidate := text[start:]

	// The decoder stops after the first complete value, so trailing prose is ignored.
	var v any
	if err := json.NewDecoder(strings.NewReader(candidate)).Decode(&v); err == nil {
		return v, nil
	}

	if end := strings.LastIndexByte(candidate, closing); end >= 0 {
		candidate = candidate[:end+1]
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExtraction, "model output is not valid JSON").WithCause(err)
	}

	var fixed any
	if err := json.Unmarshal([]byte(repaired), &fixed); err != nil {
		return nil, schema.NewError(schema.ErrCodeExtraction, "model output is not valid JSON").WithCause(err)
	}
	return fixed, nil
}

func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}
