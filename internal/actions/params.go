package actions

import (
	"encoding/json"
	"strings"
)

// Params arrive from extraction as decoded JSON, or from an earlier
// outcome payload. Both getters fall back to def when the key is absent,
// blank or of the wrong type; the input schema has already said what is
// required.

func stringParam(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return def
}

func floatParam(params map[string]any, key string, def float64) float64 {
	switch n := params[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return def
}
