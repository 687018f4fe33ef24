package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/rendis/actiondesk/internal/llm"
)

var testZone = time.FixedZone("MYT", 8*60*60)

// fixedClock pins now to Friday 2026-10-16 10:00 in UTC+8.
func fixedClock() Clock {
	return Clock{
		Loc: testZone,
		Now: func() time.Time { return time.Date(2026, 10, 16, 10, 0, 0, 0, testZone) },
	}
}

func replying(reply string) llm.Completer {
	return llm.CompleterFunc(func(context.Context, string, string, float32) (string, error) {
		return reply, nil
	})
}

func unreachable() llm.Completer {
	return llm.CompleterFunc(func(context.Context, string, string, float32) (string, error) {
		return "", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
	})
}
