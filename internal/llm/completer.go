package llm

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	actionschema "github.com/rendis/actiondesk/pkg/schema"
)

// Sampling temperatures.
const (
	// TemperatureExtract keeps structured extraction near-deterministic.
	TemperatureExtract float32 = 0.1
	// TemperatureDetect is used by the LLM detector.
	TemperatureDetect float32 = 0
	// TemperatureChat is used for conversational replies and summaries.
	TemperatureChat float32 = 0.7
)

// Completer is the text-generation backend.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float32) (string, error)
}

// ChatCompleter implements Completer on top of an eino chat model.
type ChatCompleter struct {
	model model.BaseChatModel
}

// NewChatCompleter wraps m.
func NewChatCompleter(m model.BaseChatModel) *ChatCompleter {
	return &ChatCompleter{model: m}
}

// Complete sends one system and one user message and returns the reply text.
func (c *ChatCompleter) Complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	msgs := make([]*einoschema.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, einoschema.SystemMessage(system))
	}
	msgs = append(msgs, einoschema.UserMessage(user))

	resp, err := c.model.Generate(ctx, msgs, model.WithTemperature(temperature))
	if err != nil {
		return "", actionschema.NewError(actionschema.ErrCodeExternalCall, "text generation failed").WithCause(err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", actionschema.NewError(actionschema.ErrCodeExternalCall, "text generation returned an empty reply")
	}
	return resp.Content, nil
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, user string, temperature float32) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	return f(ctx, system, user, temperature)
}

var _ Completer = (*ChatCompleter)(nil)
