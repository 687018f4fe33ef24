package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeExtraction, "missing field summary")
	assert.Equal(t, "[EXTRACTION_ERROR] missing field summary", err.Error())

	err = NewErrorf(ErrCodeExternalCall, "calendar returned %d", 500).WithKind(KindSchedule)
	assert.Equal(t, "[EXTERNAL_CALL_ERROR] schedule: calendar returned 500", err.Error())
}

func TestCodeOfWrapped(t *testing.T) {
	cause := errors.New("token revoked")
	err := fmt.Errorf("send mail: %w", NewError(ErrCodeUnauthenticated, "gmail rejected token").WithCause(cause))

	assert.Equal(t, ErrCodeUnauthenticated, CodeOf(err))
	assert.True(t, IsCode(err, ErrCodeUnauthenticated))
	assert.False(t, IsCode(err, ErrCodeValidation))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, NewError(ErrCodeUnauthenticated, ""))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.False(t, IsCode(nil, ErrCodeValidation))
}

func TestActionKindLookup(t *testing.T) {
	for _, info := range ActionKinds {
		got, ok := info.Kind.Info()
		assert.True(t, ok)
		assert.Equal(t, info, got)
	}

	_, ok := KindNone.Info()
	assert.False(t, ok)

	k, err := ParseActionKind("send_email")
	assert.NoError(t, err)
	assert.Equal(t, KindSendEmail, k)

	_, err = ParseActionKind("launch_rocket")
	assert.True(t, IsCode(err, ErrCodeValidation))
}

func TestFailedOutcomeUsesErrorMessage(t *testing.T) {
	out := Failed(KindSendEmail, fmt.Errorf("wrap: %w", NewError(ErrCodeValidation, "attachment not found")))
	assert.Equal(t, OutcomeError, out.Status)
	assert.Equal(t, "attachment not found", out.Error)

	auth := NeedsAuth(KindSchedule, "https://auth.example/start")
	assert.Equal(t, OutcomeAuthRequired, auth.Status)
	assert.Equal(t, ActionAuthRequired, StateForOutcome(auth.Status))
	assert.True(t, StateForOutcome(auth.Status).IsTerminal())
	assert.False(t, ActionExecuting.IsTerminal())
}
