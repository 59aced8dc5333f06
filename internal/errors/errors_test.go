package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidQueue, "no complaints selected")

	assert.Equal(t, ErrCodeInvalidQueue, err.Code)
	assert.Equal(t, "no complaints selected", err.Message)
	assert.Nil(t, err.Cause)
	assert.Equal(t, "[INTAKE-001] no complaints selected", err.Error())
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeGenerationFailed, "llm call failed", cause)

	assert.True(t, stderrors.Is(err, cause), "Wrap should support errors.Is on the cause")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("compile: %w", Newf(ErrCodeKeyCollision, "key %q used twice", "fever_course"))

	assert.True(t, stderrors.Is(err, ErrKeyCollision))
	assert.False(t, stderrors.Is(err, ErrInvalidQueue))
	assert.Equal(t, ErrCodeKeyCollision, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
}

func TestWithSuggestion(t *testing.T) {
	err := New(ErrCodeGenerationTimedOut, "deadline exceeded").
		WithSuggestion("try again").
		WithSuggestion("raise GENERATION_TIMEOUT")

	require.Len(t, err.Suggestions, 2)
	msg := err.Error()
	assert.True(t, strings.Contains(msg, "Suggestions:"))
	assert.True(t, strings.Contains(msg, "• raise GENERATION_TIMEOUT"))
}
