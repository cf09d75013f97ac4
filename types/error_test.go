package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	e := NewError(ErrEmbeddingUnavailable, "backend unreachable")
	assert.Equal(t, "[EMBEDDING_UNAVAILABLE] backend unreachable", e.Error())

	withCause := NewError(ErrSearchUnavailable, "search failed").WithCause(errors.New("dial tcp: refused"))
	assert.Contains(t, withCause.Error(), "SEARCH_UNAVAILABLE")
	assert.Contains(t, withCause.Error(), "dial tcp: refused")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	e := NewError(ErrGenerationUnavailable, "llm failed").WithCause(cause)
	assert.ErrorIs(t, e, cause)
}

func TestError_UnwrapThroughWrapping(t *testing.T) {
	// Codes must survive %w wrapping so callers can classify mid-pipeline errors.
	inner := NewError(ErrEmbeddingTimeout, "deadline exceeded").WithRetryable(true)
	wrapped := fmt.Errorf("ingest document d1: %w", inner)

	assert.Equal(t, ErrEmbeddingTimeout, GetErrorCode(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsCode(wrapped, ErrEmbeddingTimeout))
	assert.False(t, IsCode(wrapped, ErrEmbeddingUnavailable))
}

func TestError_Builders(t *testing.T) {
	e := NewError(ErrWebSearchTimeout, "timed out").
		WithStage("web_searching").
		WithRetryable(true)

	assert.Equal(t, "web_searching", e.Stage)
	assert.True(t, e.Retryable)
}

func TestGetErrorCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestParseCategory(t *testing.T) {
	for _, c := range AllCategories() {
		got, err := ParseCategory(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCategory("make_coffee")
	require.Error(t, err)
	assert.Equal(t, ErrInvalidCategory, GetErrorCode(err))
}

func TestCategory_Valid(t *testing.T) {
	assert.True(t, CategoryQuiz.Valid())
	assert.False(t, Category("").Valid())
	assert.False(t, Category("QUIZ").Valid())
}
