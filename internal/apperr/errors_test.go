package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := New(KindNotFound, "document not found")
	assert.Equal(t, "NotFound: document not found", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindStorage, "failed to save", cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, err.Unwrap())
}

func TestWithDetailsChains(t *testing.T) {
	err := New(KindValidation, "bad input").WithDetails(map[string]any{"field": "filename"})
	assert.Equal(t, "filename", err.Details["field"])
}

func TestIsMatchesKind(t *testing.T) {
	err := New(KindRateLimited, "too many requests")
	assert.True(t, Is(err, KindRateLimited))
	assert.False(t, Is(err, KindAuth))
	assert.False(t, Is(errors.New("plain error"), KindRateLimited))
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("plain error")))
	assert.Equal(t, KindNotFound, KindOf(New(KindNotFound, "missing")))
}

func TestRetriable(t *testing.T) {
	for _, k := range []Kind{KindTransient, KindRateLimited, KindStorage, KindCacheUnavailable, KindProviderUnavailable} {
		assert.True(t, Retriable(k), "expected %s to be retriable", k)
	}
	for _, k := range []Kind{KindValidation, KindAuth, KindNotFound, KindConflictingState, KindInternal} {
		assert.False(t, Retriable(k), "expected %s not to be retriable", k)
	}
}
