package parsera

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	err := newError(KindTimeout, "request timed out after 30s")
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrNetworkError))
}

func TestErrorMatchingThroughWrap(t *testing.T) {
	inner := newError(KindRateLimitExceeded, "rate limit exceeded")
	wrapped := fmt.Errorf("failed to extract data: %w", inner)

	assert.True(t, errors.Is(wrapped, ErrRateLimitExceeded))

	var e *Error
	require.True(t, errors.As(wrapped, &e))
	assert.Equal(t, KindRateLimitExceeded, e.Kind)
}

func TestErrorMessageFormatting(t *testing.T) {
	assert.Equal(t, "boom", newError(KindServerError, "boom").Error())

	cause := errors.New("connection reset")
	err := wrapError(KindNetworkError, cause, "network error")
	assert.Equal(t, "network error: connection reset", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))

	bare := &Error{Kind: KindNoData}
	assert.Equal(t, "no_data", bare.Error())
}

func TestErrorCarriesStatusAndCode(t *testing.T) {
	err := mapStatusError(401, []byte(`{"message":"invalid API key","code":"unauthorized"}`))
	assert.Equal(t, KindUnauthorized, err.Kind)
	assert.Equal(t, 401, err.StatusCode)
	assert.Equal(t, "unauthorized", err.Code)
	assert.Equal(t, "invalid API key", err.Message)
}

func TestMapStatusErrorDefaults(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{401, KindUnauthorized},
		{429, KindRateLimitExceeded},
		{400, KindBadRequest},
		{500, KindServerError},
		{502, KindServerError},
	}
	for _, tc := range cases {
		err := mapStatusError(tc.status, nil)
		assert.Equal(t, tc.kind, err.Kind, "status %d", tc.status)
		assert.NotEmpty(t, err.Message)
	}
}
