package llmerrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "rate_limit", ErrorTypeRateLimit.String())
	assert.Equal(t, "service_unavailable", ErrorTypeServiceUnavailable.String())
	assert.True(t, ErrorTypeEmptyResponse.Retryable())
	assert.False(t, ErrorTypeServiceUnavailable.Retryable())
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse}
	for _, et := range retryable {
		assert.True(t, NewError(et, "x").IsRetryable(), et.String())
	}
	terminal := []ErrorType{ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeUnknown, ErrorTypeServiceUnavailable}
	for _, et := range terminal {
		assert.False(t, NewError(et, "x").IsRetryable(), et.String())
	}
}

func TestStepCode(t *testing.T) {
	assert.Equal(t, "HTTP_429", NewErrorWithStatus(ErrorTypeRateLimit, 429, "slow down").StepCode())
	assert.Equal(t, "EMPTY_RESPONSE", NewError(ErrorTypeEmptyResponse, "nothing").StepCode())
	assert.Equal(t, "EMPTY_RESPONSE", NewErrorWithStatus(ErrorTypeEmptyResponse, 200, "nothing").StepCode())
}

func TestServiceUnavailableKeepsStatus(t *testing.T) {
	cause := NewErrorWithStatus(ErrorTypeTransient, 503, "overloaded")
	err := NewServiceUnavailableError(fmt.Errorf("call: %w", cause), 3)

	assert.True(t, IsServiceUnavailable(err))
	assert.Equal(t, 503, err.StatusCode)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "3 retry attempts")
}

func TestTypeForStatus(t *testing.T) {
	cases := map[int]ErrorType{
		429: ErrorTypeRateLimit,
		401: ErrorTypeAuth,
		403: ErrorTypeAuth,
		400: ErrorTypeBadPrompt,
		404: ErrorTypeBadPrompt,
		408: ErrorTypeTransient,
		500: ErrorTypeTransient,
		529: ErrorTypeTransient,
		0:   ErrorTypeUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, TypeForStatus(status), "status %d", status)
	}
}

func TestTypeOfUnwraps(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(ErrorTypeAuth, "bad key"))
	assert.Equal(t, ErrorTypeAuth, TypeOf(err))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.Zero(t, StatusOf(err))
}

func TestSanitizePrompt(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, SanitizePrompt(short, 100))

	long := strings.Repeat("a", 150) + strings.Repeat("b", 150)
	out := SanitizePrompt(long, 200)
	require.Contains(t, out, "[300 chars, hash:")
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 100)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 100)))
}

func TestFromAPIPrefersProviderCode(t *testing.T) {
	cause := errors.New("raw")

	e := FromAPI("anthropic", 529, "overloaded_error", "Overloaded", cause)
	assert.Equal(t, ErrorTypeTransient, e.Type)
	assert.Equal(t, "HTTP_529", e.StepCode())
	assert.Contains(t, e.Error(), "anthropic API error (status 529, overloaded_error)")
	assert.ErrorIs(t, e, cause)

	e = FromAPI("google", 400, "RESOURCE_EXHAUSTED", "quota", cause)
	assert.Equal(t, ErrorTypeRateLimit, e.Type)
	assert.True(t, e.IsRetryable())

	e = FromAPI("openai", 404, "", strings.Repeat("x", 500), cause)
	assert.Equal(t, ErrorTypeBadPrompt, e.Type)
	assert.Less(t, len(e.BodyStub), 500)
}

func TestTypeForCode(t *testing.T) {
	et, ok := TypeForCode("invalid_request_error")
	assert.True(t, ok)
	assert.Equal(t, ErrorTypeBadPrompt, et)

	_, ok = TypeForCode("nope")
	assert.False(t, ok)
}
