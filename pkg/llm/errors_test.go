package llm

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ═══════════════════════════════════════════════════════════════════════════
// Error 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestError_Error(t *testing.T) {
	t.Run("完整字段", func(t *testing.T) {
		err := &Error{
			Kind:       KindRateLimit,
			Provider:   "kimi",
			Op:         OpGenerate,
			StatusCode: 429,
			Code:       "rate_limit_reached_error",
			Message:    "slow down",
			RequestID:  "req-1",
		}

		s := err.Error()
		assert.Contains(t, s, "kimi: rate_limit [status 429]")
		assert.Contains(t, s, "generate")
		assert.Contains(t, s, "(code rate_limit_reached_error)")
		assert.Contains(t, s, "slow down")
		assert.Contains(t, s, "(request_id: req-1)")
	})

	t.Run("带底层错误", func(t *testing.T) {
		underlying := errors.New("dial tcp: refused")
		err := NewError(KindConnection, "qwen", "no response received", underlying)

		assert.Contains(t, err.Error(), "dial tcp: refused")
		require.ErrorIs(t, err, underlying)
		assert.Equal(t, underlying, errors.Unwrap(err))
	})

	t.Run("状态码为 0", func(t *testing.T) {
		err := NewConfigError("gemini", "API key is required")
		assert.Contains(t, err.Error(), "[status 0]")
		assert.Zero(t, GetStatusCode(err))
	})
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindAuthorization, Provider: "wenxin"})

	assert.ErrorIs(t, err, KindAuthorization)
	assert.NotErrorIs(t, err, KindBadRequest)
	assert.True(t, IsAuthorizationError(err))
	assert.False(t, IsRateLimitError(err))
	assert.Equal(t, KindAuthorization, KindOf(err))

	e, ok := GetError(err)
	require.True(t, ok)
	assert.Equal(t, "wenxin", e.Provider)
}

func TestKindPredicates(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		is   func(error) bool
	}{
		{KindConnection, IsConnectionError},
		{KindServerUnavailable, IsServerUnavailableError},
		{KindRateLimit, IsRateLimitError},
		{KindAuthorization, IsAuthorizationError},
		{KindBadRequest, IsBadRequestError},
		{KindUnsupportedOperation, IsUnsupportedError},
		{KindConfiguration, IsConfigError},
		{KindTruncatedStream, IsTruncatedStreamError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := &Error{Kind: tt.kind}
			assert.True(t, tt.is(err))
			assert.False(t, tt.is(&Error{Kind: KindUnknown}))
			assert.False(t, tt.is(errors.New("plain")))
		})
	}
}

func TestRetryable(t *testing.T) {
	retryable := []ErrorKind{KindRateLimit, KindServerUnavailable, KindConnection}
	permanent := []ErrorKind{KindAuthorization, KindBadRequest, KindUnsupportedOperation,
		KindConfiguration, KindUnknown, KindTruncatedStream}

	for _, k := range retryable {
		assert.True(t, IsRetryableError(&Error{Kind: k}), k)
	}
	for _, k := range permanent {
		assert.False(t, IsRetryableError(&Error{Kind: k}), k)
	}
	assert.False(t, IsRetryableError(errors.New("plain")))
}

func TestNonCanonicalError(t *testing.T) {
	err := errors.New("plain")

	_, ok := GetError(err)
	assert.False(t, ok)
	assert.Equal(t, ErrorKind(""), KindOf(err))
	assert.Zero(t, GetStatusCode(err))
}

func TestNewUnsupportedError(t *testing.T) {
	err := NewUnsupportedError("baichuan", OpCreateImage)

	assert.Equal(t, KindUnsupportedOperation, err.Kind)
	assert.Equal(t, OpCreateImage, err.Op)
	assert.Contains(t, err.Error(), `"create_image"`)
	assert.Contains(t, err.Error(), `"baichuan"`)
}

func TestNewTruncatedError(t *testing.T) {
	err := NewTruncatedError("minimax", "connection closed")
	assert.True(t, IsTruncatedStreamError(err))
	assert.False(t, err.Retryable())
}

// ═══════════════════════════════════════════════════════════════════════════
// 状态码分类测试
// ═══════════════════════════════════════════════════════════════════════════

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusOK, ""},
		{http.StatusFound, ""},
		{http.StatusBadRequest, KindBadRequest},
		{http.StatusUnauthorized, KindAuthorization},
		{http.StatusForbidden, KindAuthorization},
		{http.StatusNotFound, KindBadRequest},
		{http.StatusMethodNotAllowed, KindBadRequest},
		{http.StatusConflict, KindBadRequest},
		{http.StatusRequestEntityTooLarge, KindBadRequest},
		{http.StatusUnprocessableEntity, KindBadRequest},
		{http.StatusTeapot, KindUnknown},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindServerUnavailable},
		{http.StatusBadGateway, KindServerUnavailable},
		{529, KindServerUnavailable},
		{600, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status), tt.status)
		})
	}
}
