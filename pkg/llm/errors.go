package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ═══════════════════════════════════════════════════════════════════════════
// 错误类型
// ═══════════════════════════════════════════════════════════════════════════

// ErrorKind 规范错误类型
//
// 所有 Provider 的失败都会被归类到以下有限集合中，调用方只需要一条处理路径。
// ErrorKind 本身实现 error 接口，可直接作为 errors.Is 的目标：
//
//	if errors.Is(err, llm.KindRateLimit) { ... }
type ErrorKind string

const (
	// KindConnection 未收到任何响应（网络错误、超时、上下文取消）
	KindConnection ErrorKind = "connection_error"

	// KindServerUnavailable 服务端错误（5xx）
	KindServerUnavailable ErrorKind = "server_unavailable"

	// KindRateLimit 限流（429 或 Provider 限流信号）
	KindRateLimit ErrorKind = "rate_limit"

	// KindAuthorization 鉴权失败（401/403 或凭证无效的响应体）
	KindAuthorization ErrorKind = "authorization_error"

	// KindBadRequest 请求错误（其余已知 4xx、本地参数错误）
	KindBadRequest ErrorKind = "bad_request"

	// KindUnsupportedOperation Adapter 未声明的操作
	KindUnsupportedOperation ErrorKind = "unsupported_operation"

	// KindUnknown 无法归类
	KindUnknown ErrorKind = "unknown_error"

	// KindConfiguration 配置不完整（凭证缺失、未指定模型）
	KindConfiguration ErrorKind = "configuration_error"

	// KindTruncatedStream 流在终止前被截断
	KindTruncatedStream ErrorKind = "truncated_stream"
)

// Error 实现 error 接口，使 errors.Is(err, KindXxx) 可用
func (k ErrorKind) Error() string {
	return string(k)
}

// ErrStreamClosed 在已关闭的流上调用 Recv
var ErrStreamClosed = errors.New("llm: stream closed")

// ═══════════════════════════════════════════════════════════════════════════
// 规范错误
// ═══════════════════════════════════════════════════════════════════════════

// Error 规范错误
//
// 保留 Provider 名称、原始状态码与原始响应体，用于诊断。
// 状态码为 0 表示未收到 HTTP 响应或错误产生于本地。
type Error struct {
	Kind       ErrorKind
	Provider   string
	Op         Operation
	StatusCode int
	Code       string // Provider 特定的错误代码
	Message    string
	Body       string
	RequestID  string
	Err        error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s [status %d]", e.Provider, e.Kind, e.StatusCode)
	if e.Op != "" {
		s += " " + string(e.Op)
	}
	if e.Code != "" {
		s += " (code " + e.Code + ")"
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	if e.RequestID != "" {
		s += " (request_id: " + e.RequestID + ")"
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按 Kind 匹配
func (e *Error) Is(target error) bool {
	if k, ok := target.(ErrorKind); ok {
		return e.Kind == k
	}
	return false
}

// Retryable 是否为暂时性失败
//
// 仅作为提示，库内部从不重试。
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServerUnavailable, KindConnection:
		return true
	default:
		return false
	}
}

// NewError 创建规范错误
func NewError(kind ErrorKind, provider, message string, err error) *Error {
	return &Error{
		Kind:     kind,
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

// NewUnsupportedError 创建不支持操作错误
func NewUnsupportedError(provider string, op Operation) *Error {
	return &Error{
		Kind:     KindUnsupportedOperation,
		Provider: provider,
		Op:       op,
		Message:  fmt.Sprintf("operation %q is not supported by provider %q", op, provider),
	}
}

// NewConfigError 创建配置错误
func NewConfigError(provider, message string) *Error {
	return &Error{
		Kind:     KindConfiguration,
		Provider: provider,
		Message:  message,
	}
}

// NewTruncatedError 创建截断流错误
func NewTruncatedError(provider, message string) *Error {
	return &Error{
		Kind:     KindTruncatedStream,
		Provider: provider,
		Message:  message,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误匹配函数（基于 errors.As）
// ═══════════════════════════════════════════════════════════════════════════

// GetError 提取规范错误（如果存在）
func GetError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf 返回错误的规范类型，非规范错误返回 KindUnknown
func KindOf(err error) ErrorKind {
	if e, ok := GetError(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// IsConnectionError 检查是否为连接错误
func IsConnectionError(err error) bool { return errors.Is(err, KindConnection) }

// IsServerUnavailableError 检查是否为服务端错误
func IsServerUnavailableError(err error) bool { return errors.Is(err, KindServerUnavailable) }

// IsRateLimitError 检查是否为限流错误
func IsRateLimitError(err error) bool { return errors.Is(err, KindRateLimit) }

// IsAuthorizationError 检查是否为鉴权错误
func IsAuthorizationError(err error) bool { return errors.Is(err, KindAuthorization) }

// IsBadRequestError 检查是否为请求错误
func IsBadRequestError(err error) bool { return errors.Is(err, KindBadRequest) }

// IsUnsupportedError 检查是否为不支持的操作
func IsUnsupportedError(err error) bool { return errors.Is(err, KindUnsupportedOperation) }

// IsConfigError 检查是否为配置错误
func IsConfigError(err error) bool { return errors.Is(err, KindConfiguration) }

// IsTruncatedStreamError 检查是否为截断流错误
func IsTruncatedStreamError(err error) bool { return errors.Is(err, KindTruncatedStream) }

// IsRetryableError 检查错误是否可重试
func IsRetryableError(err error) bool {
	if e, ok := GetError(err); ok {
		return e.Retryable()
	}
	return false
}

// GetStatusCode 提取 HTTP 状态码
func GetStatusCode(err error) int {
	if e, ok := GetError(err); ok {
		return e.StatusCode
	}
	return 0
}

// ═══════════════════════════════════════════════════════════════════════════
// 状态码分类
// ═══════════════════════════════════════════════════════════════════════════

// ClassifyStatus 按 HTTP 状态码归类
//
// 仅列出的 4xx 归为 BadRequest，其余未知状态（如 418）归为 Unknown。
// 2xx/3xx 返回空字符串。
func ClassifyStatus(status int) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuthorization
	case http.StatusBadRequest, http.StatusNotFound, http.StatusMethodNotAllowed,
		http.StatusConflict, http.StatusGone, http.StatusRequestEntityTooLarge,
		http.StatusRequestURITooLong, http.StatusUnsupportedMediaType,
		http.StatusUnprocessableEntity:
		return KindBadRequest
	}
	switch {
	case status >= 500 && status <= 599:
		return KindServerUnavailable
	case status < 400:
		return ""
	default:
		return KindUnknown
	}
}
