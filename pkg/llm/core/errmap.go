package core

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 响应体匹配
// ═══════════════════════════════════════════════════════════════════════════

// BodyMatch 响应体中识别出的 Provider 错误
//
// Kind 为空表示识别到了错误但代码未登记，由状态码继续归类。
type BodyMatch struct {
	Kind    llm.ErrorKind
	Code    string
	Message string
}

// BodyMatcher Provider 错误响应体识别器
type BodyMatcher interface {
	MatchBody(body []byte) (BodyMatch, bool)
}

// CodeTable 基于 JSON 路径的错误代码表
//
// 路径语法为 gjson，例如 "error.type"、"base_resp.status_code"。
//
//	core.CodeTable{
//	    CodePath:    "base_resp.status_code",
//	    MessagePath: "base_resp.status_msg",
//	    Success:     []string{"0"},
//	    Kinds:       map[string]llm.ErrorKind{"1002": llm.KindRateLimit},
//	}
type CodeTable struct {
	CodePath    string
	MessagePath string
	Kinds       map[string]llm.ErrorKind
	Success     []string
}

// MatchBody 实现 BodyMatcher 接口
func (t CodeTable) MatchBody(body []byte) (BodyMatch, bool) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return BodyMatch{}, false
	}
	code := gjson.GetBytes(body, t.CodePath)
	if !code.Exists() || code.String() == "" || slices.Contains(t.Success, code.String()) {
		return BodyMatch{}, false
	}
	m := BodyMatch{
		Kind: t.Kinds[code.String()],
		Code: code.String(),
	}
	if t.MessagePath != "" {
		m.Message = gjson.GetBytes(body, t.MessagePath).String()
	}
	return m, true
}

// MatcherFunc 函数形式的 BodyMatcher
type MatcherFunc func(body []byte) (BodyMatch, bool)

// MatchBody 实现 BodyMatcher 接口
func (f MatcherFunc) MatchBody(body []byte) (BodyMatch, bool) {
	return f(body)
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误映射器
// ═══════════════════════════════════════════════════════════════════════════

// ErrorMapper 将传输层、HTTP 状态与响应体信号归类为规范错误
//
// 匹配优先级：Provider 响应体匹配 → HTTP 状态码分类 → Unknown。
// 不会编造超出证据的精度：未登记的代码不会被猜测为具体类型。
type ErrorMapper struct {
	provider string
	matchers []BodyMatcher
}

// NewErrorMapper 创建错误映射器
func NewErrorMapper(provider string, matchers ...BodyMatcher) *ErrorMapper {
	return &ErrorMapper{provider: provider, matchers: matchers}
}

// Provider Provider 名称
func (m *ErrorMapper) Provider() string {
	return m.provider
}

// FromTransport 未收到响应（网络错误、超时、取消）
//
// 已经是规范错误的直接返回。
func (m *ErrorMapper) FromTransport(err error) *llm.Error {
	if e, ok := llm.GetError(err); ok {
		if e.Provider == "" {
			e.Provider = m.provider
		}
		return e
	}
	return &llm.Error{
		Kind:     llm.KindConnection,
		Provider: m.provider,
		Message:  "no response received",
		Err:      err,
	}
}

// FromResponse 根据状态码与响应体归类
//
// 状态码 < 400 且响应体中没有错误信号时返回 nil。
func (m *ErrorMapper) FromResponse(status int, body []byte) *llm.Error {
	var (
		match   BodyMatch
		matched bool
	)
	for _, matcher := range m.matchers {
		if bm, ok := matcher.MatchBody(body); ok {
			match, matched = bm, true
			if bm.Kind != "" {
				break
			}
		}
	}

	kind := match.Kind
	if kind == "" {
		kind = llm.ClassifyStatus(status)
	}
	if kind == "" {
		if !matched {
			return nil
		}
		// 2xx 响应体中带有未登记的错误代码
		kind = llm.KindUnknown
	}

	message := match.Message
	if message == "" {
		message = fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
	}

	return &llm.Error{
		Kind:       kind,
		Provider:   m.provider,
		StatusCode: status,
		Code:       match.Code,
		Message:    message,
		Body:       string(body),
	}
}

// Decode 成功响应解析失败
func (m *ErrorMapper) Decode(status int, body []byte, err error) *llm.Error {
	return &llm.Error{
		Kind:       llm.KindUnknown,
		Provider:   m.provider,
		StatusCode: status,
		Message:    "decode response",
		Body:       string(body),
		Err:        err,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 通用匹配器
// ═══════════════════════════════════════════════════════════════════════════

// OpenAIErrorMatcher OpenAI 风格的 {"error": {...}} 响应体
//
// 依次检查 error.code 与 error.type，Kimi、豆包、百川共用。
func OpenAIErrorMatcher(kinds map[string]llm.ErrorKind) BodyMatcher {
	return MatcherFunc(func(body []byte) (BodyMatch, bool) {
		if len(body) == 0 || !gjson.ValidBytes(body) {
			return BodyMatch{}, false
		}
		e := gjson.GetBytes(body, "error")
		if !e.Exists() || !e.IsObject() {
			return BodyMatch{}, false
		}
		m := BodyMatch{Message: e.Get("message").String()}
		for _, path := range []string{"code", "type"} {
			v := e.Get(path).String()
			if v == "" {
				continue
			}
			if m.Code == "" {
				m.Code = v
			}
			if k, ok := kinds[v]; ok {
				m.Kind = k
				m.Code = v
				break
			}
		}
		return m, true
	})
}
