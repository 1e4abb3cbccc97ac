// Package wenxin 实现百度文心（千帆 wenxinworkshop）协议的适配器
//
// 请求：
//
//	{"messages": [{"role": "user", "content": "..."}], "system": "...", "stream": true}
//
// 响应：
//
//	{"id": "as-xxx", "result": "...", "is_end": true, "finish_reason": "normal",
//	 "usage": {"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3}}
//
// 业务错误以 HTTP 200 返回：{"error_code": 110, "error_msg": "Access token invalid or no longer valid"}。
package wenxin

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

var errInvalidJSON = errors.New("wenxin: invalid JSON")

// Adapter 文心协议适配器
type Adapter struct{}

// NewAdapter 创建适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// GetSystemMessageHandling system 为独立字段
func (a *Adapter) GetSystemMessageHandling() core.SystemMessageStrategy {
	return core.SystemSeparate
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建
// ═══════════════════════════════════════════════════════════════════════════

// BuildRequest 构建对话请求体
func (a *Adapter) BuildRequest(messages []llm.Message, opts *llm.Options, stream bool) map[string]any {
	if opts == nil {
		opts = &llm.Options{}
	}
	system, msgs := core.ApplySystem(a.GetSystemMessageHandling(), messages, opts)

	req := map[string]any{"messages": a.ConvertToAPI(msgs)}
	if system != "" {
		req["system"] = system
	}
	if stream {
		req["stream"] = true
	}
	if opts.MaxTokens > 0 {
		req["max_output_tokens"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		req["top_p"] = *opts.TopP
	}
	if len(opts.StopSequences) > 0 {
		req["stop"] = opts.StopSequences
	}
	if len(opts.Tools) > 0 {
		functions := make([]map[string]any, 0, len(opts.Tools))
		for _, t := range opts.Tools {
			functions = append(functions, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.InputSchema,
			})
		}
		req["functions"] = functions
	}
	if rf := opts.ResponseFormat; rf != nil && (rf.Type == "json_object" || rf.Type == "json_schema") {
		req["response_format"] = "json_object"
	}
	return req
}

// ConvertToAPI 转换消息
//
// 文心要求 user/assistant 交替出现。工具调用写作 function_call，
// 工具结果为 function 角色并携带函数名。
func (a *Adapter) ConvertToAPI(messages []llm.Message) []map[string]any {
	names := map[string]string{}
	result := make([]map[string]any, 0, len(messages))

	for _, msg := range messages {
		if msg.HasToolResults() {
			for _, tr := range msg.GetToolResults() {
				result = append(result, map[string]any{
					"role":    "function",
					"name":    names[tr.ToolUseID],
					"content": tr.Content,
				})
			}
			continue
		}

		m := map[string]any{
			"role":    string(msg.Role),
			"content": msg.GetContent(),
		}
		if calls := msg.GetToolCalls(); len(calls) > 0 {
			tc := calls[0]
			names[tc.ID] = tc.Name
			args, _ := json.Marshal(tc.Input)
			m["function_call"] = map[string]any{
				"name":      tc.Name,
				"arguments": string(args),
			}
		}
		result = append(result, m)
	}
	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应解析
// ═══════════════════════════════════════════════════════════════════════════

// ConvertFromAPI 解析对话响应
func (a *Adapter) ConvertFromAPI(body []byte) (*llm.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidJSON
	}
	root := gjson.ParseBytes(body)

	msg := llm.NewTextMessage(llm.RoleAssistant, root.Get("result").String())
	finish := ConvertFinishReason(root.Get("finish_reason").String())

	if fc := root.Get("function_call"); fc.IsObject() {
		var blocks []llm.ContentBlock
		if msg.Content != "" {
			blocks = append(blocks, &llm.TextBlock{Text: msg.Content})
		}
		blocks = append(blocks, &llm.ToolCall{
			ID:    root.Get("id").String(),
			Name:  fc.Get("name").String(),
			Input: llm.ParseToolArguments(fc.Get("arguments").String()),
		})
		msg.ContentBlocks = blocks
		finish = llm.FinishReasonToolCalls
	}
	if finish == llm.FinishReasonAbsent && root.Get("is_end").Exists() {
		finish = llm.FinishReasonStop
	}

	return &llm.Response{
		ID:      root.Get("id").String(),
		Choices: []llm.Choice{{Message: msg, FinishReason: finish}},
		Usage:   ParseUsage(root.Get("usage")),
	}, nil
}

// ParseUsage 用量缺失时返回 nil
func ParseUsage(u gjson.Result) *llm.TokenUsage {
	if !u.IsObject() {
		return nil
	}
	return &llm.TokenUsage{
		InputTokens:  u.Get("prompt_tokens").Int(),
		OutputTokens: u.Get("completion_tokens").Int(),
		TotalTokens:  u.Get("total_tokens").Int(),
	}
}

// ConvertFinishReason 文心的 normal 表示正常结束
func ConvertFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "":
		return llm.FinishReasonAbsent
	case "normal", "stop":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	case "content_filter":
		return llm.FinishReasonContentFilter
	case "function_call":
		return llm.FinishReasonToolCalls
	default:
		return llm.FinishReason(reason)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 鉴权与错误
// ═══════════════════════════════════════════════════════════════════════════

// AccessToken OAuth client_credentials 响应
type AccessToken struct {
	Token     string `json:"access_token"`
	ExpiresIn int64  `json:"expires_in"`
}

// ParseAccessToken 解析 /oauth/2.0/token 响应
func ParseAccessToken(body []byte) (AccessToken, error) {
	var tok AccessToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return AccessToken{}, err
	}
	if tok.Token == "" {
		return AccessToken{}, errors.New("wenxin: empty access_token")
	}
	return tok, nil
}

// 鉴权相关错误码，命中时应丢弃缓存的 access_token
const (
	CodeTokenInvalid = "110"
	CodeTokenExpired = "111"
)

// ErrorMatcher 文心业务错误码
//
// 另识别 OAuth 接口的 {"error": "invalid_client", "error_description": "..."}。
func ErrorMatcher() core.BodyMatcher {
	business := core.CodeTable{
		CodePath:    "error_code",
		MessagePath: "error_msg",
		Kinds: map[string]llm.ErrorKind{
			"4":              llm.KindRateLimit,
			"17":             llm.KindRateLimit,
			"18":             llm.KindRateLimit,
			"19":             llm.KindRateLimit,
			"336501":         llm.KindRateLimit,
			"336502":         llm.KindRateLimit,
			"6":              llm.KindAuthorization,
			"14":             llm.KindAuthorization,
			CodeTokenInvalid: llm.KindAuthorization,
			CodeTokenExpired: llm.KindAuthorization,
			"336001":         llm.KindBadRequest,
			"336002":         llm.KindBadRequest,
			"336003":         llm.KindBadRequest,
			"336006":         llm.KindBadRequest,
			"336007":         llm.KindBadRequest,
			"336103":         llm.KindBadRequest,
			"1":              llm.KindServerUnavailable,
			"2":              llm.KindServerUnavailable,
			"336000":         llm.KindServerUnavailable,
			"336100":         llm.KindServerUnavailable,
		},
	}
	oauth := core.MatcherFunc(func(body []byte) (core.BodyMatch, bool) {
		if !gjson.ValidBytes(body) {
			return core.BodyMatch{}, false
		}
		e := gjson.GetBytes(body, "error")
		if e.Type != gjson.String {
			return core.BodyMatch{}, false
		}
		m := core.BodyMatch{Code: e.String(), Message: gjson.GetBytes(body, "error_description").String()}
		switch m.Code {
		case "invalid_client", "unauthorized_client":
			m.Kind = llm.KindAuthorization
		case "invalid_request":
			m.Kind = llm.KindBadRequest
		}
		return m, true
	})

	return core.MatcherFunc(func(body []byte) (core.BodyMatch, bool) {
		if m, ok := business.MatchBody(body); ok {
			return m, true
		}
		return oauth.MatchBody(body)
	})
}

// 确保 Adapter 实现了 ResponseNormalizer 接口
var _ core.ResponseNormalizer = (*Adapter)(nil)
