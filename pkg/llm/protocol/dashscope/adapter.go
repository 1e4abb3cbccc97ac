// Package dashscope 实现阿里云 DashScope（通义千问）原生协议的适配器
//
// DashScope 的请求把消息放在 input 下、采样参数放在 parameters 下；
// result_format=message 时响应结构与 OpenAI 的 choices 相近。
//
//	{
//	  "model": "qwen-plus",
//	  "input": {"messages": [{"role": "user", "content": "..."}]},
//	  "parameters": {"result_format": "message", "incremental_output": true}
//	}
//
// 多模态模型（qwen-vl、qwen-audio）的 content 为数组：[{"image": "..."}, {"text": "..."}]。
package dashscope

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/protocol/openai"
)

var errInvalidJSON = errors.New("dashscope: invalid JSON")

// Adapter DashScope 协议适配器
type Adapter struct {
	multimodal bool
}

// NewAdapter 创建适配器，multimodal 决定 content 使用数组形式
func NewAdapter(multimodal bool) *Adapter {
	return &Adapter{multimodal: multimodal}
}

// GetSystemMessageHandling 系统消息内联
func (a *Adapter) GetSystemMessageHandling() core.SystemMessageStrategy {
	return core.SystemInline
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建
// ═══════════════════════════════════════════════════════════════════════════

// BuildRequest 构建 generation 请求体
func (a *Adapter) BuildRequest(model string, messages []llm.Message, opts *llm.Options, stream bool) map[string]any {
	if opts == nil {
		opts = &llm.Options{}
	}
	_, msgs := core.ApplySystem(a.GetSystemMessageHandling(), messages, opts)

	params := map[string]any{"result_format": "message"}
	if stream {
		params["incremental_output"] = true
	}
	if opts.MaxTokens > 0 {
		params["max_tokens"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		params["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		params["top_p"] = *opts.TopP
	}
	if opts.TopK > 0 {
		params["top_k"] = opts.TopK
	}
	if len(opts.StopSequences) > 0 {
		params["stop"] = opts.StopSequences
	}
	if opts.Seed != nil {
		params["seed"] = *opts.Seed
	}
	if len(opts.Tools) > 0 {
		params["tools"] = openai.ConvertTools(opts.Tools)
		if opts.ToolChoice != "" {
			params["tool_choice"] = opts.ToolChoice
		}
	}
	if rf := opts.ResponseFormat; rf != nil && rf.Type != "" {
		params["response_format"] = map[string]any{"type": rf.Type}
	}

	return map[string]any{
		"model":      model,
		"input":      map[string]any{"messages": a.ConvertToAPI(msgs)},
		"parameters": params,
	}
}

// ConvertToAPI 转换消息
//
// 工具结果展开为 tool 角色消息；工具调用沿用 OpenAI 的 tool_calls 结构。
func (a *Adapter) ConvertToAPI(messages []llm.Message) []map[string]any {
	result := make([]map[string]any, 0, len(messages))

	for _, msg := range messages {
		if msg.HasToolResults() {
			for _, tr := range msg.GetToolResults() {
				result = append(result, map[string]any{
					"role":         "tool",
					"tool_call_id": tr.ToolUseID,
					"content":      tr.Content,
				})
			}
			continue
		}

		m := map[string]any{"role": string(msg.Role)}
		if a.multimodal {
			m["content"] = multimodalContent(msg)
		} else {
			m["content"] = msg.GetContent()
		}

		if calls := msg.GetToolCalls(); len(calls) > 0 {
			toolCalls := make([]map[string]any, 0, len(calls))
			for _, tc := range calls {
				args, _ := json.Marshal(tc.Input)
				toolCalls = append(toolCalls, map[string]any{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]any{
						"name":      tc.Name,
						"arguments": string(args),
					},
				})
			}
			m["tool_calls"] = toolCalls
		}
		result = append(result, m)
	}
	return result
}

func multimodalContent(msg llm.Message) []map[string]any {
	var parts []map[string]any
	for _, block := range msg.Blocks() {
		switch b := block.(type) {
		case *llm.TextBlock:
			parts = append(parts, map[string]any{"text": b.Text})
		case *llm.ImageBlock:
			parts = append(parts, map[string]any{"image": openai.ImageURL(b)})
		}
	}
	return parts
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应解析
// ═══════════════════════════════════════════════════════════════════════════

// ConvertFromAPI 解析 generation 响应
//
//	{
//	  "output": {"choices": [{"message": {...}, "finish_reason": "stop"}]},
//	  "usage": {"input_tokens": 10, "output_tokens": 5, "total_tokens": 15},
//	  "request_id": "..."
//	}
func (a *Adapter) ConvertFromAPI(body []byte) (*llm.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidJSON
	}
	root := gjson.ParseBytes(body)

	out := &llm.Response{ID: root.Get("request_id").String()}
	root.Get("output.choices").ForEach(func(key, c gjson.Result) bool {
		out.Choices = append(out.Choices, llm.Choice{
			Index:        int(key.Int()),
			Message:      parseMessage(c.Get("message")),
			FinishReason: ConvertFinishReason(c.Get("finish_reason").String()),
		})
		return true
	})

	// result_format=text 的旧响应：output.text
	if len(out.Choices) == 0 && root.Get("output.text").Exists() {
		out.Choices = append(out.Choices, llm.Choice{
			Message:      llm.NewTextMessage(llm.RoleAssistant, root.Get("output.text").String()),
			FinishReason: ConvertFinishReason(root.Get("output.finish_reason").String()),
		})
	}

	out.Usage = ParseUsage(root.Get("usage"))
	return out, nil
}

func parseMessage(m gjson.Result) llm.Message {
	content := m.Get("content")
	parts := ParseParts(content)
	msg := llm.Message{Role: llm.RoleAssistant, Content: content.String()}
	if content.IsArray() {
		msg.Content = partsText(parts)
	}

	calls := m.Get("tool_calls").Array()
	reasoning := m.Get("reasoning_content").String()
	if len(calls) == 0 && reasoning == "" && !content.IsArray() {
		return msg
	}

	var blocks []llm.ContentBlock
	if reasoning != "" {
		blocks = append(blocks, &llm.ThinkingBlock{Thinking: reasoning})
	}
	switch {
	case content.IsArray():
		blocks = append(blocks, parts...)
	case msg.Content != "":
		blocks = append(blocks, &llm.TextBlock{Text: msg.Content})
	}
	for _, tc := range calls {
		blocks = append(blocks, &llm.ToolCall{
			ID:    tc.Get("id").String(),
			Name:  tc.Get("function.name").String(),
			Input: llm.ParseToolArguments(tc.Get("function.arguments").String()),
		})
	}
	msg.ContentBlocks = blocks
	return msg
}

// ParseParts 多模态模型的 content 数组：[{"text": ...}, {"image": "url"}]
//
// 按原顺序转换为文本块与图片块，其他类型的段跳过。content 不是数组时返回 nil。
func ParseParts(c gjson.Result) []llm.ContentBlock {
	if !c.IsArray() {
		return nil
	}
	var out []llm.ContentBlock
	c.ForEach(func(_, part gjson.Result) bool {
		if t := part.Get("text"); t.Exists() {
			out = append(out, &llm.TextBlock{Text: t.String()})
		}
		if img := part.Get("image"); img.Exists() {
			out = append(out, &llm.ImageBlock{URL: img.String()})
		}
		return true
	})
	return out
}

func partsText(parts []llm.ContentBlock) string {
	var text strings.Builder
	for _, p := range parts {
		if tb, ok := p.(*llm.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return text.String()
}

// ParseUsage 用量缺失时返回 nil
func ParseUsage(u gjson.Result) *llm.TokenUsage {
	if !u.IsObject() {
		return nil
	}
	usage := &llm.TokenUsage{
		InputTokens:  u.Get("input_tokens").Int(),
		OutputTokens: u.Get("output_tokens").Int(),
		TotalTokens:  u.Get("total_tokens").Int(),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	return usage
}

// ConvertFinishReason 中间 chunk 的 finish_reason 为字符串 "null"
func ConvertFinishReason(reason string) llm.FinishReason {
	if reason == "null" {
		return llm.FinishReasonAbsent
	}
	return openai.ConvertFinishReason(reason)
}

// ═══════════════════════════════════════════════════════════════════════════
// 模型目录与错误
// ═══════════════════════════════════════════════════════════════════════════

// Models DashScope 不提供模型列表接口，使用静态目录
var Models = []llm.ModelInfo{
	{ID: "qwen-turbo", DisplayName: "Qwen-Turbo", OwnedBy: "alibaba"},
	{ID: "qwen-plus", DisplayName: "Qwen-Plus", OwnedBy: "alibaba"},
	{ID: "qwen-max", DisplayName: "Qwen-Max", OwnedBy: "alibaba"},
	{ID: "qwen-max-longcontext", DisplayName: "Qwen-Max-LongContext", OwnedBy: "alibaba"},
	{ID: "qwen-vl-plus", DisplayName: "Qwen-VL-Plus", OwnedBy: "alibaba"},
}

// ErrorMatcher DashScope 错误体 {"code": "...", "message": "...", "request_id": "..."}
func ErrorMatcher() core.BodyMatcher {
	return core.CodeTable{
		CodePath:    "code",
		MessagePath: "message",
		Kinds: map[string]llm.ErrorKind{
			"Throttling":                 llm.KindRateLimit,
			"Throttling.RateQuota":       llm.KindRateLimit,
			"Throttling.AllocationQuota": llm.KindRateLimit,
			"Throttling.User":            llm.KindRateLimit,
			"InvalidApiKey":              llm.KindAuthorization,
			"AccessDenied":               llm.KindAuthorization,
			"AccessDenied.Unpurchased":   llm.KindAuthorization,
			"InvalidParameter":           llm.KindBadRequest,
			"DataInspectionFailed":       llm.KindBadRequest,
			"ModelNotFound":              llm.KindBadRequest,
			"InternalError":              llm.KindServerUnavailable,
			"InternalError.Algo":         llm.KindServerUnavailable,
		},
	}
}

// 确保 Adapter 实现了 ResponseNormalizer 接口
var _ core.ResponseNormalizer = (*Adapter)(nil)
