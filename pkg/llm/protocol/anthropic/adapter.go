package anthropic

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// DefaultMaxTokens 未指定 max_tokens 时的默认值（Anthropic 必填）
const DefaultMaxTokens = 4096

// ═══════════════════════════════════════════════════════════════════════════
// Anthropic 协议适配器
// ═══════════════════════════════════════════════════════════════════════════

// Adapter Anthropic 协议适配器
//
// 关键协议差异：
//  1. 内容数组：使用 content 数组承载所有内容块
//  2. 工具参数：直接传递对象（无需序列化为 JSON 字符串）
//  3. 工具结果：内联在 content 数组中
//  4. 系统消息：独立的 system 参数（SystemSeparate）
//  5. Token 字段名：input_tokens, output_tokens（无 total_tokens）
type Adapter struct{}

// NewAdapter 创建 Anthropic 协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// GetSystemMessageHandling 系统消息作为独立参数
func (a *Adapter) GetSystemMessageHandling() core.SystemMessageStrategy {
	return core.SystemSeparate
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建
// ═══════════════════════════════════════════════════════════════════════════

// BuildRequest 构建 /v1/messages 请求体
func (a *Adapter) BuildRequest(model string, messages []llm.Message, opts *llm.Options, stream bool) map[string]any {
	if opts == nil {
		opts = &llm.Options{}
	}
	system, msgs := core.ApplySystem(a.GetSystemMessageHandling(), messages, opts)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	req := map[string]any{
		"model":      model,
		"messages":   a.ConvertToAPI(msgs),
		"max_tokens": maxTokens,
	}
	if stream {
		req["stream"] = true
	}
	if system != "" {
		req["system"] = system
	}
	if opts.Temperature != nil {
		req["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		req["top_p"] = *opts.TopP
	}
	if opts.TopK > 0 {
		req["top_k"] = opts.TopK
	}
	if len(opts.StopSequences) > 0 {
		req["stop_sequences"] = opts.StopSequences
	}
	if len(opts.Tools) > 0 {
		req["tools"] = ConvertTools(opts.Tools)
		if choice := convertToolChoice(opts.ToolChoice); choice != nil {
			req["tool_choice"] = choice
		}
	}
	return req
}

// BuildCountTokensRequest 构建 /v1/messages/count_tokens 请求体
func (a *Adapter) BuildCountTokensRequest(model string, messages []llm.Message) map[string]any {
	system, msgs := core.SplitSystem(messages, nil)
	req := map[string]any{
		"model":    model,
		"messages": a.ConvertToAPI(msgs),
	}
	if system != "" {
		req["system"] = system
	}
	return req
}

// ConvertToAPI 实现 Anthropic 特有的消息转换逻辑
//
// Anthropic 协议要求：
//   - 使用 content 数组承载所有内容块
//   - 工具参数直接传递对象（无需序列化为 JSON 字符串）
//   - ToolResult 内联在 content 数组中（不展开为独立消息）
//   - content 数组必须非空
func (a *Adapter) ConvertToAPI(messages []llm.Message) []map[string]any {
	result := make([]map[string]any, 0, len(messages))

	for _, msg := range messages {
		role := string(msg.Role)
		if msg.Role == llm.RoleTool {
			role = string(llm.RoleUser)
		}

		var content []map[string]any
		for _, block := range msg.Blocks() {
			switch b := block.(type) {
			case *llm.TextBlock:
				content = append(content, map[string]any{
					"type": "text",
					"text": b.Text,
				})

			case *llm.ImageBlock:
				content = append(content, map[string]any{
					"type":   "image",
					"source": imageSource(b),
				})

			case *llm.ToolCall:
				input := b.Input
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, map[string]any{
					"type":  "tool_use",
					"id":    b.ID,
					"name":  b.Name,
					"input": input,
				})

			case *llm.ToolResultBlock:
				tr := map[string]any{
					"type":        "tool_result",
					"tool_use_id": b.ToolUseID,
					"content":     b.Content,
				}
				if b.IsError {
					tr["is_error"] = true
				}
				content = append(content, tr)
			}
		}

		if len(content) > 0 {
			result = append(result, map[string]any{"role": role, "content": content})
		}
	}

	return result
}

func imageSource(b *llm.ImageBlock) map[string]any {
	if b.URL != "" {
		return map[string]any{"type": "url", "url": b.URL}
	}
	mediaType := b.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return map[string]any{
		"type":       "base64",
		"media_type": mediaType,
		"data":       base64.StdEncoding.EncodeToString(b.Data),
	}
}

// ConvertTools 工具 Schema 转换为 Anthropic 格式
func ConvertTools(tools []llm.ToolSchema) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		out = append(out, map[string]any{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": schema,
		})
	}
	return out
}

func convertToolChoice(choice string) map[string]any {
	switch choice {
	case "":
		return nil
	case "auto", "none":
		return map[string]any{"type": choice}
	case "required":
		return map[string]any{"type": "any"}
	default:
		return map[string]any{"type": "tool", "name": choice}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ConvertFromAPI - 解析 Anthropic 响应
// ═══════════════════════════════════════════════════════════════════════════

// ConvertFromAPI 解析 Anthropic 响应
//
// Anthropic 响应格式：
//
//	{
//	  "id": "msg_...",
//	  "content": [
//	    {"type": "text", "text": "..."},
//	    {"type": "tool_use", "id": "...", "name": "...", "input": {...}}
//	  ],
//	  "stop_reason": "end_turn",
//	  "usage": {"input_tokens": 10, "output_tokens": 5}
//	}
func (a *Adapter) ConvertFromAPI(body []byte) (*llm.Response, error) {
	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	msg := llm.Message{Role: llm.RoleAssistant}
	var (
		blocks    []llm.ContentBlock
		textCount int
	)

	contentArray, _ := resp["content"].([]any)
	for _, item := range contentArray {
		block := core.GetMap(item)
		if block == nil {
			continue
		}

		switch core.GetString(block["type"]) {
		case "text":
			text := core.GetString(block["text"])
			msg.Content += text
			textCount++
			blocks = append(blocks, &llm.TextBlock{Text: text})

		case "thinking":
			blocks = append(blocks, &llm.ThinkingBlock{Thinking: core.GetString(block["thinking"])})

		case "tool_use":
			input := core.GetMap(block["input"])
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, &llm.ToolCall{
				ID:    core.GetString(block["id"]),
				Name:  core.GetString(block["name"]),
				Input: input,
			})
		}
	}

	// 只有单个文本块时视为纯文本
	if len(blocks) > 1 || (len(blocks) == 1 && textCount == 0) {
		msg.ContentBlocks = blocks
	}

	return &llm.Response{
		ID:    core.GetString(resp["id"]),
		Model: core.GetString(resp["model"]),
		Choices: []llm.Choice{{
			Message:      msg,
			FinishReason: convertStopReason(core.GetString(resp["stop_reason"])),
		}},
		Usage: ConvertUsage(core.GetMap(resp["usage"])),
	}, nil
}

// ConvertUsage 解析 Anthropic 的 Token 使用量
//
// Anthropic 字段名：
//   - input_tokens, output_tokens（无 total_tokens）
//   - cache_read_input_tokens（Prompt Caching）
func ConvertUsage(usage map[string]any) *llm.TokenUsage {
	if usage == nil {
		return nil
	}

	result := &llm.TokenUsage{
		InputTokens:  core.GetInt64(usage["input_tokens"]),
		OutputTokens: core.GetInt64(usage["output_tokens"]),
	}
	result.TotalTokens = result.InputTokens + result.OutputTokens
	result.CachedTokens = core.GetInt64(usage["cache_read_input_tokens"])

	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// 模型与计数
// ═══════════════════════════════════════════════════════════════════════════

// ParseModelList 解析 /v1/models 响应
func ParseModelList(body []byte) []llm.ModelInfo {
	var out []llm.ModelInfo
	gjson.GetBytes(body, "data").ForEach(func(_, m gjson.Result) bool {
		out = append(out, parseModel(m))
		return true
	})
	return out
}

// ParseModel 解析 /v1/models/{id} 响应
func ParseModel(body []byte) *llm.ModelInfo {
	info := parseModel(gjson.ParseBytes(body))
	return &info
}

func parseModel(m gjson.Result) llm.ModelInfo {
	info := llm.ModelInfo{
		ID:          m.Get("id").String(),
		DisplayName: m.Get("display_name").String(),
		OwnedBy:     "anthropic",
	}
	if t, err := time.Parse(time.RFC3339, m.Get("created_at").String()); err == nil {
		info.Created = t.Unix()
	}
	return info
}

// ParseTokenCount 解析 count_tokens 响应
func ParseTokenCount(body []byte) (llm.TokenCount, bool) {
	n := gjson.GetBytes(body, "input_tokens")
	if !n.Exists() {
		return llm.TokenCount{}, false
	}
	return llm.TokenCount{Tokens: n.Int(), Mode: llm.TokenCountExact}, true
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误识别
// ═══════════════════════════════════════════════════════════════════════════

// ErrorMatcher Anthropic 错误体 {"type":"error","error":{"type":...,"message":...}}
//
// 流内 event: error 的数据使用同一结构。
func ErrorMatcher() core.BodyMatcher {
	return core.CodeTable{
		CodePath:    "error.type",
		MessagePath: "error.message",
		Kinds: map[string]llm.ErrorKind{
			"invalid_request_error": llm.KindBadRequest,
			"not_found_error":       llm.KindBadRequest,
			"request_too_large":     llm.KindBadRequest,
			"authentication_error":  llm.KindAuthorization,
			"permission_error":      llm.KindAuthorization,
			"rate_limit_error":      llm.KindRateLimit,
			"api_error":             llm.KindServerUnavailable,
			"overloaded_error":      llm.KindServerUnavailable,
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// convertStopReason 转换 Anthropic stop_reason
//
// Anthropic 映射：
//   - end_turn       -> stop
//   - max_tokens     -> length
//   - tool_use       -> tool_calls
//   - stop_sequence  -> stop
//   - refusal        -> content_filter
func convertStopReason(stopReason string) llm.FinishReason {
	switch stopReason {
	case "":
		return llm.FinishReasonAbsent
	case "end_turn", "stop_sequence", "pause_turn":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	case "refusal":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReason(stopReason)
	}
}

// 确保 Adapter 实现了 ResponseNormalizer 接口
var _ core.ResponseNormalizer = (*Adapter)(nil)
