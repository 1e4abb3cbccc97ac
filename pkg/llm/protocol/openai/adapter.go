package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// OpenAI 兼容协议适配器
// ═══════════════════════════════════════════════════════════════════════════

// Adapter OpenAI 兼容协议适配器
//
// Kimi、豆包、百川（Baichuan2 系列）、MiniMax v2 共用此协议族，
// 线上结构使用 go-openai 的 DTO。
//
// 关键协议差异：
//  1. 工具参数：必须序列化为 JSON 字符串
//  2. 工具结果：必须展开为独立的 tool 角色消息
//  3. 系统消息：内联在消息数组中
//  4. Token 字段名：prompt_tokens, completion_tokens
type Adapter struct{}

// NewAdapter 创建 OpenAI 兼容协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// GetSystemMessageHandling 系统消息内联
func (a *Adapter) GetSystemMessageHandling() core.SystemMessageStrategy {
	return core.SystemInline
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建
// ═══════════════════════════════════════════════════════════════════════════

// BuildChatRequest 构建 chat/completions 请求
//
// 返回的 extra 需要合并进请求体顶层（go-openai 无法表达的字段与 opts.Extra）。
func (a *Adapter) BuildChatRequest(model string, messages []llm.Message, opts *llm.Options, stream bool) (goopenai.ChatCompletionRequest, map[string]any) {
	if opts == nil {
		opts = &llm.Options{}
	}
	_, msgs := core.ApplySystem(a.GetSystemMessageHandling(), messages, opts)

	req := goopenai.ChatCompletionRequest{
		Model:     model,
		Messages:  a.ConvertToAPI(msgs),
		MaxTokens: opts.MaxTokens,
		Stop:      opts.StopSequences,
		Seed:      opts.Seed,
		Stream:    stream,
	}

	extra := map[string]any{}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
		if *opts.Temperature == 0 {
			// 零值会被 omitempty 丢弃
			extra["temperature"] = 0
		}
	}
	if opts.TopP != nil {
		req.TopP = float32(*opts.TopP)
	}
	if opts.TopK > 0 {
		extra["top_k"] = opts.TopK
	}
	if stream {
		req.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}
	}

	if len(opts.Tools) > 0 {
		req.Tools = ConvertTools(opts.Tools)
		if choice := convertToolChoice(opts.ToolChoice); choice != nil {
			req.ToolChoice = choice
		}
	}
	if rf := opts.ResponseFormat; rf != nil {
		req.ResponseFormat = convertResponseFormat(rf)
	}

	for k, v := range opts.Extra {
		extra[k] = v
	}
	return req, extra
}

// ConvertToAPI 将统一的 Message 转换为 OpenAI 消息
//
// OpenAI 协议要求：
//   - ToolResult 必须展开为独立的 tool 角色消息
//   - 工具调用参数必须序列化为 JSON 字符串
//   - 含图像的消息使用 MultiContent，块顺序保持不变
func (a *Adapter) ConvertToAPI(messages []llm.Message) []goopenai.ChatCompletionMessage {
	result := make([]goopenai.ChatCompletionMessage, 0, len(messages))

	for _, msg := range messages {
		if msg.HasToolResults() {
			for _, tr := range msg.GetToolResults() {
				result = append(result, goopenai.ChatCompletionMessage{
					Role:       goopenai.ChatMessageRoleTool,
					ToolCallID: tr.ToolUseID,
					Content:    tr.Content,
				})
			}
			continue
		}

		m := goopenai.ChatCompletionMessage{Role: string(msg.Role)}

		if msg.HasImages() {
			m.MultiContent = convertParts(msg.ContentBlocks)
		} else {
			m.Content = msg.GetContent()
		}

		if msg.Role == llm.RoleAssistant {
			m.ToolCalls = convertToolCalls(msg.GetToolCalls())
		}

		result = append(result, m)
	}

	return result
}

func convertParts(blocks []llm.ContentBlock) []goopenai.ChatMessagePart {
	parts := make([]goopenai.ChatMessagePart, 0, len(blocks))
	for _, block := range blocks {
		switch b := block.(type) {
		case *llm.TextBlock:
			parts = append(parts, goopenai.ChatMessagePart{
				Type: goopenai.ChatMessagePartTypeText,
				Text: b.Text,
			})
		case *llm.ImageBlock:
			parts = append(parts, goopenai.ChatMessagePart{
				Type:     goopenai.ChatMessagePartTypeImageURL,
				ImageURL: &goopenai.ChatMessageImageURL{URL: ImageURL(b)},
			})
		}
	}
	return parts
}

// ImageURL 图像块的 URL，内联数据编码为 data URL
func ImageURL(b *llm.ImageBlock) string {
	if b.URL != "" {
		return b.URL
	}
	mediaType := b.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(b.Data))
}

// imageBlock ImageURL 的逆转换，base64 data URL 解码为内联数据
func imageBlock(url string) *llm.ImageBlock {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return &llm.ImageBlock{URL: url}
	}
	mediaType, data, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return &llm.ImageBlock{URL: url}
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return &llm.ImageBlock{URL: url}
	}
	return &llm.ImageBlock{MediaType: mediaType, Data: raw}
}

// convertToolCalls 工具参数序列化为 JSON 字符串
func convertToolCalls(calls []*llm.ToolCall) []goopenai.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]goopenai.ToolCall, 0, len(calls))
	for _, tc := range calls {
		args := "{}"
		if tc.Input != nil {
			if b, err := json.Marshal(tc.Input); err == nil {
				args = string(b)
			}
		}
		out = append(out, goopenai.ToolCall{
			ID:   tc.ID,
			Type: goopenai.ToolTypeFunction,
			Function: goopenai.FunctionCall{
				Name:      tc.Name,
				Arguments: args,
			},
		})
	}
	return out
}

// ConvertTools 工具 Schema 转换为 function 工具
func ConvertTools(tools []llm.ToolSchema) []goopenai.Tool {
	out := make([]goopenai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

func convertToolChoice(choice string) any {
	switch choice {
	case "":
		return nil
	case "auto", "none", "required":
		return choice
	default:
		return goopenai.ToolChoice{
			Type:     goopenai.ToolTypeFunction,
			Function: goopenai.ToolFunction{Name: choice},
		}
	}
}

func convertResponseFormat(rf *llm.ResponseFormat) *goopenai.ChatCompletionResponseFormat {
	out := &goopenai.ChatCompletionResponseFormat{
		Type: goopenai.ChatCompletionResponseFormatType(rf.Type),
	}
	if rf.Type == "json_schema" && rf.Schema != nil {
		schema, _ := json.Marshal(rf.Schema)
		out.JSONSchema = &goopenai.ChatCompletionResponseFormatJSONSchema{
			Name:   rf.Name,
			Schema: json.RawMessage(schema),
		}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// ConvertFromAPI - 解析响应
// ═══════════════════════════════════════════════════════════════════════════

// ConvertFromAPI 解析 chat/completions 响应
//
// 响应格式：
//
//	{
//	  "choices": [{
//	    "message": {
//	      "content": "...",
//	      "reasoning_content": "...",
//	      "tool_calls": [{"function": {"arguments": "{...}"}}]
//	    },
//	    "finish_reason": "stop"
//	  }],
//	  "usage": {...}
//	}
func (a *Adapter) ConvertFromAPI(body []byte) (*llm.Response, error) {
	var resp goopenai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	out := &llm.Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: make([]llm.Choice, 0, len(resp.Choices)),
	}

	for i, c := range resp.Choices {
		reasoning := gjson.GetBytes(body, fmt.Sprintf("choices.%d.message.reasoning_content", i)).String()
		out.Choices = append(out.Choices, llm.Choice{
			Index:        c.Index,
			Message:      convertMessage(c.Message, reasoning),
			FinishReason: ConvertFinishReason(string(c.FinishReason)),
		})
	}

	if u := gjson.GetBytes(body, "usage"); u.IsObject() {
		out.Usage = ConvertUsage(resp.Usage)
	}
	return out, nil
}

// convertMessage 纯文本只填 Content；含推理、工具调用或分段内容时使用 ContentBlocks
//
// 分段内容（content 为数组）按原顺序转换为文本块和图片块，Content 为文本段拼接。
func convertMessage(m goopenai.ChatCompletionMessage, reasoning string) llm.Message {
	msg := llm.Message{Role: llm.RoleAssistant, Content: m.Content}
	parts := convertResponseParts(m.MultiContent)
	if len(parts) > 0 {
		var text strings.Builder
		for _, p := range parts {
			if tb, ok := p.(*llm.TextBlock); ok {
				text.WriteString(tb.Text)
			}
		}
		msg.Content = text.String()
	}
	if len(m.ToolCalls) == 0 && reasoning == "" && len(parts) == 0 {
		return msg
	}

	var blocks []llm.ContentBlock
	if reasoning != "" {
		blocks = append(blocks, &llm.ThinkingBlock{Thinking: reasoning})
	}
	switch {
	case len(parts) > 0:
		blocks = append(blocks, parts...)
	case m.Content != "":
		blocks = append(blocks, &llm.TextBlock{Text: m.Content})
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, &llm.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: llm.ParseToolArguments(tc.Function.Arguments),
		})
	}
	msg.ContentBlocks = blocks
	return msg
}

// convertResponseParts 响应中的分段内容，未知类型跳过
func convertResponseParts(parts []goopenai.ChatMessagePart) []llm.ContentBlock {
	var out []llm.ContentBlock
	for _, p := range parts {
		switch p.Type {
		case goopenai.ChatMessagePartTypeText:
			out = append(out, &llm.TextBlock{Text: p.Text})
		case goopenai.ChatMessagePartTypeImageURL:
			if p.ImageURL != nil {
				out = append(out, imageBlock(p.ImageURL.URL))
			}
		}
	}
	return out
}

// ConvertUsage 映射 OpenAI 用量字段
func ConvertUsage(u goopenai.Usage) *llm.TokenUsage {
	usage := &llm.TokenUsage{
		InputTokens:  int64(u.PromptTokens),
		OutputTokens: int64(u.CompletionTokens),
		TotalTokens:  int64(u.TotalTokens),
	}
	if u.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	if d := u.CompletionTokensDetails; d != nil {
		usage.ReasoningTokens = int64(d.ReasoningTokens)
	}
	if d := u.PromptTokensDetails; d != nil {
		usage.CachedTokens = int64(d.CachedTokens)
	}
	return usage
}

// ConvertFinishReason 映射完成原因
//
// 未知的非空值原样保留。
func ConvertFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "":
		return llm.FinishReasonAbsent
	case "stop", "eos":
		return llm.FinishReasonStop
	case "length", "max_tokens":
		return llm.FinishReasonLength
	case "tool_calls", "function_call":
		return llm.FinishReasonToolCalls
	case "content_filter", "sensitive":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReason(reason)
	}
}

// 确保 Adapter 实现了 ResponseNormalizer 接口
var _ core.ResponseNormalizer = (*Adapter)(nil)
