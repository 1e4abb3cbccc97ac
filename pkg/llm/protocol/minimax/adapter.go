// Package minimax 实现 MiniMax chatcompletion_pro 协议与 MiniMax 专有资源接口
//
// chatcompletion_v2 与 OpenAI 兼容，直接使用 protocol/openai；本包处理：
//   - chatcompletion_pro 的 sender_type/bot_setting 消息结构
//   - base_resp 业务错误（HTTP 200 返回）
//   - embeddings、图像生成与文件接口的响应
package minimax

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/protocol/openai"
)

var errInvalidJSON = errors.New("minimax: invalid JSON")

// 默认机器人设定，bot_setting 与 reply_constraints 必须一致
const (
	DefaultBotName    = "MM智能助理"
	DefaultBotContent = "MM智能助理是一款由MiniMax自研的大型语言模型。"
	DefaultUserName   = "用户"
)

// sender_type 取值
const (
	senderUser     = "USER"
	senderBot      = "BOT"
	senderFunction = "FUNCTION"
)

// ProAdapter chatcompletion_pro 协议适配器
type ProAdapter struct{}

// NewProAdapter 创建适配器
func NewProAdapter() *ProAdapter {
	return &ProAdapter{}
}

// GetSystemMessageHandling 系统提示写入 bot_setting
func (a *ProAdapter) GetSystemMessageHandling() core.SystemMessageStrategy {
	return core.SystemSeparate
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建
// ═══════════════════════════════════════════════════════════════════════════

// BuildRequest 构建 chatcompletion_pro 请求体
func (a *ProAdapter) BuildRequest(model string, messages []llm.Message, opts *llm.Options, stream bool) map[string]any {
	if opts == nil {
		opts = &llm.Options{}
	}
	system, msgs := core.ApplySystem(a.GetSystemMessageHandling(), messages, opts)
	if system == "" {
		system = DefaultBotContent
	}

	req := map[string]any{
		"model":    model,
		"messages": a.ConvertToAPI(msgs),
		"bot_setting": []map[string]any{{
			"bot_name": DefaultBotName,
			"content":  system,
		}},
		"reply_constraints": map[string]any{
			"sender_type": senderBot,
			"sender_name": DefaultBotName,
		},
	}
	if stream {
		req["stream"] = true
	}
	if opts.MaxTokens > 0 {
		req["tokens_to_generate"] = opts.MaxTokens
	}
	if opts.Temperature != nil {
		req["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		req["top_p"] = *opts.TopP
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
	return req
}

// ConvertToAPI 转换消息
func (a *ProAdapter) ConvertToAPI(messages []llm.Message) []map[string]any {
	names := map[string]string{}
	result := make([]map[string]any, 0, len(messages))

	for _, msg := range messages {
		if msg.HasToolResults() {
			for _, tr := range msg.GetToolResults() {
				result = append(result, map[string]any{
					"sender_type": senderFunction,
					"sender_name": names[tr.ToolUseID],
					"text":        tr.Content,
				})
			}
			continue
		}

		m := map[string]any{"text": msg.GetContent()}
		if msg.Role == llm.RoleAssistant {
			m["sender_type"] = senderBot
			m["sender_name"] = DefaultBotName
		} else {
			m["sender_type"] = senderUser
			m["sender_name"] = DefaultUserName
		}
		if calls := msg.GetToolCalls(); len(calls) > 0 {
			tc := calls[0]
			names[tc.ID] = tc.Name
			args, _ := json.Marshal(tc.Input)
			m["function_call"] = map[string]any{"name": tc.Name, "arguments": string(args)}
		}
		result = append(result, m)
	}
	return result
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应解析
// ═══════════════════════════════════════════════════════════════════════════

// ConvertFromAPI 解析 chatcompletion_pro 响应
//
//	{
//	  "id": "...", "model": "abab5.5-chat", "reply": "...",
//	  "choices": [{"finish_reason": "stop", "messages": [{"sender_type": "BOT", "text": "..."}]}],
//	  "usage": {"total_tokens": 80},
//	  "base_resp": {"status_code": 0, "status_msg": "success"}
//	}
func (a *ProAdapter) ConvertFromAPI(body []byte) (*llm.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidJSON
	}
	root := gjson.ParseBytes(body)
	out := &llm.Response{
		ID:    root.Get("id").String(),
		Model: root.Get("model").String(),
	}

	root.Get("choices").ForEach(func(key, c gjson.Result) bool {
		msgs := c.Get("messages").Array()
		var last gjson.Result
		if len(msgs) > 0 {
			last = msgs[len(msgs)-1]
		}
		out.Choices = append(out.Choices, llm.Choice{
			Index:        int(key.Int()),
			Message:      parseMessage(last, out.ID),
			FinishReason: ConvertFinishReason(c.Get("finish_reason").String()),
		})
		return true
	})

	if len(out.Choices) == 0 && root.Get("reply").String() != "" {
		out.Choices = append(out.Choices, llm.Choice{
			Message:      llm.NewTextMessage(llm.RoleAssistant, root.Get("reply").String()),
			FinishReason: llm.FinishReasonStop,
		})
	}

	out.Usage = ParseUsage(root.Get("usage"))
	return out, nil
}

func parseMessage(m gjson.Result, id string) llm.Message {
	msg := llm.NewTextMessage(llm.RoleAssistant, m.Get("text").String())
	fc := m.Get("function_call")
	if !fc.IsObject() {
		return msg
	}
	var blocks []llm.ContentBlock
	if msg.Content != "" {
		blocks = append(blocks, &llm.TextBlock{Text: msg.Content})
	}
	blocks = append(blocks, &llm.ToolCall{
		ID:    id,
		Name:  fc.Get("name").String(),
		Input: llm.ParseToolArguments(fc.Get("arguments").String()),
	})
	msg.ContentBlocks = blocks
	return msg
}

// ParseUsage pro 协议只返回 total_tokens
func ParseUsage(u gjson.Result) *llm.TokenUsage {
	if !u.IsObject() {
		return nil
	}
	usage := &llm.TokenUsage{
		InputTokens:  u.Get("prompt_tokens").Int(),
		OutputTokens: u.Get("completion_tokens").Int(),
		TotalTokens:  u.Get("total_tokens").Int(),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	return usage
}

// ConvertFinishReason max_output 为 pro 协议的长度截断
func ConvertFinishReason(reason string) llm.FinishReason {
	if reason == "max_output" {
		return llm.FinishReasonLength
	}
	return openai.ConvertFinishReason(reason)
}

// 确保 ProAdapter 实现了 ResponseNormalizer 接口
var _ core.ResponseNormalizer = (*ProAdapter)(nil)
