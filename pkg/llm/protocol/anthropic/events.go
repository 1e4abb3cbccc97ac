package anthropic

import (
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// Anthropic SSE 事件处理器
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler Anthropic SSE 事件处理器
//
// Anthropic 流式格式：
//   - 有显式事件类型（event: message_start, content_block_delta 等）
//   - 根据事件类型处理不同的数据结构
//   - message_stop 事件为终止哨兵
//   - event: error 由 ErrorMatcher 识别
//
// 事件类型：
//   - message_start:        消息开始（携带输入 token 数）
//   - content_block_start:  内容块开始（包含工具调用初始化）
//   - content_block_delta:  内容块增量（文本、工具参数、推理）
//   - content_block_stop:   内容块结束
//   - message_delta:        消息元数据增量（stop_reason 与输出 token 数）
//   - message_stop:         消息结束
//   - ping:                 心跳
//
// 处理器保存 message_start 中的用量，每个流使用独立实例。
type EventHandler struct {
	usage *llm.TokenUsage
}

// NewEventHandler 创建 Anthropic 事件处理器
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// IsTerminal message_stop 为终止哨兵
func (h *EventHandler) IsTerminal(ev core.Event) bool {
	return ev.Name == "message_stop"
}

// HandleEvent 处理 Anthropic 流式事件
func (h *EventHandler) HandleEvent(ev core.Event) ([]*llm.StreamChunk, bool, error) {
	switch ev.Name {
	case "ping", "content_block_stop", "":
		return nil, false, nil
	}

	data, err := ev.JSON()
	if err != nil {
		return nil, false, err
	}

	var result []*llm.StreamChunk

	switch ev.Name {
	case "message_start":
		if msg := core.GetMap(data["message"]); msg != nil {
			h.usage = ConvertUsage(core.GetMap(msg["usage"]))
		}

	case "content_block_start":
		block := core.GetMap(data["content_block"])
		if core.GetString(block["type"]) == "tool_use" {
			result = append(result, &llm.StreamChunk{
				ToolCall: &llm.ToolCallDelta{
					Index: int(core.GetFloat64(data["index"])),
					ID:    core.GetString(block["id"]),
					Name:  core.GetString(block["name"]),
				},
			})
		}

	case "content_block_delta":
		delta := core.GetMap(data["delta"])
		switch core.GetString(delta["type"]) {
		case "text_delta":
			if text := core.GetString(delta["text"]); text != "" {
				result = append(result, &llm.StreamChunk{Delta: text})
			}

		case "input_json_delta":
			if partial := core.GetString(delta["partial_json"]); partial != "" {
				result = append(result, &llm.StreamChunk{
					ToolCall: &llm.ToolCallDelta{
						Index:          int(core.GetFloat64(data["index"])),
						ArgumentsDelta: partial,
					},
				})
			}

		case "thinking_delta":
			if thinking := core.GetString(delta["thinking"]); thinking != "" {
				result = append(result, &llm.StreamChunk{Reasoning: thinking})
			}
		}

	case "message_delta":
		usage := h.mergeUsage(core.GetMap(data["usage"]))
		delta := core.GetMap(data["delta"])
		if fr := convertStopReason(core.GetString(delta["stop_reason"])); fr != llm.FinishReasonAbsent {
			result = append(result, &llm.StreamChunk{FinishReason: fr, Usage: usage})
		} else if usage != nil {
			result = append(result, &llm.StreamChunk{Usage: usage})
		}
	}

	return result, false, nil
}

// mergeUsage 合并 message_start 的输入用量与 message_delta 的输出用量
func (h *EventHandler) mergeUsage(delta map[string]any) *llm.TokenUsage {
	if delta == nil {
		return h.usage
	}
	u := llm.TokenUsage{}
	if h.usage != nil {
		u = *h.usage
	}
	if v, ok := delta["input_tokens"]; ok {
		u.InputTokens = core.GetInt64(v)
	}
	u.OutputTokens = core.GetInt64(delta["output_tokens"])
	u.TotalTokens = u.InputTokens + u.OutputTokens
	return &u
}

// 确保 EventHandler 实现了 core.EventHandler 接口
var _ core.EventHandler = (*EventHandler)(nil)
