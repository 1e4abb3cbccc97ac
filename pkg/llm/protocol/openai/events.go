package openai

import (
	"encoding/json"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// OpenAI SSE 事件处理器
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler OpenAI 兼容流式事件处理器
//
// 流式格式：
//   - 无显式事件类型
//   - 数据结构：choices[i].delta
//   - 终止信号：data: [DONE]
//   - 用量：最后一个 chunk 的顶层 usage，Kimi 放在 choices[i].usage
//
// delta 结构：
//
//	{
//	  "choices": [{
//	    "delta": {
//	      "content": "...",                    // 文本增量
//	      "reasoning_content": "...",          // 推理内容
//	      "tool_calls": [{"index": 0, ...}]   // 工具调用增量
//	    },
//	    "finish_reason": "stop"
//	  }]
//	}
type EventHandler struct{}

// NewEventHandler 创建事件处理器
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// IsTerminal [DONE] 哨兵
func (h *EventHandler) IsTerminal(ev core.Event) bool {
	return ev.Data == "[DONE]"
}

// HandleEvent 处理单个 chunk
//
// 同一事件内依次产出推理、文本、工具调用增量，完成原因单独作为终止 chunk。
func (h *EventHandler) HandleEvent(ev core.Event) ([]*llm.StreamChunk, bool, error) {
	var resp goopenai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(ev.Data), &resp); err != nil {
		return nil, false, err
	}

	var (
		result []*llm.StreamChunk
		usage  *llm.TokenUsage
	)
	if resp.Usage != nil {
		usage = ConvertUsage(*resp.Usage)
	}

	for i, choice := range resp.Choices {
		prefix := fmt.Sprintf("choices.%d", i)

		if r := gjson.Get(ev.Data, prefix+".delta.reasoning_content").String(); r != "" {
			result = append(result, &llm.StreamChunk{Index: choice.Index, Reasoning: r})
		}
		if choice.Delta.Content != "" {
			result = append(result, &llm.StreamChunk{Index: choice.Index, Delta: choice.Delta.Content})
		}
		for j, tc := range choice.Delta.ToolCalls {
			idx := j
			if tc.Index != nil {
				idx = *tc.Index
			}
			result = append(result, &llm.StreamChunk{
				Index: choice.Index,
				ToolCall: &llm.ToolCallDelta{
					Index:          idx,
					ID:             tc.ID,
					Name:           tc.Function.Name,
					ArgumentsDelta: tc.Function.Arguments,
				},
			})
		}

		if u := gjson.Get(ev.Data, prefix+".usage"); usage == nil && u.IsObject() {
			var cu goopenai.Usage
			if err := json.Unmarshal([]byte(u.Raw), &cu); err == nil {
				usage = ConvertUsage(cu)
			}
		}

		if fr := ConvertFinishReason(string(choice.FinishReason)); fr != llm.FinishReasonAbsent {
			result = append(result, &llm.StreamChunk{Index: choice.Index, FinishReason: fr, Usage: usage})
			usage = nil
		}
	}

	// 用量单独到达（choices 为空的最后一个 chunk）
	if usage != nil {
		result = append(result, &llm.StreamChunk{Usage: usage})
	}

	return result, false, nil
}

// 确保 EventHandler 实现了 core.EventHandler 接口
var _ core.EventHandler = (*EventHandler)(nil)
