package gemini

import (
	"encoding/json"

	"google.golang.org/genai"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// Gemini SSE 事件处理器
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler Gemini SSE 事件处理器（streamGenerateContent?alt=sse）
//
// Gemini 流式格式：
//   - 每个 data: 为一个完整的 GenerateContentResponse
//   - 无 [DONE] 哨兵，finishReason 所在 chunk 为终止 chunk，随后连接关闭
//   - usageMetadata 是累计值，只取终止 chunk 上的
//   - 工具调用整体到达，index 在每个候选内按出现顺序递增
//   - 多个候选（candidateCount > 1）按候选的 index 分别产出 chunk
//
// 每个流使用独立实例。
type EventHandler struct {
	toolIndex map[int]int
}

// NewEventHandler 创建 Gemini 事件处理器
func NewEventHandler() *EventHandler {
	return &EventHandler{toolIndex: map[int]int{}}
}

// IsTerminal Gemini 无终止哨兵
func (h *EventHandler) IsTerminal(core.Event) bool {
	return false
}

// HandleEvent 处理 Gemini 流式事件
func (h *EventHandler) HandleEvent(ev core.Event) ([]*llm.StreamChunk, bool, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal([]byte(ev.Data), &resp); err != nil {
		return nil, false, err
	}

	var result []*llm.StreamChunk
	if len(resp.Candidates) == 0 {
		if usage := ConvertUsage(resp.UsageMetadata); usage != nil {
			result = append(result, &llm.StreamChunk{Usage: usage})
		}
		return result, false, nil
	}

	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}
		chunks, err := h.candidate(c, resp.UsageMetadata)
		if err != nil {
			return nil, false, err
		}
		result = append(result, chunks...)
	}
	return result, false, nil
}

// candidate 处理单个候选
func (h *EventHandler) candidate(c *genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) ([]*llm.StreamChunk, error) {
	idx := int(c.Index)

	var result []*llm.StreamChunk
	if c.Content != nil {
		for _, part := range c.Content.Parts {
			if part == nil {
				continue
			}
			switch {
			case part.FunctionCall != nil:
				args, err := encodeArgs(part.FunctionCall.Args)
				if err != nil {
					return nil, err
				}
				result = append(result, &llm.StreamChunk{
					Index: idx,
					ToolCall: &llm.ToolCallDelta{
						Index:          h.toolIndex[idx],
						ID:             toolCallID(part.FunctionCall.ID),
						Name:           part.FunctionCall.Name,
						ArgumentsDelta: args,
					},
				})
				h.toolIndex[idx]++
			case part.Thought && part.Text != "":
				result = append(result, &llm.StreamChunk{Index: idx, Reasoning: part.Text})
			case part.Text != "":
				result = append(result, &llm.StreamChunk{Index: idx, Delta: part.Text})
			}
		}
	}

	if fr := mapFinishReason(string(c.FinishReason)); fr != llm.FinishReasonAbsent {
		if h.toolIndex[idx] > 0 && fr == llm.FinishReasonStop {
			fr = llm.FinishReasonToolCalls
		}
		result = append(result, &llm.StreamChunk{
			Index:        idx,
			FinishReason: fr,
			Usage:        ConvertUsage(usage),
		})
	}
	return result, nil
}

// encodeArgs 函数调用参数序列化为 JSON，nil 为 "{}"
func encodeArgs(args map[string]any) (string, error) {
	if args == nil {
		return "{}", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// 确保 EventHandler 实现了 core.EventHandler 接口
var _ core.EventHandler = (*EventHandler)(nil)
