package dashscope

import (
	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// EventHandler DashScope SSE 事件处理器
//
// 流式格式（incremental_output=true）：
//
//	id:1
//	event:result
//	:HTTP_STATUS/200
//	data:{"output":{"choices":[{"message":{"content":"你"},"finish_reason":"null"}]},"usage":{...}}
//
// 无哨兵，finish_reason 不为 "null" 的 chunk 为终止 chunk；usage 为累计值，只取终止 chunk 上的。
// 多模态模型的 content 为数组，文本段和图片段按顺序分别产生 Delta 与 Image chunk。
// 流内错误为 event:error，由 ErrorMatcher 识别。
type EventHandler struct{}

// NewEventHandler 创建事件处理器
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// IsTerminal 无终止哨兵
func (h *EventHandler) IsTerminal(core.Event) bool {
	return false
}

// HandleEvent 处理单个 result 事件
func (h *EventHandler) HandleEvent(ev core.Event) ([]*llm.StreamChunk, bool, error) {
	if ev.Data == "" {
		return nil, false, nil
	}
	if !gjson.Valid(ev.Data) {
		return nil, false, errInvalidJSON
	}
	root := gjson.Parse(ev.Data)

	var result []*llm.StreamChunk
	root.Get("output.choices").ForEach(func(key, c gjson.Result) bool {
		idx := int(key.Int())
		msg := c.Get("message")

		if r := msg.Get("reasoning_content").String(); r != "" {
			result = append(result, &llm.StreamChunk{Index: idx, Reasoning: r})
		}
		if content := msg.Get("content"); content.IsArray() {
			for _, part := range ParseParts(content) {
				switch p := part.(type) {
				case *llm.TextBlock:
					if p.Text != "" {
						result = append(result, &llm.StreamChunk{Index: idx, Delta: p.Text})
					}
				case *llm.ImageBlock:
					result = append(result, &llm.StreamChunk{Index: idx, Image: p})
				}
			}
		} else if text := content.String(); text != "" {
			result = append(result, &llm.StreamChunk{Index: idx, Delta: text})
		}
		for i, tc := range msg.Get("tool_calls").Array() {
			ti := i
			if v := tc.Get("index"); v.Exists() {
				ti = int(v.Int())
			}
			result = append(result, &llm.StreamChunk{
				Index: idx,
				ToolCall: &llm.ToolCallDelta{
					Index:          ti,
					ID:             tc.Get("id").String(),
					Name:           tc.Get("function.name").String(),
					ArgumentsDelta: tc.Get("function.arguments").String(),
				},
			})
		}

		if fr := ConvertFinishReason(c.Get("finish_reason").String()); fr != llm.FinishReasonAbsent {
			result = append(result, &llm.StreamChunk{
				Index:        idx,
				FinishReason: fr,
				Usage:        ParseUsage(root.Get("usage")),
			})
		}
		return true
	})

	return result, false, nil
}

// 确保 EventHandler 实现了 core.EventHandler 接口
var _ core.EventHandler = (*EventHandler)(nil)
