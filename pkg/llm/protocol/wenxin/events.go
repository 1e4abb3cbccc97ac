package wenxin

import (
	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// EventHandler 文心 SSE 事件处理器
//
// 每个 data: 都是完整 JSON，result 为增量文本；is_end 为 true 的事件之后流结束，
// 没有 [DONE] 哨兵。
type EventHandler struct{}

// NewEventHandler 创建事件处理器
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// IsTerminal 无哨兵
func (h *EventHandler) IsTerminal(core.Event) bool {
	return false
}

// HandleEvent 处理单个事件
func (h *EventHandler) HandleEvent(ev core.Event) ([]*llm.StreamChunk, bool, error) {
	if ev.Data == "" {
		return nil, false, nil
	}
	if !gjson.Valid(ev.Data) {
		return nil, false, errInvalidJSON
	}
	root := gjson.Parse(ev.Data)

	var result []*llm.StreamChunk
	if text := root.Get("result").String(); text != "" {
		result = append(result, &llm.StreamChunk{Delta: text})
	}

	fc := root.Get("function_call")
	if fc.IsObject() {
		result = append(result, &llm.StreamChunk{ToolCall: &llm.ToolCallDelta{
			ID:             root.Get("id").String(),
			Name:           fc.Get("name").String(),
			ArgumentsDelta: fc.Get("arguments").String(),
		}})
	}

	if !root.Get("is_end").Bool() {
		return result, false, nil
	}

	finish := ConvertFinishReason(root.Get("finish_reason").String())
	switch {
	case fc.IsObject():
		finish = llm.FinishReasonToolCalls
	case finish == llm.FinishReasonAbsent:
		finish = llm.FinishReasonStop
	}
	result = append(result, &llm.StreamChunk{
		FinishReason: finish,
		Usage:        ParseUsage(root.Get("usage")),
	})
	return result, true, nil
}

// 确保 EventHandler 实现了 core.EventHandler 接口
var _ core.EventHandler = (*EventHandler)(nil)
