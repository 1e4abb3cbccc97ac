package minimax

import (
	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// ProEventHandler chatcompletion_pro 流式事件处理器
//
// 中间 chunk 的 choices[i].messages[0].text 为增量文本；
// 最后一个 chunk 带 finish_reason、usage 和完整的 reply，其中的 messages 重复全文，不再作为增量输出。
type ProEventHandler struct{}

// NewProEventHandler 创建事件处理器
func NewProEventHandler() *ProEventHandler {
	return &ProEventHandler{}
}

// IsTerminal 兼容 [DONE] 哨兵
func (h *ProEventHandler) IsTerminal(ev core.Event) bool {
	return ev.Data == "[DONE]"
}

// HandleEvent 处理单个 chunk
func (h *ProEventHandler) HandleEvent(ev core.Event) ([]*llm.StreamChunk, bool, error) {
	if ev.Data == "" {
		return nil, false, nil
	}
	if !gjson.Valid(ev.Data) {
		return nil, false, errInvalidJSON
	}
	root := gjson.Parse(ev.Data)
	summary := root.Get("reply").String() != ""

	var result []*llm.StreamChunk
	root.Get("choices").ForEach(func(key, c gjson.Result) bool {
		idx := int(key.Int())
		fr := ConvertFinishReason(c.Get("finish_reason").String())

		for _, m := range c.Get("messages").Array() {
			if fc := m.Get("function_call"); fc.IsObject() {
				result = append(result, &llm.StreamChunk{Index: idx, ToolCall: &llm.ToolCallDelta{
					ID:             root.Get("id").String(),
					Name:           fc.Get("name").String(),
					ArgumentsDelta: fc.Get("arguments").String(),
				}})
				continue
			}
			if summary && fr != llm.FinishReasonAbsent {
				continue
			}
			if text := m.Get("text").String(); text != "" {
				result = append(result, &llm.StreamChunk{Index: idx, Delta: text})
			}
		}

		if fr != llm.FinishReasonAbsent {
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

// 确保 ProEventHandler 实现了 core.EventHandler 接口
var _ core.EventHandler = (*ProEventHandler)(nil)
