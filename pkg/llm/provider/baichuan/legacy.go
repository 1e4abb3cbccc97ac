package baichuan

import (
	"errors"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/protocol/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// 旧版 /chat 接口
// ═══════════════════════════════════════════════════════════════════════════
//
// 非 Baichuan2 系列模型走 /chat 与 /stream/chat：
//
//	{"code": 0, "msg": "success",
//	 "data": {"messages": [{"role": "assistant", "content": "...", "finish_reason": "stop"}]},
//	 "usage": {"prompt_tokens": 1, "answer_tokens": 2, "total_tokens": 3}}
//
// 流式响应每行一个同样结构的 JSON，content 为增量文本。

var errInvalidJSON = errors.New("baichuan: invalid JSON")

// legacyErrors 旧版接口的 code 字段
var legacyErrors = core.CodeTable{
	CodePath:    "code",
	MessagePath: "msg",
	Success:     []string{"0"},
	Kinds: map[string]llm.ErrorKind{
		"1":     llm.KindServerUnavailable,
		"10000": llm.KindBadRequest,
		"10100": llm.KindAuthorization,
		"10101": llm.KindAuthorization,
		"10102": llm.KindAuthorization,
		"10103": llm.KindBadRequest,
		"10104": llm.KindBadRequest,
		"10105": llm.KindAuthorization,
	},
}

// convertLegacy 旧版响应规范化
func convertLegacy(body []byte) (*llm.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, errInvalidJSON
	}
	root := gjson.ParseBytes(body)

	resp := &llm.Response{
		ID:    root.Get("data.id").String(),
		Usage: legacyUsage(root.Get("usage")),
	}
	for i, m := range root.Get("data.messages").Array() {
		resp.Choices = append(resp.Choices, llm.Choice{
			Index:        i,
			Message:      llm.NewTextMessage(llm.RoleAssistant, m.Get("content").String()),
			FinishReason: openai.ConvertFinishReason(m.Get("finish_reason").String()),
		})
	}
	return resp, nil
}

// legacyUsage answer_tokens 对应输出用量
func legacyUsage(u gjson.Result) *llm.TokenUsage {
	if !u.IsObject() {
		return nil
	}
	usage := &llm.TokenUsage{
		InputTokens:  u.Get("prompt_tokens").Int(),
		OutputTokens: u.Get("answer_tokens").Int(),
		TotalTokens:  u.Get("total_tokens").Int(),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	return usage
}

// legacyHandler 旧版 NDJSON 流处理器
//
// 没有哨兵，带 finish_reason 的记录即终止 chunk。
type legacyHandler struct{}

// IsTerminal 无哨兵
func (legacyHandler) IsTerminal(core.Event) bool { return false }

// HandleEvent 处理单行记录
func (legacyHandler) HandleEvent(ev core.Event) ([]*llm.StreamChunk, bool, error) {
	if !gjson.Valid(ev.Data) {
		return nil, false, errInvalidJSON
	}
	root := gjson.Parse(ev.Data)

	var (
		chunks []*llm.StreamChunk
		stop   bool
	)
	for i, m := range root.Get("data.messages").Array() {
		if text := m.Get("content").String(); text != "" {
			chunks = append(chunks, &llm.StreamChunk{Index: i, Delta: text})
		}
		if reason := openai.ConvertFinishReason(m.Get("finish_reason").String()); reason != llm.FinishReasonAbsent {
			chunks = append(chunks, &llm.StreamChunk{
				Index:        i,
				FinishReason: reason,
				Usage:        legacyUsage(root.Get("usage")),
			})
			stop = true
		}
	}
	return chunks, stop, nil
}

// 确保 legacyHandler 实现了 core.EventHandler 接口
var _ core.EventHandler = legacyHandler{}
