package core

import (
	"net/http"
	"strings"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 消息转换器
// ═══════════════════════════════════════════════════════════════════════════

// Transformer 消息转换器
//
// 编排请求侧的系统消息处理与响应侧的规范化，协议差异委托给 ResponseNormalizer。
//
// 使用示例：
//
//	transformer := core.NewTransformer(openai.NewAdapter(), mapper)
//
//	// 拆分系统提示
//	system, msgs := core.SplitSystem(messages, opts)
//
//	// 解析 API 响应
//	resp, err := transformer.ParseResponse(body)
type Transformer struct {
	normalizer ResponseNormalizer
	mapper     *ErrorMapper
}

// NewTransformer 创建消息转换器
func NewTransformer(normalizer ResponseNormalizer, mapper *ErrorMapper) *Transformer {
	return &Transformer{normalizer: normalizer, mapper: mapper}
}

// ParseResponse 解析成功响应体
//
// 规范化失败或没有任何候选结果时返回 KindUnknown 错误，不返回部分结果。
func (t *Transformer) ParseResponse(body []byte) (*llm.Response, error) {
	resp, err := t.normalizer.ConvertFromAPI(body)
	if err != nil {
		return nil, t.mapper.Decode(http.StatusOK, body, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		e := t.mapper.Decode(http.StatusOK, body, nil)
		e.Message = "response contains no choices"
		return nil, e
	}
	return resp, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 系统消息
// ═══════════════════════════════════════════════════════════════════════════

// SplitSystem 拆分系统提示与对话消息
//
// 系统提示由 opts.System 与消息中所有 system 角色消息的文本按顺序拼接，
// 返回的消息切片不包含 system 角色。
func SplitSystem(messages []llm.Message, opts *llm.Options) (string, []llm.Message) {
	var parts []string
	if opts != nil && opts.System != "" {
		parts = append(parts, opts.System)
	}

	rest := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			if text := msg.GetContent(); text != "" {
				parts = append(parts, text)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(parts, "\n\n"), rest
}

// ApplySystem 按策略处理系统提示
//
// SystemInline 时系统提示作为第一条消息返回，system 为空；
// SystemSeparate 时原样返回拆分结果。
func ApplySystem(strategy SystemMessageStrategy, messages []llm.Message, opts *llm.Options) (string, []llm.Message) {
	system, rest := SplitSystem(messages, opts)
	if strategy == SystemInline && system != "" {
		return "", append([]llm.Message{llm.NewTextMessage(llm.RoleSystem, system)}, rest...)
	}
	return system, rest
}
