package core

import (
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 响应规范化接口
// ═══════════════════════════════════════════════════════════════════════════

// ResponseNormalizer 协议响应规范化接口
//
// 每个协议族（OpenAI 兼容、Anthropic、Gemini、DashScope、文心、MiniMax Pro）实现此接口，
// 把成功响应体转换为统一的 llm.Response。
//
// 职责边界：
//   - 负责：解析响应结构、保留类型化内容块、映射完成原因与用量
//   - 不负责：HTTP 通信、错误分类（由 ErrorMapper 完成）
//
// 约定：
//   - 纯文本内容同时写入 Message.Content 与单个 TextBlock
//   - 用量字段缺失时 Usage 为 nil，不填零
//   - 完成原因缺失时为 llm.FinishReasonAbsent
type ResponseNormalizer interface {
	ConvertFromAPI(body []byte) (*llm.Response, error)
}

// NormalizerFunc 函数形式的 ResponseNormalizer
type NormalizerFunc func(body []byte) (*llm.Response, error)

// ConvertFromAPI 实现 ResponseNormalizer 接口
func (f NormalizerFunc) ConvertFromAPI(body []byte) (*llm.Response, error) {
	return f(body)
}

// ═══════════════════════════════════════════════════════════════════════════
// 系统消息策略
// ═══════════════════════════════════════════════════════════════════════════

// SystemMessageStrategy 系统消息处理策略
//
// 定义系统提示（system prompt）如何传递给 API：
//   - SystemInline: 系统消息作为第一条普通消息（role=system）
//   - SystemSeparate: 系统消息作为独立的请求参数
type SystemMessageStrategy string

const (
	// SystemInline 系统消息内联在消息数组中
	//
	// 使用场景：OpenAI 兼容族、DashScope
	// 格式：[{"role": "system", "content": "..."}, ...]
	SystemInline SystemMessageStrategy = "inline"

	// SystemSeparate 系统消息作为独立参数
	//
	// 使用场景：Anthropic、Gemini、文心
	// 格式：{"system": "...", "messages": [...]}
	SystemSeparate SystemMessageStrategy = "separate"
)
