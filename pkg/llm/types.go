package llm

import "maps"

// ═══════════════════════════════════════════════════════════════════════════
// 生成选项
// ═══════════════════════════════════════════════════════════════════════════

// Options 生成选项
//
// 指针字段为 nil 表示未设置，由 Provider 使用其默认值。
type Options struct {
	// 基础配置
	System      string   `json:"system,omitempty" yaml:"system,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	// 采样参数
	TopP          *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	TopK          int      `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty" yaml:"stop_sequences,omitempty"`
	Seed          *int     `json:"seed,omitempty" yaml:"seed,omitempty"`

	// 结构化输出
	ResponseFormat *ResponseFormat `json:"response_format,omitempty" yaml:"response_format,omitempty"`

	// 工具
	Tools      []ToolSchema `json:"tools,omitempty" yaml:"tools,omitempty"`
	ToolChoice string       `json:"tool_choice,omitempty" yaml:"tool_choice,omitempty"` // "auto", "none", "required" 或工具名

	// Extra Provider 特定的透传参数，原样合并进请求体顶层
	Extra map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`

	// Proxy 单次调用的代理地址，覆盖 Client 默认值
	Proxy string `json:"-" yaml:"-"`
}

// Merge 以 o 为默认值，叠加 override 中已设置的字段
//
// 返回新对象，两个输入都不会被修改。
func (o *Options) Merge(override *Options) *Options {
	out := &Options{}
	if o != nil {
		*out = *o
		out.Extra = maps.Clone(o.Extra)
	}
	if override == nil {
		return out
	}
	if override.System != "" {
		out.System = override.System
	}
	if override.MaxTokens > 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.TopK > 0 {
		out.TopK = override.TopK
	}
	if len(override.StopSequences) > 0 {
		out.StopSequences = override.StopSequences
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if override.ResponseFormat != nil {
		out.ResponseFormat = override.ResponseFormat
	}
	if len(override.Tools) > 0 {
		out.Tools = override.Tools
	}
	if override.ToolChoice != "" {
		out.ToolChoice = override.ToolChoice
	}
	if len(override.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(override.Extra))
		}
		maps.Copy(out.Extra, override.Extra)
	}
	if override.Proxy != "" {
		out.Proxy = override.Proxy
	}
	return out
}

// Ptr 返回值的指针，用于设置可选字段
func Ptr[T any](v T) *T {
	return &v
}

// ResponseFormat 响应格式配置 (Structured Output)
type ResponseFormat struct {
	Type   string         `json:"type" yaml:"type"`                         // "json_schema", "json_object", "text"
	Name   string         `json:"name,omitempty" yaml:"name,omitempty"`     // Schema 名称
	Schema map[string]any `json:"schema,omitempty" yaml:"schema,omitempty"` // JSON Schema 定义
}

// ToolSchema 工具 Schema
type ToolSchema struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"input_schema" yaml:"input_schema"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 响应
// ═══════════════════════════════════════════════════════════════════════════

// FinishReason 完成原因
type FinishReason string

const (
	// FinishReasonAbsent Provider 未报告完成原因
	FinishReasonAbsent FinishReason = ""

	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// Choice 单个候选结果
type Choice struct {
	Index        int          `json:"index"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}

// Response 生成响应
//
// 成功时 Choices 非空。Usage 为 nil 表示 Provider 未报告用量，
// 与全零用量（已报告但为 0）相区分。
type Response struct {
	ID      string      `json:"id,omitempty"`
	Model   string      `json:"model,omitempty"` // 实际使用的模型
	Choices []Choice    `json:"choices"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// UsageReported Provider 是否报告了用量
func (r *Response) UsageReported() bool {
	return r.Usage != nil
}

// Message 返回第一个候选的消息
func (r *Response) Message() Message {
	if len(r.Choices) == 0 {
		return Message{}
	}
	return r.Choices[0].Message
}

// Content 返回第一个候选的文本
func (r *Response) Content() string {
	msg := r.Message()
	return msg.GetContent()
}

// FinishReason 返回第一个候选的完成原因
func (r *Response) FinishReason() FinishReason {
	if len(r.Choices) == 0 {
		return FinishReasonAbsent
	}
	return r.Choices[0].FinishReason
}

// TokenUsage Token 使用量
type TokenUsage struct {
	InputTokens     int64 `json:"input_tokens"`
	OutputTokens    int64 `json:"output_tokens"`
	TotalTokens     int64 `json:"total_tokens"`
	ReasoningTokens int64 `json:"reasoning_tokens,omitempty"` // 推理 tokens
	CachedTokens    int64 `json:"cached_tokens,omitempty"`    // Prompt Caching tokens
}
