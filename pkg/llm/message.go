package llm

// ═══════════════════════════════════════════════════════════════════════════
// 角色定义
// ═══════════════════════════════════════════════════════════════════════════

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ═══════════════════════════════════════════════════════════════════════════
// 消息结构
// ═══════════════════════════════════════════════════════════════════════════

// Message 对话消息
//
// 纯文本消息只设置 Content；多模态或工具消息使用 ContentBlocks，
// 块的顺序与类型在各 Provider 之间原样保留，不会被压平成文本。
type Message struct {
	Role          Role           `json:"role"`
	Content       string         `json:"content,omitempty"`
	ContentBlocks []ContentBlock `json:"content_blocks,omitempty"`
}

// NewTextMessage 创建纯文本消息
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// Blocks 返回消息的内容块
//
// 纯文本消息返回单个 TextBlock。
func (m *Message) Blocks() []ContentBlock {
	if len(m.ContentBlocks) > 0 {
		return m.ContentBlocks
	}
	if m.Content != "" {
		return []ContentBlock{&TextBlock{Text: m.Content}}
	}
	return nil
}

// HasImages 检查消息是否包含图像
func (m *Message) HasImages() bool {
	for _, block := range m.ContentBlocks {
		if _, ok := block.(*ImageBlock); ok {
			return true
		}
	}
	return false
}

// GetContent 获取消息文本内容
func (m *Message) GetContent() string {
	if m.Content != "" {
		return m.Content
	}
	for _, block := range m.ContentBlocks {
		if tb, ok := block.(*TextBlock); ok {
			return tb.Text
		}
	}
	return ""
}

// GetToolCalls 获取消息中的工具调用
func (m *Message) GetToolCalls() []*ToolCall {
	var calls []*ToolCall
	for _, block := range m.ContentBlocks {
		if tu, ok := block.(*ToolCall); ok {
			calls = append(calls, tu)
		}
	}
	return calls
}

// GetToolResults 获取消息中的工具结果
func (m *Message) GetToolResults() []*ToolResultBlock {
	var results []*ToolResultBlock
	for _, block := range m.ContentBlocks {
		if tr, ok := block.(*ToolResultBlock); ok {
			results = append(results, tr)
		}
	}
	return results
}

// HasToolCalls 检查消息是否包含工具调用
func (m *Message) HasToolCalls() bool {
	for _, block := range m.ContentBlocks {
		if _, ok := block.(*ToolCall); ok {
			return true
		}
	}
	return false
}

// HasToolResults 检查消息是否包含工具结果
func (m *Message) HasToolResults() bool {
	for _, block := range m.ContentBlocks {
		if _, ok := block.(*ToolResultBlock); ok {
			return true
		}
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════
// 内容块类型
// ═══════════════════════════════════════════════════════════════════════════

// ContentBlock 内容块接口
type ContentBlock interface {
	BlockType() string
}

// TextBlock 文本块
type TextBlock struct {
	Text string `json:"text"`
}

// BlockType 实现 ContentBlock 接口
func (b *TextBlock) BlockType() string { return "text" }

// ImageBlock 图像块
//
// URL 与 Data 二选一；Data 为原始字节，由各 Provider 按需编码为 base64。
type ImageBlock struct {
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"` // 如 "image/png"
	Data      []byte `json:"data,omitempty"`
}

// BlockType 实现 ContentBlock 接口
func (b *ImageBlock) BlockType() string { return "image" }

// ToolResultBlock 工具结果块
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// BlockType 实现 ContentBlock 接口
func (b *ToolResultBlock) BlockType() string { return "tool_result" }

// ═══════════════════════════════════════════════════════════════════════════
// 工具调用
// ═══════════════════════════════════════════════════════════════════════════

// ToolCall 工具调用（实现 ContentBlock 接口）
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// BlockType 实现 ContentBlock 接口
func (tc *ToolCall) BlockType() string { return "tool_use" }

// ThinkingBlock 思考/推理内容块
//
// 用于存储模型的思考过程（Claude extended thinking、Kimi/豆包 reasoning_content 等）。
type ThinkingBlock struct {
	Thinking string `json:"thinking"`
}

// BlockType 实现 ContentBlock 接口
func (b *ThinkingBlock) BlockType() string { return "thinking" }
