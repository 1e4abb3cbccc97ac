// Package gemini 实现 Google Gemini API 的协议适配器
//
// Gemini API 使用独特的 Content/Parts 格式，与 OpenAI 和 Anthropic 都不同。
// 请求与响应使用 google.golang.org/genai 的类型编解码。
//
// # 协议特点
//
//   - 内容格式：Content{Role, Parts[]} 结构
//   - 角色映射：user→user, assistant→model
//   - 系统消息：使用独立的 systemInstruction 字段
//   - 工具格式：functionDeclarations 数组
//   - 认证方式：API Key 作为查询参数 ?key=XXX
//   - 流式：streamGenerateContent?alt=sse，无 [DONE]，finishReason 所在 chunk 结束
//
// # 请求格式示例
//
//	{
//	  "systemInstruction": {"parts": [{"text": "..."}]},
//	  "contents": [
//	    {"role": "user", "parts": [{"text": "..."}]},
//	    {"role": "model", "parts": [{"text": "..."}]}
//	  ],
//	  "tools": [{"functionDeclarations": [...]}],
//	  "generationConfig": {...}
//	}
//
// # Thinking 支持
//
// Gemini 2.5 系列模型支持 thinking，可通过 Options.Extra 透传：
//
//	opts.Extra = map[string]any{
//	    "generationConfig.thinkingConfig": map[string]any{"includeThoughts": true},
//	}
//
// 返回的 thought part 转换为 llm.ThinkingBlock。
package gemini
