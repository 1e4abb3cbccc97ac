// Package gemini 实现 Google Gemini Adapter
//
// 使用 Gemini API（generativelanguage.googleapis.com），API key 以 key 查询参数发送。
//
// # 基础使用
//
//	client, err := llm.NewClient(provider.NewRegistry(), gemini.Name,
//	    llm.Credentials{APIKey: "your-api-key"},
//	)
//
//	resp, err := client.Generate(ctx, gemini.ModelGemini25Flash, messages, nil)
//
// # 端点
//
//   - generate：/v1beta/models/{model}:generateContent
//   - stream_generate：/v1beta/models/{model}:streamGenerateContent?alt=sse
//   - count_tokens：/v1beta/models/{model}:countTokens（精确计数）
//   - create_embedding：/v1beta/models/{model}:batchEmbedContents
//   - list_models / get_model：/v1beta/models
//
// 流式响应没有结束哨兵，携带 finishReason 的 chunk 即终止 chunk；
// 连接在此之前关闭视为流被截断。
//
// # Thinking 模式
//
// Gemini 2.5 系列的 thinking 配置通过 Extra 透传：
//
//	opts := &llm.Options{Extra: map[string]any{
//	    "generationConfig.thinkingConfig.includeThoughts": true,
//	    "generationConfig.thinkingConfig.thinkingBudget":  1024,
//	}}
//
// 思考内容以 Reasoning 增量返回。
package gemini
