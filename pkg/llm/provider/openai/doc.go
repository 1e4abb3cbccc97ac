// Package openai 提供 OpenAI 兼容服务的通用实现
//
// Kimi、豆包、百川（Baichuan2 系列）与 MiniMax v2 的对话接口都遵循 OpenAI
// Chat Completions 格式，本包把这部分逻辑集中在 [Compat] 中，
// 各 Provider 持有一个 Compat 并只转发自己声明的操作。
//
// # 快速开始
//
//	base, err := core.NewBaseClient(cfg, mapper, settings)
//	if err != nil {
//	    return nil, err
//	}
//	chat := openai.NewCompat(base, openai.Endpoints{})
//
//	resp, err := chat.Generate(ctx, "moonshot-v1-8k", messages, nil)
//
// # 端点
//
// [Endpoints] 中为空的路径使用 [DefaultEndpoints]：
//
//   - Chat: /chat/completions
//   - Embeddings: /embeddings
//   - Models: /models
//   - Files: /files
//
// # 推理模型
//
// [IsReasoningModel] 识别的模型在发送前由 [AdaptForModel] 修正采样参数。
//
// # 线程安全
//
// [Compat] 只持有不可变配置，可以并发调用。
package openai
