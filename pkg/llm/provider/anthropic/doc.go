// Package anthropic 提供 Anthropic Claude API 的 Adapter
//
// 本包实现 [llm.Adapter] 接口，使用 Anthropic 原生 Messages API，
// 协议转换由 protocol/anthropic 完成。
//
// # 支持的操作
//
//   - list_models / get_model：/v1/models
//   - generate / stream_generate：/v1/messages
//   - count_tokens：/v1/messages/count_tokens（精确计数）
//
// 其余操作返回 UnsupportedOperation，不发出网络请求。
//
// # 快速开始
//
//	client, err := llm.NewClient(provider.NewRegistry(), anthropic.Name,
//	    llm.Credentials{APIKey: "sk-ant-..."},
//	    llm.WithModel("claude-3-5-haiku-latest"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.Generate(ctx, "", []llm.Message{
//	    llm.NewTextMessage(llm.RoleUser, "Hello!"),
//	}, nil)
//
// # 与 OpenAI 兼容协议的区别
//
//   - 认证方式：使用 X-Api-Key 头部而非 Bearer Token
//   - 系统提示：作为独立参数而非消息
//   - 响应格式：content 数组而非 choices 数组
//   - 流式事件：message_start 携带输入用量，message_delta 携带完成原因与输出用量
//
// Beta 功能通过 Options.Extra["anthropic_beta"] 开启，取值为字符串或字符串切片，
// 以 anthropic-beta 请求头发送。
//
// # 线程安全
//
// [Client] 是线程安全的，可以并发调用所有方法。
package anthropic
