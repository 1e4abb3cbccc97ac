// Package llm 提供多 Provider 大语言模型服务的统一抽象层
//
// 本包定义能力契约、规范错误、消息与流式类型，以及面向调用方的 [Client]。
// 各 Provider 的 HTTP 细节位于 provider 子包，协议转换位于 protocol 子包。
//
// 完整使用示例请参考 example_test.go。
//
// # 核心类型
//
// [Adapter] 是能力契约：每个 Provider 实现完整的操作集合，但只声明其中一部分，
// 未声明的操作返回 [KindUnsupportedOperation] 错误且不发出任何网络请求。
//
// [Client] 持有一个 Adapter，以及实例级的默认模型、默认代理与默认选项，
// 调用前先检查 [CapabilitySet]。
//
// [Registry] 把 Provider 名称映射到构造函数，显式构造后传给 [NewClient]，
// 不存在包级单例。provider 包的 NewRegistry 返回包含全部内置 Provider 的注册表。
//
// # 快速开始
//
//	reg := provider.NewRegistry()
//	c, err := llm.NewClient(reg, "kimi", llm.Credentials{}, llm.WithModel("moonshot-v1-8k"))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	resp, err := c.Generate(ctx, "", []llm.Message{
//	    llm.NewTextMessage(llm.RoleUser, "你好"),
//	}, nil)
//
// # 流式
//
// [Stream] 按解码顺序返回 [StreamChunk]。每个 choice 最多一个终止 chunk（带 FinishReason），
// 终止 chunk 总在流的末尾。[Chunks] 提供 range-over-func 迭代，[Collect] 按 choice 聚合为 [Response]。
//
// # 错误
//
// 所有失败都是 [*Error]，Kind 为固定的几类之一，可直接与 errors.Is 配合：
//
//	if errors.Is(err, llm.KindRateLimit) {
//	    // 调用方决定是否重试，本库内部从不重试
//	}
//
// # 凭证
//
// [Credentials] 中留空的字段按 Provider 声明的环境变量补全，
// [WithEnvFile] 可先读取 .env 文件。缺失必需字段时返回 [KindConfiguration] 错误。
//
// # 包文件组织
//
//   - adapter.go: Operation、CapabilitySet、Adapter 接口
//   - client.go: Client 调用入口
//   - config.go: 凭证、AdapterSettings、代理 context
//   - registry.go: Registry
//   - errors.go: Error、ErrorKind
//   - message.go: Message、ContentBlock、ToolCall
//   - stream.go: Stream、StreamChunk、Collect
//   - types.go: Options、Response
package llm
