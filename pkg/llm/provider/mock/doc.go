// Package mock 提供本地脚本化的 LLM Adapter
//
// 本包实现了 [llm.Adapter] 接口，用于测试和开发场景，
// 无需真实的 LLM API 即可验证业务逻辑。
//
// # 概述
//
// [Client] 提供可预测的响应行为：
//
//   - 通过场景名称直接指定响应
//   - 多轮对话场景，每次调用推进一轮
//   - 工具调用与思考内容模拟
//   - 模板语法（环境变量注入）
//   - 记录所有调用详情，便于测试验证
//
// # 快速开始
//
//	// 无参数时加载内嵌的 examples/unified.yaml
//	client := mock.New()
//	defer client.Close()
//
//	client.UseScenario("greeting")
//	resp, err := client.Generate(ctx, "mock-1", messages, nil)
//
// 通过注册表使用时不需要凭证，api_url 非空时视为场景配置文件路径：
//
//	reg := llm.NewRegistry().MustRegister(mock.Spec()).Freeze()
//	c, err := llm.NewClient(reg, mock.Name, llm.Credentials{APIURL: "scenarios.yaml"})
//
// # 场景
//
//	cfg := &mock.Config{
//	    Scenarios: []mock.Scenario{
//	        {
//	            Name: "booking",
//	            Turns: []mock.Turn{
//	                {User: "订餐", Assistant: "几位？"},
//	                {User: "3位", Assistant: "什么时间？"},
//	            },
//	        },
//	    },
//	}
//	client := mock.New(mock.WithConfig(cfg))
//	client.UseScenario("booking")
//
// 轮次用尽后返回 "[场景已结束]"，[Client.ResetScenario] 回到第一轮。
//
// # 模板语法
//
// 响应文本和工具参数支持 Go 模板：
//
//   - {{.VAR}}: 环境变量
//   - {{.VAR | default "fallback"}}: 带默认值
//   - {{coalesce .VAR1 .VAR2 "default"}}: 多级回退
//   - {{env "VAR"}}: 显式获取环境变量
//   - {{.LAST_USER_MESSAGE}}: 最后一条输入消息的文本
//
// # 流式
//
// StreamGenerate 先返回思考内容，再按字符返回文本增量，
// 然后是工具调用（参数为完整 JSON），最后是带 FinishReason 和 Usage 的终止 chunk。
//
// # 线程安全
//
// [Client] 可以并发调用；场景轮次在调用间共享。
package mock
