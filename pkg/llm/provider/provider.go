// Package provider 汇总所有内置 Provider
//
// 使用方式：
//
//	c, err := provider.New("kimi", llm.Credentials{APIKey: "sk-xxx"}, llm.WithModel("moonshot-v1-8k"))
//
//	// 凭证留空时从 Provider 声明的环境变量读取
//	c, err := provider.New("qwen", llm.Credentials{})
//
//	// 本地 Mock（无需凭证）
//	c := provider.LocalMock()
package provider

import (
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/anthropic"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/baichuan"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/doubao"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/gemini"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/kimi"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/minimax"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/mock"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/qwen"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/wenxin"
)

// ═══════════════════════════════════════════════════════════════════════════
// 注册表
// ═══════════════════════════════════════════════════════════════════════════

// Specs 所有内置 Provider 的注册项
func Specs() []llm.ProviderSpec {
	return []llm.ProviderSpec{
		anthropic.Spec(),
		baichuan.Spec(),
		doubao.Spec(),
		gemini.Spec(),
		kimi.Spec(),
		minimax.Spec(),
		qwen.Spec(),
		wenxin.Spec(),
		mock.Spec(),
	}
}

// NewRegistry 创建包含所有内置 Provider 的注册表，返回前已冻结
//
// 每次调用返回新的注册表，需要追加自定义 Provider 时使用 [Extend]。
func NewRegistry() *llm.Registry {
	return Extend().Freeze()
}

// Extend 创建包含所有内置 Provider 的未冻结注册表
func Extend() *llm.Registry {
	reg := llm.NewRegistry()
	for _, spec := range Specs() {
		reg.MustRegister(spec)
	}
	return reg
}

// ═══════════════════════════════════════════════════════════════════════════
// 便捷函数
// ═══════════════════════════════════════════════════════════════════════════

// ListProviders 内置 Provider 名称（已排序）
func ListProviders() []string {
	return NewRegistry().Providers()
}

// New 使用内置注册表创建 Client
func New(name string, creds llm.Credentials, opts ...llm.ClientOption) (*llm.Client, error) {
	return llm.NewClient(NewRegistry(), name, creds, opts...)
}

// Must 创建 Client，失败时 panic
func Must(name string, creds llm.Credentials, opts ...llm.ClientOption) *llm.Client {
	c, err := New(name, creds, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Default 凭证全部从环境变量读取
func Default(name string, opts ...llm.ClientOption) (*llm.Client, error) {
	return New(name, llm.Credentials{}, opts...)
}

// LocalMock 创建加载内嵌示例场景的 Mock Client（用于测试）
func LocalMock(opts ...llm.ClientOption) *llm.Client {
	return Must(mock.Name, llm.Credentials{}, append([]llm.ClientOption{llm.WithModel("mock-1")}, opts...)...)
}
