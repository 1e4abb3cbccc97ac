package anthropic

import (
	"context"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/protocol/anthropic"
)

const (
	// Name Provider 名称
	Name = "anthropic"

	// DefaultBaseURL 默认 API 地址
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultVersion anthropic-version 请求头
	DefaultVersion = "2023-06-01"

	// EnvAPIKey API Key 环境变量
	EnvAPIKey = "ANTHROPIC_API_KEY"

	// ExtraBeta Options.Extra 中的该键作为 anthropic-beta 请求头发送，不进入请求体
	ExtraBeta = "anthropic_beta"
)

var capabilities = llm.NewCapabilitySet(
	llm.OpListModels, llm.OpGetModel,
	llm.OpGenerate, llm.OpStreamGenerate, llm.OpCountTokens,
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置和客户端
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	// APIKey API 密钥（必需）
	APIKey string

	// BaseURL API 基础地址，默认 https://api.anthropic.com
	BaseURL string

	// Timeout 请求超时时间，默认 120 秒
	Timeout time.Duration

	// Headers 额外的请求头
	Headers map[string]string

	// AnthropicVersion API 版本，默认 2023-06-01
	AnthropicVersion string
}

// Client Anthropic Claude Adapter
//
// 架构设计：
//   - 嵌入 core.BaseClient 复用 HTTP 通信与错误映射
//   - 嵌入 core.Unsupported 处理未声明的操作
//   - 协议差异由 protocol/anthropic 适配器封装
type Client struct {
	*core.BaseClient
	core.Unsupported

	adapter     *anthropic.Adapter
	transformer *core.Transformer
}

// New 创建新的 Anthropic 客户端
//
// 参数 config 必须包含 APIKey。
func New(config *Config, settings llm.AdapterSettings) (*Client, error) {
	mapper := core.NewErrorMapper(Name, anthropic.ErrorMatcher())
	base, err := core.NewBaseClient(config, mapper, settings)
	if err != nil {
		return nil, err
	}

	adapter := anthropic.NewAdapter()
	return &Client{
		BaseClient:  base,
		Unsupported: core.Unsupported{Provider: Name},
		adapter:     adapter,
		transformer: core.NewTransformer(adapter, mapper),
	}, nil
}

// Spec 注册项
func Spec() llm.ProviderSpec {
	return llm.ProviderSpec{
		Name: Name,
		Credentials: llm.CredentialSpec{
			Required: []llm.CredentialKey{llm.CredAPIKey},
			Env:      map[llm.CredentialKey]string{llm.CredAPIKey: EnvAPIKey},
		},
		Factory: func(creds llm.Credentials, settings llm.AdapterSettings) (llm.Adapter, error) {
			return New(&Config{APIKey: creds.APIKey, BaseURL: creds.APIURL}, settings)
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Adapter 接口实现
// ═══════════════════════════════════════════════════════════════════════════

// Capabilities 声明支持的操作
func (c *Client) Capabilities() llm.CapabilitySet { return capabilities }

// TokenCountMode 由 count_tokens 端点精确计算
func (c *Client) TokenCountMode() llm.TokenCountMode { return llm.TokenCountExact }

// Generate 同步生成
func (c *Client) Generate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	data, err := c.Do(ctx, c.messagesRequest(llm.OpGenerate, model, messages, opts, false))
	if err != nil {
		return nil, err
	}
	return c.transformer.ParseResponse(data)
}

// StreamGenerate 流式生成
//
// 事件处理器按流创建，message_start 中的输入用量与 message_delta 中的输出用量在其中合并。
func (c *Client) StreamGenerate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (llm.Stream, error) {
	req := c.messagesRequest(llm.OpStreamGenerate, model, messages, opts, true)
	return c.Stream(ctx, req, core.FramingSSE, anthropic.NewEventHandler())
}

// CountTokens 调用 /v1/messages/count_tokens
func (c *Client) CountTokens(ctx context.Context, model string, messages []llm.Message) (llm.TokenCount, error) {
	data, err := c.Do(ctx, &core.Request{
		Op:   llm.OpCountTokens,
		Path: "/v1/messages/count_tokens",
		Body: c.adapter.BuildCountTokensRequest(model, messages),
	})
	if err != nil {
		return llm.TokenCount{}, err
	}
	count, ok := anthropic.ParseTokenCount(data)
	if !ok {
		e := c.Mapper().Decode(http.StatusOK, data, nil)
		e.Op = llm.OpCountTokens
		e.Message = "response has no input_tokens"
		return llm.TokenCount{}, e
	}
	return count, nil
}

// ListModels 列出模型
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	data, err := c.Do(ctx, &core.Request{Op: llm.OpListModels, Method: http.MethodGet, Path: "/v1/models"})
	if err != nil {
		return nil, err
	}
	return anthropic.ParseModelList(data), nil
}

// GetModel 获取模型信息
func (c *Client) GetModel(ctx context.Context, id string) (*llm.ModelInfo, error) {
	data, err := c.Do(ctx, &core.Request{
		Op:     llm.OpGetModel,
		Method: http.MethodGet,
		Path:   "/v1/models/" + url.PathEscape(id),
	})
	if err != nil {
		return nil, err
	}
	return anthropic.ParseModel(data), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// core.ProviderConfig 接口实现
// ═══════════════════════════════════════════════════════════════════════════

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil || c.APIKey == "" {
		return llm.NewConfigError(Name, "API key is required")
	}
	return nil
}

// GetDefaults 获取默认值
func (c *Config) GetDefaults() (string, time.Duration) {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimSuffix(baseURL, "/"), c.Timeout
}

// BuildHeaders 构建请求头
// Anthropic 使用 X-Api-Key 而不是 Authorization
func (c *Config) BuildHeaders() map[string]string {
	version := c.AnthropicVersion
	if version == "" {
		version = DefaultVersion
	}

	headers := map[string]string{
		"X-Api-Key":         c.APIKey,
		"anthropic-version": version,
	}
	maps.Copy(headers, c.Headers)
	return headers
}

// ProviderName 返回 Provider 名称
func (c *Config) ProviderName() string {
	return Name
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建
// ═══════════════════════════════════════════════════════════════════════════

// messagesRequest 构建 /v1/messages 请求
//
// Extra["anthropic_beta"] 为字符串或字符串切片，转为 anthropic-beta 请求头。
func (c *Client) messagesRequest(op llm.Operation, model string, messages []llm.Message, opts *llm.Options, stream bool) *core.Request {
	req := &core.Request{
		Op:   op,
		Path: "/v1/messages",
		Body: c.adapter.BuildRequest(model, messages, opts, stream),
	}
	if opts == nil {
		return req
	}

	req.Extra = core.WithoutKeys(opts.Extra, ExtraBeta)
	switch beta := opts.Extra[ExtraBeta].(type) {
	case string:
		if beta != "" {
			req.Headers = map[string]string{"anthropic-beta": beta}
		}
	case []string:
		if len(beta) > 0 {
			req.Headers = map[string]string{"anthropic-beta": strings.Join(beta, ",")}
		}
	}
	return req
}

// 确保 Client 实现了 llm.Adapter 接口
var _ llm.Adapter = (*Client)(nil)
