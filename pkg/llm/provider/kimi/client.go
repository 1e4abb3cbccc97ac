// Package kimi 提供 Moonshot Kimi 的 Adapter
//
// 对话接口与 OpenAI 兼容；另外支持模型查询、基于 max_tokens=1 探测的精确 Token 计数，
// 以及 Context Caching 的扩展操作。
package kimi

import (
	"context"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/openai"
)

const (
	// Name Provider 名称
	Name = "kimi"

	// DefaultBaseURL 默认 API 地址
	DefaultBaseURL = "https://api.moonshot.cn/v1"

	// EnvAPIKey API Key 环境变量
	EnvAPIKey = "MOONSHOT_API_KEY"
)

// Context Caching 扩展操作
const (
	OpCreateCache   llm.Operation = "kimi.create_cache"
	OpListCaches    llm.Operation = "kimi.list_caches"
	OpGetCache      llm.Operation = "kimi.get_cache"
	OpUpdateCache   llm.Operation = "kimi.update_cache"
	OpDeleteCache   llm.Operation = "kimi.delete_cache"
	OpCreateTag     llm.Operation = "kimi.create_tag"
	OpListTags      llm.Operation = "kimi.list_tags"
	OpGetTag        llm.Operation = "kimi.get_tag"
	OpDeleteTag     llm.Operation = "kimi.delete_tag"
	OpGetTagContent llm.Operation = "kimi.get_tag_content"
)

var capabilities = llm.NewCapabilitySet(
	llm.OpListModels, llm.OpGetModel,
	llm.OpGenerate, llm.OpStreamGenerate, llm.OpCountTokens,
	OpCreateCache, OpListCaches, OpGetCache, OpUpdateCache, OpDeleteCache,
	OpCreateTag, OpListTags, OpGetTag, OpDeleteTag, OpGetTagContent,
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	// APIKey API 密钥（必需）
	APIKey string

	// BaseURL API 基础地址，默认 https://api.moonshot.cn/v1
	BaseURL string

	// Timeout 请求超时时间，默认 120 秒
	Timeout time.Duration

	// Headers 额外的请求头
	Headers map[string]string
}

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
	return baseURL, c.Timeout
}

// BuildHeaders 构建请求头
func (c *Config) BuildHeaders() map[string]string {
	headers := map[string]string{"Authorization": "Bearer " + c.APIKey}
	maps.Copy(headers, c.Headers)
	return headers
}

// ProviderName 返回 Provider 名称
func (c *Config) ProviderName() string { return Name }

// ═══════════════════════════════════════════════════════════════════════════
// 客户端
// ═══════════════════════════════════════════════════════════════════════════

// Client Kimi Adapter
type Client struct {
	*core.BaseClient
	core.Unsupported

	chat *openai.Compat
}

// New 创建客户端
func New(config *Config, settings llm.AdapterSettings) (*Client, error) {
	mapper := core.NewErrorMapper(Name, core.OpenAIErrorMatcher(map[string]llm.ErrorKind{
		"invalid_authentication_error": llm.KindAuthorization,
		"permission_denied_error":      llm.KindAuthorization,
		"rate_limit_reached_error":     llm.KindRateLimit,
		"exceeded_current_quota_error": llm.KindRateLimit,
		"engine_overloaded_error":      llm.KindServerUnavailable,
		"invalid_request_error":        llm.KindBadRequest,
		"resource_not_found_error":     llm.KindBadRequest,
	}))
	base, err := core.NewBaseClient(config, mapper, settings)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseClient:  base,
		Unsupported: core.Unsupported{Provider: Name},
		chat:        openai.NewCompat(base, openai.Endpoints{}),
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

// Capabilities 声明支持的操作
func (c *Client) Capabilities() llm.CapabilitySet { return capabilities }

// TokenCountMode 通过 usage 精确计数
func (c *Client) TokenCountMode() llm.TokenCountMode { return llm.TokenCountExact }

// ListModels 列出模型
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	return c.chat.ListModels(ctx)
}

// GetModel 获取模型信息
func (c *Client) GetModel(ctx context.Context, id string) (*llm.ModelInfo, error) {
	return c.chat.GetModel(ctx, id)
}

// Generate 同步生成
func (c *Client) Generate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	return c.chat.Generate(ctx, model, messages, opts)
}

// StreamGenerate 流式生成
func (c *Client) StreamGenerate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (llm.Stream, error) {
	return c.chat.StreamGenerate(ctx, model, messages, opts)
}

// CountTokens 以 max_tokens=1 发起一次生成，读取 usage.prompt_tokens
func (c *Client) CountTokens(ctx context.Context, model string, messages []llm.Message) (llm.TokenCount, error) {
	resp, err := c.chat.Generate(ctx, model, messages, &llm.Options{MaxTokens: 1})
	if err != nil {
		return llm.TokenCount{}, err
	}
	if resp.Usage == nil {
		return llm.TokenCount{}, &llm.Error{
			Kind:     llm.KindUnknown,
			Provider: Name,
			Op:       llm.OpCountTokens,
			Message:  "response carries no usage",
		}
	}
	return llm.TokenCount{Tokens: resp.Usage.InputTokens, Mode: llm.TokenCountExact}, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 扩展操作
// ═══════════════════════════════════════════════════════════════════════════

// Invoke Context Caching 扩展操作
//
// params 为 Moonshot 原生字段；cache_id、tag 作为路径参数，其余作为请求体或查询参数。
func (c *Client) Invoke(ctx context.Context, op llm.Operation, params map[string]any) ([]byte, error) {
	switch op {
	case OpCreateCache:
		return c.Do(ctx, &core.Request{Op: op, Path: "/caching", Body: params})
	case OpListCaches:
		return c.Do(ctx, &core.Request{Op: op, Method: http.MethodGet, Path: "/caching", Query: core.QueryParams(params)})
	case OpGetCache, OpUpdateCache, OpDeleteCache:
		id, err := core.RequireParam(Name, op, params, "cache_id")
		if err != nil {
			return nil, err
		}
		req := &core.Request{Op: op, Path: "/caching/" + url.PathEscape(id)}
		switch op {
		case OpGetCache:
			req.Method = http.MethodGet
		case OpUpdateCache:
			req.Method = http.MethodPut
			req.Body = core.WithoutKeys(params, "cache_id")
		case OpDeleteCache:
			req.Method = http.MethodDelete
		}
		return c.Do(ctx, req)
	case OpCreateTag:
		return c.Do(ctx, &core.Request{Op: op, Path: "/caching/refs/tags", Body: params})
	case OpListTags:
		return c.Do(ctx, &core.Request{Op: op, Method: http.MethodGet, Path: "/caching/refs/tags", Query: core.QueryParams(params)})
	case OpGetTag, OpDeleteTag, OpGetTagContent:
		tag, err := core.RequireParam(Name, op, params, "tag")
		if err != nil {
			return nil, err
		}
		req := &core.Request{Op: op, Method: http.MethodGet, Path: "/caching/refs/tags/" + url.PathEscape(tag)}
		switch op {
		case OpDeleteTag:
			req.Method = http.MethodDelete
		case OpGetTagContent:
			req.Path += "/content"
		}
		return c.Do(ctx, req)
	default:
		return c.Unsupported.Invoke(ctx, op, params)
	}
}

// 确保 Client 实现了 llm.Adapter 接口
var _ llm.Adapter = (*Client)(nil)
