package gemini

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/protocol/gemini"
)

// ═══════════════════════════════════════════════════════════════════════════
// 常量定义
// ═══════════════════════════════════════════════════════════════════════════

const (
	// Name Provider 名称
	Name = "gemini"

	// DefaultBaseURL Gemini API 默认地址
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// APIVersion 路径前缀
	APIVersion = "v1beta"

	// EnvAPIKey API Key 环境变量
	EnvAPIKey = "GEMINI_API_KEY"
)

// 模型常量
const (
	ModelGemini25Pro       = "gemini-2.5-pro"
	ModelGemini25Flash     = "gemini-2.5-flash"
	ModelGemini25FlashLite = "gemini-2.5-flash-lite"
	ModelGemini20Flash     = "gemini-2.0-flash"
	ModelGemini15Pro       = "gemini-1.5-pro"
	ModelGemini15Flash     = "gemini-1.5-flash"
)

var capabilities = llm.NewCapabilitySet(
	llm.OpListModels, llm.OpGetModel,
	llm.OpGenerate, llm.OpStreamGenerate, llm.OpCountTokens,
	llm.OpCreateEmbedding,
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置和客户端
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	// APIKey Gemini API 密钥（必需），以 key 查询参数发送
	APIKey string

	// BaseURL API 基础地址，默认 https://generativelanguage.googleapis.com
	BaseURL string

	// Timeout 请求超时时间，默认 120 秒
	Timeout time.Duration

	// Headers 额外的请求头
	Headers map[string]string
}

// Client Gemini Adapter
//
// 架构设计：
//   - 嵌入 core.BaseClient 复用 HTTP 通信与错误映射
//   - 端点按模型动态拼接：/v1beta/models/{model}:{action}
//   - 线上结构由 protocol/gemini 以 genai 类型描述
type Client struct {
	*core.BaseClient
	core.Unsupported

	adapter     *gemini.Adapter
	transformer *core.Transformer
}

// New 创建新的 Gemini 客户端
func New(config *Config, settings llm.AdapterSettings) (*Client, error) {
	mapper := core.NewErrorMapper(Name, gemini.ErrorMatcher())
	base, err := core.NewBaseClient(config, mapper, settings)
	if err != nil {
		return nil, err
	}

	adapter := gemini.NewAdapter()
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

// TokenCountMode 由 countTokens 端点精确计算
func (c *Client) TokenCountMode() llm.TokenCountMode { return llm.TokenCountExact }

// Generate 同步生成
func (c *Client) Generate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	body, extra := c.adapter.BuildRequest(messages, opts)
	data, err := c.Do(ctx, &core.Request{
		Op:    llm.OpGenerate,
		Path:  modelPath(model, "generateContent"),
		Body:  body,
		Extra: extra,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.transformer.ParseResponse(data)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp, nil
}

// StreamGenerate 流式生成
//
// Gemini 流没有结束哨兵，以携带 finishReason 的 chunk 为终止。
func (c *Client) StreamGenerate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (llm.Stream, error) {
	body, extra := c.adapter.BuildRequest(messages, opts)
	return c.Stream(ctx, &core.Request{
		Op:    llm.OpStreamGenerate,
		Path:  modelPath(model, "streamGenerateContent"),
		Query: map[string]string{"alt": "sse"},
		Body:  body,
		Extra: extra,
	}, core.FramingSSE, gemini.NewEventHandler())
}

// CountTokens 调用 countTokens
func (c *Client) CountTokens(ctx context.Context, model string, messages []llm.Message) (llm.TokenCount, error) {
	data, err := c.Do(ctx, &core.Request{
		Op:   llm.OpCountTokens,
		Path: modelPath(model, "countTokens"),
		Body: c.adapter.BuildCountTokensRequest(messages),
	})
	if err != nil {
		return llm.TokenCount{}, err
	}
	count, err := gemini.ParseTokenCount(data)
	if err != nil {
		e := c.Mapper().Decode(http.StatusOK, data, err)
		e.Op = llm.OpCountTokens
		return llm.TokenCount{}, e
	}
	return count, nil
}

// CreateEmbedding 调用 batchEmbedContents，每个输入一个请求
func (c *Client) CreateEmbedding(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	if err := core.RequireRequest(Name, llm.OpCreateEmbedding, req); err != nil {
		return nil, err
	}
	data, err := c.Do(ctx, &core.Request{
		Op:    llm.OpCreateEmbedding,
		Path:  modelPath(req.Model, "batchEmbedContents"),
		Body:  gemini.BuildEmbeddingRequest(req.Model, req.Input),
		Extra: req.Extra,
	})
	if err != nil {
		return nil, err
	}
	return gemini.ParseEmbeddingResponse(req.Model, data), nil
}

// ListModels 列出模型
func (c *Client) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	data, err := c.Do(ctx, &core.Request{
		Op:     llm.OpListModels,
		Method: http.MethodGet,
		Path:   "/" + APIVersion + "/models",
		Query:  map[string]string{"pageSize": "1000"},
	})
	if err != nil {
		return nil, err
	}
	return gemini.ParseModelList(data), nil
}

// GetModel 获取模型信息
func (c *Client) GetModel(ctx context.Context, id string) (*llm.ModelInfo, error) {
	data, err := c.Do(ctx, &core.Request{
		Op:     llm.OpGetModel,
		Method: http.MethodGet,
		Path:   "/" + APIVersion + "/" + escapeResource(gemini.ModelResource(id)),
	})
	if err != nil {
		return nil, err
	}
	return gemini.ParseModel(data), nil
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
// Gemini 不在请求头中携带 API key
func (c *Config) BuildHeaders() map[string]string {
	return core.CloneHeaders(nil, c.Headers)
}

// BuildQuery 每个请求附带 key 查询参数
func (c *Config) BuildQuery() map[string]string {
	return map[string]string{"key": c.APIKey}
}

// ProviderName 返回 Provider 名称
func (c *Config) ProviderName() string {
	return Name
}

// ═══════════════════════════════════════════════════════════════════════════
// 端点构建
// ═══════════════════════════════════════════════════════════════════════════

// modelPath /v1beta/models/{model}:{action}
func modelPath(model, action string) string {
	return "/" + APIVersion + "/" + escapeResource(gemini.ModelResource(model)) + ":" + action
}

// escapeResource 逐段转义资源名，保留分隔符
func escapeResource(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// 确保 Client 实现了 llm.Adapter 接口
var _ llm.Adapter = (*Client)(nil)
