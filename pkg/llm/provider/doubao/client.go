// Package doubao 提供火山方舟（豆包）的 Adapter
//
// 对话与向量接口与 OpenAI 兼容；Token 计数使用 /tokenization 精确计算，
// 上下文缓存通过扩展操作 doubao.create_context 与 doubao.context_chat 调用。
package doubao

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/openai"
)

const (
	// Name Provider 名称
	Name = "doubao"

	// DefaultBaseURL 默认 API 地址
	DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

	// EnvAPIKey API Key 环境变量
	EnvAPIKey = "DOUBAO_API_KEY"
)

// 上下文缓存扩展操作
const (
	OpCreateContext llm.Operation = "doubao.create_context"
	OpContextChat   llm.Operation = "doubao.context_chat"
)

var capabilities = llm.NewCapabilitySet(
	llm.OpGenerate, llm.OpStreamGenerate, llm.OpCountTokens, llm.OpCreateEmbedding,
	OpCreateContext, OpContextChat,
)

// errorKinds 方舟 error.code
var errorKinds = map[string]llm.ErrorKind{
	"AuthenticationError":                   llm.KindAuthorization,
	"AccessDenied":                          llm.KindAuthorization,
	"AccountOverdueError":                   llm.KindAuthorization,
	"RateLimitExceeded.EndpointRPMExceeded": llm.KindRateLimit,
	"RateLimitExceeded.EndpointTPMExceeded": llm.KindRateLimit,
	"QuotaExceeded":                         llm.KindRateLimit,
	"ServerOverloaded":                      llm.KindServerUnavailable,
	"InternalServiceError":                  llm.KindServerUnavailable,
	"InvalidParameter":                      llm.KindBadRequest,
	"MissingParameter":                      llm.KindBadRequest,
	"InvalidEndpointOrModel.NotFound":       llm.KindBadRequest,
	"ModelNotOpen":                          llm.KindBadRequest,
	"SensitiveContentDetected":              llm.KindBadRequest,
}

// ═══════════════════════════════════════════════════════════════════════════
// 配置
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	APIKey  string
	BaseURL string // 默认 https://ark.cn-beijing.volces.com/api/v3
	Timeout time.Duration
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

// Client 豆包 Adapter
type Client struct {
	*core.BaseClient
	core.Unsupported

	chat *openai.Compat
}

// New 创建客户端
func New(config *Config, settings llm.AdapterSettings) (*Client, error) {
	mapper := core.NewErrorMapper(Name, core.OpenAIErrorMatcher(errorKinds))
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

// TokenCountMode 由 /tokenization 精确计算
func (c *Client) TokenCountMode() llm.TokenCountMode { return llm.TokenCountExact }

// Generate 同步生成
func (c *Client) Generate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	return c.chat.Generate(ctx, model, messages, opts)
}

// StreamGenerate 流式生成
func (c *Client) StreamGenerate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (llm.Stream, error) {
	return c.chat.StreamGenerate(ctx, model, messages, opts)
}

// CreateEmbedding 向量化
func (c *Client) CreateEmbedding(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return c.chat.CreateEmbedding(ctx, req)
}

// CountTokens 每条消息的文本作为一个分词输入，结果为各项 total_tokens 之和
func (c *Client) CountTokens(ctx context.Context, model string, messages []llm.Message) (llm.TokenCount, error) {
	texts := make([]string, 0, len(messages))
	for _, msg := range messages {
		texts = append(texts, msg.GetContent())
	}

	data, err := c.Do(ctx, &core.Request{
		Op:   llm.OpCountTokens,
		Path: "/tokenization",
		Body: map[string]any{"model": model, "text": texts},
	})
	if err != nil {
		return llm.TokenCount{}, err
	}

	items := gjson.GetBytes(data, "data")
	if !items.IsArray() {
		e := c.Mapper().Decode(http.StatusOK, data, nil)
		e.Op = llm.OpCountTokens
		e.Message = "tokenization response has no data"
		return llm.TokenCount{}, e
	}
	var total int64
	for _, item := range items.Array() {
		total += item.Get("total_tokens").Int()
	}
	return llm.TokenCount{Tokens: total, Mode: llm.TokenCountExact}, nil
}

// Invoke 上下文缓存扩展操作，params 为方舟原生请求体
func (c *Client) Invoke(ctx context.Context, op llm.Operation, params map[string]any) ([]byte, error) {
	switch op {
	case OpCreateContext:
		return c.Do(ctx, &core.Request{Op: op, Path: "/context/create", Body: params})
	case OpContextChat:
		if _, err := core.RequireParam(Name, op, params, "context_id"); err != nil {
			return nil, err
		}
		return c.Do(ctx, &core.Request{Op: op, Path: "/context/chat/completions", Body: params})
	default:
		return c.Unsupported.Invoke(ctx, op, params)
	}
}

// 确保 Client 实现了 llm.Adapter 接口
var _ llm.Adapter = (*Client)(nil)
