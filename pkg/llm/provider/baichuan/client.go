// Package baichuan 提供百川智能的 Adapter
//
// Baichuan2 系列模型使用 OpenAI 兼容的 /chat/completions（SSE），
// 其余模型使用旧版 /chat 与 /stream/chat（NDJSON）。向量与文件接口与 OpenAI 兼容。
package baichuan

import (
	"context"
	"maps"
	"time"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/openai"
)

const (
	// Name Provider 名称
	Name = "baichuan"

	// DefaultBaseURL 默认 API 地址
	DefaultBaseURL = "https://api.baichuan-ai.com/v1"

	// EnvAPIKey API Key 环境变量
	EnvAPIKey = "BAICHUAN_API_KEY"
)

const shapeLegacy = "legacy"

// routes 模型路由
var routes = core.Routes{
	Table: []core.Route{
		{Model: "Baichuan2*", Path: "/chat/completions", Framing: core.FramingSSE},
	},
	Fallback: &core.Route{Path: "/chat", StreamPath: "/stream/chat", Framing: core.FramingNDJSON, Shape: shapeLegacy},
}

var capabilities = llm.NewCapabilitySet(
	llm.OpGenerate, llm.OpStreamGenerate, llm.OpCreateEmbedding,
	llm.OpUploadFile, llm.OpListFiles, llm.OpGetFile, llm.OpDeleteFile, llm.OpGetFileContent,
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	APIKey  string
	BaseURL string
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

// Client 百川 Adapter
type Client struct {
	*core.BaseClient
	core.Unsupported

	chat   *openai.Compat
	legacy *core.Transformer
}

// New 创建客户端
func New(config *Config, settings llm.AdapterSettings) (*Client, error) {
	mapper := core.NewErrorMapper(Name,
		legacyErrors,
		core.OpenAIErrorMatcher(map[string]llm.ErrorKind{
			"invalid_api_key":         llm.KindAuthorization,
			"insufficient_quota":      llm.KindRateLimit,
			"rate_limit_exceeded":     llm.KindRateLimit,
			"invalid_request_error":   llm.KindBadRequest,
			"model_not_found":         llm.KindBadRequest,
			"server_error":            llm.KindServerUnavailable,
			"engine_overloaded_error": llm.KindServerUnavailable,
		}),
	)
	base, err := core.NewBaseClient(config, mapper, settings)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseClient:  base,
		Unsupported: core.Unsupported{Provider: Name},
		chat:        openai.NewCompat(base, openai.Endpoints{}),
		legacy:      core.NewTransformer(core.NormalizerFunc(convertLegacy), mapper),
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

// TokenCountMode 未声明 count_tokens
func (c *Client) TokenCountMode() llm.TokenCountMode { return llm.TokenCountEstimated }

// ═══════════════════════════════════════════════════════════════════════════
// 生成
// ═══════════════════════════════════════════════════════════════════════════

// Generate 同步生成
func (c *Client) Generate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	route, err := routes.Resolve(Name, llm.OpGenerate, model)
	if err != nil {
		return nil, err
	}
	if route.Shape != shapeLegacy {
		return c.chat.GenerateAt(ctx, route.Path, model, messages, opts)
	}

	body, extra := c.chat.BuildRequest(model, messages, opts, false)
	data, err := c.Do(ctx, &core.Request{Op: llm.OpGenerate, Path: route.Path, Body: body, Extra: extra})
	if err != nil {
		return nil, err
	}
	resp, err := c.legacy.ParseResponse(data)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp, nil
}

// StreamGenerate 流式生成
func (c *Client) StreamGenerate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (llm.Stream, error) {
	route, err := routes.Resolve(Name, llm.OpStreamGenerate, model)
	if err != nil {
		return nil, err
	}
	if route.Shape != shapeLegacy {
		return c.chat.StreamGenerateAt(ctx, route.Stream(), model, messages, opts)
	}

	body, extra := c.chat.BuildRequest(model, messages, opts, true)
	return c.Stream(ctx, &core.Request{
		Op:    llm.OpStreamGenerate,
		Path:  route.Stream(),
		Body:  body,
		Extra: extra,
	}, route.Framing, legacyHandler{})
}

// ═══════════════════════════════════════════════════════════════════════════
// 向量与文件
// ═══════════════════════════════════════════════════════════════════════════

// CreateEmbedding 向量化
func (c *Client) CreateEmbedding(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return c.chat.CreateEmbedding(ctx, req)
}

// UploadFile 上传文件，purpose 默认 knowledge-base
func (c *Client) UploadFile(ctx context.Context, req *llm.FileUpload) (*llm.FileObject, error) {
	if err := core.RequireRequest(Name, llm.OpUploadFile, req); err != nil {
		return nil, err
	}
	r := *req
	if r.Purpose == "" {
		r.Purpose = "knowledge-base"
	}
	return c.chat.UploadFile(ctx, &r)
}

// ListFiles 列出文件
func (c *Client) ListFiles(ctx context.Context) ([]llm.FileObject, error) {
	return c.chat.ListFiles(ctx)
}

// GetFile 获取文件信息
func (c *Client) GetFile(ctx context.Context, id string) (*llm.FileObject, error) {
	return c.chat.GetFile(ctx, id)
}

// DeleteFile 删除文件
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.chat.DeleteFile(ctx, id)
}

// GetFileContent 获取文件内容
func (c *Client) GetFileContent(ctx context.Context, id string) ([]byte, error) {
	return c.chat.GetFileContent(ctx, id)
}

// 确保 Client 实现了 llm.Adapter 接口
var _ llm.Adapter = (*Client)(nil)
