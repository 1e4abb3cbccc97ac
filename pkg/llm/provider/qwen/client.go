// Package qwen 提供通义千问（阿里云 DashScope）的 Adapter
//
// 文本模型使用 text-generation 接口，qwen-vl / qwen-audio 系列使用 multimodal-generation 接口。
// 流式请求带 X-DashScope-SSE: enable 请求头，并开启 incremental_output。
// DashScope 没有模型列表与 Token 计数接口：模型使用静态目录，Token 计数为本地估算。
package qwen

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/protocol/dashscope"
)

const (
	// Name Provider 名称
	Name = "qwen"

	// DefaultBaseURL 默认 API 地址
	DefaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"

	// EnvAPIKey API Key 环境变量
	EnvAPIKey = "DASHSCOPE_API_KEY"
)

const (
	textGeneration       = "/services/aigc/text-generation/generation"
	multimodalGeneration = "/services/aigc/multimodal-generation/generation"

	shapeMultimodal = "multimodal"
)

var routes = core.Routes{
	Table: []core.Route{
		{Model: "qwen-vl*", Path: multimodalGeneration, Framing: core.FramingSSE, Shape: shapeMultimodal},
		{Model: "qwen-audio*", Path: multimodalGeneration, Framing: core.FramingSSE, Shape: shapeMultimodal},
	},
	Fallback: &core.Route{Path: textGeneration, Framing: core.FramingSSE},
}

var capabilities = llm.NewCapabilitySet(
	llm.OpListModels, llm.OpGetModel,
	llm.OpGenerate, llm.OpStreamGenerate, llm.OpCountTokens,
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

// Client 通义千问 Adapter
type Client struct {
	*core.BaseClient
	core.Unsupported

	text       *dashscope.Adapter
	multimodal *dashscope.Adapter

	transformer *core.Transformer
}

// New 创建客户端
func New(config *Config, settings llm.AdapterSettings) (*Client, error) {
	mapper := core.NewErrorMapper(Name, dashscope.ErrorMatcher())
	base, err := core.NewBaseClient(config, mapper, settings)
	if err != nil {
		return nil, err
	}
	text := dashscope.NewAdapter(false)
	return &Client{
		BaseClient:  base,
		Unsupported: core.Unsupported{Provider: Name},
		text:        text,
		multimodal:  dashscope.NewAdapter(true),
		transformer: core.NewTransformer(text, mapper),
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

// TokenCountMode 本地估算
func (c *Client) TokenCountMode() llm.TokenCountMode { return llm.TokenCountEstimated }

// ListModels 静态模型目录
func (c *Client) ListModels(context.Context) ([]llm.ModelInfo, error) {
	out := make([]llm.ModelInfo, len(dashscope.Models))
	copy(out, dashscope.Models)
	return out, nil
}

// GetModel 在静态目录中查找
func (c *Client) GetModel(_ context.Context, id string) (*llm.ModelInfo, error) {
	for _, m := range dashscope.Models {
		if m.ID == id {
			info := m
			return &info, nil
		}
	}
	return nil, &llm.Error{
		Kind:     llm.KindBadRequest,
		Provider: Name,
		Op:       llm.OpGetModel,
		Code:     "ModelNotFound",
		Message:  fmt.Sprintf("model %q not found", id),
	}
}

// CountTokens 本地启发式估算
func (c *Client) CountTokens(_ context.Context, _ string, messages []llm.Message) (llm.TokenCount, error) {
	return core.EstimateTokens(messages), nil
}

// Generate 同步生成
func (c *Client) Generate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	route, adapter, err := c.resolve(llm.OpGenerate, model)
	if err != nil {
		return nil, err
	}

	data, err := c.Do(ctx, &core.Request{
		Op:    llm.OpGenerate,
		Path:  route.Path,
		Body:  adapter.BuildRequest(model, messages, opts, false),
		Extra: extraOf(opts),
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
func (c *Client) StreamGenerate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (llm.Stream, error) {
	route, adapter, err := c.resolve(llm.OpStreamGenerate, model)
	if err != nil {
		return nil, err
	}
	return c.Stream(ctx, &core.Request{
		Op:      llm.OpStreamGenerate,
		Path:    route.Stream(),
		Headers: map[string]string{"X-DashScope-SSE": "enable"},
		Body:    adapter.BuildRequest(model, messages, opts, true),
		Extra:   extraOf(opts),
	}, route.Framing, dashscope.NewEventHandler())
}

func (c *Client) resolve(op llm.Operation, model string) (core.Route, *dashscope.Adapter, error) {
	route, err := routes.Resolve(Name, op, model)
	if err != nil {
		return core.Route{}, nil, err
	}
	if route.Shape == shapeMultimodal {
		return route, c.multimodal, nil
	}
	return route, c.text, nil
}

func extraOf(opts *llm.Options) map[string]any {
	if opts == nil {
		return nil
	}
	return opts.Extra
}

// 确保 Client 实现了 llm.Adapter 接口
var _ llm.Adapter = (*Client)(nil)
