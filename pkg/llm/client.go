package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// Client 统一调用入口
// ═══════════════════════════════════════════════════════════════════════════

// Client 统一调用入口
//
// 每个 Client 持有一个 Adapter，以及实例级的默认模型、默认代理与默认选项。
// SetModel/SetProxy/SetOptions 只影响当前实例；它们与进行中的调用之间没有同步，
// 并发使用同一实例时由调用方串行化这些修改。
type Client struct {
	provider string
	adapter  Adapter
	logger   *slog.Logger

	model    string
	proxy    string
	defaults *Options
}

// ClientOption Client 构造选项
type ClientOption func(*clientConfig)

type clientConfig struct {
	settings AdapterSettings
	lookup   EnvLookup
	envFile  string
	model    string
	proxy    string
	defaults *Options
}

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.settings.Logger = logger }
}

// WithTimeout 设置单次请求超时
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.settings.Timeout = d }
}

// WithHeaders 设置附加请求头
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *clientConfig) { c.settings.Headers = headers }
}

// WithEnvLookup 设置凭证回退使用的环境变量查询函数
func WithEnvLookup(lookup EnvLookup) ClientOption {
	return func(c *clientConfig) { c.lookup = lookup }
}

// WithEnvFile 凭证回退时先读取 .env 文件
func WithEnvFile(path string) ClientOption {
	return func(c *clientConfig) { c.envFile = path }
}

// WithModel 设置默认模型
func WithModel(model string) ClientOption {
	return func(c *clientConfig) { c.model = model }
}

// WithDefaultProxy 设置默认代理
func WithDefaultProxy(proxyURL string) ClientOption {
	return func(c *clientConfig) { c.proxy = proxyURL }
}

// WithDefaultOptions 设置默认生成选项
func WithDefaultOptions(opts *Options) ClientOption {
	return func(c *clientConfig) { c.defaults = opts }
}

// NewClient 创建 Client
//
// 从 reg 中查找 provider，补全并校验凭证，然后创建唯一的 Adapter。
// 未注册的 Provider 或不完整的凭证返回 KindConfiguration 错误。
func NewClient(reg *Registry, provider string, creds Credentials, opts ...ClientOption) (*Client, error) {
	if reg == nil {
		return nil, NewConfigError(provider, "registry is required")
	}
	spec, ok := reg.Lookup(provider)
	if !ok {
		return nil, NewConfigError(provider, fmt.Sprintf("unknown provider %q, available: %s",
			provider, strings.Join(reg.Providers(), ", ")))
	}

	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.settings.Logger == nil {
		cfg.settings.Logger = slog.Default()
	}

	lookup := cfg.lookup
	if cfg.envFile != "" {
		fileLookup, err := DotEnvLookup(cfg.envFile)
		if err != nil {
			return nil, &Error{Kind: KindConfiguration, Provider: spec.Name, Message: "load env file", Err: err}
		}
		lookup = fileLookup
	}

	resolved, err := spec.Credentials.Resolve(spec.Name, creds, lookup)
	if err != nil {
		return nil, err
	}

	adapter, err := spec.Factory(resolved, cfg.settings)
	if err != nil {
		return nil, err
	}

	return &Client{
		provider: spec.Name,
		adapter:  adapter,
		logger:   cfg.settings.Logger.With("provider", spec.Name),
		model:    cfg.model,
		proxy:    cfg.proxy,
		defaults: cfg.defaults,
	}, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 实例状态
// ═══════════════════════════════════════════════════════════════════════════

// Provider Provider 名称
func (c *Client) Provider() string { return c.provider }

// Adapter 底层 Adapter
func (c *Client) Adapter() Adapter { return c.adapter }

// Model 默认模型
func (c *Client) Model() string { return c.model }

// Proxy 默认代理
func (c *Client) Proxy() string { return c.proxy }

// SetModel 设置默认模型
func (c *Client) SetModel(model string) {
	c.model = model
	c.logger.Debug("default model set", "model", model)
}

// SetProxy 设置默认代理，空字符串表示不使用
func (c *Client) SetProxy(proxyURL string) {
	c.proxy = proxyURL
	c.logger.Debug("default proxy set", "proxy", proxyURL)
}

// SetOptions 设置默认生成选项
func (c *Client) SetOptions(opts *Options) {
	c.defaults = opts
}

// Capabilities 声明支持的操作
func (c *Client) Capabilities() CapabilitySet { return c.adapter.Capabilities() }

// Supports 是否支持某操作
func (c *Client) Supports(op Operation) bool { return c.adapter.Capabilities().Has(op) }

// TokenCountMode Token 计数方式
func (c *Client) TokenCountMode() TokenCountMode { return c.adapter.TokenCountMode() }

// Close 关闭底层 Adapter
func (c *Client) Close() error { return c.adapter.Close() }

// ═══════════════════════════════════════════════════════════════════════════
// 调用分发
// ═══════════════════════════════════════════════════════════════════════════

// Generate 同步生成
//
// model 为空时使用默认模型，两者都为空返回 KindConfiguration 错误。
// opts 中已设置的字段覆盖默认选项。
func (c *Client) Generate(ctx context.Context, model string, messages []Message, opts *Options) (*Response, error) {
	if err := c.check(OpGenerate); err != nil {
		return nil, err
	}
	model, err := c.resolveModel(model)
	if err != nil {
		return nil, err
	}
	merged := c.defaults.Merge(opts)
	ctx = c.withProxy(ctx, merged.Proxy)

	resp, err := c.adapter.Generate(ctx, model, messages, merged)
	if err != nil {
		return nil, c.enrichModelNotFound(ctx, model, err)
	}
	return resp, nil
}

// StreamGenerate 流式生成
func (c *Client) StreamGenerate(ctx context.Context, model string, messages []Message, opts *Options) (Stream, error) {
	if err := c.check(OpStreamGenerate); err != nil {
		return nil, err
	}
	model, err := c.resolveModel(model)
	if err != nil {
		return nil, err
	}
	merged := c.defaults.Merge(opts)
	ctx = c.withProxy(ctx, merged.Proxy)

	stream, err := c.adapter.StreamGenerate(ctx, model, messages, merged)
	if err != nil {
		return nil, c.enrichModelNotFound(ctx, model, err)
	}
	return stream, nil
}

// CountTokens Token 计数
func (c *Client) CountTokens(ctx context.Context, model string, messages []Message) (TokenCount, error) {
	if err := c.check(OpCountTokens); err != nil {
		return TokenCount{}, err
	}
	model, err := c.resolveModel(model)
	if err != nil {
		return TokenCount{}, err
	}
	return c.adapter.CountTokens(c.withProxy(ctx, c.defaultProxy()), model, messages)
}

// ListModels 列出模型
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if err := c.check(OpListModels); err != nil {
		return nil, err
	}
	return c.adapter.ListModels(c.withProxy(ctx, c.defaultProxy()))
}

// GetModel 获取模型信息
func (c *Client) GetModel(ctx context.Context, id string) (*ModelInfo, error) {
	if err := c.check(OpGetModel); err != nil {
		return nil, err
	}
	return c.adapter.GetModel(c.withProxy(ctx, c.defaultProxy()), id)
}

// CreateEmbedding 向量化，req.Model 为空时使用默认模型
func (c *Client) CreateEmbedding(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := c.check(OpCreateEmbedding); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, c.nilRequest(OpCreateEmbedding)
	}
	r := *req
	if r.Model == "" {
		r.Model = c.model
	}
	return c.adapter.CreateEmbedding(c.withProxy(ctx, c.defaultProxy()), &r)
}

// CreateImage 图像生成
func (c *Client) CreateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error) {
	if err := c.check(OpCreateImage); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, c.nilRequest(OpCreateImage)
	}
	return c.adapter.CreateImage(c.withProxy(ctx, c.defaultProxy()), req)
}

// UploadFile 上传文件
func (c *Client) UploadFile(ctx context.Context, req *FileUpload) (*FileObject, error) {
	if err := c.check(OpUploadFile); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, c.nilRequest(OpUploadFile)
	}
	return c.adapter.UploadFile(c.withProxy(ctx, c.defaultProxy()), req)
}

// ListFiles 列出文件
func (c *Client) ListFiles(ctx context.Context) ([]FileObject, error) {
	if err := c.check(OpListFiles); err != nil {
		return nil, err
	}
	return c.adapter.ListFiles(c.withProxy(ctx, c.defaultProxy()))
}

// GetFile 获取文件信息
func (c *Client) GetFile(ctx context.Context, id string) (*FileObject, error) {
	if err := c.check(OpGetFile); err != nil {
		return nil, err
	}
	return c.adapter.GetFile(c.withProxy(ctx, c.defaultProxy()), id)
}

// DeleteFile 删除文件
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	if err := c.check(OpDeleteFile); err != nil {
		return err
	}
	return c.adapter.DeleteFile(c.withProxy(ctx, c.defaultProxy()), id)
}

// GetFileContent 获取文件内容
func (c *Client) GetFileContent(ctx context.Context, id string) ([]byte, error) {
	if err := c.check(OpGetFileContent); err != nil {
		return nil, err
	}
	return c.adapter.GetFileContent(c.withProxy(ctx, c.defaultProxy()), id)
}

// Invoke 调用 Provider 扩展操作
func (c *Client) Invoke(ctx context.Context, op Operation, params map[string]any) ([]byte, error) {
	if err := c.check(op); err != nil {
		return nil, err
	}
	return c.adapter.Invoke(c.withProxy(ctx, c.defaultProxy()), op, params)
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助方法
// ═══════════════════════════════════════════════════════════════════════════

// check 分发前检查能力声明
func (c *Client) check(op Operation) error {
	if c.adapter.Capabilities().Has(op) {
		return nil
	}
	return NewUnsupportedError(c.provider, op)
}

// nilRequest 请求参数为 nil
func (c *Client) nilRequest(op Operation) error {
	return &Error{Kind: KindBadRequest, Provider: c.provider, Op: op, Message: "request is required"}
}

// resolveModel 显式参数优先，其次默认模型
func (c *Client) resolveModel(model string) (string, error) {
	if model != "" {
		return model, nil
	}
	if c.model != "" {
		return c.model, nil
	}
	return "", NewConfigError(c.provider, "model is required: pass it explicitly or call SetModel")
}

// defaultProxy 默认选项中的代理，供不接收 Options 的操作使用
func (c *Client) defaultProxy() string {
	if c.defaults == nil {
		return ""
	}
	return c.defaults.Proxy
}

// withProxy 单次调用参数优先，其次 context 中已有的代理，最后实例默认值
func (c *Client) withProxy(ctx context.Context, callProxy string) context.Context {
	if callProxy != "" {
		return WithProxy(ctx, callProxy)
	}
	if ProxyFromContext(ctx) != "" {
		return ctx
	}
	return WithProxy(ctx, c.proxy)
}

// enrichModelNotFound 模型不存在时在错误中附带可用模型列表
func (c *Client) enrichModelNotFound(ctx context.Context, model string, err error) error {
	e, ok := GetError(err)
	if !ok || !isModelNotFound(e) || !c.Supports(OpListModels) {
		return err
	}
	models, listErr := c.adapter.ListModels(ctx)
	if listErr != nil || len(models) == 0 {
		return err
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	enriched := *e
	enriched.Message = fmt.Sprintf("model %q not found, available models: %s", model, strings.Join(ids, ", "))
	if e.Message != "" {
		enriched.Message += " (" + e.Message + ")"
	}
	return &enriched
}

func isModelNotFound(e *Error) bool {
	if e.Kind != KindBadRequest {
		return false
	}
	code := strings.ToLower(e.Code)
	if strings.Contains(code, "model_not_found") || strings.Contains(code, "modelnotfound") {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "model") &&
		(strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "not exist"))
}
