// Package wenxin 提供百度文心（千帆 wenxinworkshop）的 Adapter
//
// 鉴权使用 OAuth client_credentials：api_key 与 secret_key 换取 access_token，
// 之后每个请求以 access_token 查询参数携带。access_token 在首次调用时获取并缓存，
// 过期前复用；服务端返回 110/111 时作废缓存，下一次调用重新获取。
package wenxin

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/protocol/wenxin"
)

const (
	// Name Provider 名称
	Name = "wenxin"

	// DefaultBaseURL 默认 API 地址
	DefaultBaseURL = "https://aip.baidubce.com"

	EnvAPIKey    = "WENXIN_API_KEY"
	EnvSecretKey = "WENXIN_SECRET_KEY"
)

const chatPrefix = "/rpc/2.0/ai_custom/v1/wenxinworkshop/chat/"

// routes 模型到接口路径的映射，未登记的模型返回 BadRequest
var routes = core.Routes{
	Table: []core.Route{
		{Model: "ERNIE-Bot", Path: chatPrefix + "completions", Framing: core.FramingSSE},
		{Model: "ERNIE-Bot-turbo", Path: chatPrefix + "eb-instant", Framing: core.FramingSSE},
		{Model: "ERNIE-Bot-4", Path: chatPrefix + "completions_pro", Framing: core.FramingSSE},
		{Model: "BLOOMZ-7B", Path: chatPrefix + "bloomz_7b1", Framing: core.FramingSSE},
	},
}

// tokenMargin 提前于 expires_in 作废缓存
const tokenMargin = 5 * time.Minute

var capabilities = llm.NewCapabilitySet(
	llm.OpListModels, llm.OpGetModel,
	llm.OpGenerate, llm.OpStreamGenerate, llm.OpCountTokens,
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
	Headers   map[string]string
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil || c.APIKey == "" {
		return llm.NewConfigError(Name, "API key is required")
	}
	if c.SecretKey == "" {
		return llm.NewConfigError(Name, "secret key is required")
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

// BuildHeaders 认证信息走查询参数，这里只有附加请求头
func (c *Config) BuildHeaders() map[string]string {
	return core.CloneHeaders(nil, c.Headers)
}

// ProviderName 返回 Provider 名称
func (c *Config) ProviderName() string { return Name }

// ═══════════════════════════════════════════════════════════════════════════
// 客户端
// ═══════════════════════════════════════════════════════════════════════════

// Client 文心 Adapter
type Client struct {
	*core.BaseClient
	core.Unsupported

	config      *Config
	adapter     *wenxin.Adapter
	transformer *core.Transformer

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// New 创建客户端，不发起网络请求
func New(config *Config, settings llm.AdapterSettings) (*Client, error) {
	mapper := core.NewErrorMapper(Name, wenxin.ErrorMatcher())
	base, err := core.NewBaseClient(config, mapper, settings)
	if err != nil {
		return nil, err
	}
	adapter := wenxin.NewAdapter()
	return &Client{
		BaseClient:  base,
		Unsupported: core.Unsupported{Provider: Name},
		config:      config,
		adapter:     adapter,
		transformer: core.NewTransformer(adapter, mapper),
		now:         time.Now,
	}, nil
}

// Spec 注册项
func Spec() llm.ProviderSpec {
	return llm.ProviderSpec{
		Name: Name,
		Credentials: llm.CredentialSpec{
			Required: []llm.CredentialKey{llm.CredAPIKey, llm.CredSecretKey},
			Env: map[llm.CredentialKey]string{
				llm.CredAPIKey:    EnvAPIKey,
				llm.CredSecretKey: EnvSecretKey,
			},
		},
		Factory: func(creds llm.Credentials, settings llm.AdapterSettings) (llm.Adapter, error) {
			return New(&Config{APIKey: creds.APIKey, SecretKey: creds.SecretKey, BaseURL: creds.APIURL}, settings)
		},
	}
}

// Capabilities 声明支持的操作
func (c *Client) Capabilities() llm.CapabilitySet { return capabilities }

// TokenCountMode 本地估算
func (c *Client) TokenCountMode() llm.TokenCountMode { return llm.TokenCountEstimated }

// ListModels 路由表中登记的模型
func (c *Client) ListModels(context.Context) ([]llm.ModelInfo, error) {
	ids := routes.Models()
	out := make([]llm.ModelInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, llm.ModelInfo{ID: id, OwnedBy: "baidu"})
	}
	return out, nil
}

// GetModel 在路由表中查找
func (c *Client) GetModel(ctx context.Context, id string) (*llm.ModelInfo, error) {
	models, _ := c.ListModels(ctx)
	for _, m := range models {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, &llm.Error{
		Kind:     llm.KindBadRequest,
		Provider: Name,
		Op:       llm.OpGetModel,
		Message:  fmt.Sprintf("model %q not found", id),
	}
}

// CountTokens 本地启发式估算
func (c *Client) CountTokens(_ context.Context, _ string, messages []llm.Message) (llm.TokenCount, error) {
	return core.EstimateTokens(messages), nil
}

// Generate 同步生成
func (c *Client) Generate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	route, err := routes.Resolve(Name, llm.OpGenerate, model)
	if err != nil {
		return nil, err
	}
	query, err := c.authQuery(ctx, llm.OpGenerate)
	if err != nil {
		return nil, err
	}

	data, err := c.Do(ctx, &core.Request{
		Op:    llm.OpGenerate,
		Path:  route.Path,
		Query: query,
		Body:  c.adapter.BuildRequest(messages, opts, false),
		Extra: extraOf(opts),
	})
	if err != nil {
		return nil, c.checkToken(err)
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
	route, err := routes.Resolve(Name, llm.OpStreamGenerate, model)
	if err != nil {
		return nil, err
	}
	query, err := c.authQuery(ctx, llm.OpStreamGenerate)
	if err != nil {
		return nil, err
	}

	stream, err := c.Stream(ctx, &core.Request{
		Op:    llm.OpStreamGenerate,
		Path:  route.Stream(),
		Query: query,
		Body:  c.adapter.BuildRequest(messages, opts, true),
		Extra: extraOf(opts),
	}, route.Framing, wenxin.NewEventHandler())
	if err != nil {
		return nil, c.checkToken(err)
	}
	return stream, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// access_token
// ═══════════════════════════════════════════════════════════════════════════

// authQuery 返回带 access_token 的查询参数
func (c *Client) authQuery(ctx context.Context, op llm.Operation) (map[string]string, error) {
	token, err := c.accessToken(ctx, op)
	if err != nil {
		return nil, err
	}
	return map[string]string{"access_token": token}, nil
}

// accessToken 读取缓存，缺失或过期时获取新 token
//
// 获取期间持有锁，并发调用只会发出一次 OAuth 请求。
func (c *Client) accessToken(ctx context.Context, op llm.Operation) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	data, err := c.Do(ctx, &core.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   "/oauth/2.0/token",
		Query: map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.config.APIKey,
			"client_secret": c.config.SecretKey,
		},
	})
	if err != nil {
		return "", err
	}
	tok, err := wenxin.ParseAccessToken(data)
	if err != nil {
		e := c.Mapper().Decode(http.StatusOK, data, err)
		e.Op = op
		e.Kind = llm.KindAuthorization
		return "", e
	}

	c.token = tok.Token
	c.expiresAt = c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenMargin)
	c.Logger().Debug("access token refreshed", "expires_in", tok.ExpiresIn)
	return c.token, nil
}

// checkToken token 失效时清空缓存，错误原样返回
func (c *Client) checkToken(err error) error {
	e, ok := llm.GetError(err)
	if !ok || (e.Code != wenxin.CodeTokenInvalid && e.Code != wenxin.CodeTokenExpired) {
		return err
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.Logger().Debug("access token invalidated", "code", e.Code)
	return err
}

func extraOf(opts *llm.Options) map[string]any {
	if opts == nil {
		return nil
	}
	return opts.Extra
}

// 确保 Client 实现了 llm.Adapter 接口
var _ llm.Adapter = (*Client)(nil)
