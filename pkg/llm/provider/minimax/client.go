// Package minimax 提供 MiniMax 的 Adapter
//
// abab5.5-chat 使用 chatcompletion_pro 接口（sender_type 消息格式），
// 其他模型使用 OpenAI 兼容的 chatcompletion_v2。所有请求带 GroupId 查询参数，
// 业务错误以 HTTP 200 + base_resp.status_code 返回。
package minimax

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/protocol/minimax"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/openai"
)

const (
	// Name Provider 名称
	Name = "minimax"

	// DefaultBaseURL 默认 API 地址
	DefaultBaseURL = "https://api.minimax.chat/v1"

	EnvAPIKey  = "MINIMAX_API_KEY"
	EnvGroupID = "MINIMAX_GROUP_ID"
)

// OpTextToSpeech 语音合成扩展操作
const OpTextToSpeech llm.Operation = "minimax.text_to_speech"

const shapePro = "pro"

var routes = core.Routes{
	Table: []core.Route{
		{Model: "abab5.5-chat", Path: "/text/chatcompletion_pro", Framing: core.FramingSSE, Shape: shapePro},
	},
	Fallback: &core.Route{Path: "/text/chatcompletion_v2", Framing: core.FramingSSE},
}

var capabilities = llm.NewCapabilitySet(
	llm.OpGenerate, llm.OpStreamGenerate, llm.OpCreateEmbedding, llm.OpCreateImage,
	llm.OpUploadFile, llm.OpListFiles, llm.OpGetFile, llm.OpDeleteFile, llm.OpGetFileContent,
	OpTextToSpeech,
)

// ═══════════════════════════════════════════════════════════════════════════
// 配置
// ═══════════════════════════════════════════════════════════════════════════

// Config 客户端配置
type Config struct {
	APIKey  string
	GroupID string
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c == nil || c.APIKey == "" {
		return llm.NewConfigError(Name, "API key is required")
	}
	if c.GroupID == "" {
		return llm.NewConfigError(Name, "group id is required")
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

// BuildQuery 每个请求都带 GroupId
func (c *Config) BuildQuery() map[string]string {
	return map[string]string{"GroupId": c.GroupID}
}

// ProviderName 返回 Provider 名称
func (c *Config) ProviderName() string { return Name }

// ═══════════════════════════════════════════════════════════════════════════
// 客户端
// ═══════════════════════════════════════════════════════════════════════════

// Client MiniMax Adapter
type Client struct {
	*core.BaseClient
	core.Unsupported

	chat *openai.Compat
	pro  *minimax.ProAdapter

	proTransformer *core.Transformer
}

// New 创建客户端
func New(config *Config, settings llm.AdapterSettings) (*Client, error) {
	mapper := core.NewErrorMapper(Name,
		minimax.ErrorMatcher(),
		core.OpenAIErrorMatcher(nil),
	)
	base, err := core.NewBaseClient(config, mapper, settings)
	if err != nil {
		return nil, err
	}
	pro := minimax.NewProAdapter()
	return &Client{
		BaseClient:     base,
		Unsupported:    core.Unsupported{Provider: Name},
		chat:           openai.NewCompat(base, openai.Endpoints{Chat: "/text/chatcompletion_v2"}),
		pro:            pro,
		proTransformer: core.NewTransformer(pro, mapper),
	}, nil
}

// Spec 注册项
func Spec() llm.ProviderSpec {
	return llm.ProviderSpec{
		Name: Name,
		Credentials: llm.CredentialSpec{
			Required: []llm.CredentialKey{llm.CredAPIKey, llm.CredGroupID},
			Env: map[llm.CredentialKey]string{
				llm.CredAPIKey:  EnvAPIKey,
				llm.CredGroupID: EnvGroupID,
			},
		},
		Factory: func(creds llm.Credentials, settings llm.AdapterSettings) (llm.Adapter, error) {
			return New(&Config{APIKey: creds.APIKey, GroupID: creds.GroupID, BaseURL: creds.APIURL}, settings)
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
	if route.Shape != shapePro {
		return c.chat.GenerateAt(ctx, route.Path, model, messages, opts)
	}

	data, err := c.Do(ctx, &core.Request{
		Op:    llm.OpGenerate,
		Path:  route.Path,
		Body:  c.pro.BuildRequest(model, messages, opts, false),
		Extra: extraOf(opts),
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.proTransformer.ParseResponse(data)
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
	if route.Shape != shapePro {
		return c.chat.StreamGenerateAt(ctx, route.Stream(), model, messages, opts)
	}
	return c.Stream(ctx, &core.Request{
		Op:    llm.OpStreamGenerate,
		Path:  route.Stream(),
		Body:  c.pro.BuildRequest(model, messages, opts, true),
		Extra: extraOf(opts),
	}, route.Framing, minimax.NewProEventHandler())
}

// ═══════════════════════════════════════════════════════════════════════════
// 向量与图像
// ═══════════════════════════════════════════════════════════════════════════

// CreateEmbedding 向量化，Extra["type"] 选择 db 或 query
func (c *Client) CreateEmbedding(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	if err := core.RequireRequest(Name, llm.OpCreateEmbedding, req); err != nil {
		return nil, err
	}
	data, err := c.Do(ctx, &core.Request{
		Op:    llm.OpCreateEmbedding,
		Path:  "/embeddings",
		Body:  minimax.BuildEmbeddingRequest(req),
		Extra: core.WithoutKeys(req.Extra, "type"),
	})
	if err != nil {
		return nil, err
	}
	return minimax.ParseEmbeddingResponse(req.Model, data), nil
}

// CreateImage 图像生成，Size 作为 aspect_ratio 发送
func (c *Client) CreateImage(ctx context.Context, req *llm.ImageRequest) (*llm.ImageResponse, error) {
	if err := core.RequireRequest(Name, llm.OpCreateImage, req); err != nil {
		return nil, err
	}
	data, err := c.Do(ctx, &core.Request{
		Op:    llm.OpCreateImage,
		Path:  "/images/generations",
		Body:  minimax.BuildImageRequest(req),
		Extra: req.Extra,
	})
	if err != nil {
		return nil, err
	}
	return minimax.ParseImageResponse(data), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 文件
// ═══════════════════════════════════════════════════════════════════════════

// UploadFile 上传文件
func (c *Client) UploadFile(ctx context.Context, req *llm.FileUpload) (*llm.FileObject, error) {
	if err := core.RequireRequest(Name, llm.OpUploadFile, req); err != nil {
		return nil, err
	}
	data, err := c.Do(ctx, &core.Request{
		Op:   llm.OpUploadFile,
		Path: "/files/upload",
		Upload: &core.Upload{
			Filename: req.Filename,
			Reader:   req.Content,
			Form:     map[string]string{"purpose": req.Purpose},
		},
	})
	if err != nil {
		return nil, err
	}
	return minimax.ParseFile(data), nil
}

// ListFiles 列出文件
func (c *Client) ListFiles(ctx context.Context) ([]llm.FileObject, error) {
	data, err := c.Do(ctx, &core.Request{Op: llm.OpListFiles, Method: http.MethodGet, Path: "/files/list"})
	if err != nil {
		return nil, err
	}
	return minimax.ParseFileList(data), nil
}

// GetFile 获取文件信息
func (c *Client) GetFile(ctx context.Context, id string) (*llm.FileObject, error) {
	data, err := c.Do(ctx, &core.Request{
		Op:     llm.OpGetFile,
		Method: http.MethodGet,
		Path:   "/files/retrieve",
		Query:  map[string]string{"file_id": id},
	})
	if err != nil {
		return nil, err
	}
	return minimax.ParseFile(data), nil
}

// DeleteFile 删除文件
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	_, err := c.Do(ctx, &core.Request{
		Op:   llm.OpDeleteFile,
		Path: "/files/delete",
		Body: map[string]any{"file_id": id},
	})
	return err
}

// GetFileContent 获取文件内容
func (c *Client) GetFileContent(ctx context.Context, id string) ([]byte, error) {
	return c.Do(ctx, &core.Request{
		Op:     llm.OpGetFileContent,
		Method: http.MethodGet,
		Path:   "/files/retrieve_content",
		Query:  map[string]string{"file_id": id},
		Raw:    true,
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 扩展操作
// ═══════════════════════════════════════════════════════════════════════════

// Invoke 扩展操作
//
// minimax.text_to_speech 的 params 为原生请求体（text、voice_id 等），返回原始响应。
func (c *Client) Invoke(ctx context.Context, op llm.Operation, params map[string]any) ([]byte, error) {
	switch op {
	case OpTextToSpeech:
		if _, err := core.RequireParam(Name, op, params, "text"); err != nil {
			return nil, err
		}
		return c.Do(ctx, &core.Request{Op: op, Path: "/text_to_speech", Body: params})
	default:
		return c.Unsupported.Invoke(ctx, op, params)
	}
}

func extraOf(opts *llm.Options) map[string]any {
	if opts == nil {
		return nil
	}
	return opts.Extra
}

// 确保 Client 实现了 llm.Adapter 接口
var _ llm.Adapter = (*Client)(nil)
