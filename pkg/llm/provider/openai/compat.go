package openai

import (
	"context"
	"net/http"
	"net/url"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/protocol/openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// 端点配置
// ═══════════════════════════════════════════════════════════════════════════

// Endpoints OpenAI 兼容服务的资源路径，相对于 BaseURL
type Endpoints struct {
	Chat       string
	Embeddings string
	Models     string
	Files      string
}

// DefaultEndpoints OpenAI 官方路径
var DefaultEndpoints = Endpoints{
	Chat:       "/chat/completions",
	Embeddings: "/embeddings",
	Models:     "/models",
	Files:      "/files",
}

// ═══════════════════════════════════════════════════════════════════════════
// Compat
// ═══════════════════════════════════════════════════════════════════════════

// Compat OpenAI 兼容服务的通用实现
//
// Provider 持有一个 Compat 并按自己声明的能力转发调用，
// HTTP 通信、错误映射与流式解码全部经由 core.BaseClient。
type Compat struct {
	base        *core.BaseClient
	adapter     *openai.Adapter
	transformer *core.Transformer
	endpoints   Endpoints
}

// NewCompat 创建通用实现，endpoints 中为空的路径使用默认值
func NewCompat(base *core.BaseClient, endpoints Endpoints) *Compat {
	if endpoints.Chat == "" {
		endpoints.Chat = DefaultEndpoints.Chat
	}
	if endpoints.Embeddings == "" {
		endpoints.Embeddings = DefaultEndpoints.Embeddings
	}
	if endpoints.Models == "" {
		endpoints.Models = DefaultEndpoints.Models
	}
	if endpoints.Files == "" {
		endpoints.Files = DefaultEndpoints.Files
	}

	adapter := openai.NewAdapter()
	return &Compat{
		base:        base,
		adapter:     adapter,
		transformer: core.NewTransformer(adapter, base.Mapper()),
		endpoints:   endpoints,
	}
}

// BuildRequest 构建 chat/completions 请求，推理模型的采样参数在此修正
func (c *Compat) BuildRequest(model string, messages []llm.Message, opts *llm.Options, stream bool) (goopenai.ChatCompletionRequest, map[string]any) {
	req, extra := c.adapter.BuildChatRequest(model, messages, opts, stream)
	AdaptForModel(&req, extra)
	return req, extra
}

// ═══════════════════════════════════════════════════════════════════════════
// 生成
// ═══════════════════════════════════════════════════════════════════════════

// Generate 同步生成
func (c *Compat) Generate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	return c.GenerateAt(ctx, c.endpoints.Chat, model, messages, opts)
}

// GenerateAt 在指定路径上同步生成
func (c *Compat) GenerateAt(ctx context.Context, path, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	body, extra := c.BuildRequest(model, messages, opts, false)
	data, err := c.base.Do(ctx, &core.Request{
		Op:    llm.OpGenerate,
		Path:  path,
		Body:  body,
		Extra: extra,
	})
	if err != nil {
		return nil, err
	}
	return c.ParseResponse(model, data)
}

// ParseResponse 规范化响应体，响应未带模型名时使用请求的模型
func (c *Compat) ParseResponse(model string, data []byte) (*llm.Response, error) {
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
func (c *Compat) StreamGenerate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (llm.Stream, error) {
	return c.StreamGenerateAt(ctx, c.endpoints.Chat, model, messages, opts)
}

// StreamGenerateAt 在指定路径上流式生成
func (c *Compat) StreamGenerateAt(ctx context.Context, path, model string, messages []llm.Message, opts *llm.Options) (llm.Stream, error) {
	body, extra := c.BuildRequest(model, messages, opts, true)
	return c.base.Stream(ctx, &core.Request{
		Op:    llm.OpStreamGenerate,
		Path:  path,
		Body:  body,
		Extra: extra,
	}, core.FramingSSE, openai.NewEventHandler())
}

// ═══════════════════════════════════════════════════════════════════════════
// 模型与向量
// ═══════════════════════════════════════════════════════════════════════════

// ListModels 列出模型
func (c *Compat) ListModels(ctx context.Context) ([]llm.ModelInfo, error) {
	data, err := c.base.Do(ctx, &core.Request{Op: llm.OpListModels, Method: http.MethodGet, Path: c.endpoints.Models})
	if err != nil {
		return nil, err
	}
	models, err := openai.ParseModelList(data)
	if err != nil {
		return nil, c.decode(llm.OpListModels, data, err)
	}
	return models, nil
}

// GetModel 获取模型信息
func (c *Compat) GetModel(ctx context.Context, id string) (*llm.ModelInfo, error) {
	data, err := c.base.Do(ctx, &core.Request{
		Op:     llm.OpGetModel,
		Method: http.MethodGet,
		Path:   c.endpoints.Models + "/" + url.PathEscape(id),
	})
	if err != nil {
		return nil, err
	}
	model, err := openai.ParseModel(data)
	if err != nil {
		return nil, c.decode(llm.OpGetModel, data, err)
	}
	return model, nil
}

// CreateEmbedding 向量化，req.Extra 合并进请求体
func (c *Compat) CreateEmbedding(ctx context.Context, req *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	if err := core.RequireRequest(c.base.Name(), llm.OpCreateEmbedding, req); err != nil {
		return nil, err
	}
	data, err := c.base.Do(ctx, &core.Request{
		Op:    llm.OpCreateEmbedding,
		Path:  c.endpoints.Embeddings,
		Body:  openai.BuildEmbeddingRequest(req),
		Extra: req.Extra,
	})
	if err != nil {
		return nil, err
	}
	resp, err := openai.ParseEmbeddingResponse(data)
	if err != nil {
		return nil, c.decode(llm.OpCreateEmbedding, data, err)
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return resp, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 文件
// ═══════════════════════════════════════════════════════════════════════════

// UploadFile 以 multipart 上传，purpose 为表单字段
func (c *Compat) UploadFile(ctx context.Context, req *llm.FileUpload) (*llm.FileObject, error) {
	if err := core.RequireRequest(c.base.Name(), llm.OpUploadFile, req); err != nil {
		return nil, err
	}
	data, err := c.base.Do(ctx, &core.Request{
		Op:   llm.OpUploadFile,
		Path: c.endpoints.Files,
		Upload: &core.Upload{
			Filename: req.Filename,
			Reader:   req.Content,
			Form:     map[string]string{"purpose": req.Purpose},
		},
	})
	if err != nil {
		return nil, err
	}
	f, err := openai.ParseFile(data)
	if err != nil {
		return nil, c.decode(llm.OpUploadFile, data, err)
	}
	return f, nil
}

// ListFiles 列出文件
func (c *Compat) ListFiles(ctx context.Context) ([]llm.FileObject, error) {
	data, err := c.base.Do(ctx, &core.Request{Op: llm.OpListFiles, Method: http.MethodGet, Path: c.endpoints.Files})
	if err != nil {
		return nil, err
	}
	files, err := openai.ParseFileList(data)
	if err != nil {
		return nil, c.decode(llm.OpListFiles, data, err)
	}
	return files, nil
}

// GetFile 获取文件信息
func (c *Compat) GetFile(ctx context.Context, id string) (*llm.FileObject, error) {
	data, err := c.base.Do(ctx, &core.Request{Op: llm.OpGetFile, Method: http.MethodGet, Path: c.filePath(id)})
	if err != nil {
		return nil, err
	}
	f, err := openai.ParseFile(data)
	if err != nil {
		return nil, c.decode(llm.OpGetFile, data, err)
	}
	return f, nil
}

// DeleteFile 删除文件
func (c *Compat) DeleteFile(ctx context.Context, id string) error {
	_, err := c.base.Do(ctx, &core.Request{Op: llm.OpDeleteFile, Method: http.MethodDelete, Path: c.filePath(id)})
	return err
}

// GetFileContent 获取文件内容，响应体原样返回
func (c *Compat) GetFileContent(ctx context.Context, id string) ([]byte, error) {
	return c.base.Do(ctx, &core.Request{
		Op:     llm.OpGetFileContent,
		Method: http.MethodGet,
		Path:   c.filePath(id) + "/content",
		Raw:    true,
	})
}

func (c *Compat) filePath(id string) string {
	return c.endpoints.Files + "/" + url.PathEscape(id)
}

func (c *Compat) decode(op llm.Operation, data []byte, err error) error {
	e := c.base.Mapper().Decode(http.StatusOK, data, err)
	e.Op = op
	return e
}
