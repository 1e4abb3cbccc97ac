package llm

import (
	"context"
	"io"
	"slices"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// 操作定义
// ═══════════════════════════════════════════════════════════════════════════

// Operation 能力契约中的操作名
//
// 扩展操作以 "<provider>." 为前缀，通过 [Adapter.Invoke] 调用。
type Operation string

const (
	OpListModels      Operation = "list_models"
	OpGetModel        Operation = "get_model"
	OpGenerate        Operation = "generate"
	OpStreamGenerate  Operation = "stream_generate"
	OpCountTokens     Operation = "count_tokens"
	OpCreateEmbedding Operation = "create_embedding"
	OpCreateImage     Operation = "create_image"
	OpUploadFile      Operation = "upload_file"
	OpListFiles       Operation = "list_files"
	OpGetFile         Operation = "get_file"
	OpDeleteFile      Operation = "delete_file"
	OpGetFileContent  Operation = "get_file_content"
)

// CoreOperations 契约中的全部标准操作
var CoreOperations = []Operation{
	OpListModels, OpGetModel, OpGenerate, OpStreamGenerate, OpCountTokens,
	OpCreateEmbedding, OpCreateImage, OpUploadFile, OpListFiles, OpGetFile,
	OpDeleteFile, OpGetFileContent,
}

// IsExtension 是否为 Provider 扩展操作
func (o Operation) IsExtension() bool {
	return strings.Contains(string(o), ".")
}

// ═══════════════════════════════════════════════════════════════════════════
// 能力集合
// ═══════════════════════════════════════════════════════════════════════════

// CapabilitySet Adapter 声明支持的操作集合
type CapabilitySet map[Operation]struct{}

// NewCapabilitySet 创建能力集合
func NewCapabilitySet(ops ...Operation) CapabilitySet {
	s := make(CapabilitySet, len(ops))
	for _, op := range ops {
		s[op] = struct{}{}
	}
	return s
}

// Has 是否声明了某操作
func (s CapabilitySet) Has(op Operation) bool {
	_, ok := s[op]
	return ok
}

// List 返回排序后的操作列表
func (s CapabilitySet) List() []Operation {
	ops := make([]Operation, 0, len(s))
	for op := range s {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// ═══════════════════════════════════════════════════════════════════════════
// Token 计数
// ═══════════════════════════════════════════════════════════════════════════

// TokenCountMode Token 计数方式
type TokenCountMode string

const (
	// TokenCountExact 由 Provider 端点精确计算
	TokenCountExact TokenCountMode = "exact"

	// TokenCountEstimated 本地启发式估算，不可用于计费
	TokenCountEstimated TokenCountMode = "estimated"
)

// TokenCount Token 计数结果
type TokenCount struct {
	Tokens int64          `json:"tokens"`
	Mode   TokenCountMode `json:"mode"`
}

// Exact 是否为精确计数
func (c TokenCount) Exact() bool {
	return c.Mode == TokenCountExact
}

// ═══════════════════════════════════════════════════════════════════════════
// Adapter 接口
// ═══════════════════════════════════════════════════════════════════════════

// Adapter 能力契约
//
// 每个 Provider 实现完整接口，但只声明其中的一个子集。
// 未声明的操作返回 KindUnsupportedOperation 错误，错误中包含操作名与 Provider 名。
// Adapter 在生命周期内绑定一个 Provider 与一组不可变凭证。
type Adapter interface {
	// Name Provider 名称
	Name() string

	// Capabilities 声明支持的操作
	Capabilities() CapabilitySet

	// TokenCountMode CountTokens 使用的计数方式
	TokenCountMode() TokenCountMode

	ListModels(ctx context.Context) ([]ModelInfo, error)
	GetModel(ctx context.Context, id string) (*ModelInfo, error)

	// Generate 同步生成，返回完整响应或错误，不返回部分结果
	Generate(ctx context.Context, model string, messages []Message, opts *Options) (*Response, error)

	// StreamGenerate 流式生成
	//
	// 返回的 Stream 必须被 Close，连接随之释放。
	StreamGenerate(ctx context.Context, model string, messages []Message, opts *Options) (Stream, error)

	CountTokens(ctx context.Context, model string, messages []Message) (TokenCount, error)
	CreateEmbedding(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
	CreateImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error)

	UploadFile(ctx context.Context, req *FileUpload) (*FileObject, error)
	ListFiles(ctx context.Context) ([]FileObject, error)
	GetFile(ctx context.Context, id string) (*FileObject, error)
	DeleteFile(ctx context.Context, id string) error
	GetFileContent(ctx context.Context, id string) ([]byte, error)

	// Invoke 调用 Provider 扩展操作，返回原始响应体
	Invoke(ctx context.Context, op Operation, params map[string]any) ([]byte, error)

	// Close 释放空闲连接
	Close() error
}

// ═══════════════════════════════════════════════════════════════════════════
// 模型与文件
// ═══════════════════════════════════════════════════════════════════════════

// ModelInfo 模型信息
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	OwnedBy     string `json:"owned_by,omitempty"`
	Created     int64  `json:"created,omitempty"`
}

// FileUpload 文件上传请求
//
// 内容由调用方以 io.Reader 提供，本库不读取本地文件。
type FileUpload struct {
	Filename string
	Purpose  string
	Content  io.Reader
}

// FileObject Provider 侧文件对象
type FileObject struct {
	ID        string `json:"id"`
	Filename  string `json:"filename,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	Status    string `json:"status,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// Embedding / Image
// ═══════════════════════════════════════════════════════════════════════════

// EmbeddingRequest 向量化请求
type EmbeddingRequest struct {
	Model string         `json:"model"`
	Input []string       `json:"input"`
	Extra map[string]any `json:"extra,omitempty"`
}

// EmbeddingResponse 向量化响应
//
// Vectors 与 Input 一一对应。
type EmbeddingResponse struct {
	Model   string      `json:"model,omitempty"`
	Vectors [][]float64 `json:"vectors"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// ImageRequest 图像生成请求
type ImageRequest struct {
	Model  string         `json:"model"`
	Prompt string         `json:"prompt"`
	N      int            `json:"n,omitempty"`
	Size   string         `json:"size,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// Image 生成的图像（URL 或 base64 二选一）
type Image struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// ImageResponse 图像生成响应
type ImageResponse struct {
	Images []Image `json:"images"`
}
