package core

import (
	"context"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// Unsupported 未声明操作的默认实现
//
// Adapter 嵌入此结构体后只需实现自己声明的操作，
// 其余操作统一返回 KindUnsupportedOperation 错误。
//
//	type Client struct {
//	    *core.BaseClient
//	    core.Unsupported
//	}
type Unsupported struct {
	Provider string
}

func (u Unsupported) err(op llm.Operation) error {
	return llm.NewUnsupportedError(u.Provider, op)
}

func (u Unsupported) ListModels(context.Context) ([]llm.ModelInfo, error) {
	return nil, u.err(llm.OpListModels)
}

func (u Unsupported) GetModel(context.Context, string) (*llm.ModelInfo, error) {
	return nil, u.err(llm.OpGetModel)
}

func (u Unsupported) Generate(context.Context, string, []llm.Message, *llm.Options) (*llm.Response, error) {
	return nil, u.err(llm.OpGenerate)
}

func (u Unsupported) StreamGenerate(context.Context, string, []llm.Message, *llm.Options) (llm.Stream, error) {
	return nil, u.err(llm.OpStreamGenerate)
}

func (u Unsupported) CountTokens(context.Context, string, []llm.Message) (llm.TokenCount, error) {
	return llm.TokenCount{}, u.err(llm.OpCountTokens)
}

func (u Unsupported) CreateEmbedding(context.Context, *llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return nil, u.err(llm.OpCreateEmbedding)
}

func (u Unsupported) CreateImage(context.Context, *llm.ImageRequest) (*llm.ImageResponse, error) {
	return nil, u.err(llm.OpCreateImage)
}

func (u Unsupported) UploadFile(context.Context, *llm.FileUpload) (*llm.FileObject, error) {
	return nil, u.err(llm.OpUploadFile)
}

func (u Unsupported) ListFiles(context.Context) ([]llm.FileObject, error) {
	return nil, u.err(llm.OpListFiles)
}

func (u Unsupported) GetFile(context.Context, string) (*llm.FileObject, error) {
	return nil, u.err(llm.OpGetFile)
}

func (u Unsupported) DeleteFile(context.Context, string) error {
	return u.err(llm.OpDeleteFile)
}

func (u Unsupported) GetFileContent(context.Context, string) ([]byte, error) {
	return nil, u.err(llm.OpGetFileContent)
}

// Invoke 未知扩展操作
func (u Unsupported) Invoke(_ context.Context, op llm.Operation, _ map[string]any) ([]byte, error) {
	return nil, u.err(op)
}
