package openai

import (
	"encoding/json"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// Embedding
// ═══════════════════════════════════════════════════════════════════════════

// BuildEmbeddingRequest 构建 embeddings 请求
func BuildEmbeddingRequest(req *llm.EmbeddingRequest) goopenai.EmbeddingRequest {
	return goopenai.EmbeddingRequest{
		Input: req.Input,
		Model: goopenai.EmbeddingModel(req.Model),
	}
}

// ParseEmbeddingResponse 解析 embeddings 响应，向量按 index 排列
func ParseEmbeddingResponse(body []byte) (*llm.EmbeddingResponse, error) {
	var resp goopenai.EmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	vectors := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vec := make([]float64, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float64(v)
		}
		vectors[idx] = vec
	}

	out := &llm.EmbeddingResponse{
		Model:   string(resp.Model),
		Vectors: vectors,
	}
	if gjson.GetBytes(body, "usage").IsObject() {
		out.Usage = ConvertUsage(resp.Usage)
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Image
// ═══════════════════════════════════════════════════════════════════════════

// BuildImageRequest 构建 images/generations 请求
func BuildImageRequest(req *llm.ImageRequest) goopenai.ImageRequest {
	return goopenai.ImageRequest{
		Prompt: req.Prompt,
		Model:  req.Model,
		N:      req.N,
		Size:   req.Size,
	}
}

// ParseImageResponse 解析 images/generations 响应
func ParseImageResponse(body []byte) (*llm.ImageResponse, error) {
	var resp goopenai.ImageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := &llm.ImageResponse{Images: make([]llm.Image, 0, len(resp.Data))}
	for _, d := range resp.Data {
		out.Images = append(out.Images, llm.Image{URL: d.URL, B64JSON: d.B64JSON})
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Model
// ═══════════════════════════════════════════════════════════════════════════

// ParseModelList 解析 /models 响应
func ParseModelList(body []byte) ([]llm.ModelInfo, error) {
	var list goopenai.ModelsList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}
	out := make([]llm.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, convertModel(m))
	}
	return out, nil
}

// ParseModel 解析 /models/{id} 响应
func ParseModel(body []byte) (*llm.ModelInfo, error) {
	var m goopenai.Model
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	info := convertModel(m)
	return &info, nil
}

func convertModel(m goopenai.Model) llm.ModelInfo {
	return llm.ModelInfo{
		ID:      m.ID,
		OwnedBy: m.OwnedBy,
		Created: m.CreatedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// File
// ═══════════════════════════════════════════════════════════════════════════

// ParseFile 解析文件对象
func ParseFile(body []byte) (*llm.FileObject, error) {
	var f goopenai.File
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, err
	}
	obj := ConvertFile(f)
	return &obj, nil
}

// ParseFileList 解析文件列表（data 数组）
func ParseFileList(body []byte) ([]llm.FileObject, error) {
	var list goopenai.FilesList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}
	out := make([]llm.FileObject, 0, len(list.Files))
	for _, f := range list.Files {
		out = append(out, ConvertFile(f))
	}
	return out, nil
}

// ConvertFile 转换文件对象
func ConvertFile(f goopenai.File) llm.FileObject {
	return llm.FileObject{
		ID:        f.ID,
		Filename:  f.FileName,
		Purpose:   f.Purpose,
		Bytes:     int64(f.Bytes),
		CreatedAt: f.CreatedAt,
		Status:    f.Status,
	}
}
