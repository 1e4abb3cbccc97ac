package minimax

import (
	"github.com/tidwall/gjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// base_resp 错误
// ═══════════════════════════════════════════════════════════════════════════

// ErrorMatcher base_resp.status_code 业务错误，0 为成功
func ErrorMatcher() core.BodyMatcher {
	return core.CodeTable{
		CodePath:    "base_resp.status_code",
		MessagePath: "base_resp.status_msg",
		Success:     []string{"0"},
		Kinds: map[string]llm.ErrorKind{
			"1000": llm.KindServerUnavailable,
			"1001": llm.KindServerUnavailable,
			"1002": llm.KindRateLimit,
			"1004": llm.KindAuthorization,
			"1008": llm.KindServerUnavailable,
			"1013": llm.KindServerUnavailable,
			"1027": llm.KindBadRequest,
			"1039": llm.KindRateLimit,
			"2013": llm.KindBadRequest,
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Embedding
// ═══════════════════════════════════════════════════════════════════════════

// 向量用途：db 用于入库，query 用于检索
const (
	EmbeddingTypeDB    = "db"
	EmbeddingTypeQuery = "query"
)

// BuildEmbeddingRequest 构建 embeddings 请求，type 取自 Extra["type"]，默认 db
func BuildEmbeddingRequest(req *llm.EmbeddingRequest) map[string]any {
	typ := EmbeddingTypeDB
	if v, ok := req.Extra["type"].(string); ok && v != "" {
		typ = v
	}
	return map[string]any{
		"model": req.Model,
		"texts": req.Input,
		"type":  typ,
	}
}

// ParseEmbeddingResponse {"vectors": [[...]], "total_tokens": 12, "base_resp": {...}}
func ParseEmbeddingResponse(model string, body []byte) *llm.EmbeddingResponse {
	root := gjson.ParseBytes(body)
	out := &llm.EmbeddingResponse{Model: model}
	root.Get("vectors").ForEach(func(_, vec gjson.Result) bool {
		values := vec.Array()
		v := make([]float64, len(values))
		for i, x := range values {
			v[i] = x.Float()
		}
		out.Vectors = append(out.Vectors, v)
		return true
	})
	if t := root.Get("total_tokens"); t.Exists() {
		out.Usage = &llm.TokenUsage{InputTokens: t.Int(), TotalTokens: t.Int()}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// Image
// ═══════════════════════════════════════════════════════════════════════════

// BuildImageRequest 构建图像生成请求
func BuildImageRequest(req *llm.ImageRequest) map[string]any {
	body := map[string]any{
		"model":  req.Model,
		"prompt": req.Prompt,
	}
	if req.N > 0 {
		body["n"] = req.N
	}
	if req.Size != "" {
		body["aspect_ratio"] = req.Size
	}
	return body
}

// ParseImageResponse 兼容 data.image_urls 与 OpenAI 风格的 data[].url
func ParseImageResponse(body []byte) *llm.ImageResponse {
	root := gjson.ParseBytes(body)
	out := &llm.ImageResponse{}

	data := root.Get("data")
	if data.IsArray() {
		data.ForEach(func(_, d gjson.Result) bool {
			out.Images = append(out.Images, llm.Image{URL: d.Get("url").String(), B64JSON: d.Get("b64_json").String()})
			return true
		})
		return out
	}
	data.Get("image_urls").ForEach(func(_, u gjson.Result) bool {
		out.Images = append(out.Images, llm.Image{URL: u.String()})
		return true
	})
	data.Get("image_base64").ForEach(func(_, b gjson.Result) bool {
		out.Images = append(out.Images, llm.Image{B64JSON: b.String()})
		return true
	})
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// 文件
// ═══════════════════════════════════════════════════════════════════════════

// ParseFile 解析 files/upload 与 files/retrieve 响应中的 file 对象
func ParseFile(body []byte) *llm.FileObject {
	f := convertFile(gjson.GetBytes(body, "file"))
	return &f
}

// ParseFileList 解析 files/list 响应
func ParseFileList(body []byte) []llm.FileObject {
	var out []llm.FileObject
	gjson.GetBytes(body, "files").ForEach(func(_, f gjson.Result) bool {
		out = append(out, convertFile(f))
		return true
	})
	return out
}

func convertFile(f gjson.Result) llm.FileObject {
	return llm.FileObject{
		ID:        f.Get("file_id").String(),
		Filename:  f.Get("filename").String(),
		Purpose:   f.Get("purpose").String(),
		Bytes:     f.Get("bytes").Int(),
		CreatedAt: f.Get("created_at").Int(),
	}
}
