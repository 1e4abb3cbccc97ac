package gemini

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"google.golang.org/genai"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// ═══════════════════════════════════════════════════════════════════════════
// Gemini 协议适配器
// ═══════════════════════════════════════════════════════════════════════════

// Adapter Gemini 协议适配器
//
// 线上结构使用 google.golang.org/genai 的类型。
//
// 关键协议差异：
//  1. 内容格式：Content{Role, Parts[]} 而非 message{role, content}
//  2. 角色映射：assistant → model
//  3. 工具参数：直接对象（类似 Anthropic）
//  4. 工具结果：作为 functionResponse Part，需要函数名
//  5. 系统消息：独立的 systemInstruction 字段
//  6. Token 字段名：promptTokenCount, candidatesTokenCount
type Adapter struct{}

// NewAdapter 创建 Gemini 协议适配器
func NewAdapter() *Adapter {
	return &Adapter{}
}

// GetSystemMessageHandling Gemini 使用 systemInstruction
func (a *Adapter) GetSystemMessageHandling() core.SystemMessageStrategy {
	return core.SystemSeparate
}

// GenerateRequest generateContent 请求体
type GenerateRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
	Tools             []map[string]any        `json:"tools,omitempty"`
	ToolConfig        map[string]any          `json:"toolConfig,omitempty"`
	GenerationConfig  *genai.GenerationConfig `json:"generationConfig,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求构建
// ═══════════════════════════════════════════════════════════════════════════

// BuildRequest 构建 generateContent 请求
//
// 返回的 extra 需要合并进请求体顶层。
func (a *Adapter) BuildRequest(messages []llm.Message, opts *llm.Options) (*GenerateRequest, map[string]any) {
	if opts == nil {
		opts = &llm.Options{}
	}
	system, msgs := core.ApplySystem(a.GetSystemMessageHandling(), messages, opts)

	req := &GenerateRequest{Contents: a.ConvertToAPI(msgs)}
	if system != "" {
		req.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	cfg := &genai.GenerationConfig{
		MaxOutputTokens: int32(opts.MaxTokens),
		StopSequences:   opts.StopSequences,
	}
	if opts.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*opts.Temperature))
	}
	if opts.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*opts.TopP))
	}
	if opts.TopK > 0 {
		cfg.TopK = genai.Ptr(float32(opts.TopK))
	}
	if opts.Seed != nil {
		cfg.Seed = genai.Ptr(int32(*opts.Seed))
	}
	if rf := opts.ResponseFormat; rf != nil && rf.Type != "text" {
		cfg.ResponseMIMEType = "application/json"
	}
	req.GenerationConfig = cfg

	if len(opts.Tools) > 0 {
		req.Tools = ConvertTools(opts.Tools)
		req.ToolConfig = convertToolChoice(opts.ToolChoice)
	}

	extra := map[string]any{}
	if rf := opts.ResponseFormat; rf != nil && rf.Schema != nil {
		extra["generationConfig.responseJsonSchema"] = rf.Schema
	}
	for k, v := range opts.Extra {
		extra[k] = v
	}
	return req, extra
}

// ConvertToAPI 实现 Gemini 特有的消息转换逻辑
//
// Gemini 协议要求：
//   - 消息格式为 Content{Role, Parts[]}
//   - 角色映射：user→user, assistant→model, 工具结果→user
//   - ToolResult 作为 functionResponse Part，name 取自对应的工具调用
func (a *Adapter) ConvertToAPI(messages []llm.Message) []*genai.Content {
	result := make([]*genai.Content, 0, len(messages))
	names := map[string]string{}

	for _, msg := range messages {
		var parts []*genai.Part
		for _, block := range msg.Blocks() {
			switch b := block.(type) {
			case *llm.TextBlock:
				parts = append(parts, &genai.Part{Text: b.Text})

			case *llm.ThinkingBlock:
				parts = append(parts, &genai.Part{Text: b.Thinking, Thought: true})

			case *llm.ImageBlock:
				parts = append(parts, imagePart(b))

			case *llm.ToolCall:
				names[b.ID] = b.Name
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: b.Name, Args: b.Input},
				})

			case *llm.ToolResultBlock:
				name := names[b.ToolUseID]
				if name == "" {
					name = b.ToolUseID
				}
				response := map[string]any{"content": b.Content}
				if b.IsError {
					response = map[string]any{"error": b.Content}
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: name, Response: response},
				})
			}
		}
		if len(parts) == 0 {
			continue
		}
		result = append(result, &genai.Content{Role: mapRole(msg.Role), Parts: parts})
	}

	return result
}

// mapRole 将统一角色映射到 Gemini 角色
func mapRole(role llm.Role) string {
	if role == llm.RoleAssistant {
		return "model"
	}
	return "user"
}

func imagePart(b *llm.ImageBlock) *genai.Part {
	mediaType := b.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	if b.URL != "" {
		return &genai.Part{FileData: &genai.FileData{FileURI: b.URL, MIMEType: mediaType}}
	}
	return &genai.Part{InlineData: &genai.Blob{Data: b.Data, MIMEType: mediaType}}
}

// ConvertTools 工具 Schema 转换为 functionDeclarations
func ConvertTools(tools []llm.ToolSchema) []map[string]any {
	decls := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		decl := map[string]any{
			"name":        t.Name,
			"description": t.Description,
		}
		if t.InputSchema != nil {
			decl["parametersJsonSchema"] = t.InputSchema
		}
		decls = append(decls, decl)
	}
	return []map[string]any{{"functionDeclarations": decls}}
}

func convertToolChoice(choice string) map[string]any {
	var cfg map[string]any
	switch choice {
	case "":
		return nil
	case "auto":
		cfg = map[string]any{"mode": "AUTO"}
	case "none":
		cfg = map[string]any{"mode": "NONE"}
	case "required":
		cfg = map[string]any{"mode": "ANY"}
	default:
		cfg = map[string]any{"mode": "ANY", "allowedFunctionNames": []string{choice}}
	}
	return map[string]any{"functionCallingConfig": cfg}
}

// ═══════════════════════════════════════════════════════════════════════════
// ConvertFromAPI - 解析 Gemini 响应
// ═══════════════════════════════════════════════════════════════════════════

// ConvertFromAPI 解析 Gemini 响应
//
// Gemini 响应格式：
//
//	{
//	  "candidates": [{
//	    "content": {
//	      "role": "model",
//	      "parts": [
//	        {"text": "..."},
//	        {"functionCall": {"name": "...", "args": {...}}},
//	        {"text": "...", "thought": true}
//	      ]
//	    },
//	    "finishReason": "STOP"
//	  }],
//	  "usageMetadata": {...}
//	}
//
// 被安全策略拦截的请求没有 candidates，规范化后 Choices 为空。
func (a *Adapter) ConvertFromAPI(body []byte) (*llm.Response, error) {
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	out := &llm.Response{
		ID:      resp.ResponseID,
		Model:   resp.ModelVersion,
		Choices: make([]llm.Choice, 0, len(resp.Candidates)),
		Usage:   ConvertUsage(resp.UsageMetadata),
	}

	for i, c := range resp.Candidates {
		if c == nil {
			continue
		}
		out.Choices = append(out.Choices, llm.Choice{
			Index:        i,
			Message:      convertContent(c.Content),
			FinishReason: mapFinishReason(string(c.FinishReason)),
		})
	}
	return out, nil
}

// convertContent 只有一个文本 Part 时视为纯文本
func convertContent(content *genai.Content) llm.Message {
	msg := llm.Message{Role: llm.RoleAssistant}
	if content == nil {
		return msg
	}

	var (
		blocks []llm.ContentBlock
		text   strings.Builder
		plain  = true
	)
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		switch {
		case part.FunctionCall != nil:
			plain = false
			blocks = append(blocks, &llm.ToolCall{
				ID:    toolCallID(part.FunctionCall.ID),
				Name:  part.FunctionCall.Name,
				Input: part.FunctionCall.Args,
			})
		case part.Thought:
			plain = false
			blocks = append(blocks, &llm.ThinkingBlock{Thinking: part.Text})
		case part.Text != "":
			text.WriteString(part.Text)
			blocks = append(blocks, &llm.TextBlock{Text: part.Text})
		}
	}

	msg.Content = text.String()
	if !plain || len(blocks) > 1 {
		msg.ContentBlocks = blocks
	}
	return msg
}

// toolCallID Gemini 通常不返回工具调用 ID，缺失时生成
func toolCallID(id string) string {
	if id != "" {
		return id
	}
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// ConvertUsage 解析 Gemini 的 Token 使用量
//
// Gemini 字段名：
//   - promptTokenCount, candidatesTokenCount, totalTokenCount
//   - thoughtsTokenCount (thinking 模式)
//   - cachedContentTokenCount (prompt caching)
func ConvertUsage(u *genai.GenerateContentResponseUsageMetadata) *llm.TokenUsage {
	if u == nil {
		return nil
	}
	usage := &llm.TokenUsage{
		InputTokens:     int64(u.PromptTokenCount),
		OutputTokens:    int64(u.CandidatesTokenCount),
		TotalTokens:     int64(u.TotalTokenCount),
		ReasoningTokens: int64(u.ThoughtsTokenCount),
		CachedTokens:    int64(u.CachedContentTokenCount),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens + usage.ReasoningTokens
	}
	return usage
}

// mapFinishReason 将 Gemini 完成原因映射到标准格式
func mapFinishReason(reason string) llm.FinishReason {
	switch reason {
	case "", "FINISH_REASON_UNSPECIFIED":
		return llm.FinishReasonAbsent
	case "STOP", "OTHER":
		return llm.FinishReasonStop
	case "MAX_TOKENS":
		return llm.FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY":
		return llm.FinishReasonContentFilter
	default:
		return llm.FinishReason(strings.ToLower(reason))
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Token 计数 / Embedding / 模型
// ═══════════════════════════════════════════════════════════════════════════

// BuildCountTokensRequest 构建 countTokens 请求
func (a *Adapter) BuildCountTokensRequest(messages []llm.Message) map[string]any {
	_, msgs := core.SplitSystem(messages, nil)
	return map[string]any{"contents": a.ConvertToAPI(msgs)}
}

// ParseTokenCount 解析 countTokens 响应
func ParseTokenCount(body []byte) (llm.TokenCount, error) {
	var resp genai.CountTokensResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return llm.TokenCount{}, err
	}
	return llm.TokenCount{Tokens: int64(resp.TotalTokens), Mode: llm.TokenCountExact}, nil
}

// BuildEmbeddingRequest 构建 batchEmbedContents 请求
func BuildEmbeddingRequest(model string, input []string) map[string]any {
	requests := make([]map[string]any, 0, len(input))
	for _, text := range input {
		requests = append(requests, map[string]any{
			"model":   ModelResource(model),
			"content": &genai.Content{Parts: []*genai.Part{{Text: text}}},
		})
	}
	return map[string]any{"requests": requests}
}

// ParseEmbeddingResponse 解析 batchEmbedContents 响应
func ParseEmbeddingResponse(model string, body []byte) *llm.EmbeddingResponse {
	out := &llm.EmbeddingResponse{Model: model}
	gjson.GetBytes(body, "embeddings").ForEach(func(_, e gjson.Result) bool {
		values := e.Get("values").Array()
		vec := make([]float64, len(values))
		for i, v := range values {
			vec[i] = v.Float()
		}
		out.Vectors = append(out.Vectors, vec)
		return true
	})
	return out
}

// ParseModelList 解析 /v1beta/models 响应
func ParseModelList(body []byte) []llm.ModelInfo {
	var out []llm.ModelInfo
	gjson.GetBytes(body, "models").ForEach(func(_, m gjson.Result) bool {
		out = append(out, parseModel(m))
		return true
	})
	return out
}

// ParseModel 解析单个模型
func ParseModel(body []byte) *llm.ModelInfo {
	info := parseModel(gjson.ParseBytes(body))
	return &info
}

func parseModel(m gjson.Result) llm.ModelInfo {
	return llm.ModelInfo{
		ID:          strings.TrimPrefix(m.Get("name").String(), "models/"),
		DisplayName: m.Get("displayName").String(),
		OwnedBy:     "google",
	}
}

// ModelResource 模型资源名 models/{id}
func ModelResource(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// ═══════════════════════════════════════════════════════════════════════════
// 错误识别
// ═══════════════════════════════════════════════════════════════════════════

// ErrorMatcher Google API 错误体 {"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}
func ErrorMatcher() core.BodyMatcher {
	return core.CodeTable{
		CodePath:    "error.status",
		MessagePath: "error.message",
		Kinds: map[string]llm.ErrorKind{
			"RESOURCE_EXHAUSTED":  llm.KindRateLimit,
			"UNAUTHENTICATED":     llm.KindAuthorization,
			"PERMISSION_DENIED":   llm.KindAuthorization,
			"INVALID_ARGUMENT":    llm.KindBadRequest,
			"FAILED_PRECONDITION": llm.KindBadRequest,
			"NOT_FOUND":           llm.KindBadRequest,
			"INTERNAL":            llm.KindServerUnavailable,
			"UNAVAILABLE":         llm.KindServerUnavailable,
			"DEADLINE_EXCEEDED":   llm.KindServerUnavailable,
		},
	}
}

// 确保 Adapter 实现了 ResponseNormalizer 接口
var _ core.ResponseNormalizer = (*Adapter)(nil)
