package core

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/tidwall/sjson"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 类型转换辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// GetInt64 将 any 类型安全转换为 int64
//
// 支持的输入类型：
//   - float64: JSON 数字的默认类型
//   - int: Go 原生整数
//   - int64: Go 64位整数
//
// 其他类型返回 0（零值）。
//
// 示例：
//
//	usage := apiResp["usage"].(map[string]any)
//	inputTokens := GetInt64(usage["input_tokens"])  // 处理 float64
func GetInt64(val any) int64 {
	switch v := val.(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

// GetFloat64 将 any 类型安全转换为 float64
//
// 其他类型返回 0.0（零值）。
func GetFloat64(val any) float64 {
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// GetString 将 any 类型安全转换为 string
func GetString(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// GetMap 将 any 类型安全转换为 map[string]any
func GetMap(val any) map[string]any {
	if m, ok := val.(map[string]any); ok {
		return m
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求体编码
// ═══════════════════════════════════════════════════════════════════════════

// EncodeBody 编码 JSON 请求体，并将 extra 合并到顶层
//
// body 为 []byte 时视为已编码的 JSON。extra 中的键覆盖 body 中的同名字段，
// 按键名排序写入，保证输出稳定。键按 sjson 路径解释，
// 可以用 "generationConfig.responseJsonSchema" 这样的点路径写入嵌套字段。
func EncodeBody(body any, extra map[string]any) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if raw, ok := body.([]byte); ok {
		data = raw
	} else {
		data, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		data, err = sjson.SetBytes(data, escapePath(k), extra[k])
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// escapePath 转义通配符，点号保留为路径分隔符
func escapePath(key string) string {
	r := strings.NewReplacer("*", `\*`, "?", `\?`)
	return r.Replace(key)
}

// WithoutKeys 返回去掉指定键的 extra 副本
func WithoutKeys(extra map[string]any, keys ...string) map[string]any {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		if !slices.Contains(keys, k) {
			out[k] = v
		}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// 扩展操作参数
// ═══════════════════════════════════════════════════════════════════════════

// RequireParam 读取必需的字符串参数，缺失时返回 KindBadRequest 错误
func RequireParam(provider string, op llm.Operation, params map[string]any, key string) (string, error) {
	if v, ok := params[key]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return s, nil
		}
	}
	return "", &llm.Error{
		Kind:     llm.KindBadRequest,
		Provider: provider,
		Op:       op,
		Message:  fmt.Sprintf("missing parameter %q", key),
	}
}

// RequireRequest 请求为 nil 时返回 KindBadRequest 错误
func RequireRequest[T any](provider string, op llm.Operation, req *T) error {
	if req != nil {
		return nil
	}
	return &llm.Error{
		Kind:     llm.KindBadRequest,
		Provider: provider,
		Op:       op,
		Message:  "request is required",
	}
}

// QueryParams 将参数转为查询字符串
//
// nil 值与 skip 中的键被跳过；map 值展开为 key[sub]=value。
func QueryParams(params map[string]any, skip ...string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if v == nil || slices.Contains(skip, k) {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			for sub, sv := range m {
				out[k+"["+sub+"]"] = fmt.Sprint(sv)
			}
			continue
		}
		if m, ok := v.(map[string]string); ok {
			for sub, sv := range m {
				out[k+"["+sub+"]"] = sv
			}
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// Token 估算
// ═══════════════════════════════════════════════════════════════════════════

// EstimateTokens 本地启发式 Token 估算
//
// 每个空白分隔的词计 1，每个中日韩字符单独计 1。
// 结果只是近似值，返回的 TokenCount 标记为 llm.TokenCountEstimated。
func EstimateTokens(messages []llm.Message) llm.TokenCount {
	var total int64
	for _, msg := range messages {
		for _, block := range msg.Blocks() {
			switch b := block.(type) {
			case *llm.TextBlock:
				total += countText(b.Text)
			case *llm.ToolResultBlock:
				total += countText(b.Content)
			case *llm.ThinkingBlock:
				total += countText(b.Thinking)
			}
		}
	}
	return llm.TokenCount{Tokens: total, Mode: llm.TokenCountEstimated}
}

func countText(s string) int64 {
	var (
		n      int64
		inWord bool
	)
	for _, r := range s {
		switch {
		case isCJK(r):
			n++
			inWord = false
		case unicode.IsSpace(r):
			inWord = false
		default:
			if !inWord {
				n++
				inWord = true
			}
		}
	}
	return n
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
