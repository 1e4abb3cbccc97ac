package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// New 函数测试
// ═══════════════════════════════════════════════════════════════════════════

func TestNew_NilConfig(t *testing.T) {
	client, err := New(nil, llm.AdapterSettings{})

	assert.Nil(t, client)
	require.Error(t, err)
	assert.True(t, llm.IsConfigError(err))
}

func TestNew_MissingAPIKey(t *testing.T) {
	client, err := New(&Config{}, llm.AdapterSettings{})

	assert.Nil(t, client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNew_Success(t *testing.T) {
	client, err := New(&Config{APIKey: "test-key"}, llm.AdapterSettings{})

	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, Name, client.Name())
	assert.NoError(t, client.Close())
}

func TestModelPath(t *testing.T) {
	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", modelPath("gemini-2.5-flash", "generateContent"))
	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:countTokens", modelPath("models/gemini-2.5-flash", "countTokens"))
	assert.Equal(t, "/v1beta/tunedModels/my%20model:generateContent", modelPath("tunedModels/my model", "generateContent"))
}

// ═══════════════════════════════════════════════════════════════════════════
// 测试辅助
// ═══════════════════════════════════════════════════════════════════════════

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"), "每个请求携带 key")
		assert.Empty(t, r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := New(&Config{APIKey: "test-key", BaseURL: srv.URL}, llm.AdapterSettings{})
	require.NoError(t, err)
	return client
}

func userMessages(text string) []llm.Message {
	return []llm.Message{llm.NewTextMessage(llm.RoleUser, text)}
}

// ═══════════════════════════════════════════════════════════════════════════
// Generate 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestGenerate_Success(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hello!"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 2, "totalTokenCount": 6},
			"modelVersion": "gemini-2.5-flash-001"
		}`)
	})

	resp, err := client.Generate(context.Background(), "gemini-2.5-flash", []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "Be brief."),
		llm.NewTextMessage(llm.RoleUser, "Hi"),
	}, &llm.Options{
		MaxTokens: 64,
		Extra:     map[string]any{"generationConfig.thinkingConfig.thinkingBudget": 0},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello!", resp.Content())
	assert.Equal(t, "gemini-2.5-flash-001", resp.Model)
	assert.Equal(t, llm.FinishReasonStop, resp.FinishReason())
	require.NotNil(t, resp.Usage)
	assert.Equal(t, int64(6), resp.Usage.TotalTokens)

	contents, _ := got["contents"].([]any)
	assert.Len(t, contents, 1, "系统消息不进入 contents")
	assert.Contains(t, got, "systemInstruction")

	cfg, _ := got["generationConfig"].(map[string]any)
	assert.Equal(t, float64(64), cfg["maxOutputTokens"])
	thinking, _ := cfg["thinkingConfig"].(map[string]any)
	assert.Equal(t, float64(0), thinking["thinkingBudget"])
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   llm.ErrorKind
	}{
		{"限流", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, llm.KindRateLimit},
		{"key 无效", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, llm.KindBadRequest},
		{"权限", http.StatusForbidden, `{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`, llm.KindAuthorization},
		{"不可用", http.StatusServiceUnavailable, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, llm.KindServerUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := client.Generate(context.Background(), "gemini-2.5-flash", userMessages("hi"), nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, llm.KindOf(err))
			assert.Equal(t, tt.status, llm.GetStatusCode(err))
		})
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// StreamGenerate 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestStreamGenerate(t *testing.T) {
	t.Run("finishReason 后 EOF 正常结束", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1beta/models/gemini-2.5-flash:streamGenerateContent", r.URL.Path)
			assert.Equal(t, "sse", r.URL.Query().Get("alt"))
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w,
				`data: {"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`+"\r\n\r\n"+
					`data: {"candidates":[{"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`+"\r\n\r\n")
		})

		stream, err := client.StreamGenerate(context.Background(), "gemini-2.5-flash", userMessages("hi"), nil)
		require.NoError(t, err)

		resp, err := llm.Collect(stream)
		require.NoError(t, err)
		assert.Equal(t, "Hello", resp.Content())
		assert.Equal(t, llm.FinishReasonStop, resp.FinishReason())
		require.NotNil(t, resp.Usage)
		assert.Equal(t, int64(5), resp.Usage.TotalTokens)
	})

	t.Run("缺少终止 chunk 即截断", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`+"\n\n")
		})

		stream, err := client.StreamGenerate(context.Background(), "gemini-2.5-flash", userMessages("hi"), nil)
		require.NoError(t, err)

		_, err = llm.Collect(stream)
		assert.True(t, llm.IsTruncatedStreamError(err))
	})

	t.Run("工具调用", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, `data: {"candidates":[{"content":{"parts":[{"functionCall":{"name":"get_weather","args":{"city":"Paris"}}}]},"finishReason":"STOP"}]}`+"\n\n")
		})

		stream, err := client.StreamGenerate(context.Background(), "gemini-2.5-flash", userMessages("weather?"), nil)
		require.NoError(t, err)

		resp, err := llm.Collect(stream)
		require.NoError(t, err)
		assert.Equal(t, llm.FinishReasonToolCalls, resp.FinishReason())
		msg := resp.Message()
		calls := msg.GetToolCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "get_weather", calls[0].Name)
		assert.NotEmpty(t, calls[0].ID, "缺失的工具调用 ID 由本地生成")
		assert.Equal(t, map[string]any{"city": "Paris"}, calls[0].Input)
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 计数 / Embedding / 模型
// ═══════════════════════════════════════════════════════════════════════════

func TestCountTokens(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:countTokens", r.URL.Path)
		_, _ = io.WriteString(w, `{"totalTokens":31}`)
	})

	count, err := client.CountTokens(context.Background(), "gemini-2.5-flash", userMessages("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(31), count.Tokens)
	assert.True(t, count.Exact())
}

func TestCreateEmbedding(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/text-embedding-004:batchEmbedContents", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"embeddings":[{"values":[0.1,0.2]},{"values":[0.3,0.4]}]}`)
	})

	resp, err := client.CreateEmbedding(context.Background(), &llm.EmbeddingRequest{
		Model: "text-embedding-004",
		Input: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}}, resp.Vectors)

	requests, _ := got["requests"].([]any)
	require.Len(t, requests, 2)
	first, _ := requests[0].(map[string]any)
	assert.Equal(t, "models/text-embedding-004", first["model"])
}

func TestModels(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/v1beta/models":
			_, _ = io.WriteString(w, `{"models":[{"name":"models/gemini-2.5-flash","displayName":"Gemini 2.5 Flash"},{"name":"models/text-embedding-004"}]}`)
		case "/v1beta/models/gemini-2.5-flash":
			_, _ = io.WriteString(w, `{"name":"models/gemini-2.5-flash","displayName":"Gemini 2.5 Flash"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":404,"message":"not found","status":"NOT_FOUND"}}`)
		}
	})
	ctx := context.Background()

	models, err := client.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gemini-2.5-flash", models[0].ID)
	assert.Equal(t, "Gemini 2.5 Flash", models[0].DisplayName)

	m, err := client.GetModel(ctx, "gemini-2.5-flash")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", m.ID)

	_, err = client.GetModel(ctx, "gemini-0")
	assert.True(t, llm.IsBadRequestError(err))
}

func TestUnsupported(t *testing.T) {
	client, err := New(&Config{APIKey: "k"}, llm.AdapterSettings{})
	require.NoError(t, err)

	_, err = client.ListFiles(context.Background())
	assert.True(t, llm.IsUnsupportedError(err))
	assert.False(t, client.Capabilities().Has(llm.OpUploadFile))
	assert.True(t, client.Capabilities().Has(llm.OpCreateEmbedding))
}
