package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

type testConfig struct {
	baseURL string
}

func (c testConfig) Validate() error { return nil }
func (c testConfig) GetDefaults() (string, time.Duration) {
	return c.baseURL, 5 * time.Second
}
func (c testConfig) BuildHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer sk-test"}
}
func (c testConfig) ProviderName() string { return "compat" }

func newTestCompat(t *testing.T, handler http.HandlerFunc) *Compat {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base, err := core.NewBaseClient(testConfig{baseURL: srv.URL}, core.NewErrorMapper("compat", core.OpenAIErrorMatcher(nil)), llm.AdapterSettings{})
	require.NoError(t, err)
	return NewCompat(base, Endpoints{})
}

func TestCompat_Generate(t *testing.T) {
	var got map[string]any
	c := newTestCompat(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"你好"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`)
	})

	resp, err := c.Generate(context.Background(), "moonshot-v1-8k", []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "hi"),
	}, &llm.Options{Temperature: llm.Ptr(0.0), Extra: map[string]any{"partial_mode": true}})
	require.NoError(t, err)

	assert.Equal(t, "你好", resp.Content())
	assert.Equal(t, "moonshot-v1-8k", resp.Model, "响应未带模型名时使用请求的模型")
	assert.Equal(t, float64(0), got["temperature"], "零温度通过 extra 发送")
	assert.Equal(t, true, got["partial_mode"])
}

func TestCompat_GenerateError(t *testing.T) {
	c := newTestCompat(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_reached_error"}}`)
	})

	_, err := c.Generate(context.Background(), "m", []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, nil)
	require.Error(t, err)
	assert.True(t, llm.IsRateLimitError(err))
	assert.Equal(t, http.StatusTooManyRequests, llm.GetStatusCode(err))
}

func TestCompat_StreamGenerate(t *testing.T) {
	c := newTestCompat(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, strings.Join([]string{
			`data: {"choices":[{"index":0,"delta":{"content":"a"}}]}`,
			`data: {"choices":[{"index":0,"delta":{"content":"b"},"finish_reason":"stop"}]}`,
			`data: {"choices":[],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`,
			`data: [DONE]`,
		}, "\n\n")+"\n\n")
	})

	stream, err := c.StreamGenerate(context.Background(), "m", []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, nil)
	require.NoError(t, err)

	var deltas []string
	var last *llm.StreamChunk
	for chunk, err := range llm.Chunks(stream) {
		require.NoError(t, err)
		deltas = append(deltas, chunk.Delta)
		last = chunk
	}
	assert.Equal(t, []string{"a", "b", ""}, deltas)
	require.NotNil(t, last)
	assert.Equal(t, llm.FinishReasonStop, last.FinishReason)
	require.NotNil(t, last.Usage, "终止 chunk 之后到达的用量并入终止 chunk")
	assert.Equal(t, int64(3), last.Usage.TotalTokens)
}

func TestCompat_Files(t *testing.T) {
	c := newTestCompat(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/files":
			assert.Equal(t, "file-extract", r.FormValue("purpose"))
			_, _ = io.WriteString(w, `{"id":"f1","object":"file","bytes":5,"filename":"a.txt","purpose":"file-extract"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/files/f1/content":
			_, _ = io.WriteString(w, "hello")
		case r.Method == http.MethodDelete && r.URL.Path == "/files/f1":
			_, _ = io.WriteString(w, `{"id":"f1","deleted":true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	f, err := c.UploadFile(ctx, &llm.FileUpload{Filename: "a.txt", Purpose: "file-extract", Content: strings.NewReader("hello")})
	require.NoError(t, err)
	assert.Equal(t, "f1", f.ID)

	content, err := c.GetFileContent(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	require.NoError(t, c.DeleteFile(ctx, "f1"))

	_, err = c.GetFile(ctx, "missing")
	assert.True(t, llm.IsBadRequestError(err))
}

func TestAdaptForModel(t *testing.T) {
	t.Run("推理模型", func(t *testing.T) {
		compat := NewCompat(mustBase(t), Endpoints{})
		req, extra := compat.BuildRequest("kimi-k2-thinking", nil, &llm.Options{Temperature: llm.Ptr(0.0), TopP: llm.Ptr(0.9)}, false)
		assert.Equal(t, float32(1), req.Temperature)
		assert.Zero(t, req.TopP)
		assert.NotContains(t, extra, "temperature")
	})

	t.Run("普通模型", func(t *testing.T) {
		assert.False(t, IsReasoningModel("moonshot-v1-8k"))
		assert.True(t, IsReasoningModel("DeepSeek-R1-250528"))
	})
}

func mustBase(t *testing.T) *core.BaseClient {
	t.Helper()
	base, err := core.NewBaseClient(testConfig{baseURL: "http://127.0.0.1:0"}, core.NewErrorMapper("compat"), llm.AdapterSettings{})
	require.NoError(t, err)
	return base
}
