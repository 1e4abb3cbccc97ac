package qwen

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

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(&Config{APIKey: "sk-ds", BaseURL: srv.URL}, llm.AdapterSettings{})
	require.NoError(t, err)
	return c
}

func TestClient_Routing(t *testing.T) {
	tests := []struct {
		model string
		path  string
	}{
		{"qwen-turbo", textGeneration},
		{"qwen-max-longcontext", textGeneration},
		{"qwen-vl-plus", multimodalGeneration},
		{"qwen-audio-turbo", multimodalGeneration},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.path, r.URL.Path)
				_, _ = io.WriteString(w, `{"output":{"choices":[{"message":{"role":"assistant","content":"好"},"finish_reason":"stop"}]},"usage":{"input_tokens":1,"output_tokens":1},"request_id":"r1"}`)
			})
			resp, err := c.Generate(context.Background(), tt.model, []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, nil)
			require.NoError(t, err)
			assert.Equal(t, "好", resp.Content())
			assert.Equal(t, tt.model, resp.Model)
		})
	}
}

func TestClient_GenerateExtra(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"output":{"text":"好","finish_reason":"stop"}}`)
	})

	_, err := c.Generate(context.Background(), "qwen-plus", []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		&llm.Options{Extra: map[string]any{"parameters.enable_search": true}})
	require.NoError(t, err)

	params, _ := body["parameters"].(map[string]any)
	assert.Equal(t, true, params["enable_search"], "Extra 的点路径写入嵌套字段")
	assert.Equal(t, "message", params["result_format"])
}

func TestClient_StreamGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "enable", r.Header.Get("X-DashScope-SSE"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "id:1\nevent:result\n:HTTP_STATUS/200\n"+
			`data:{"output":{"choices":[{"message":{"content":"你"},"finish_reason":"null"}]},"usage":{"input_tokens":1,"output_tokens":1}}`+"\n\n"+
			"id:2\nevent:result\n:HTTP_STATUS/200\n"+
			`data:{"output":{"choices":[{"message":{"content":"好"},"finish_reason":"stop"}]},"usage":{"input_tokens":1,"output_tokens":2}}`+"\n\n")
	})

	stream, err := c.StreamGenerate(context.Background(), "qwen-turbo", []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, nil)
	require.NoError(t, err)

	resp, err := llm.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "你好", resp.Content())
	assert.Equal(t, llm.FinishReasonStop, resp.FinishReason())
	require.NotNil(t, resp.Usage)
	assert.Equal(t, int64(2), resp.Usage.OutputTokens)
}

func TestClient_Models(t *testing.T) {
	c, err := New(&Config{APIKey: "sk"}, llm.AdapterSettings{})
	require.NoError(t, err)
	ctx := context.Background()

	models, err := c.ListModels(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, models)

	m, err := c.GetModel(ctx, "qwen-max")
	require.NoError(t, err)
	assert.Equal(t, "qwen-max", m.ID)

	_, err = c.GetModel(ctx, "qwen-unknown")
	assert.True(t, llm.IsBadRequestError(err))
}

func TestClient_CountTokens(t *testing.T) {
	c, err := New(&Config{APIKey: "sk"}, llm.AdapterSettings{})
	require.NoError(t, err)

	count, err := c.CountTokens(context.Background(), "qwen-turbo", []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "你好 world"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count.Tokens)
	assert.False(t, count.Exact())
	assert.Equal(t, llm.TokenCountEstimated, c.TokenCountMode())
}

func TestClient_Error(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"InvalidApiKey","message":"Invalid API-key provided.","request_id":"r"}`)
	})

	_, err := c.Generate(context.Background(), "qwen-turbo", []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, nil)
	assert.True(t, llm.IsAuthorizationError(err), "响应体代码优先于状态码")
	assert.Equal(t, http.StatusBadRequest, llm.GetStatusCode(err))
}
