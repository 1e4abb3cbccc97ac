package doubao

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

	c, err := New(&Config{APIKey: "ark-test", BaseURL: srv.URL}, llm.AdapterSettings{})
	require.NoError(t, err)
	return c
}

func TestClient_CountTokens(t *testing.T) {
	var got struct {
		Model string   `json:"model"`
		Text  []string `json:"text"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokenization", r.URL.Path)
		assert.Equal(t, "Bearer ark-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"object":"list","data":[{"total_tokens":4},{"total_tokens":6}]}`)
	})

	count, err := c.CountTokens(context.Background(), "doubao-pro-32k", []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "你是助手"),
		llm.NewTextMessage(llm.RoleUser, "今天天气如何"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), count.Tokens)
	assert.Equal(t, llm.TokenCountExact, count.Mode)
	assert.Equal(t, "doubao-pro-32k", got.Model)
	assert.Equal(t, []string{"你是助手", "今天天气如何"}, got.Text)
}

func TestClient_CountTokensMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"object":"list"}`)
	})

	_, err := c.CountTokens(context.Background(), "m", []llm.Message{llm.NewTextMessage(llm.RoleUser, "x")})
	require.Error(t, err)
	assert.Equal(t, llm.KindUnknown, llm.KindOf(err))
}

func TestClient_CreateEmbedding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		_, _ = io.WriteString(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}],"model":"doubao-embedding","usage":{"prompt_tokens":2,"total_tokens":2}}`)
	})

	resp, err := c.CreateEmbedding(context.Background(), &llm.EmbeddingRequest{Model: "doubao-embedding", Input: []string{"你好"}})
	require.NoError(t, err)
	require.Len(t, resp.Vectors, 1)
	assert.InDeltaSlice(t, []float64{0.1, 0.2}, resp.Vectors[0], 1e-6)
}

func TestClient_Invoke(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"ctx-1","ttl":3600}`)
	})
	ctx := context.Background()

	data, err := c.Invoke(ctx, OpCreateContext, map[string]any{
		"model":    "ep-1",
		"mode":     "session",
		"messages": []map[string]any{{"role": "system", "content": "你是助手"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"ctx-1","ttl":3600}`, string(data))

	_, err = c.Invoke(ctx, OpContextChat, map[string]any{"model": "ep-1", "context_id": "ctx-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/context/create", "/context/chat/completions"}, paths)

	t.Run("缺少 context_id", func(t *testing.T) {
		_, err := c.Invoke(ctx, OpContextChat, map[string]any{"model": "ep-1"})
		assert.True(t, llm.IsBadRequestError(err))
	})
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   llm.ErrorKind
	}{
		{"限流", http.StatusTooManyRequests, `{"error":{"code":"RateLimitExceeded.EndpointRPMExceeded","message":"rpm"}}`, llm.KindRateLimit},
		{"认证", http.StatusUnauthorized, `{"error":{"code":"AuthenticationError","message":"bad key"}}`, llm.KindAuthorization},
		{"未登记代码按状态码", http.StatusServiceUnavailable, `{"error":{"code":"Whatever","message":"x"}}`, llm.KindServerUnavailable},
		{"模型不存在", http.StatusNotFound, `{"error":{"code":"InvalidEndpointOrModel.NotFound","message":"not found"}}`, llm.KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Generate(context.Background(), "m", []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, nil)
			assert.Equal(t, tt.kind, llm.KindOf(err))
			assert.Equal(t, tt.status, llm.GetStatusCode(err))
		})
	}
}
