package kimi

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

	c, err := New(&Config{APIKey: "sk-test", BaseURL: srv.URL}, llm.AdapterSettings{})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	t.Run("缺少 API Key", func(t *testing.T) {
		_, err := New(&Config{}, llm.AdapterSettings{})
		require.Error(t, err)
		assert.True(t, llm.IsConfigError(err))
	})

	t.Run("默认地址", func(t *testing.T) {
		cfg := &Config{APIKey: "sk"}
		baseURL, _ := cfg.GetDefaults()
		assert.Equal(t, DefaultBaseURL, baseURL)
		assert.Equal(t, "Bearer sk", cfg.BuildHeaders()["Authorization"])
	})
}

func TestClient_Capabilities(t *testing.T) {
	c, err := New(&Config{APIKey: "sk"}, llm.AdapterSettings{})
	require.NoError(t, err)

	assert.True(t, c.Capabilities().Has(llm.OpCountTokens))
	assert.True(t, c.Capabilities().Has(OpCreateCache))
	assert.False(t, c.Capabilities().Has(llm.OpCreateEmbedding))
	assert.Equal(t, llm.TokenCountExact, c.TokenCountMode())

	_, err = c.CreateEmbedding(context.Background(), &llm.EmbeddingRequest{Model: "m", Input: []string{"x"}})
	assert.True(t, llm.IsUnsupportedError(err))
}

func TestClient_CountTokens(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"id":"c","choices":[{"index":0,"message":{"role":"assistant","content":"好"},"finish_reason":"length"}],"usage":{"prompt_tokens":17,"completion_tokens":1,"total_tokens":18}}`)
	})

	count, err := c.CountTokens(context.Background(), "moonshot-v1-8k", []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "你好，Kimi"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(17), count.Tokens)
	assert.True(t, count.Exact())
	assert.Equal(t, float64(1), got["max_tokens"])
}

func TestClient_Invoke(t *testing.T) {
	type call struct{ method, path, query string }
	var calls []call
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path, r.URL.RawQuery})
		body = nil
		if r.ContentLength > 0 {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		}
		_, _ = io.WriteString(w, `{"id":"cache-1","status":"ready"}`)
	})
	ctx := context.Background()

	t.Run("创建缓存", func(t *testing.T) {
		data, err := c.Invoke(ctx, OpCreateCache, map[string]any{"model": "moonshot-cached", "ttl": 300})
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"cache-1","status":"ready"}`, string(data))
		assert.Equal(t, call{http.MethodPost, "/caching", ""}, calls[len(calls)-1])
		assert.Equal(t, "moonshot-cached", body["model"])
	})

	t.Run("更新缓存", func(t *testing.T) {
		_, err := c.Invoke(ctx, OpUpdateCache, map[string]any{"cache_id": "cache-1", "ttl": 600})
		require.NoError(t, err)
		assert.Equal(t, call{http.MethodPut, "/caching/cache-1", ""}, calls[len(calls)-1])
		assert.NotContains(t, body, "cache_id")
		assert.Equal(t, float64(600), body["ttl"])
	})

	t.Run("列出缓存带查询参数", func(t *testing.T) {
		_, err := c.Invoke(ctx, OpListCaches, map[string]any{"limit": 10, "metadata": map[string]any{"tag": "a"}})
		require.NoError(t, err)
		last := calls[len(calls)-1]
		assert.Equal(t, http.MethodGet, last.method)
		assert.Contains(t, last.query, "limit=10")
		assert.Contains(t, last.query, "metadata%5Btag%5D=a")
	})

	t.Run("标签内容", func(t *testing.T) {
		_, err := c.Invoke(ctx, OpGetTagContent, map[string]any{"tag": "doc"})
		require.NoError(t, err)
		assert.Equal(t, call{http.MethodGet, "/caching/refs/tags/doc/content", ""}, calls[len(calls)-1])
	})

	t.Run("删除标签", func(t *testing.T) {
		_, err := c.Invoke(ctx, OpDeleteTag, map[string]any{"tag": "doc"})
		require.NoError(t, err)
		assert.Equal(t, http.MethodDelete, calls[len(calls)-1].method)
	})

	t.Run("缺少路径参数", func(t *testing.T) {
		n := len(calls)
		_, err := c.Invoke(ctx, OpGetCache, map[string]any{})
		require.Error(t, err)
		assert.True(t, llm.IsBadRequestError(err))
		assert.Len(t, calls, n, "参数校验失败时不发请求")
	})

	t.Run("未知扩展操作", func(t *testing.T) {
		_, err := c.Invoke(ctx, "kimi.unknown", nil)
		assert.True(t, llm.IsUnsupportedError(err))
	})
}

func TestClient_ErrorMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid Authentication","type":"invalid_authentication_error"}}`)
	})

	_, err := c.Generate(context.Background(), "moonshot-v1-8k", []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}, nil)
	require.Error(t, err)
	assert.True(t, llm.IsAuthorizationError(err))

	e, ok := llm.GetError(err)
	require.True(t, ok)
	assert.Equal(t, Name, e.Provider)
	assert.Equal(t, "invalid_authentication_error", e.Code)
	assert.Contains(t, e.Body, "Invalid Authentication")
}
