package wenxin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// fakeQianfan 模拟 OAuth 与对话接口
type fakeQianfan struct {
	tokenCalls atomic.Int32
	chat       http.HandlerFunc
}

func (f *fakeQianfan) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/2.0/token" {
		n := f.tokenCalls.Add(1)
		q := r.URL.Query()
		if q.Get("client_id") != "ak" || q.Get("client_secret") != "sk" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"invalid_client","error_description":"unknown client id"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"tok-`+string(rune('0'+n))+`","expires_in":2592000}`)
		return
	}
	f.chat(w, r)
}

func newTestClient(t *testing.T, fake *fakeQianfan, secret string) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(&Config{APIKey: "ak", SecretKey: secret, BaseURL: srv.URL}, llm.AdapterSettings{})
	require.NoError(t, err)
	return c
}

func userMessages(text string) []llm.Message {
	return []llm.Message{llm.NewTextMessage(llm.RoleUser, text)}
}

func TestClient_Generate(t *testing.T) {
	fake := &fakeQianfan{chat: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/2.0/ai_custom/v1/wenxinworkshop/chat/eb-instant", r.URL.Path)
		assert.Equal(t, "tok-1", r.URL.Query().Get("access_token"))
		_, _ = io.WriteString(w, `{"id":"as-1","result":"你好","is_end":true,"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`)
	}}
	c := newTestClient(t, fake, "sk")
	ctx := context.Background()

	for range 3 {
		resp, err := c.Generate(ctx, "ERNIE-Bot-turbo", userMessages("hi"), nil)
		require.NoError(t, err)
		assert.Equal(t, "你好", resp.Content())
		assert.Equal(t, "ERNIE-Bot-turbo", resp.Model)
	}
	assert.Equal(t, int32(1), fake.tokenCalls.Load(), "access_token 被缓存")
}

func TestClient_UnsupportedModel(t *testing.T) {
	fake := &fakeQianfan{chat: func(w http.ResponseWriter, r *http.Request) {
		t.Error("不应发出请求")
	}}
	c := newTestClient(t, fake, "sk")

	_, err := c.Generate(context.Background(), "ERNIE-Unknown", userMessages("hi"), nil)
	require.Error(t, err)
	assert.True(t, llm.IsBadRequestError(err))
	assert.Zero(t, fake.tokenCalls.Load())
}

func TestClient_TokenFailure(t *testing.T) {
	fake := &fakeQianfan{chat: func(w http.ResponseWriter, r *http.Request) {
		t.Error("不应发出请求")
	}}
	c := newTestClient(t, fake, "wrong")

	_, err := c.Generate(context.Background(), "ERNIE-Bot", userMessages("hi"), nil)
	require.Error(t, err)
	assert.True(t, llm.IsAuthorizationError(err))
}

func TestClient_TokenInvalidation(t *testing.T) {
	var calls atomic.Int32
	fake := &fakeQianfan{chat: func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = io.WriteString(w, `{"error_code":111,"error_msg":"Access token expired"}`)
			return
		}
		assert.Equal(t, "tok-2", r.URL.Query().Get("access_token"))
		_, _ = io.WriteString(w, `{"id":"as-2","result":"ok","is_end":true}`)
	}}
	c := newTestClient(t, fake, "sk")
	ctx := context.Background()

	_, err := c.Generate(ctx, "ERNIE-Bot", userMessages("hi"), nil)
	require.Error(t, err)
	assert.True(t, llm.IsAuthorizationError(err), "过期错误原样返回，不在库内重试")

	resp, err := c.Generate(ctx, "ERNIE-Bot", userMessages("hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content())
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestClient_TokenExpiry(t *testing.T) {
	fake := &fakeQianfan{chat: func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"ok","is_end":true}`)
	}}
	c := newTestClient(t, fake, "sk")

	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Generate(ctx, "ERNIE-Bot", userMessages("hi"), nil)
	require.NoError(t, err)

	now = now.Add(31 * 24 * time.Hour)
	_, err = c.Generate(ctx, "ERNIE-Bot", userMessages("hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load(), "过期后重新获取")
}

func TestClient_ConcurrentTokenFetch(t *testing.T) {
	fake := &fakeQianfan{chat: func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"ok","is_end":true}`)
	}}
	c := newTestClient(t, fake, "sk")

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, err := c.Generate(context.Background(), "ERNIE-Bot", userMessages("hi"), nil)
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), fake.tokenCalls.Load())
}

func TestClient_StreamGenerate(t *testing.T) {
	fake := &fakeQianfan{chat: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/2.0/ai_custom/v1/wenxinworkshop/chat/completions_pro", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, strings.Join([]string{
			`data: {"id":"as-1","result":"你","is_end":false}`,
			`data: {"id":"as-1","result":"好","is_end":true,"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`,
		}, "\n\n")+"\n\n")
	}}
	c := newTestClient(t, fake, "sk")

	stream, err := c.StreamGenerate(context.Background(), "ERNIE-Bot-4", userMessages("hi"), nil)
	require.NoError(t, err)

	resp, err := llm.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "你好", resp.Content())
	assert.Equal(t, llm.FinishReasonStop, resp.FinishReason())
	require.NotNil(t, resp.Usage)
	assert.Equal(t, int64(3), resp.Usage.TotalTokens)
}

func TestClient_Models(t *testing.T) {
	c, err := New(&Config{APIKey: "ak", SecretKey: "sk"}, llm.AdapterSettings{})
	require.NoError(t, err)
	ctx := context.Background()

	models, err := c.ListModels(ctx)
	require.NoError(t, err)
	assert.Len(t, models, 4)

	_, err = c.GetModel(ctx, "BLOOMZ-7B")
	assert.NoError(t, err)
	_, err = c.GetModel(ctx, "gpt-4")
	assert.True(t, llm.IsBadRequestError(err))

	count, err := c.CountTokens(ctx, "ERNIE-Bot", userMessages("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count.Tokens)
	assert.Equal(t, llm.TokenCountEstimated, count.Mode)
}
