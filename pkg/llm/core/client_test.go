package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 测试配置
// ═══════════════════════════════════════════════════════════════════════════

type testConfig struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	query   map[string]string
}

func (c *testConfig) Validate() error {
	if c == nil || c.apiKey == "" {
		return llm.NewConfigError("test", "API key is required")
	}
	return nil
}

func (c *testConfig) GetDefaults() (string, time.Duration) {
	return c.baseURL, c.timeout
}

func (c *testConfig) BuildHeaders() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

func (c *testConfig) ProviderName() string { return "test" }

type queryConfig struct{ testConfig }

func (c *queryConfig) BuildQuery() map[string]string { return c.query }

// lineHandler 每个事件的 data 作为一个文本增量，"end" 结束流
type lineHandler struct{}

func (lineHandler) IsTerminal(ev Event) bool { return ev.Data == "[DONE]" }

func (lineHandler) HandleEvent(ev Event) ([]*llm.StreamChunk, bool, error) {
	if ev.Data == "end" {
		return []*llm.StreamChunk{{FinishReason: llm.FinishReasonStop}}, true, nil
	}
	return []*llm.StreamChunk{{Delta: ev.Data}}, false, nil
}

func newTestBase(t *testing.T, url string, settings llm.AdapterSettings) *BaseClient {
	t.Helper()
	c, err := NewBaseClient(&testConfig{apiKey: "sk-test", baseURL: url},
		NewErrorMapper("test", OpenAIErrorMatcher(map[string]llm.ErrorKind{
			"insufficient_quota": llm.KindRateLimit,
		})), settings)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ═══════════════════════════════════════════════════════════════════════════
// 构造测试
// ═══════════════════════════════════════════════════════════════════════════

func TestNewBaseClient(t *testing.T) {
	t.Run("配置校验失败", func(t *testing.T) {
		c, err := NewBaseClient(&testConfig{}, NewErrorMapper("test"), llm.AdapterSettings{})
		assert.Nil(t, c)
		require.Error(t, err)
		assert.True(t, llm.IsConfigError(err))
	})

	t.Run("默认超时", func(t *testing.T) {
		c := newTestBase(t, "http://127.0.0.1:1", llm.AdapterSettings{})
		assert.Equal(t, 120*time.Second, c.timeout)
		assert.Equal(t, "test", c.Name())
		assert.NotNil(t, c.Logger())
		assert.Equal(t, "test", c.Mapper().Provider())
	})

	t.Run("设置覆盖超时", func(t *testing.T) {
		c := newTestBase(t, "http://127.0.0.1:1", llm.AdapterSettings{Timeout: 5 * time.Second})
		assert.Equal(t, 5*time.Second, c.timeout)
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// Do 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestBaseClient_Do(t *testing.T) {
	t.Run("请求头与请求体", func(t *testing.T) {
		var (
			gotHeaders http.Header
			gotBody    map[string]any
			gotPath    string
			gotQuery   string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotHeaders = r.Header.Clone()
			gotPath = r.URL.Path
			gotQuery = r.URL.Query().Get("limit")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		c := newTestBase(t, srv.URL, llm.AdapterSettings{Headers: map[string]string{"X-Custom": "v"}})
		body, err := c.Do(context.Background(), &Request{
			Op:    llm.OpGenerate,
			Path:  "/chat",
			Query: map[string]string{"limit": "5"},
			Body:  map[string]any{"model": "m1", "temperature": 0.5},
			Extra: map[string]any{"temperature": 0, "top_k": 3, "nested.flag": true},
		})
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(body))

		assert.Equal(t, "/chat", gotPath)
		assert.Equal(t, "5", gotQuery)
		assert.Equal(t, "Bearer sk-test", gotHeaders.Get("Authorization"))
		assert.Equal(t, "v", gotHeaders.Get("X-Custom"))
		assert.NotEmpty(t, gotHeaders.Get("X-Request-ID"))
		assert.Equal(t, "m1", gotBody["model"])
		assert.InDelta(t, 0.0, gotBody["temperature"], 0)
		assert.InDelta(t, 3.0, gotBody["top_k"], 0)
		assert.Equal(t, map[string]any{"flag": true}, gotBody["nested"])
	})

	t.Run("每次请求的 X-Request-ID 不同", func(t *testing.T) {
		var ids []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ids = append(ids, r.Header.Get("X-Request-ID"))
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		c := newTestBase(t, srv.URL, llm.AdapterSettings{})
		for range 2 {
			_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/models"})
			require.NoError(t, err)
		}
		require.Len(t, ids, 2)
		assert.NotEqual(t, ids[0], ids[1])
	})

	t.Run("固定查询参数", func(t *testing.T) {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query().Get("key")
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		cfg := &queryConfig{testConfig{apiKey: "k", baseURL: srv.URL, query: map[string]string{"key": "abc"}}}
		c, err := NewBaseClient(cfg, NewErrorMapper("test"), llm.AdapterSettings{})
		require.NoError(t, err)
		defer func() { _ = c.Close() }()

		_, err = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
		require.NoError(t, err)
		assert.Equal(t, "abc", got)
	})

	t.Run("错误状态码", func(t *testing.T) {
		tests := []struct {
			name   string
			status int
			body   string
			kind   llm.ErrorKind
			code   string
		}{
			{"429", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, llm.KindRateLimit, ""},
			{"401", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, llm.KindAuthorization, ""},
			{"404", http.StatusNotFound, `not json`, llm.KindBadRequest, ""},
			{"503", http.StatusServiceUnavailable, ``, llm.KindServerUnavailable, ""},
			{"418", http.StatusTeapot, `{}`, llm.KindUnknown, ""},
			{"代码表优先", http.StatusBadRequest, `{"error":{"code":"insufficient_quota","message":"quota"}}`, llm.KindRateLimit, "insufficient_quota"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("X-Request-ID", "req-123")
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(tt.body))
				}))
				defer srv.Close()

				c := newTestBase(t, srv.URL, llm.AdapterSettings{})
				_, err := c.Do(context.Background(), &Request{Op: llm.OpGenerate, Path: "/chat", Body: map[string]any{}})
				require.Error(t, err)

				e, ok := llm.GetError(err)
				require.True(t, ok)
				assert.Equal(t, tt.kind, e.Kind)
				assert.Equal(t, tt.status, e.StatusCode)
				assert.Equal(t, tt.code, e.Code)
				assert.Equal(t, "test", e.Provider)
				assert.Equal(t, llm.OpGenerate, e.Op)
				assert.Equal(t, "req-123", e.RequestID)
				assert.Equal(t, tt.body, e.Body)
			})
		}
	})

	t.Run("200 响应体中的错误", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"type":"weird","message":"x"}}`))
		}))
		defer srv.Close()

		c := newTestBase(t, srv.URL, llm.AdapterSettings{})
		_, err := c.Do(context.Background(), &Request{Path: "/chat", Body: map[string]any{}})
		require.Error(t, err)
		assert.Equal(t, llm.KindUnknown, llm.KindOf(err))
		assert.Equal(t, http.StatusOK, llm.GetStatusCode(err))
	})

	t.Run("Raw 响应不检查错误体", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"file content"}}`))
		}))
		defer srv.Close()

		c := newTestBase(t, srv.URL, llm.AdapterSettings{})
		body, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/files/1/content", Raw: true})
		require.NoError(t, err)
		assert.Contains(t, string(body), "file content")
	})

	t.Run("连接失败", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := newTestBase(t, url, llm.AdapterSettings{})
		_, err := c.Do(context.Background(), &Request{Op: llm.OpListModels, Method: http.MethodGet, Path: "/models"})
		require.Error(t, err)
		assert.True(t, llm.IsConnectionError(err))
		assert.Zero(t, llm.GetStatusCode(err))
	})

	t.Run("超时", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		c := newTestBase(t, srv.URL, llm.AdapterSettings{Timeout: 50 * time.Millisecond})
		_, err := c.Do(context.Background(), &Request{Path: "/slow", Body: map[string]any{}})
		require.Error(t, err)
		assert.True(t, llm.IsConnectionError(err))
	})

	t.Run("请求体编码失败", func(t *testing.T) {
		c := newTestBase(t, "http://127.0.0.1:1", llm.AdapterSettings{})
		_, err := c.Do(context.Background(), &Request{Op: llm.OpGenerate, Path: "/chat", Body: map[string]any{"ch": make(chan int)}})
		require.Error(t, err)
		assert.True(t, llm.IsBadRequestError(err))
		assert.Zero(t, llm.GetStatusCode(err))
	})
}

func TestBaseClient_DoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			_, _ = w.Write([]byte(`[1,2`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"m1"}`))
	}))
	defer srv.Close()

	c := newTestBase(t, srv.URL, llm.AdapterSettings{})

	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.DoJSON(context.Background(), &Request{Method: http.MethodGet, Path: "/ok"}, &out))
	assert.Equal(t, "m1", out.ID)

	err := c.DoJSON(context.Background(), &Request{Op: llm.OpGetModel, Method: http.MethodGet, Path: "/bad"}, &out)
	require.Error(t, err)
	e, ok := llm.GetError(err)
	require.True(t, ok)
	assert.Equal(t, llm.KindUnknown, e.Kind)
	assert.Equal(t, llm.OpGetModel, e.Op)
	assert.Equal(t, `[1,2`, e.Body)
}

func TestBaseClient_Upload(t *testing.T) {
	var (
		filename string
		content  string
		purpose  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, h, err := r.FormFile("file")
		if err == nil {
			data, _ := io.ReadAll(f)
			content = string(data)
			filename = h.Filename
		}
		purpose = r.FormValue("purpose")
		_, _ = w.Write([]byte(`{"id":"file-1"}`))
	}))
	defer srv.Close()

	c := newTestBase(t, srv.URL, llm.AdapterSettings{})
	_, err := c.Do(context.Background(), &Request{
		Op:   llm.OpUploadFile,
		Path: "/files",
		Upload: &Upload{
			Filename: "a.jsonl",
			Reader:   strings.NewReader("hello"),
			Form:     map[string]string{"purpose": "batch"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "a.jsonl", filename)
	assert.Equal(t, "hello", content)
	assert.Equal(t, "batch", purpose)
}

// ═══════════════════════════════════════════════════════════════════════════
// 代理测试
// ═══════════════════════════════════════════════════════════════════════════

func TestBaseClient_Proxy(t *testing.T) {
	var direct, proxied atomic.Int64
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		direct.Add(1)
		_, _ = w.Write([]byte(`{"via":"direct"}`))
	}))
	defer target.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxied.Add(1)
		assert.True(t, r.URL.IsAbs(), "proxy should receive absolute URL")
		_, _ = w.Write([]byte(`{"via":"proxy"}`))
	}))
	defer proxy.Close()

	c := newTestBase(t, target.URL, llm.AdapterSettings{})
	req := &Request{Method: http.MethodGet, Path: "/models"}

	body, err := c.Do(llm.WithProxy(context.Background(), proxy.URL), req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"via":"proxy"}`, string(body))

	body, err = c.Do(context.Background(), req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"via":"direct"}`, string(body))

	assert.Equal(t, int64(1), proxied.Load())
	assert.Equal(t, int64(1), direct.Load())

	_, err = c.Do(llm.WithProxy(context.Background(), "://bad"), req)
	require.Error(t, err)
	assert.True(t, llm.IsConnectionError(err))
}

// ═══════════════════════════════════════════════════════════════════════════
// Stream 测试
// ═══════════════════════════════════════════════════════════════════════════

func TestBaseClient_Stream(t *testing.T) {
	t.Run("正常流", func(t *testing.T) {
		var accept string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accept = r.Header.Get("Accept")
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, "data: Hel\n\ndata: lo\n\ndata: end\n\n")
		}))
		defer srv.Close()

		c := newTestBase(t, srv.URL, llm.AdapterSettings{})
		s, err := c.Stream(context.Background(), &Request{Op: llm.OpStreamGenerate, Path: "/chat", Body: map[string]any{}}, FramingSSE, lineHandler{})
		require.NoError(t, err)

		resp, err := llm.Collect(s)
		require.NoError(t, err)
		assert.Equal(t, "Hello", resp.Content())
		assert.Equal(t, llm.FinishReasonStop, resp.FinishReason())
		assert.Equal(t, "text/event-stream", accept)
	})

	t.Run("打开时错误状态码", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("X-Request-ID", "req-9")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		}))
		defer srv.Close()

		c := newTestBase(t, srv.URL, llm.AdapterSettings{})
		s, err := c.Stream(context.Background(), &Request{Op: llm.OpStreamGenerate, Path: "/chat", Body: map[string]any{}}, FramingSSE, lineHandler{})
		assert.Nil(t, s)
		require.Error(t, err)
		assert.True(t, llm.IsRateLimitError(err))
		e, _ := llm.GetError(err)
		assert.Equal(t, "rate limited", e.Message)
		assert.Equal(t, "req-9", e.RequestID)
		assert.Equal(t, llm.OpStreamGenerate, e.Op)
	})

	t.Run("200 JSON 错误体", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write([]byte(`{"error":{"code":"insufficient_quota","message":"no quota"}}`))
		}))
		defer srv.Close()

		c := newTestBase(t, srv.URL, llm.AdapterSettings{})
		_, err := c.Stream(context.Background(), &Request{Path: "/chat", Body: map[string]any{}}, FramingSSE, lineHandler{})
		require.Error(t, err)
		assert.True(t, llm.IsRateLimitError(err))
	})

	t.Run("连接失败", func(t *testing.T) {
		c := newTestBase(t, "http://127.0.0.1:1", llm.AdapterSettings{})
		_, err := c.Stream(context.Background(), &Request{Path: "/chat", Body: map[string]any{}}, FramingNDJSON, lineHandler{})
		require.Error(t, err)
		assert.True(t, llm.IsConnectionError(err))
	})
}

// TestBaseClient_StreamEarlyClose 提前关闭流释放连接，不留下 goroutine
func TestBaseClient_StreamEarlyClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: first\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))

	c, err := NewBaseClient(&testConfig{apiKey: "k", baseURL: srv.URL}, NewErrorMapper("test"), llm.AdapterSettings{})
	require.NoError(t, err)

	s, err := c.Stream(context.Background(), &Request{Path: "/chat", Body: map[string]any{}}, FramingSSE, lineHandler{})
	require.NoError(t, err)

	chunk, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "first", chunk.Delta)

	require.NoError(t, s.Close())

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not observe the closed connection")
	}

	_ = c.Close()
	srv.Close()
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数测试
// ═══════════════════════════════════════════════════════════════════════════

func TestGetDefaultTimeout(t *testing.T) {
	assert.Equal(t, 120*time.Second, GetDefaultTimeout(0))
	assert.Equal(t, 30*time.Second, GetDefaultTimeout(30*time.Second))
}

func TestCloneHeaders(t *testing.T) {
	base := map[string]string{"A": "1", "B": "2"}
	out := CloneHeaders(base, map[string]string{"B": "3"})

	assert.Equal(t, map[string]string{"A": "1", "B": "3"}, out)
	assert.Equal(t, "2", base["B"])
	assert.Empty(t, CloneHeaders(nil, nil))
}
