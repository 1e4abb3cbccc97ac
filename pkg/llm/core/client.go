package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 接口定义
// ═══════════════════════════════════════════════════════════════════════════

// ProviderConfig Provider 配置接口
//
// 每个 Provider 实现此接口来定义其特有的配置和默认值。
type ProviderConfig interface {
	// Validate 验证配置
	Validate() error

	// GetDefaults 返回 baseURL 与单次请求超时
	GetDefaults() (baseURL string, timeout time.Duration)

	// BuildHeaders 构建认证头和其他固定请求头
	BuildHeaders() map[string]string

	// ProviderName 返回 Provider 名称，用于错误与日志
	ProviderName() string
}

// QueryBuilder 需要固定查询参数的 Provider（如 Gemini 的 key、MiniMax 的 GroupId）
type QueryBuilder interface {
	BuildQuery() map[string]string
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求描述
// ═══════════════════════════════════════════════════════════════════════════

// Request 单次 HTTP 请求
type Request struct {
	Op      llm.Operation
	Method  string // 默认 POST
	Path    string
	Query   map[string]string
	Headers map[string]string

	// Body 为 []byte 时原样发送，否则编码为 JSON
	Body any

	// Extra 透传参数，合并进 JSON 请求体顶层
	Extra map[string]any

	// Upload 非空时以 multipart/form-data 发送
	Upload *Upload

	// Raw 成功响应不做错误体检查（文件内容等二进制响应）
	Raw bool
}

// Upload multipart 文件
type Upload struct {
	Field    string
	Filename string
	Reader   io.Reader
	Form     map[string]string
}

// ═══════════════════════════════════════════════════════════════════════════
// BaseClient 基础客户端
// ═══════════════════════════════════════════════════════════════════════════

// BaseClient 基础客户端
//
// 封装 HTTP 通信与错误映射，所有 Provider 通过组合复用。
// 每次调用独立发起请求，BaseClient 只持有不可变配置。
//
// 代理按调用选择：Transport 的 Proxy 函数读取请求 context 中由 llm.WithProxy 设置的地址，
// 未设置时回退到环境变量代理。库内部不重试。
type BaseClient struct {
	config    ProviderConfig
	name      string
	resty     *resty.Client
	transport *http.Transport
	mapper    *ErrorMapper
	logger    *slog.Logger
	timeout   time.Duration
}

// NewBaseClient 创建基础客户端
func NewBaseClient(config ProviderConfig, mapper *ErrorMapper, settings llm.AdapterSettings) (*BaseClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	baseURL, timeout := config.GetDefaults()
	if settings.Timeout > 0 {
		timeout = settings.Timeout
	}
	timeout = GetDefaultTimeout(timeout)

	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", config.ProviderName())

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFromContext
	transport.ResponseHeaderTimeout = timeout

	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTransport(transport)
	r.SetRetryCount(0)
	r.SetLogger(restyLogger{logger})
	for k, v := range config.BuildHeaders() {
		r.SetHeader(k, v)
	}
	for k, v := range settings.Headers {
		r.SetHeader(k, v)
	}
	if qb, ok := config.(QueryBuilder); ok {
		r.SetQueryParams(qb.BuildQuery())
	}

	return &BaseClient{
		config:    config,
		name:      config.ProviderName(),
		resty:     r,
		transport: transport,
		mapper:    mapper,
		logger:    logger,
		timeout:   timeout,
	}, nil
}

// Name Provider 名称
func (c *BaseClient) Name() string { return c.name }

// Logger 带 provider 属性的日志
func (c *BaseClient) Logger() *slog.Logger { return c.logger }

// Mapper 错误映射器
func (c *BaseClient) Mapper() *ErrorMapper { return c.mapper }

// Close 释放空闲连接
func (c *BaseClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// Do 发送请求，返回成功响应体
//
// 传输失败映射为 KindConnection；状态码 >= 400 或响应体中带错误信号时映射为对应类型。
func (c *BaseClient) Do(ctx context.Context, req *Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	r, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := r.Execute(req.method(), req.Path)
	if err != nil {
		e := c.mapper.FromTransport(err)
		e.Op = req.Op
		c.logger.Debug("request failed", "op", req.Op, "path", req.Path, "error", err)
		return nil, e
	}

	body := resp.Body()
	status := resp.StatusCode()
	c.logger.Debug("request done", "op", req.Op, "path", req.Path, "status", status,
		"elapsed", time.Since(start))

	if status < http.StatusBadRequest && req.Raw {
		return body, nil
	}
	if e := c.mapper.FromResponse(status, body); e != nil {
		e.Op = req.Op
		e.RequestID = resp.Header().Get("X-Request-ID")
		c.logger.Debug("provider error", "op", req.Op, "kind", e.Kind, "status", status, "code", e.Code)
		return nil, e
	}
	return body, nil
}

// DoJSON 发送请求并将响应体解析到 out
func (c *BaseClient) DoJSON(ctx context.Context, req *Request, out any) error {
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		e := c.mapper.Decode(http.StatusOK, body, err)
		e.Op = req.Op
		return e
	}
	return nil
}

// Stream 发起流式请求
//
// 状态码 >= 400 时读取响应体并映射错误。SSE 请求却收到 JSON 响应时，
// 先按错误体检查（文心、MiniMax 在 200 响应中返回错误）。
func (c *BaseClient) Stream(ctx context.Context, req *Request, framing Framing, handler EventHandler) (llm.Stream, error) {
	r, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	r.SetDoNotParseResponse(true)
	if framing == FramingSSE {
		r.SetHeader("Accept", "text/event-stream")
	}

	resp, err := r.Execute(req.method(), req.Path)
	if err != nil {
		e := c.mapper.FromTransport(err)
		e.Op = req.Op
		return nil, e
	}

	raw := resp.RawBody()
	status := resp.StatusCode()
	c.logger.Debug("stream opened", "op", req.Op, "path", req.Path, "status", status)

	if status >= http.StatusBadRequest || (framing == FramingSSE && isJSONContent(resp.Header().Get("Content-Type"))) {
		body, readErr := io.ReadAll(raw)
		_ = raw.Close()
		if readErr != nil {
			e := c.mapper.FromTransport(readErr)
			e.Op = req.Op
			return nil, e
		}
		if e := c.mapper.FromResponse(status, body); e != nil {
			e.Op = req.Op
			e.RequestID = resp.Header().Get("X-Request-ID")
			return nil, e
		}
		raw = io.NopCloser(bytes.NewReader(body))
	}

	return NewEventStream(raw, framing, handler, c.mapper, c.logger), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助方法
// ═══════════════════════════════════════════════════════════════════════════

// newRequest 构建 resty 请求
func (c *BaseClient) newRequest(ctx context.Context, req *Request) (*resty.Request, error) {
	r := c.resty.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())

	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}

	switch {
	case req.Upload != nil:
		field := req.Upload.Field
		if field == "" {
			field = "file"
		}
		r.SetFileReader(field, req.Upload.Filename, req.Upload.Reader)
		if len(req.Upload.Form) > 0 {
			r.SetFormData(req.Upload.Form)
		}
	case req.Body != nil:
		body, err := EncodeBody(req.Body, req.Extra)
		if err != nil {
			return nil, &llm.Error{
				Kind:     llm.KindBadRequest,
				Provider: c.name,
				Op:       req.Op,
				Message:  "encode request",
				Err:      err,
			}
		}
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(body)
	}
	return r, nil
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodPost
	}
	return r.Method
}

// proxyFromContext Transport 的 Proxy 函数
func proxyFromContext(req *http.Request) (*url.URL, error) {
	if p := llm.ProxyFromContext(req.Context()); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", p, err)
		}
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}

func isJSONContent(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

// ═══════════════════════════════════════════════════════════════════════════
// 日志适配
// ═══════════════════════════════════════════════════════════════════════════

// restyLogger 将 resty 日志转到 slog
type restyLogger struct {
	l *slog.Logger
}

func (r restyLogger) Errorf(format string, v ...any) { r.l.Error(fmt.Sprintf(format, v...)) }
func (r restyLogger) Warnf(format string, v ...any)  { r.l.Warn(fmt.Sprintf(format, v...)) }
func (r restyLogger) Debugf(format string, v ...any) { r.l.Debug(fmt.Sprintf(format, v...)) }

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数
// ═══════════════════════════════════════════════════════════════════════════

// GetDefaultTimeout 获取默认超时时间的辅助函数
//
// 如果 timeout 为 0，返回默认的 120 秒。
func GetDefaultTimeout(timeout time.Duration) time.Duration {
	if timeout == 0 {
		return 120 * time.Second
	}
	return timeout
}

// CloneHeaders 合并请求头，后者覆盖前者
func CloneHeaders(base map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}
