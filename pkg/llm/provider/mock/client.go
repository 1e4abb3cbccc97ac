package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

// Name Provider 名称
const Name = "mock"

var capabilities = llm.NewCapabilitySet(
	llm.OpListModels, llm.OpGetModel,
	llm.OpGenerate, llm.OpStreamGenerate, llm.OpCountTokens,
)

// CallRecord 记录一次调用的详情
type CallRecord struct {
	Op       llm.Operation
	Model    string
	Messages []llm.Message
	Options  *llm.Options
	Time     time.Time
}

// Client 本地脚本化 Adapter，不发起任何网络请求
type Client struct {
	core.Unsupported

	mu              sync.RWMutex
	configPath      string                    // 配置文件路径
	response        string                    // 默认响应
	responses       []string                  // 响应队列（依次返回）
	respIdx         int                       // 当前响应索引
	respFunc        ResponseFunc              // 动态响应函数
	msgFunc         MessageResponseFunc       // 完整消息响应函数（支持工具调用）
	models          []string                  // ListModels 返回的模型
	delay           time.Duration             // 响应延迟
	err             error                     // 返回错误
	calls           []CallRecord              // 调用记录
	counter         int                       // 调用计数
	scenarios       map[string]*scenarioState // 场景状态（通过 name 索引）
	currentScenario string                    // 当前使用的场景名称
}

// ResponseFunc 动态响应函数类型
// 接收消息列表和调用次数，返回响应文本
type ResponseFunc func(messages []llm.Message, callCount int) string

// MessageResponseFunc 完整消息响应函数类型
// 接收消息列表和调用次数，返回完整的 Message（可包含 ToolCalls）
type MessageResponseFunc func(messages []llm.Message, callCount int) llm.Message

// New 创建 Mock Client
//
// 不传 Option 时加载内嵌的示例配置：
//
//	client := mock.New()                                // 内嵌示例配置
//	client := mock.New(mock.WithConfigFile("x.yaml"))   // 指定配置文件
//	client := mock.New(mock.WithDelay(100 * time.Millisecond))
func New(opts ...Option) *Client {
	c := &Client{
		Unsupported: core.Unsupported{Provider: Name},
		response:    "This is a mock response.",
		models:      []string{"mock-1"},
	}

	if len(opts) == 0 {
		cfg, err := LoadExampleConfig()
		if err != nil {
			c.err = llm.NewError(llm.KindConfiguration, Name, "load example config", err)
		} else {
			applyConfig(c, cfg)
		}
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Spec 注册项，不需要凭证
//
// api_url 凭证非空时视为场景配置文件路径。
func Spec() llm.ProviderSpec {
	return llm.ProviderSpec{
		Name: Name,
		Factory: func(creds llm.Credentials, _ llm.AdapterSettings) (llm.Adapter, error) {
			if creds.APIURL == "" {
				return New(), nil
			}
			cfg, err := LoadConfigFile(creds.APIURL)
			if err != nil {
				return nil, llm.NewError(llm.KindConfiguration, Name, "load config file", err)
			}
			c := New(WithConfig(cfg))
			c.configPath = creds.APIURL
			return c, nil
		},
	}
}

// Option 配置选项函数
type Option func(*Client)

// WithResponse 设置预设响应文本
func WithResponse(text string) Option {
	return func(c *Client) {
		c.response = text
	}
}

// WithResponses 设置响应队列（依次返回，用完后循环）
func WithResponses(texts ...string) Option {
	return func(c *Client) {
		c.responses = texts
	}
}

// WithResponseFunc 设置动态响应函数
func WithResponseFunc(fn ResponseFunc) Option {
	return func(c *Client) {
		c.respFunc = fn
	}
}

// WithMessageFunc 设置完整消息响应函数（支持工具调用）
func WithMessageFunc(fn MessageResponseFunc) Option {
	return func(c *Client) {
		c.msgFunc = fn
	}
}

// WithModels 设置 ListModels 返回的模型
func WithModels(models ...string) Option {
	return func(c *Client) {
		c.models = models
	}
}

// WithDelay 设置响应延迟
func WithDelay(d time.Duration) Option {
	return func(c *Client) {
		c.delay = d
	}
}

// WithError 设置返回错误，非 *llm.Error 的错误包装为 KindUnknown
func WithError(err error) Option {
	return func(c *Client) {
		c.err = canonical(err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 场景管理方法
// ═══════════════════════════════════════════════════════════════════════════

// UseScenario 设置当前使用的场景（通过名称）
//
// 每次 Generate / StreamGenerate 自动推进到下一轮。
func (c *Client) UseScenario(name string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentScenario = name
	return c
}

// ResetScenario 重置指定场景的轮次到起始位置
func (c *Client) ResetScenario(name string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.scenarios[name]; ok {
		s.turnIdx = 0
	}
	return c
}

// ResetAllScenarios 重置所有场景的轮次
func (c *Client) ResetAllScenarios() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.scenarios {
		s.turnIdx = 0
	}
	return c
}

// GetScenarioNames 获取所有可用的场景名称（排序）
func (c *Client) GetScenarioNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.scenarios))
	for name := range c.scenarios {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetCurrentScenario 获取当前场景名称
func (c *Client) GetCurrentScenario() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentScenario
}

// GetScenarioTurnIndex 获取指定场景的当前轮次索引，场景不存在时返回 -1
func (c *Client) GetScenarioTurnIndex(name string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.scenarios[name]; ok {
		return s.turnIdx
	}
	return -1
}

// GetScenarioUserInputs 获取指定场景定义的所有用户输入
func (c *Client) GetScenarioUserInputs(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scenarios[name]
	if !ok {
		return nil
	}
	inputs := make([]string, 0, len(s.scenario.Turns))
	for _, turn := range s.scenario.Turns {
		if turn.User != "" {
			inputs = append(inputs, turn.User)
		}
	}
	return inputs
}

// ═══════════════════════════════════════════════════════════════════════════
// Adapter 接口实现
// ═══════════════════════════════════════════════════════════════════════════

// Name Provider 名称
func (c *Client) Name() string { return Name }

// Capabilities 声明支持的操作
func (c *Client) Capabilities() llm.CapabilitySet { return capabilities }

// TokenCountMode 本地估算
func (c *Client) TokenCountMode() llm.TokenCountMode { return llm.TokenCountEstimated }

// ListModels 返回配置的模型
func (c *Client) ListModels(context.Context) ([]llm.ModelInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make([]llm.ModelInfo, 0, len(c.models))
	for _, id := range c.models {
		out = append(out, llm.ModelInfo{ID: id, OwnedBy: Name})
	}
	return out, nil
}

// GetModel 在配置的模型中查找
func (c *Client) GetModel(ctx context.Context, id string) (*llm.ModelInfo, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, &llm.Error{
		Kind:     llm.KindBadRequest,
		Provider: Name,
		Op:       llm.OpGetModel,
		Code:     "model_not_found",
		Message:  fmt.Sprintf("model %q not found", id),
	}
}

// CountTokens 本地启发式估算
func (c *Client) CountTokens(_ context.Context, _ string, messages []llm.Message) (llm.TokenCount, error) {
	return core.EstimateTokens(messages), nil
}

// Generate 同步生成
func (c *Client) Generate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (*llm.Response, error) {
	msg, delay, err := c.next(llm.OpGenerate, model, messages, opts)

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, contextError(llm.OpGenerate, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}

	return &llm.Response{
		ID:      "mock-" + uuid.NewString(),
		Model:   model,
		Choices: []llm.Choice{{Message: msg, FinishReason: finishReason(msg)}},
		Usage:   usageOf(messages, msg),
	}, nil
}

// StreamGenerate 流式生成，文本按字符逐个返回
func (c *Client) StreamGenerate(ctx context.Context, model string, messages []llm.Message, opts *llm.Options) (llm.Stream, error) {
	msg, delay, err := c.next(llm.OpStreamGenerate, model, messages, opts)
	if err != nil {
		return nil, err
	}
	return &stream{ctx: ctx, delay: delay, chunks: chunksOf(messages, msg)}, nil
}

// Close 无连接可释放
func (c *Client) Close() error {
	return nil
}

// next 记录调用并取出本次响应（场景 > 消息函数 > 文本响应）
func (c *Client) next(op llm.Operation, model string, messages []llm.Message, opts *llm.Options) (llm.Message, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	c.calls = append(c.calls, CallRecord{
		Op:       op,
		Model:    model,
		Messages: messages,
		Options:  opts,
		Time:     time.Now(),
	})
	if c.err != nil {
		return llm.Message{}, c.delay, c.err
	}

	if msg := c.getScenarioResponse(messages); msg != nil {
		return *msg, c.delay, nil
	}
	if c.msgFunc != nil {
		msg := c.msgFunc(messages, c.counter)
		msg.Role = llm.RoleAssistant
		return msg, c.delay, nil
	}
	return llm.NewTextMessage(llm.RoleAssistant, c.getResponse(messages)), c.delay, nil
}

// getScenarioResponse 获取场景响应（需要在锁内调用）
func (c *Client) getScenarioResponse(messages []llm.Message) *llm.Message {
	if c.currentScenario == "" {
		return nil
	}
	s, ok := c.scenarios[c.currentScenario]
	if !ok {
		return nil
	}

	msg := s.buildTurnResponse(messages, createTemplateData(messages))
	s.turnIdx++
	return &msg
}

// getResponse 获取文本响应（需要在锁内调用）
func (c *Client) getResponse(messages []llm.Message) string {
	if c.respFunc != nil {
		return c.respFunc(messages, c.counter)
	}
	if len(c.responses) > 0 {
		resp := c.responses[c.respIdx%len(c.responses)]
		c.respIdx++
		return resp
	}
	return c.response
}

// ═══════════════════════════════════════════════════════════════════════════
// 调用记录
// ═══════════════════════════════════════════════════════════════════════════

// SetResponse 动态修改响应（线程安全）
func (c *Client) SetResponse(text string) {
	c.mu.Lock()
	c.response = text
	c.mu.Unlock()
}

// SetError 动态修改错误（线程安全），nil 清除
func (c *Client) SetError(err error) {
	c.mu.Lock()
	c.err = canonical(err)
	c.mu.Unlock()
}

// Calls 返回所有调用记录
func (c *Client) Calls() []CallRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.calls)
}

// CallCount 返回调用次数
func (c *Client) CallCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counter
}

// LastCall 返回最后一次调用记录
func (c *Client) LastCall() *CallRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.calls) == 0 {
		return nil
	}
	call := c.calls[len(c.calls)-1]
	return &call
}

// Reset 重置调用记录和计数器
func (c *Client) Reset() {
	c.mu.Lock()
	c.calls = nil
	c.counter = 0
	c.respIdx = 0
	c.mu.Unlock()
}

// GetLastInput 获取最后一次调用中最后一条用户消息的内容
func (c *Client) GetLastInput() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.calls) == 0 {
		return ""
	}
	last := c.calls[len(c.calls)-1]
	for i := len(last.Messages) - 1; i >= 0; i-- {
		if last.Messages[i].Role == llm.RoleUser {
			return getMessageContent(last.Messages[i])
		}
	}
	return ""
}

// GetAllInputs 获取所有调用的用户输入
func (c *Client) GetAllInputs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var inputs []string
	for _, call := range c.calls {
		for _, msg := range call.Messages {
			if msg.Role == llm.RoleUser {
				inputs = append(inputs, getMessageContent(msg))
			}
		}
	}
	return inputs
}

// GetConfigPath 获取当前使用的配置文件路径
func (c *Client) GetConfigPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configPath
}

// ═══════════════════════════════════════════════════════════════════════════
// 内存流
// ═══════════════════════════════════════════════════════════════════════════

// stream 预先生成的 chunk 序列
type stream struct {
	ctx    context.Context
	delay  time.Duration
	chunks []*llm.StreamChunk
	pos    int
	closed bool
}

// Recv 实现 llm.Stream 接口，首个 chunk 之前等待 delay
func (s *stream) Recv() (*llm.StreamChunk, error) {
	if s.closed {
		return nil, llm.ErrStreamClosed
	}
	if s.pos == 0 && s.delay > 0 {
		select {
		case <-time.After(s.delay):
			s.delay = 0
		case <-s.ctx.Done():
			return nil, contextError(llm.OpStreamGenerate, s.ctx.Err())
		}
	}
	if err := s.ctx.Err(); err != nil {
		return nil, contextError(llm.OpStreamGenerate, err)
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

// Close 实现 llm.Stream 接口
func (s *stream) Close() error {
	s.closed = true
	return nil
}

// chunksOf 把消息拆成增量：思考、逐字符文本、整体工具调用、终止 chunk
func chunksOf(messages []llm.Message, msg llm.Message) []*llm.StreamChunk {
	var chunks []*llm.StreamChunk
	var toolIdx int
	for _, block := range msg.Blocks() {
		switch b := block.(type) {
		case *llm.ThinkingBlock:
			chunks = append(chunks, &llm.StreamChunk{Reasoning: b.Thinking})
		case *llm.TextBlock:
			for _, r := range b.Text {
				chunks = append(chunks, &llm.StreamChunk{Delta: string(r)})
			}
		case *llm.ToolCall:
			args, _ := json.Marshal(b.Input)
			chunks = append(chunks, &llm.StreamChunk{ToolCall: &llm.ToolCallDelta{
				Index:          toolIdx,
				ID:             b.ID,
				Name:           b.Name,
				ArgumentsDelta: string(args),
			}})
			toolIdx++
		}
	}
	return append(chunks, &llm.StreamChunk{
		FinishReason: finishReason(msg),
		Usage:        usageOf(messages, msg),
	})
}

// ═══════════════════════════════════════════════════════════════════════════
// 辅助函数
// ═══════════════════════════════════════════════════════════════════════════

func finishReason(msg llm.Message) llm.FinishReason {
	if msg.HasToolCalls() {
		return llm.FinishReasonToolCalls
	}
	return llm.FinishReasonStop
}

// usageOf 输入按每条消息 10 tokens，输出按 4 字节 1 token
func usageOf(messages []llm.Message, msg llm.Message) *llm.TokenUsage {
	input := int64(len(messages) * 10)
	output := int64(len(msg.GetContent()) / 4)
	if msg.HasToolCalls() {
		output = 20
	}
	return &llm.TokenUsage{
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  input + output,
	}
}

func canonical(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := llm.GetError(err); ok {
		return err
	}
	return llm.NewError(llm.KindUnknown, Name, "simulated error", err)
}

func contextError(op llm.Operation, err error) error {
	return &llm.Error{Kind: llm.KindConnection, Provider: Name, Op: op, Message: "context done", Err: err}
}

// 确保 Client 实现了 llm.Adapter 接口
var _ llm.Adapter = (*Client)(nil)
