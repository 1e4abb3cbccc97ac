package core

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
)

// ═══════════════════════════════════════════════════════════════════════════
// 事件处理器接口
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler 流式事件处理器
//
// 每个 Provider 实现此接口来处理协议特有的事件格式。
// 解码器只负责切分事件，语义转换全部由处理器完成。
//
// 协议差异示例：
//   - OpenAI 兼容: 无事件名，data: [DONE] 终止
//   - Anthropic: event: 字段驱动，message_stop 终止
//   - 文心: 无哨兵，数据中 is_end 为 true 时结束
type EventHandler interface {
	// IsTerminal 原始事件是否为终止哨兵
	//
	// 哨兵事件本身不会交给 HandleEvent。
	IsTerminal(ev Event) bool

	// HandleEvent 将事件转换为 StreamChunk
	//
	// 返回：
	//   - chunks: 一个事件可能产生多个 chunk，也可能没有
	//   - stop: 该事件之后流结束
	//   - err: 事件无法解析
	HandleEvent(ev Event) (chunks []*llm.StreamChunk, stop bool, err error)
}

// ═══════════════════════════════════════════════════════════════════════════
// EventStream
// ═══════════════════════════════════════════════════════════════════════════

// EventStream 基于 Decoder 的 llm.Stream 实现
//
// 行为：
//   - chunk 严格按解码顺序返回
//   - 每个 choice（按 Index 区分）第一个带 FinishReason 的 chunk 作为该 choice 的终止 chunk，
//     全部终止 chunk 在流结束时按 Index 顺序最后返回；
//     某个 choice 终止后其内容丢弃，其他 choice 不受影响
//   - 任一 choice 终止后到达的用量合并进最后返回的终止 chunk
//   - 每个事件先经过 ErrorMapper 检查，流内错误体映射为规范错误
//   - 连接在既无哨兵又无终止 chunk 时关闭，返回 KindTruncatedStream
//   - 结束、出错或 Close 时立即关闭响应体
type EventStream struct {
	body    io.ReadCloser
	dec     *Decoder
	handler EventHandler
	mapper  *ErrorMapper
	logger  *slog.Logger

	pending   []*llm.StreamChunk
	terminals map[int]*llm.StreamChunk
	usage     *llm.TokenUsage
	err       error
	done      bool
	closed    bool
}

// NewEventStream 创建事件流
func NewEventStream(body io.ReadCloser, framing Framing, handler EventHandler, mapper *ErrorMapper, logger *slog.Logger) *EventStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{
		body:    body,
		dec:     NewDecoder(body, framing, handler.IsTerminal),
		handler: handler,
		mapper:  mapper,
		logger:  logger,
	}
}

// Recv 实现 llm.Stream 接口
func (s *EventStream) Recv() (*llm.StreamChunk, error) {
	if s.closed {
		return nil, llm.ErrStreamClosed
	}

	for {
		if len(s.pending) > 0 {
			chunk := s.pending[0]
			s.pending = s.pending[1:]
			return chunk, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			if len(s.terminals) > 0 {
				s.pending = s.heldTerminals()
				continue
			}
			return nil, io.EOF
		}

		ev, err := s.dec.Next()
		if err != nil {
			s.finish(err)
			continue
		}

		if e := s.mapper.FromResponse(http.StatusOK, []byte(ev.Data)); e != nil {
			s.fail(e)
			continue
		}

		chunks, stop, err := s.handler.HandleEvent(ev)
		if err != nil {
			s.fail(s.mapper.Decode(http.StatusOK, []byte(ev.Data), err))
			continue
		}
		s.accept(chunks)
		if stop {
			s.done = true
			_ = s.release()
		}
	}
}

// Close 实现 llm.Stream 接口，可重复调用
func (s *EventStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.release()
}

// accept 处理一批 chunk
func (s *EventStream) accept(chunks []*llm.StreamChunk) {
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if c.Usage != nil && (len(s.terminals) > 0 || c.Terminal()) {
			s.usage = c.Usage
		}
		if _, ended := s.terminals[c.Index]; ended {
			continue
		}
		if c.Terminal() {
			if s.terminals == nil {
				s.terminals = make(map[int]*llm.StreamChunk)
			}
			s.terminals[c.Index] = c
			continue
		}
		if len(s.terminals) > 0 && c.Usage != nil && !hasContent(c) {
			continue
		}
		s.pending = append(s.pending, c)
	}
}

// heldTerminals 按 Index 排序的终止 chunk，最后一个带上最新用量
func (s *EventStream) heldTerminals() []*llm.StreamChunk {
	out := make([]*llm.StreamChunk, 0, len(s.terminals))
	for _, c := range s.terminals {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	if s.usage != nil {
		out[len(out)-1].Usage = s.usage
	}
	s.terminals = nil
	return out
}

func hasContent(c *llm.StreamChunk) bool {
	return c.Delta != "" || c.Reasoning != "" || c.ToolCall != nil || c.Image != nil
}

// finish 处理解码器的结束信号
func (s *EventStream) finish(err error) {
	switch {
	case errors.Is(err, io.EOF):
		if !s.dec.Sentinel() && len(s.terminals) == 0 {
			s.fail(llm.NewTruncatedError(s.mapper.Provider(), "connection closed before the stream terminated"))
			return
		}
		s.done = true
		_ = s.release()
	case errors.Is(err, ErrPartialLine):
		s.fail(&llm.Error{
			Kind:     llm.KindTruncatedStream,
			Provider: s.mapper.Provider(),
			Message:  "connection closed with a partial final line",
			Err:      err,
		})
	default:
		s.fail(s.mapper.FromTransport(err))
	}
}

// fail 记录错误并释放连接
func (s *EventStream) fail(err error) {
	s.err = err
	s.logger.Debug("stream failed", "kind", llm.KindOf(err), "error", err)
	_ = s.release()
}

// release 关闭响应体
func (s *EventStream) release() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

// 确保 EventStream 实现了 llm.Stream 接口
var _ llm.Stream = (*EventStream)(nil)
