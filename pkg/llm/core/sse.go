package core

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// 帧格式与状态
// ═══════════════════════════════════════════════════════════════════════════

// Framing 流式响应的帧格式
type Framing int

const (
	// FramingSSE 字段前缀行（event:/data:/id:），空行分隔事件
	FramingSSE Framing = iota

	// FramingNDJSON 每行一个 JSON 记录
	FramingNDJSON
)

func (f Framing) String() string {
	switch f {
	case FramingSSE:
		return "sse"
	case FramingNDJSON:
		return "ndjson"
	default:
		return "unknown"
	}
}

// DecoderState 解码器状态
type DecoderState int

const (
	StateAwaitingLine DecoderState = iota
	StateAccumulatingEvent
	StateEventReady
	StateTerminated
)

func (s DecoderState) String() string {
	switch s {
	case StateAwaitingLine:
		return "AWAITING_LINE"
	case StateAccumulatingEvent:
		return "ACCUMULATING_EVENT"
	case StateEventReady:
		return "EVENT_READY"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// ErrPartialLine 连接关闭时最后一行没有换行符
var ErrPartialLine = errors.New("stream closed mid-line")

// ═══════════════════════════════════════════════════════════════════════════
// 事件
// ═══════════════════════════════════════════════════════════════════════════

// Event 解码出的原始事件
//
// SSE 下 Name 对应 event: 字段，多个 data: 行以 "\n" 连接；NDJSON 下只有 Data。
type Event struct {
	Name string
	Data string
	ID   string
}

// JSON 将 Data 解析为 map
func (e Event) JSON() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(e.Data), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 解码器
// ═══════════════════════════════════════════════════════════════════════════

// Decoder 拉取式流解码器
//
// 状态迁移：AWAITING_LINE → ACCUMULATING_EVENT → EVENT_READY → TERMINATED。
// 解码器只持有当前事件的行，不保留已返回的事件。
//
// Next 的返回约定：
//   - 事件：下一个完整事件
//   - io.EOF：遇到终止哨兵（Sentinel() 为 true）或连接在行边界正常关闭
//   - ErrPartialLine：连接关闭时最后一行不完整
//   - 其他错误：底层读取失败
//
// 进入 TERMINATED 后，即使连接上还有数据，Next 也只返回 io.EOF。
type Decoder struct {
	r          *bufio.Reader
	framing    Framing
	isTerminal func(Event) bool

	state    DecoderState
	sentinel bool

	name  string
	id    string
	lines []string
}

// NewDecoder 创建解码器
//
// isTerminal 判断事件是否为终止哨兵（如 data: [DONE]），可为 nil。
func NewDecoder(r io.Reader, framing Framing, isTerminal func(Event) bool) *Decoder {
	return &Decoder{
		r:          bufio.NewReader(r),
		framing:    framing,
		isTerminal: isTerminal,
	}
}

// State 当前状态
func (d *Decoder) State() DecoderState {
	return d.state
}

// Sentinel 是否因终止哨兵而结束
func (d *Decoder) Sentinel() bool {
	return d.sentinel
}

// Next 返回下一个事件
func (d *Decoder) Next() (Event, error) {
	if d.state == StateTerminated {
		return Event{}, io.EOF
	}
	if d.state == StateEventReady {
		d.state = StateAwaitingLine
	}

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.state = StateTerminated
				return Event{}, err
			}
			if line != "" {
				d.state = StateTerminated
				return Event{}, ErrPartialLine
			}
			// 行边界上的正常关闭：SSE 中已累积完整行的事件照常交付
			if d.state == StateAccumulatingEvent {
				return d.dispatch()
			}
			d.state = StateTerminated
			return Event{}, io.EOF
		}

		line = strings.TrimRight(line, "\r\n")

		if d.framing == FramingNDJSON {
			if strings.TrimSpace(line) == "" {
				continue
			}
			d.lines = append(d.lines[:0], line)
			return d.dispatch()
		}

		if line == "" {
			if d.state == StateAccumulatingEvent {
				return d.dispatch()
			}
			continue
		}
		d.feed(line)
	}
}

// feed 处理一行 SSE 字段
func (d *Decoder) feed(line string) {
	if strings.HasPrefix(line, ":") {
		// 注释行
		return
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		d.name = value
	case "data":
		d.lines = append(d.lines, value)
	case "id":
		d.id = value
	default:
		// retry 及未知字段忽略
		return
	}
	d.state = StateAccumulatingEvent
}

// dispatch 交付当前事件并清空缓冲
func (d *Decoder) dispatch() (Event, error) {
	ev := Event{
		Name: d.name,
		Data: strings.Join(d.lines, "\n"),
		ID:   d.id,
	}
	d.name, d.id = "", ""
	d.lines = d.lines[:0]

	// 只有 event: 没有 data: 的事件（如部分心跳）跳过
	if ev.Data == "" && ev.Name == "" {
		d.state = StateAwaitingLine
		return d.Next()
	}

	if d.isTerminal != nil && d.isTerminal(ev) {
		d.state = StateTerminated
		d.sentinel = true
		return Event{}, io.EOF
	}

	d.state = StateEventReady
	return ev, nil
}
