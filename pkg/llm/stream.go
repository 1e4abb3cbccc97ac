package llm

import (
	"encoding/json"
	"errors"
	"io"
	"iter"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ═══════════════════════════════════════════════════════════════════════════
// 流式响应
// ═══════════════════════════════════════════════════════════════════════════

// Stream 流式响应
//
// Recv 按解码顺序逐个返回 StreamChunk，流正常结束时返回 io.EOF。
// 传输中途失败时返回规范错误，已返回的 chunk 仍然有效。
// 无论是否读完，调用方都必须调用 Close 释放连接；Close 可重复调用。
//
//	stream, err := adapter.StreamGenerate(ctx, model, messages, nil)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    chunk, err := stream.Recv()
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk.Delta)
//	}
type Stream interface {
	Recv() (*StreamChunk, error)
	Close() error
}

// StreamChunk 流式响应的单个增量
//
// Index 为所属 choice。FinishReason 仅在终止 chunk 上设置，每个 choice 最多一个终止 chunk，
// 全部终止 chunk 在流的末尾返回，之后 Recv 只会返回 io.EOF。
// Image 为多模态模型输出的图片片段，与 Delta 按到达顺序交错。
type StreamChunk struct {
	Index        int            `json:"index"`
	Delta        string         `json:"delta,omitempty"`
	Reasoning    string         `json:"reasoning,omitempty"`
	Image        *ImageBlock    `json:"image,omitempty"`
	ToolCall     *ToolCallDelta `json:"tool_call,omitempty"`
	FinishReason FinishReason   `json:"finish_reason,omitempty"`
	Usage        *TokenUsage    `json:"usage,omitempty"`
}

// Terminal 是否为终止 chunk
func (c *StreamChunk) Terminal() bool {
	return c.FinishReason != FinishReasonAbsent
}

// ToolCallDelta 工具调用增量
type ToolCallDelta struct {
	Index          int    `json:"index"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════
// 迭代器
// ═══════════════════════════════════════════════════════════════════════════

// Chunks 将 Stream 包装为 range-over-func 迭代器
//
// 迭代以任何方式结束（读完、出错、调用方 break）时都会关闭流：
//
//	for chunk, err := range llm.Chunks(stream) {
//	    if err != nil {
//	        return err
//	    }
//	    if done(chunk) {
//	        break // 连接随之释放
//	    }
//	}
func Chunks(s Stream) iter.Seq2[*StreamChunk, error] {
	return func(yield func(*StreamChunk, error) bool) {
		defer func() { _ = s.Close() }()
		for {
			chunk, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// 聚合
// ═══════════════════════════════════════════════════════════════════════════

// Collect 读完整个流并聚合为 Response，结束后关闭流
//
// 按 chunk 的 Index 聚合为多个 Choice（按 Index 排序）。
// 工具调用参数按 index 拼接；拼接结果不是合法 JSON 时尝试修复。
// 出错时返回错误，不返回部分结果。
func Collect(s Stream) (*Response, error) {
	var (
		usage   *TokenUsage
		choices = map[int]*choiceBuffer{}
	)

	for chunk, err := range Chunks(s) {
		if err != nil {
			return nil, err
		}
		buf, ok := choices[chunk.Index]
		if !ok {
			buf = &choiceBuffer{calls: map[int]*toolCallBuffer{}}
			choices[chunk.Index] = buf
		}
		buf.add(chunk)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	indexes := make([]int, 0, len(choices))
	for idx := range choices {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	resp := &Response{Usage: usage}
	for _, idx := range indexes {
		buf := choices[idx]
		resp.Choices = append(resp.Choices, Choice{Index: idx, Message: buf.message(), FinishReason: buf.finish})
	}
	if len(resp.Choices) == 0 {
		resp.Choices = []Choice{{Message: Message{Role: RoleAssistant}}}
	}
	return resp, nil
}

// choiceBuffer 单个 choice 的聚合状态
type choiceBuffer struct {
	text      strings.Builder
	reasoning strings.Builder
	parts     []ContentBlock // 文本与图片按到达顺序
	hasImage  bool
	finish    FinishReason
	calls     map[int]*toolCallBuffer
}

func (b *choiceBuffer) add(chunk *StreamChunk) {
	b.reasoning.WriteString(chunk.Reasoning)
	if chunk.Delta != "" {
		b.text.WriteString(chunk.Delta)
		b.appendText(chunk.Delta)
	}
	if chunk.Image != nil {
		b.parts = append(b.parts, chunk.Image)
		b.hasImage = true
	}
	if tc := chunk.ToolCall; tc != nil {
		buf, ok := b.calls[tc.Index]
		if !ok {
			buf = &toolCallBuffer{}
			b.calls[tc.Index] = buf
		}
		if tc.ID != "" {
			buf.id = tc.ID
		}
		if tc.Name != "" {
			buf.name = tc.Name
		}
		buf.args.WriteString(tc.ArgumentsDelta)
	}
	if chunk.Terminal() {
		b.finish = chunk.FinishReason
	}
}

// appendText 连续的文本增量合并为一个文本块
func (b *choiceBuffer) appendText(delta string) {
	if n := len(b.parts); n > 0 {
		if tb, ok := b.parts[n-1].(*TextBlock); ok {
			tb.Text += delta
			return
		}
	}
	b.parts = append(b.parts, &TextBlock{Text: delta})
}

func (b *choiceBuffer) message() Message {
	msg := Message{Role: RoleAssistant, Content: b.text.String()}
	if len(b.calls) == 0 && b.reasoning.Len() == 0 && !b.hasImage {
		return msg
	}

	var blocks []ContentBlock
	if b.reasoning.Len() > 0 {
		blocks = append(blocks, &ThinkingBlock{Thinking: b.reasoning.String()})
	}
	blocks = append(blocks, b.parts...)

	indexes := make([]int, 0, len(b.calls))
	for idx := range b.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		buf := b.calls[idx]
		blocks = append(blocks, &ToolCall{
			ID:    buf.id,
			Name:  buf.name,
			Input: ParseToolArguments(buf.args.String()),
		})
	}
	msg.ContentBlocks = blocks
	return msg
}

type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// ParseToolArguments 解析工具调用参数 JSON
//
// 流被截断或模型输出不规范时先修复再解析，仍失败返回 nil。
func ParseToolArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil
	}
	return args
}
