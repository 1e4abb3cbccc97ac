package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/core"
)

func TestEventHandler_HandleEvent(t *testing.T) {
	h := NewEventHandler()

	t.Run("文本增量", func(t *testing.T) {
		chunks, stop, err := h.HandleEvent(core.Event{Data: `{"choices":[{"delta":{"content":"Hello"}}]}`})
		require.NoError(t, err)
		assert.False(t, stop)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Hello", chunks[0].Delta)
		assert.False(t, chunks[0].Terminal())
	})

	t.Run("推理增量", func(t *testing.T) {
		chunks, _, err := h.HandleEvent(core.Event{Data: `{"choices":[{"delta":{"reasoning_content":"想一想"}}]}`})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "想一想", chunks[0].Reasoning)
	})

	t.Run("工具调用增量", func(t *testing.T) {
		chunks, _, err := h.HandleEvent(core.Event{Data: `{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_1","function":{"name":"weather","arguments":"{\"ci"}}]}}]}`})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		tc := chunks[0].ToolCall
		require.NotNil(t, tc)
		assert.Equal(t, 1, tc.Index)
		assert.Equal(t, "weather", tc.Name)
		assert.Equal(t, `{"ci`, tc.ArgumentsDelta)
	})

	t.Run("内容与完成原因同时到达", func(t *testing.T) {
		chunks, _, err := h.HandleEvent(core.Event{Data: `{"choices":[{"delta":{"content":"!"},"finish_reason":"stop","usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}]}`})
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "!", chunks[0].Delta)
		assert.Equal(t, llm.FinishReasonStop, chunks[1].FinishReason)
		require.NotNil(t, chunks[1].Usage)
		assert.Equal(t, int64(5), chunks[1].Usage.TotalTokens)
	})

	t.Run("单独的用量 chunk", func(t *testing.T) {
		chunks, _, err := h.HandleEvent(core.Event{Data: `{"choices":[],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, int64(2), chunks[0].Usage.TotalTokens)
	})

	t.Run("非法 JSON", func(t *testing.T) {
		_, _, err := h.HandleEvent(core.Event{Data: `{"choices":`})
		assert.Error(t, err)
	})
}

func TestEventHandler_IsTerminal(t *testing.T) {
	h := NewEventHandler()
	assert.True(t, h.IsTerminal(core.Event{Data: "[DONE]"}))
	assert.False(t, h.IsTerminal(core.Event{Data: `{"choices":[]}`}))
}
