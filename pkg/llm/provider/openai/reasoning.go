package openai

import (
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// ═══════════════════════════════════════════════════════════════════════════
// Reasoning 模型适配
// ═══════════════════════════════════════════════════════════════════════════

// reasoningModelPrefixes Reasoning 模型前缀列表
// 这些模型只接受 temperature 为 1，不支持 top_p
var reasoningModelPrefixes = []string{
	// Kimi 推理模型
	"kimi-thinking-",
	"kimi-k2-thinking",
	// 豆包推理模型
	"doubao-seed-1-6-thinking",
	"doubao-1-5-thinking",
	// 方舟上托管的 DeepSeek Reasoning 模型
	"deepseek-r1",
}

// IsReasoningModel 判断是否为 Reasoning 模型
func IsReasoningModel(model string) bool {
	modelLower := strings.ToLower(model)
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(modelLower, prefix) {
			return true
		}
	}
	return false
}

// AdaptForModel 根据模型类型修正采样参数
//
// Reasoning 模型强制 temperature 为 1 并去掉 top_p，其他模型原样保留。
func AdaptForModel(req *goopenai.ChatCompletionRequest, extra map[string]any) {
	if !IsReasoningModel(req.Model) {
		return
	}
	req.Temperature = 1
	req.TopP = 0
	delete(extra, "temperature")
}
