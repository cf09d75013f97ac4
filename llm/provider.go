// Package llm 封装生成模型访问：统一的补全接口和 OpenAI 兼容
// 的 Groq 客户端实现。
package llm

import "context"

// Message 对话消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// CompletionRequest 补全请求
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// JSONMode 要求模型输出合法 JSON（意图分类用）
	JSONMode bool `json:"json_mode,omitempty"`
}

// Completion 补全结果
type Completion struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	PromptTokens int    `json:"prompt_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Provider 生成模型提供者接口
type Provider interface {
	// Complete 执行一次补全
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Name 返回提供者名称
	Name() string
}
