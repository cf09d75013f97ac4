package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/studybuddy/types"
)

// GroqConfig Groq 客户端配置
type GroqConfig struct {
	BaseURL     string        `json:"base_url"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultGroqConfig 默认 Groq 配置
func DefaultGroqConfig() GroqConfig {
	return GroqConfig{
		BaseURL:     "https://api.groq.com/openai",
		Model:       "llama-3.3-70b-versatile",
		Temperature: 0.3,
		MaxTokens:   2048,
		Timeout:     60 * time.Second,
	}
}

// GroqProvider OpenAI 兼容的 Groq 聊天补全客户端
type GroqProvider struct {
	config GroqConfig
	client *http.Client
	logger *zap.Logger
}

// NewGroqProvider 创建 Groq 提供者
func NewGroqProvider(config GroqConfig, logger *zap.Logger) *GroqProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroqProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(zap.String("component", "groq")),
	}
}

// Name 返回提供者名称
func (p *GroqProvider) Name() string {
	return "groq"
}

// chatRequest /v1/chat/completions 请求体
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse /v1/chat/completions 响应体
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete 执行一次补全
func (p *GroqProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.config.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}

	payload := chatRequest{
		Model:       p.config.Model,
		Messages:    req.Messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrGenerationTimeout, "completion request timed out").
				WithCause(err)
		}
		return nil, types.NewError(types.ErrGenerationUnavailable, "llm backend unreachable").
			WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrGenerationUnavailable, "failed to read completion response").
			WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrGenerationUnavailable,
			fmt.Sprintf("llm request failed: status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, types.NewError(types.ErrGenerationUnavailable, "malformed completion response").
			WithCause(err)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrGenerationUnavailable, "completion response has no choices")
	}

	p.logger.Debug("completion finished",
		zap.String("model", parsed.Model),
		zap.Int("prompt_tokens", parsed.Usage.PromptTokens),
		zap.Int("output_tokens", parsed.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Completion{
		Content:      parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		PromptTokens: parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}
