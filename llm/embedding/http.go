package embedding

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

// HTTPConfig OpenAI 兼容嵌入服务配置
type HTTPConfig struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Model      string        `json:"model"`
	Dimensions int           `json:"dimensions"`
	Timeout    time.Duration `json:"timeout"`
}

// DefaultHTTPConfig 默认配置
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Model:      "all-MiniLM-L6-v2",
		Dimensions: 384,
		Timeout:    30 * time.Second,
	}
}

// HTTPProvider 调用 OpenAI 兼容 /v1/embeddings 端点的嵌入提供者
type HTTPProvider struct {
	config HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPProvider 创建 HTTP 嵌入提供者
func NewHTTPProvider(config HTTPConfig, logger *zap.Logger) *HTTPProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(zap.String("component", "embedding_http")),
	}
}

// Name 返回提供者名称
func (p *HTTPProvider) Name() string {
	return "http"
}

// Dimensions 返回向量维度
func (p *HTTPProvider) Dimensions() int {
	return p.config.Dimensions
}

// embeddingRequest /v1/embeddings 请求体
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse /v1/embeddings 响应体
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedQuery 嵌入单条查询
func (p *HTTPProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vectors, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments 批量嵌入。响应按 index 重排，保证与输入一一对应。
func (p *HTTPProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{
		Model: p.config.Model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrEmbeddingTimeout, "embedding request timed out").
				WithStage("embedding").WithRetryable(true).WithCause(err)
		}
		return nil, types.NewError(types.ErrEmbeddingUnavailable, "embedding backend unreachable").
			WithStage("embedding").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrEmbeddingUnavailable, "failed to read embedding response").
			WithStage("embedding").WithRetryable(true).WithCause(err)
	}

	if resp.StatusCode >= 500 {
		return nil, types.NewError(types.ErrEmbeddingUnavailable,
			fmt.Sprintf("embedding backend error: status %d", resp.StatusCode)).
			WithStage("embedding").WithRetryable(true)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrEmbeddingUnavailable,
			fmt.Sprintf("embedding request rejected: status %d", resp.StatusCode)).
			WithStage("embedding")
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, types.NewError(types.ErrEmbeddingUnavailable, "malformed embedding response").
			WithStage("embedding").WithCause(err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, types.NewError(types.ErrEmbeddingUnavailable,
			fmt.Sprintf("embedding count mismatch: want %d, got %d", len(texts), len(parsed.Data))).
			WithStage("embedding")
	}

	vectors := make([][]float64, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, types.NewError(types.ErrEmbeddingUnavailable,
				fmt.Sprintf("embedding index out of range: %d", d.Index)).
				WithStage("embedding")
		}
		if len(d.Embedding) != p.config.Dimensions {
			return nil, types.NewError(types.ErrEmbeddingUnavailable,
				fmt.Sprintf("unexpected embedding dimensions: want %d, got %d", p.config.Dimensions, len(d.Embedding))).
				WithStage("embedding")
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
