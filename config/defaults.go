package config

import (
	"time"

	"github.com/BaSui01/studybuddy/types"
)

// DefaultConfig 返回带有合理默认值的配置
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			MaxSize: 1000,
			Overlap: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:   "http",
			BaseURL:    "http://localhost:8080",
			Model:      "all-MiniLM-L6-v2",
			Dimensions: 384,
			Timeout:    30 * time.Second,
			MaxRetries: 1,
			Cache: EmbeddingCacheConfig{
				Enabled: false,
				Addr:    "localhost:6379",
				DB:      0,
				TTL:     24 * time.Hour,
			},
		},
		Store: StoreConfig{
			Driver: "memory",
			Path:   "studybuddy.db",
		},
		Retrieval: RetrievalConfig{
			TopK:               5,
			RelevanceThreshold: 0.3,
			HybridFallback:     true,
		},
		WebSearch: WebSearchConfig{
			BaseURL:            "https://api.tavily.com",
			MaxResults:         5,
			Depth:              "basic",
			Timeout:            20 * time.Second,
			MaxRetries:         1,
			RateLimitPerMinute: 60,
			CacheTTL:           10 * time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.3,
			MaxTokens:   2048,
			Timeout:     60 * time.Second,
		},
		Router: RouterConfig{
			UseLLM:          true,
			Timeout:         10 * time.Second,
			DefaultCategory: string(types.CategoryRetrieveDocuments),
		},
		Tools: ToolsConfig{
			ContextTokenBudget:     3000,
			TokenizerEncoding:      "cl100k_base",
			QuizCount:              5,
			QuizDifficulty:         "medium",
			FlashcardCount:         10,
			ImportantQuestionCount: 10,
		},
		History: HistoryConfig{
			MaxTurns: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "studybuddy",
			SampleRate:   1.0,
		},
	}
}

// parseCategory 校验路由降级类别是否属于闭合类别集
func parseCategory(raw string) (types.Category, error) {
	return types.ParseCategory(raw)
}
