package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/studybuddy/agent"
	"github.com/BaSui01/studybuddy/agent/tools"
	"github.com/BaSui01/studybuddy/config"
	"github.com/BaSui01/studybuddy/internal/metrics"
	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/llm/embedding"
	"github.com/BaSui01/studybuddy/rag"
	"github.com/BaSui01/studybuddy/types"
)

// stack 装配完成的处理管线
type stack struct {
	orchestrator *agent.Orchestrator
}

// buildStack 按配置装配检索管线、路由器、工具注册表和编排器
func buildStack(cfg *config.Config, logger *zap.Logger) (*stack, error) {
	collector := metrics.NewCollector("studybuddy", prometheus.DefaultRegisterer, logger)

	// 向量存储
	var store rag.VectorStore
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := rag.NewSQLiteStore(cfg.Store.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		store = s
	default:
		store = rag.NewMemoryStore(logger)
	}

	// 嵌入提供者
	var embedder embedding.Provider
	switch cfg.Embedding.Provider {
	case "local":
		embedder = embedding.NewLocalProvider(cfg.Embedding.Dimensions)
	default:
		embedder = embedding.NewHTTPProvider(embedding.HTTPConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		}, logger)
	}
	if cfg.Embedding.Cache.Enabled {
		embedder = embedding.NewCachedProvider(embedder, embedding.CacheConfig{
			Addr:     cfg.Embedding.Cache.Addr,
			Password: cfg.Embedding.Cache.Password,
			DB:       cfg.Embedding.Cache.DB,
			TTL:      cfg.Embedding.Cache.TTL,
		}, cfg.Embedding.Model, logger).WithMetrics(collector)
	}

	retriever := rag.NewRetriever(
		rag.NewSplitter(rag.SplitterConfig{
			MaxSize: cfg.Chunking.MaxSize,
			Overlap: cfg.Chunking.Overlap,
		}, logger),
		embedder,
		store,
		rag.RetrieverConfig{
			TopK:               cfg.Retrieval.TopK,
			RelevanceThreshold: cfg.Retrieval.RelevanceThreshold,
			EmbedRetries:       cfg.Embedding.MaxRetries,
			Parallelism:        4,
		},
		logger,
	)

	search := rag.NewTavilyProvider(rag.TavilyConfig{
		BaseURL:            cfg.WebSearch.BaseURL,
		APIKey:             cfg.WebSearch.APIKey,
		Depth:              cfg.WebSearch.Depth,
		Timeout:            cfg.WebSearch.Timeout,
		MaxRetries:         cfg.WebSearch.MaxRetries,
		RateLimitPerMinute: cfg.WebSearch.RateLimitPerMinute,
		CacheTTL:           cfg.WebSearch.CacheTTL,
	}, logger)

	provider := llm.NewGroqProvider(llm.GroqConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	toolsCfg := tools.Config{
		ContextTokenBudget:     cfg.Tools.ContextTokenBudget,
		TokenizerEncoding:      cfg.Tools.TokenizerEncoding,
		QuizCount:              cfg.Tools.QuizCount,
		QuizDifficulty:         cfg.Tools.QuizDifficulty,
		FlashcardCount:         cfg.Tools.FlashcardCount,
		ImportantQuestionCount: cfg.Tools.ImportantQuestionCount,
	}
	registry := tools.NewRegistry(logger)
	registry.Register(tools.NewRetrieveHandler(provider, toolsCfg))
	registry.Register(tools.NewWebSearchHandler(provider, toolsCfg))
	registry.Register(tools.NewExamAnswerHandler(provider, toolsCfg))
	registry.Register(tools.NewStudyPlanHandler(provider, toolsCfg))
	registry.Register(tools.NewQuizHandler(provider, toolsCfg))
	registry.Register(tools.NewFlashcardsHandler(provider, toolsCfg))
	registry.Register(tools.NewExplainHandler(provider, toolsCfg))
	registry.Register(tools.NewImportantQuestionsHandler(provider, toolsCfg))

	defaultCategory, err := types.ParseCategory(cfg.Router.DefaultCategory)
	if err != nil {
		defaultCategory = types.CategoryRetrieveDocuments
	}
	router := agent.NewIntentRouter(provider, agent.RouterConfig{
		UseLLM:          cfg.Router.UseLLM,
		Timeout:         cfg.Router.Timeout,
		DefaultCategory: defaultCategory,
	}, logger)

	orchestrator := agent.NewOrchestrator(
		router,
		retriever,
		search,
		registry,
		agent.OrchestratorConfig{
			HybridFallback:    cfg.Retrieval.HybridFallback,
			SearchMaxResults:  cfg.WebSearch.MaxResults,
			WebSearchTimeout:  cfg.WebSearch.Timeout,
			GenerationTimeout: cfg.LLM.Timeout,
			HistoryMaxTurns:   cfg.History.MaxTurns,
		},
		collector,
		logger,
	)

	return &stack{orchestrator: orchestrator}, nil
}

// supportedExtensions 可直接读取为纯文本的扩展名
var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".csv": true,
}

// loadDocuments 把文件读取为文档。文档身份是文件路径，
// 重复摄入同一路径会替换旧块。
func loadDocuments(paths []string) ([]types.Document, error) {
	docs := make([]types.Document, 0, len(paths))
	for _, path := range paths {
		ext := strings.ToLower(filepath.Ext(path))
		if !supportedExtensions[ext] {
			return nil, types.NewError(types.ErrUnsupportedFormat,
				fmt.Sprintf("unsupported file type %q (supported: txt, md, csv)", ext))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewError(types.ErrExtractionFailed,
				"failed to read "+path).WithCause(err)
		}
		docs = append(docs, types.Document{
			ID:     path,
			Source: path,
			Text:   string(data),
			Metadata: types.DocumentMetadata{
				SourceType: types.SourceUpload,
				UploadedAt: time.Now(),
			},
		})
	}
	return docs, nil
}

// initLogger 按配置初始化 zap 日志
func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level)
	return zap.New(core, zap.AddCaller())
}
