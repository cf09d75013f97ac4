// =============================================================================
// StudyBuddy 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("STUDYBUDDY").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// 配置在启动时读取一次；核心组件在会话中不会重新读取。
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 StudyBuddy 核心的完整配置结构
type Config struct {
	// Chunking 文档分块配置
	Chunking ChunkingConfig `yaml:"chunking" env:"CHUNKING"`

	// Embedding 嵌入配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Store 向量索引存储配置
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Retrieval 检索配置
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// WebSearch 网络搜索配置
	WebSearch WebSearchConfig `yaml:"web_search" env:"WEB_SEARCH"`

	// LLM 生成模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Router 意图路由配置
	Router RouterConfig `yaml:"router" env:"ROUTER"`

	// Tools 考试工具配置
	Tools ToolsConfig `yaml:"tools" env:"TOOLS"`

	// History 跨轮次历史配置
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ChunkingConfig 文档分块配置
type ChunkingConfig struct {
	// 单块最大字符数
	MaxSize int `yaml:"max_size" env:"MAX_SIZE"`
	// 相邻块重叠字符数
	Overlap int `yaml:"overlap" env:"OVERLAP"`
}

// EmbeddingConfig 嵌入配置
type EmbeddingConfig struct {
	// 提供者类型: http, local
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 基础 URL（OpenAI 兼容 /v1/embeddings）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 向量维度
	Dimensions int `yaml:"dimensions" env:"DIMENSIONS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 瞬时失败重试次数（仅嵌入阶段）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 缓存配置
	Cache EmbeddingCacheConfig `yaml:"cache" env:"CACHE"`
}

// EmbeddingCacheConfig Redis 嵌入缓存配置
type EmbeddingCacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Redis 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 缓存过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// StoreConfig 向量索引存储配置
type StoreConfig struct {
	// 驱动类型: memory, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// sqlite 数据库路径
	Path string `yaml:"path" env:"PATH"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// 每次查询返回的块数
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 相关性阈值（余弦相似度），最佳分数低于该值视为弱检索
	RelevanceThreshold float64 `yaml:"relevance_threshold" env:"RELEVANCE_THRESHOLD"`
	// 弱检索时是否回退到网络搜索
	HybridFallback bool `yaml:"hybrid_fallback" env:"HYBRID_FALLBACK"`
}

// WebSearchConfig 网络搜索配置
type WebSearchConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 最大结果数
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// 搜索深度: basic, advanced
	Depth string `yaml:"depth" env:"DEPTH"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 瞬时失败重试次数（仅搜索阶段）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 每分钟最大请求数
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	// 结果缓存过期时间
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// LLMConfig 生成模型配置
type LLMConfig struct {
	// 基础 URL（OpenAI 兼容）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// RouterConfig 意图路由配置
type RouterConfig struct {
	// 是否使用 LLM 分类（关闭时仅用关键词规则）
	UseLLM bool `yaml:"use_llm" env:"USE_LLM"`
	// 分类超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 分类后端失败时的降级类别
	DefaultCategory string `yaml:"default_category" env:"DEFAULT_CATEGORY"`
}

// ToolsConfig 考试工具配置
type ToolsConfig struct {
	// 提示词中检索上下文的 token 预算
	ContextTokenBudget int `yaml:"context_token_budget" env:"CONTEXT_TOKEN_BUDGET"`
	// tiktoken 编码名称
	TokenizerEncoding string `yaml:"tokenizer_encoding" env:"TOKENIZER_ENCODING"`
	// 测验默认题数
	QuizCount int `yaml:"quiz_count" env:"QUIZ_COUNT"`
	// 测验默认难度: easy, medium, hard
	QuizDifficulty string `yaml:"quiz_difficulty" env:"QUIZ_DIFFICULTY"`
	// 闪卡默认张数
	FlashcardCount int `yaml:"flashcard_count" env:"FLASHCARD_COUNT"`
	// 重点题目默认数量
	ImportantQuestionCount int `yaml:"important_question_count" env:"IMPORTANT_QUESTION_COUNT"`
}

// HistoryConfig 跨轮次历史配置
type HistoryConfig struct {
	// 保留的最大问答轮数
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "STUDYBUDDY",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Chunking.MaxSize <= 0 {
		errs = append(errs, "chunking.max_size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxSize {
		errs = append(errs, "chunking.overlap must be in [0, max_size)")
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, "embedding.dimensions must be positive")
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, "retrieval.top_k must be positive")
	}
	if c.Retrieval.RelevanceThreshold < -1 || c.Retrieval.RelevanceThreshold > 1 {
		errs = append(errs, "retrieval.relevance_threshold must be within [-1, 1]")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.Router.DefaultCategory != "" {
		if _, err := parseCategory(c.Router.DefaultCategory); err != nil {
			errs = append(errs, "router.default_category is not a valid category")
		}
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		errs = append(errs, "store.driver must be memory or sqlite")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
