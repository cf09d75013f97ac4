package rag

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/studybuddy/types"
)

// SearchResult 网络搜索的单条结果
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchProvider 网络搜索提供者接口
type SearchProvider interface {
	// Search 执行搜索，返回按相关性排列的结果
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)

	// Name 返回提供者名称
	Name() string
}

// TavilyConfig Tavily 搜索配置
type TavilyConfig struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Depth      string        `json:"depth"`       // basic 或 advanced
	Timeout    time.Duration `json:"timeout"`     // 单次请求超时
	MaxRetries int           `json:"max_retries"` // 瞬时失败重试次数
	// 每分钟最大请求数，0 表示不限流
	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	// 结果缓存过期时间，0 表示不缓存
	CacheTTL time.Duration `json:"cache_ttl"`
}

// DefaultTavilyConfig 默认 Tavily 配置
func DefaultTavilyConfig() TavilyConfig {
	return TavilyConfig{
		BaseURL:            "https://api.tavily.com",
		Depth:              "basic",
		Timeout:            20 * time.Second,
		MaxRetries:         1,
		RateLimitPerMinute: 60,
		CacheTTL:           10 * time.Minute,
	}
}

// cachedResults 带过期时间的缓存条目
type cachedResults struct {
	results   []SearchResult
	expiresAt time.Time
}

// TavilyProvider Tavily 搜索客户端，带限流和结果缓存
type TavilyProvider struct {
	config  TavilyConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	cacheMu sync.Mutex
	cache   map[string]cachedResults
}

// NewTavilyProvider 创建 Tavily 搜索提供者
func NewTavilyProvider(config TavilyConfig, logger *zap.Logger) *TavilyProvider {
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if config.RateLimitPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(config.RateLimitPerMinute)/60.0), config.RateLimitPerMinute)
	}

	return &TavilyProvider{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		logger:  logger.With(zap.String("component", "tavily")),
		cache:   make(map[string]cachedResults),
	}
}

// Name 返回提供者名称
func (p *TavilyProvider) Name() string {
	return "tavily"
}

// tavilyRequest Tavily API 请求体
type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

// tavilyResponse Tavily API 响应体
type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search 执行搜索。命中缓存时直接返回；否则限流后请求 API，
// 瞬时失败（超时、5xx）最多重试 MaxRetries 次。
func (p *TavilyProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	key := cacheKey(query, maxResults)

	if cached, ok := p.fromCache(key); ok {
		p.logger.Debug("search cache hit", zap.String("query", query))
		return cached, nil
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrWebSearchTimeout, "rate limit wait interrupted").
				WithStage("web_searching").WithCause(err)
		}
	}

	var results []SearchResult
	var err error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Debug("retrying web search", zap.Int("attempt", attempt), zap.Error(err))
		}
		results, err = p.search(ctx, query, maxResults)
		if err == nil || !types.IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	p.toCache(key, results)
	return results, nil
}

// search 单次 API 请求
func (p *TavilyProvider) search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:      p.config.APIKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: p.config.Depth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrWebSearchTimeout, "search request timed out").
				WithStage("web_searching").WithRetryable(true).WithCause(err)
		}
		return nil, types.NewError(types.ErrSearchUnavailable, "search backend unreachable").
			WithStage("web_searching").WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrSearchUnavailable, "failed to read search response").
			WithStage("web_searching").WithRetryable(true).WithCause(err)
	}

	if resp.StatusCode >= 500 {
		return nil, types.NewError(types.ErrSearchUnavailable,
			fmt.Sprintf("search backend error: status %d", resp.StatusCode)).
			WithStage("web_searching").WithRetryable(true)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrSearchUnavailable,
			fmt.Sprintf("search request rejected: status %d", resp.StatusCode)).
			WithStage("web_searching")
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, types.NewError(types.ErrSearchUnavailable, "malformed search response").
			WithStage("web_searching").WithCause(err)
	}

	results := make([]SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}

	p.logger.Debug("web search completed",
		zap.String("query", query),
		zap.Int("results", len(results)))

	return results, nil
}

// fromCache 读取未过期的缓存结果
func (p *TavilyProvider) fromCache(key string) ([]SearchResult, bool) {
	if p.config.CacheTTL <= 0 {
		return nil, false
	}
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	entry, ok := p.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(p.cache, key)
		return nil, false
	}
	return entry.results, true
}

// toCache 写入缓存
func (p *TavilyProvider) toCache(key string, results []SearchResult) {
	if p.config.CacheTTL <= 0 {
		return
	}
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()
	p.cache[key] = cachedResults{
		results:   results,
		expiresAt: time.Now().Add(p.config.CacheTTL),
	}
}

// cacheKey 由查询和结果数派生缓存键
func cacheKey(query string, maxResults int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%d|%s", maxResults, query))
	return fmt.Sprintf("%x", sum)
}
