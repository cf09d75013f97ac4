package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheConfig Redis 嵌入缓存配置
type CacheConfig struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
}

// DefaultCacheConfig 默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr: "localhost:6379",
		TTL:  24 * time.Hour,
	}
}

// CacheMetrics 缓存命中观测接口，由指标收集器实现
type CacheMetrics interface {
	ObserveCacheLookup(hit bool)
}

// CachedProvider 用 Redis 缓存包装嵌入提供者。
// 缓存键由模型名和文本内容派生；同一文本跨会话复用嵌入结果。
// Redis 不可用时直接透传到底层提供者，缓存故障从不导致嵌入失败。
type CachedProvider struct {
	inner   Provider
	client  *redis.Client
	ttl     time.Duration
	model   string
	metrics CacheMetrics
	logger  *zap.Logger
}

// WithMetrics 注册缓存命中观测器
func (p *CachedProvider) WithMetrics(m CacheMetrics) *CachedProvider {
	p.metrics = m
	return p
}

// NewCachedProvider 创建带缓存的嵌入提供者
func NewCachedProvider(inner Provider, config CacheConfig, model string, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &CachedProvider{
		inner:  inner,
		client: client,
		ttl:    config.TTL,
		model:  model,
		logger: logger.With(zap.String("component", "embedding_cache")),
	}
}

// NewCachedProviderWithClient 用已有的 Redis 客户端创建，便于测试
func NewCachedProviderWithClient(inner Provider, client *redis.Client, ttl time.Duration, model string, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		inner:  inner,
		client: client,
		ttl:    ttl,
		model:  model,
		logger: logger.With(zap.String("component", "embedding_cache")),
	}
}

// Name 返回底层提供者名称
func (p *CachedProvider) Name() string {
	return p.inner.Name()
}

// Dimensions 返回向量维度
func (p *CachedProvider) Dimensions() int {
	return p.inner.Dimensions()
}

// EmbedQuery 嵌入单条查询，优先读缓存
func (p *CachedProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := p.get(ctx, text); ok {
		return vec, nil
	}

	vec, err := p.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	p.put(ctx, text, vec)
	return vec, nil
}

// EmbedDocuments 批量嵌入。只把未命中的文本发给底层提供者，
// 结果与输入一一对应。
func (p *CachedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		if vec, ok := p.get(ctx, t); ok {
			vectors[i] = vec
		} else {
			missing = append(missing, t)
			missingIdx = append(missingIdx, i)
		}
	}

	if len(missing) > 0 {
		fresh, err := p.inner.EmbedDocuments(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, vec := range fresh {
			vectors[missingIdx[j]] = vec
			p.put(ctx, missing[j], vec)
		}
	}

	p.logger.Debug("batch embedding served",
		zap.Int("total", len(texts)),
		zap.Int("cache_hits", len(texts)-len(missing)))

	return vectors, nil
}

// key 缓存键：模型名 + 文本内容的 SHA-256
func (p *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(p.model + "|" + text))
	return fmt.Sprintf("emb:%x", sum)
}

// get 读缓存，任何 Redis 错误都视为未命中
func (p *CachedProvider) get(ctx context.Context, text string) ([]float64, bool) {
	vec, ok := p.lookup(ctx, text)
	if p.metrics != nil {
		p.metrics.ObserveCacheLookup(ok)
	}
	return vec, ok
}

func (p *CachedProvider) lookup(ctx context.Context, text string) ([]float64, bool) {
	data, err := p.client.Get(ctx, p.key(text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			p.logger.Debug("embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

// put 写缓存，失败只记日志
func (p *CachedProvider) put(ctx context.Context, text string, vec []float64) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := p.client.Set(ctx, p.key(text), data, p.ttl).Err(); err != nil {
		p.logger.Debug("embedding cache write failed", zap.Error(err))
	}
}
