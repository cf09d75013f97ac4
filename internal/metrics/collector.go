// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 管线指标收集器。所有方法对 nil 接收者安全，
// 未启用指标时传 nil 即可。
type Collector struct {
	// 轮次指标
	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	// 阶段指标
	stageDuration *prometheus.HistogramVec

	// 检索指标
	retrievedChunks prometheus.Histogram
	weakRetrievals  prometheus.Counter

	// 摄入指标
	documentsIngested *prometheus.CounterVec
	chunksCreated     prometheus.Counter

	// 嵌入缓存指标
	cacheLookups *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并在给定 Registerer 上注册。
// 测试传入独立的 prometheus.NewRegistry() 避免全局注册冲突。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	return &Collector{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of processed turns",
			},
			[]string{"category", "outcome"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"category"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Per-stage duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		retrievedChunks: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieved_chunks",
				Help:      "Number of chunks returned per retrieval",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),
		weakRetrievals: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "weak_retrievals_total",
				Help:      "Retrievals whose best score fell below the relevance threshold",
			},
		),
		documentsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_ingested_total",
				Help:      "Documents processed during ingestion",
			},
			[]string{"outcome"},
		),
		chunksCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_created_total",
				Help:      "Chunks created during ingestion",
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cache_lookups_total",
				Help:      "Embedding cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// ObserveTurn 记录一轮问答的类别、结局和总耗时
func (c *Collector) ObserveTurn(category, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(category, outcome).Inc()
	c.turnDuration.WithLabelValues(category).Observe(elapsed.Seconds())
}

// ObserveStage 记录单个阶段的耗时
func (c *Collector) ObserveStage(stage string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveRetrieval 记录一次检索的结果规模和是否过弱
func (c *Collector) ObserveRetrieval(chunks int, weak bool) {
	if c == nil {
		return
	}
	c.retrievedChunks.Observe(float64(chunks))
	if weak {
		c.weakRetrievals.Inc()
	}
}

// ObserveCacheLookup 记录一次嵌入缓存查找的命中情况
func (c *Collector) ObserveCacheLookup(hit bool) {
	if c == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	c.cacheLookups.WithLabelValues(outcome).Inc()
}

// ObserveIngestion 记录一次批量摄入
func (c *Collector) ObserveIngestion(succeeded, failed, chunks int) {
	if c == nil {
		return
	}
	c.documentsIngested.WithLabelValues("ok").Add(float64(succeeded))
	c.documentsIngested.WithLabelValues("error").Add(float64(failed))
	c.chunksCreated.Add(float64(chunks))
}
