package rag

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/studybuddy/llm/embedding"
	"github.com/BaSui01/studybuddy/types"
)

// RetrieverConfig 检索器配置
type RetrieverConfig struct {
	// 每次查询返回的块数
	TopK int `json:"top_k"`
	// 相关性阈值，最佳分数低于该值视为弱检索
	RelevanceThreshold float64 `json:"relevance_threshold"`
	// 嵌入瞬时失败的重试次数
	EmbedRetries int `json:"embed_retries"`
	// 批量摄入时并行嵌入的文档数
	Parallelism int `json:"parallelism"`
}

// DefaultRetrieverConfig 默认检索器配置
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:               5,
		RelevanceThreshold: 0.3,
		EmbedRetries:       1,
		Parallelism:        4,
	}
}

// Retriever 把分块、嵌入和向量存储组合成语料库级检索器。
//
// 摄入分两阶段：先并行嵌入各文档的全部块，再按输入顺序串行写入
// 存储，保证入库顺序确定、并列分数的排序可复现。
// 单个文档的失败不会中断整批摄入，失败记录在 IngestionResult 中。
type Retriever struct {
	splitter *Splitter
	embedder embedding.Provider
	store    VectorStore
	config   RetrieverConfig
	logger   *zap.Logger

	// 语料库级读写锁：摄入与查询互斥，查询之间并发
	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

// NewRetriever 创建检索器
func NewRetriever(splitter *Splitter, embedder embedding.Provider, store VectorStore, config RetrieverConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		config:   config,
		logger:   logger.With(zap.String("component", "retriever")),
		locks:    make(map[string]*sync.RWMutex),
	}
}

// corpusLock 返回语料库对应的锁，不存在时创建
func (r *Retriever) corpusLock(corpus string) *sync.RWMutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[corpus]
	if !ok {
		l = &sync.RWMutex{}
		r.locks[corpus] = l
	}
	return l
}

// docEmbedding 单个文档的嵌入结果
type docEmbedding struct {
	chunks  []types.Chunk
	vectors [][]float64
	err     error
}

// Ingest 把一批文档摄入语料库。
//
// 重复摄入同一文档（相同 DocumentID）时先删除旧块再写入新块，
// 整个操作幂等。空正文文档记为失败但不中断批次。
func (r *Retriever) Ingest(ctx context.Context, corpus string, docs []types.Document) (*types.IngestionResult, error) {
	lock := r.corpusLock(corpus)
	lock.Lock()
	defer lock.Unlock()

	result := &types.IngestionResult{}
	embedded := make([]docEmbedding, len(docs))

	// 阶段一：并行分块并嵌入
	g, gctx := errgroup.WithContext(ctx)
	if r.config.Parallelism > 0 {
		g.SetLimit(r.config.Parallelism)
	}
	for i := range docs {
		g.Go(func() error {
			doc := docs[i]
			if doc.Text == "" {
				embedded[i].err = types.NewError(types.ErrExtractionFailed, "document has no extractable text")
				return nil
			}

			chunks := r.splitter.Split(doc)
			texts := make([]string, len(chunks))
			for j, c := range chunks {
				texts[j] = c.Text
			}

			vectors, err := r.embedWithRetry(gctx, texts)
			if err != nil {
				embedded[i].err = err
				return nil
			}

			embedded[i].chunks = chunks
			embedded[i].vectors = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 阶段二：按输入顺序串行写入
	for i, doc := range docs {
		if embedded[i].err != nil {
			r.logger.Warn("document ingestion failed",
				zap.String("corpus", corpus),
				zap.String("source", doc.Source),
				zap.Error(embedded[i].err))
			result.Errors = append(result.Errors, types.DocumentError{
				DocumentID: doc.ID,
				Source:     doc.Source,
				Message:    embedded[i].err.Error(),
			})
			continue
		}

		// 重复摄入：先删除旧块
		if err := r.store.DeleteByDocument(ctx, corpus, doc.ID); err != nil {
			result.Errors = append(result.Errors, types.DocumentError{
				DocumentID: doc.ID,
				Source:     doc.Source,
				Message:    err.Error(),
			})
			continue
		}

		stored := 0
		var storeErr error
		for j, chunk := range embedded[i].chunks {
			if err := r.store.Add(ctx, corpus, chunk, embedded[i].vectors[j]); err != nil {
				storeErr = err
				break
			}
			stored++
		}
		if storeErr != nil {
			result.Errors = append(result.Errors, types.DocumentError{
				DocumentID: doc.ID,
				Source:     doc.Source,
				Message:    storeErr.Error(),
			})
			continue
		}
		result.ChunksCreated += stored
	}

	r.logger.Info("ingestion completed",
		zap.String("corpus", corpus),
		zap.Int("documents", len(docs)),
		zap.Int("chunks_created", result.ChunksCreated),
		zap.Int("failures", len(result.Errors)))

	return result, nil
}

// Retrieve 返回与查询最相关的 TopK 个块，按相似度降序。
// 空语料库返回空结果而不报错。
func (r *Retriever) Retrieve(ctx context.Context, corpus, query string) ([]types.ScoredChunk, error) {
	lock := r.corpusLock(corpus)
	lock.RLock()
	defer lock.RUnlock()

	vec, err := r.embedQueryWithRetry(ctx, query)
	if err != nil {
		return nil, err
	}

	return r.store.Query(ctx, corpus, vec, r.config.TopK)
}

// IsWeak 判断检索结果是否过弱：无结果或最佳分数低于阈值。
// 结果已按分数降序排列，首个元素即最佳分数。
func (r *Retriever) IsWeak(results []types.ScoredChunk) bool {
	if len(results) == 0 {
		return true
	}
	return results[0].Score < r.config.RelevanceThreshold
}

// Documents 返回语料库中已摄入的文档来源，按首次摄入顺序排列
func (r *Retriever) Documents(ctx context.Context, corpus string) ([]string, error) {
	lock := r.corpusLock(corpus)
	lock.RLock()
	defer lock.RUnlock()
	return r.store.Documents(ctx, corpus)
}

// Count 返回语料库中的块数
func (r *Retriever) Count(ctx context.Context, corpus string) (int, error) {
	lock := r.corpusLock(corpus)
	lock.RLock()
	defer lock.RUnlock()
	return r.store.Count(ctx, corpus)
}

// Clear 清空语料库
func (r *Retriever) Clear(ctx context.Context, corpus string) error {
	lock := r.corpusLock(corpus)
	lock.Lock()
	defer lock.Unlock()
	return r.store.Clear(ctx, corpus)
}

// embedWithRetry 批量嵌入，仅对标记为可重试的错误重试
func (r *Retriever) embedWithRetry(ctx context.Context, texts []string) ([][]float64, error) {
	vectors, err := r.embedder.EmbedDocuments(ctx, texts)
	for attempt := 0; err != nil && types.IsRetryable(err) && attempt < r.config.EmbedRetries; attempt++ {
		r.logger.Debug("retrying batch embedding", zap.Int("attempt", attempt+1), zap.Error(err))
		vectors, err = r.embedder.EmbedDocuments(ctx, texts)
	}
	return vectors, err
}

// embedQueryWithRetry 查询嵌入，重试策略同上
func (r *Retriever) embedQueryWithRetry(ctx context.Context, query string) ([]float64, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	for attempt := 0; err != nil && types.IsRetryable(err) && attempt < r.config.EmbedRetries; attempt++ {
		r.logger.Debug("retrying query embedding", zap.Int("attempt", attempt+1), zap.Error(err))
		vec, err = r.embedder.EmbedQuery(ctx, query)
	}
	return vec, err
}
