package rag

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/studybuddy/types"
)

// VectorStore 向量索引接口。所有操作以语料库为作用域：
// 不同语料库之间的数据完全隔离。
type VectorStore interface {
	// Add 向语料库追加一个块及其嵌入向量
	Add(ctx context.Context, corpus string, chunk types.Chunk, embedding []float64) error

	// Query 返回与查询向量余弦相似度最高的 topK 个块，
	// 按相似度降序排列；分数相同时先入库的在前
	Query(ctx context.Context, corpus string, embedding []float64, topK int) ([]types.ScoredChunk, error)

	// DeleteByDocument 删除语料库中指定文档的全部块。
	// 文档不存在时为空操作
	DeleteByDocument(ctx context.Context, corpus, documentID string) error

	// Documents 返回语料库中所有文档的来源，按首次入库顺序排列
	Documents(ctx context.Context, corpus string) ([]string, error)

	// Clear 清空语料库的全部块
	Clear(ctx context.Context, corpus string) error

	// Count 返回语料库中的块数
	Count(ctx context.Context, corpus string) (int, error)
}

// cosineSimilarity 计算余弦相似度。任一向量为零向量时返回 0。
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ====== 内存向量存储 ======

// memoryEntry 内存索引条目，seq 记录入库顺序用于并列打破
type memoryEntry struct {
	seq       int
	chunk     types.Chunk
	embedding []float64
}

// MemoryStore 基于内存的向量存储，适合单进程会话
type MemoryStore struct {
	mu      sync.RWMutex
	corpora map[string][]memoryEntry
	nextSeq int
	logger  *zap.Logger
}

// NewMemoryStore 创建内存向量存储
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		corpora: make(map[string][]memoryEntry),
		logger:  logger.With(zap.String("component", "memory_store")),
	}
}

// Add 追加块
func (s *MemoryStore) Add(ctx context.Context, corpus string, chunk types.Chunk, embedding []float64) error {
	if len(embedding) == 0 {
		return types.NewError(types.ErrEmbeddingUnavailable, "chunk "+chunk.ID+" has empty embedding")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vec := make([]float64, len(embedding))
	copy(vec, embedding)

	s.corpora[corpus] = append(s.corpora[corpus], memoryEntry{
		seq:       s.nextSeq,
		chunk:     chunk,
		embedding: vec,
	})
	s.nextSeq++
	return nil
}

// Query 余弦相似度检索
func (s *MemoryStore) Query(ctx context.Context, corpus string, embedding []float64, topK int) ([]types.ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.corpora[corpus]
	if len(entries) == 0 {
		return nil, nil
	}

	scored := make([]types.ScoredChunk, 0, len(entries))
	for _, e := range entries {
		scored = append(scored, types.ScoredChunk{
			Chunk: e.chunk,
			Score: cosineSimilarity(embedding, e.embedding),
		})
	}

	// 条目本身按入库顺序排列，稳定排序保证并列时先入库者在前
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

// DeleteByDocument 删除指定文档的全部块
func (s *MemoryStore) DeleteByDocument(ctx context.Context, corpus, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.corpora[corpus]
	kept := entries[:0]
	removed := 0
	for _, e := range entries {
		if e.chunk.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.corpora[corpus] = kept

	if removed > 0 {
		s.logger.Debug("document chunks removed",
			zap.String("corpus", corpus),
			zap.String("document_id", documentID),
			zap.Int("removed", removed))
	}
	return nil
}

// Documents 返回语料库中的文档来源，按首次入库顺序去重
func (s *MemoryStore) Documents(ctx context.Context, corpus string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var sources []string
	for _, e := range s.corpora[corpus] {
		if !seen[e.chunk.Source] {
			seen[e.chunk.Source] = true
			sources = append(sources, e.chunk.Source)
		}
	}
	return sources, nil
}

// Clear 清空语料库
func (s *MemoryStore) Clear(ctx context.Context, corpus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.corpora, corpus)
	return nil
}

// Count 返回块数
func (s *MemoryStore) Count(ctx context.Context, corpus string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.corpora[corpus]), nil
}
