package rag

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/studybuddy/types"
)

// chunkRow 向量索引的持久化行。主键自增即入库顺序，
// 查询按主键升序读取以保证并列分数的确定性排序。
type chunkRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Corpus      string `gorm:"size:128;index:idx_corpus;index:idx_corpus_doc"`
	ChunkID     string `gorm:"size:64"`
	DocumentID  string `gorm:"size:64;index:idx_corpus_doc"`
	Source      string `gorm:"size:512"`
	Ordinal     int
	StartOffset int
	Text        string `gorm:"type:text"`
	Embedding   []byte `gorm:"type:blob"`
}

// TableName 指定表名
func (chunkRow) TableName() string {
	return "chunks"
}

// SQLiteStore 基于 SQLite 的持久化向量存储。
// 嵌入向量以小端 float64 序列编码为 BLOB；相似度在进程内计算，
// 适合个人学习助手规模的语料库。
type SQLiteStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteStore 打开（或创建）数据库并迁移表结构
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	if err := db.AutoMigrate(&chunkRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chunk table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With(zap.String("component", "sqlite_store")),
	}, nil
}

// Add 追加块
func (s *SQLiteStore) Add(ctx context.Context, corpus string, chunk types.Chunk, embedding []float64) error {
	if len(embedding) == 0 {
		return types.NewError(types.ErrEmbeddingUnavailable, "chunk "+chunk.ID+" has empty embedding")
	}

	row := chunkRow{
		Corpus:      corpus,
		ChunkID:     chunk.ID,
		DocumentID:  chunk.DocumentID,
		Source:      chunk.Source,
		Ordinal:     chunk.Ordinal,
		StartOffset: chunk.StartOffset,
		Text:        chunk.Text,
		Embedding:   encodeEmbedding(embedding),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// Query 余弦相似度检索
func (s *SQLiteStore) Query(ctx context.Context, corpus string, embedding []float64, topK int) ([]types.ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	var rows []chunkRow
	err := s.db.WithContext(ctx).
		Where("corpus = ?", corpus).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus %s: %w", corpus, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	scored := make([]types.ScoredChunk, 0, len(rows))
	for _, row := range rows {
		scored = append(scored, types.ScoredChunk{
			Chunk: types.Chunk{
				ID:          row.ChunkID,
				DocumentID:  row.DocumentID,
				Source:      row.Source,
				Ordinal:     row.Ordinal,
				StartOffset: row.StartOffset,
				Text:        row.Text,
			},
			Score: cosineSimilarity(embedding, decodeEmbedding(row.Embedding)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

// DeleteByDocument 删除指定文档的全部块
func (s *SQLiteStore) DeleteByDocument(ctx context.Context, corpus, documentID string) error {
	err := s.db.WithContext(ctx).
		Where("corpus = ? AND document_id = ?", corpus, documentID).
		Delete(&chunkRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// Documents 返回语料库中的文档来源，按首次入库顺序去重
func (s *SQLiteStore) Documents(ctx context.Context, corpus string) ([]string, error) {
	var sources []string
	err := s.db.WithContext(ctx).
		Model(&chunkRow{}).
		Where("corpus = ?", corpus).
		Group("source").
		Order("MIN(id) asc").
		Pluck("source", &sources).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents in corpus %s: %w", corpus, err)
	}
	return sources, nil
}

// Clear 清空语料库
func (s *SQLiteStore) Clear(ctx context.Context, corpus string) error {
	err := s.db.WithContext(ctx).
		Where("corpus = ?", corpus).
		Delete(&chunkRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear corpus %s: %w", corpus, err)
	}
	return nil
}

// Count 返回块数
func (s *SQLiteStore) Count(ctx context.Context, corpus string) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&chunkRow{}).
		Where("corpus = ?", corpus).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count corpus %s: %w", corpus, err)
	}
	return int(n), nil
}

// encodeEmbedding 把向量编码为小端 float64 BLOB
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding 从 BLOB 还原向量
func decodeEmbedding(buf []byte) []float64 {
	vec := make([]float64, len(buf)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}
