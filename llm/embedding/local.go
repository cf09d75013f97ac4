package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider 进程内确定性嵌入：把文本按词切分后以 FNV 哈希
// 映射到固定维度的词袋向量，再做 L2 归一化。
//
// 没有可用的外部嵌入服务时的离线兜底，也用于测试。
// 相同文本永远产生相同向量；归一化后余弦相似度落在 [-1, 1]。
type LocalProvider struct {
	dimensions int
}

// NewLocalProvider 创建本地嵌入提供者
func NewLocalProvider(dimensions int) *LocalProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &LocalProvider{dimensions: dimensions}
}

// Name 返回提供者名称
func (p *LocalProvider) Name() string {
	return "local"
}

// Dimensions 返回向量维度
func (p *LocalProvider) Dimensions() int {
	return p.dimensions
}

// EmbedQuery 嵌入单条查询
func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return p.embed(text), nil
}

// EmbedDocuments 批量嵌入
func (p *LocalProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, t := range texts {
		vectors[i] = p.embed(t)
	}
	return vectors, nil
}

// embed 词袋哈希嵌入
func (p *LocalProvider) embed(text string) []float64 {
	vec := make([]float64, p.dimensions)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[int(h.Sum32())%p.dimensions]++
	}

	// L2 归一化；空文本保持零向量
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
