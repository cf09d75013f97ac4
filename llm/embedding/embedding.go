// Package embedding 提供文本嵌入：把查询和文档块映射为
// 固定维度的向量，供向量索引做余弦相似度检索。
package embedding

import "context"

// Provider 嵌入提供者接口
type Provider interface {
	// EmbedQuery 嵌入单条查询文本
	EmbedQuery(ctx context.Context, text string) ([]float64, error)

	// EmbedDocuments 批量嵌入文档块，结果与输入一一对应
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions 返回向量维度
	Dimensions() int

	// Name 返回提供者名称
	Name() string
}
