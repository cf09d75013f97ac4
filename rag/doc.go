// Package rag 实现检索增强生成管线：文档分块、向量索引、
// 语料库级检索以及弱检索时的网络搜索回退。
//
// 管线数据流:
//
//	Document → Splitter → []Chunk → embedding.Provider → VectorStore
//	query → embedding.Provider → VectorStore.Query → []ScoredChunk
//
// 语料库（corpus）之间完全隔离：一个语料库的写入和清空
// 不会影响其它语料库的任何查询结果。
package rag
