package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/rag"
)

// =============================================================================
// FakeEmbedder
// =============================================================================

// FakeEmbedder 确定性嵌入：词袋哈希 + L2 归一化。
// 相同文本永远得到相同向量，共享词汇的文本相似度更高。
// 支持注入错误脚本：前 N 次调用依次返回预置错误。
type FakeEmbedder struct {
	mu         sync.Mutex
	dimensions int
	errs       []error
	calls      int
}

// NewFakeEmbedder 创建确定性嵌入器
func NewFakeEmbedder(dimensions int) *FakeEmbedder {
	return &FakeEmbedder{dimensions: dimensions}
}

// WithErrors 注入错误脚本：前 len(errs) 次调用依次返回这些错误
// （nil 表示该次调用成功）
func (f *FakeEmbedder) WithErrors(errs ...error) *FakeEmbedder {
	f.errs = errs
	return f
}

// Calls 返回累计调用次数
func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Name 返回名称
func (f *FakeEmbedder) Name() string { return "fake" }

// Dimensions 返回维度
func (f *FakeEmbedder) Dimensions() int { return f.dimensions }

// EmbedQuery 嵌入单条查询
func (f *FakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if err := f.nextError(); err != nil {
		return nil, err
	}
	return f.embed(text), nil
}

// EmbedDocuments 批量嵌入
func (f *FakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if err := f.nextError(); err != nil {
		return nil, err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = f.embed(t)
	}
	return out, nil
}

func (f *FakeEmbedder) nextError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx < len(f.errs) {
		return f.errs[idx]
	}
	return nil
}

func (f *FakeEmbedder) embed(text string) []float64 {
	vec := make([]float64, f.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[int(h.Sum32())%f.dimensions]++
	}
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

// =============================================================================
// ScriptedLLM
// =============================================================================

// ScriptedLLM 按脚本应答的生成模型。依次返回预置的应答；
// 脚本耗尽后重复最后一条。支持按位置注入错误。
type ScriptedLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	requests  []llm.CompletionRequest
}

// NewScriptedLLM 创建脚本化生成模型
func NewScriptedLLM(responses ...string) *ScriptedLLM {
	return &ScriptedLLM{responses: responses}
}

// WithErrors 注入错误脚本（与应答脚本按调用序号对齐，nil 表示成功）
func (s *ScriptedLLM) WithErrors(errs ...error) *ScriptedLLM {
	s.errs = errs
	return s
}

// Calls 返回累计调用次数
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Requests 返回收到的全部请求，便于断言提示词内容
func (s *ScriptedLLM) Requests() []llm.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.CompletionRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Name 返回名称
func (s *ScriptedLLM) Name() string { return "scripted" }

// Complete 返回脚本中的下一条应答
func (s *ScriptedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}

	var content string
	switch {
	case len(s.responses) == 0:
		content = ""
	case idx < len(s.responses):
		content = s.responses[idx]
	default:
		content = s.responses[len(s.responses)-1]
	}

	return &llm.Completion{
		Content: content,
		Model:   "scripted",
	}, nil
}

// =============================================================================
// ScriptedSearch
// =============================================================================

// ScriptedSearch 预置结果的网络搜索提供者
type ScriptedSearch struct {
	mu      sync.Mutex
	results []rag.SearchResult
	err     error
	calls   int
	queries []string
}

// NewScriptedSearch 创建预置结果的搜索提供者
func NewScriptedSearch(results ...rag.SearchResult) *ScriptedSearch {
	return &ScriptedSearch{results: results}
}

// WithError 让每次搜索都返回指定错误
func (s *ScriptedSearch) WithError(err error) *ScriptedSearch {
	s.err = err
	return s
}

// Calls 返回累计调用次数
func (s *ScriptedSearch) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Queries 返回收到的全部查询
func (s *ScriptedSearch) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

// Name 返回名称
func (s *ScriptedSearch) Name() string { return "scripted" }

// Search 返回预置结果
func (s *ScriptedSearch) Search(ctx context.Context, query string, maxResults int) ([]rag.SearchResult, error) {
	s.mu.Lock()
	s.calls++
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	if maxResults < len(s.results) {
		return s.results[:maxResults], nil
	}
	return s.results, nil
}
