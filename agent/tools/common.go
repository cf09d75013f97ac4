package tools

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/studybuddy/rag"
	"github.com/BaSui01/studybuddy/types"
)

// Config 工具共享配置
type Config struct {
	// 提示词中检索上下文的 token 预算
	ContextTokenBudget int `json:"context_token_budget"`
	// tiktoken 编码名称
	TokenizerEncoding string `json:"tokenizer_encoding"`
	// 测验默认题数
	QuizCount int `json:"quiz_count"`
	// 测验默认难度
	QuizDifficulty string `json:"quiz_difficulty"`
	// 闪卡默认张数
	FlashcardCount int `json:"flashcard_count"`
	// 重点题目默认数量
	ImportantQuestionCount int `json:"important_question_count"`
}

// DefaultConfig 默认工具配置
func DefaultConfig() Config {
	return Config{
		ContextTokenBudget:     3000,
		TokenizerEncoding:      "cl100k_base",
		QuizCount:              5,
		QuizDifficulty:         "medium",
		FlashcardCount:         10,
		ImportantQuestionCount: 10,
	}
}

// 元数据键
const (
	metaGrounded      = "grounded"       // 答案是否有文档支撑
	metaDifficulty    = "difficulty"     // 测验难度
	metaCount         = "count"          // 生成条目数
	metaDateDefaulted = "date_defaulted" // 考试日期是否使用了默认值
	metaMarks         = "marks"          // 考题分值
)

// formatContext 把检索上下文渲染为编号来源块，整体截断到 token 预算
func formatContext(chunks []types.ScoredChunk, budget int, encoding string) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	for i, sc := range chunks {
		fmt.Fprintf(&b, "[Source %d: %s]\n%s\n\n", i+1, sc.Chunk.Source, sc.Chunk.Text)
	}
	return truncateToTokens(b.String(), budget, encoding)
}

// formatWebResults 把网络搜索结果渲染为编号块，整体截断到 token 预算
func formatWebResults(results []rag.SearchResult, budget int, encoding string) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[Web %d: %s (%s)]\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return truncateToTokens(b.String(), budget, encoding)
}

// webSourceRefs 从网络结果派生来源引用
func webSourceRefs(results []rag.SearchResult) []types.SourceRef {
	refs := make([]types.SourceRef, 0, len(results))
	for _, r := range results {
		refs = append(refs, types.SourceRef{
			Source: r.URL,
			Score:  r.Score,
		})
	}
	return refs
}

// sourceRefs 从上下文块派生来源引用
func sourceRefs(chunks []types.ScoredChunk) []types.SourceRef {
	refs := make([]types.SourceRef, 0, len(chunks))
	for _, sc := range chunks {
		refs = append(refs, types.SourceRef{
			DocumentID: sc.Chunk.DocumentID,
			Source:     sc.Chunk.Source,
			Ordinal:    sc.Chunk.Ordinal,
			Score:      sc.Score,
		})
	}
	return refs
}

// formatHistory 渲染最近 n 轮历史，为空时返回空串
func formatHistory(history []types.Exchange, n int) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var b strings.Builder
	for _, ex := range history {
		fmt.Fprintf(&b, "Student: %s\nAssistant: %s\n", ex.Question, ex.Answer)
	}
	return b.String()
}

// topicPrefix 问题开头的工具触发短语，每个分支都要求命中实词
var topicPrefix = regexp.MustCompile(`(?i)^\s*(please\s+)?(` +
	`(explain|define|what\s+is|what\s+are)\s+` +
	`|(generate|create|make|prepare|give\s+me|quiz\s+me\s+on|test\s+me\s+on)\s+` +
	`((a|an|some)\s+)?` +
	`((quiz|mcqs?|multiple[- ]choice\s+questions?|flash\s?cards?|practice\s+questions?|important\s+questions?)\s+)?` +
	`((on|about|for|covering)\s+)?` +
	`|(quiz|mcqs?|flash\s?cards?|practice\s+questions?|important\s+questions?)\s+` +
	`((on|about|for|covering)\s+)?` +
	`)`)

// extractTopic 剥除问题开头的触发短语，得到题目主题。
// 剥除后为空时返回原问题。
func extractTopic(question string) string {
	topic := topicPrefix.ReplaceAllString(question, "")
	topic = strings.TrimSpace(strings.Trim(strings.TrimSpace(topic), `"'?`))
	if topic == "" {
		return strings.TrimSpace(question)
	}
	return topic
}

// truncateToTokens 把文本截断到 token 预算。
// 编码器加载失败时退化为按字符近似截断（约 4 字符/token）。
func truncateToTokens(text string, budget int, encoding string) string {
	if budget <= 0 {
		return text
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		runes := []rune(text)
		if len(runes) <= budget*4 {
			return text
		}
		return string(runes[:budget*4])
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return enc.Decode(tokens[:budget])
}

// boolMeta 把布尔值渲染为元数据字符串
func boolMeta(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
