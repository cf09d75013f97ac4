package rag

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/studybuddy/types"
)

// SplitterConfig 分块配置
type SplitterConfig struct {
	// 单块最大字符数
	MaxSize int `json:"max_size"`
	// 相邻块重叠字符数，必须小于 MaxSize
	Overlap int `json:"overlap"`
}

// DefaultSplitterConfig 默认分块配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		MaxSize: 1000,
		Overlap: 200,
	}
}

// separators 切分点优先级：段落 → 行 → 句子 → 词
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter 把文档切分为带偏移量的有界文本块。
// 切分只做一次；块在创建后不可变。
type Splitter struct {
	config SplitterConfig
	logger *zap.Logger
}

// NewSplitter 创建分块器
func NewSplitter(config SplitterConfig, logger *zap.Logger) *Splitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Splitter{
		config: config,
		logger: logger.With(zap.String("component", "splitter")),
	}
}

// Split 把文档正文切分为块。大小和偏移量都按字符（rune）计数，
// 多字节文本不会被从字符中间切开。
//
// 不变式:
//   - 每块不超过 MaxSize 个字符
//   - 块按 Ordinal 顺序覆盖整个正文，无遗漏
//   - StartOffset 是块在正文中的字符偏移:
//     chunk.Text == string([]rune(doc.Text)[StartOffset : StartOffset+字符数])
//   - 相邻块重叠约 Overlap 个字符
//
// 空正文返回空切片。正文长度恰好等于 MaxSize 时返回单块；
// 超出一个字符即产生第二块。
func (s *Splitter) Split(doc types.Document) []types.Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []types.Chunk
	start := 0
	ordinal := 0

	for start < len(runes) {
		end := start + s.config.MaxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			// 在窗口内优先选择自然切分点
			end = s.breakpoint(runes, start, end)
		}

		chunks = append(chunks, types.Chunk{
			ID:          uuid.NewString(),
			DocumentID:  doc.ID,
			Source:      doc.Source,
			Ordinal:     ordinal,
			StartOffset: start,
			Text:        string(runes[start:end]),
		})
		ordinal++

		if end >= len(runes) {
			break
		}

		// 回退 Overlap 形成重叠，但必须保证前进
		next := end - s.config.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	s.logger.Debug("document split",
		zap.String("document_id", doc.ID),
		zap.Int("text_len", len(runes)),
		zap.Int("chunks", len(chunks)))

	return chunks
}

// breakpoint 在 [start, limit) 字符窗口内寻找最靠后的自然切分点。
// 依次尝试段落、行、句子、词边界；切分点必须落在窗口后半段，
// 避免产生过小的块。找不到时在 limit 处硬切。
func (s *Splitter) breakpoint(runes []rune, start, limit int) int {
	window := string(runes[start:limit])
	minPos := (limit - start) / 2

	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// 分隔符都是 ASCII：字节偏移换算为字符偏移后，宽度不变
		pos := utf8.RuneCountInString(window[:idx])
		if pos >= minPos {
			return start + pos + len(sep)
		}
	}
	return limit
}
