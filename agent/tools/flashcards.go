package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/types"
)

// flashcardsSystemPrompt 闪卡的系统提示词
const flashcardsSystemPrompt = `You are a flashcard maker. Extract %d term/definition pairs
strictly from the provided study material. For each card:
- "Card N"
- "Term:" the concept name exactly as it appears in the material
- "Definition:" a concise definition in one or two sentences
- "Hint:" a short memory cue
Only use terms that actually occur in the material; never invent terms.`

// FlashcardsHandler 从文档上下文提取术语/定义闪卡。
// 闪卡必须严格来自材料，上下文为空时报 InsufficientContext。
type FlashcardsHandler struct {
	provider llm.Provider
	config   Config
}

// NewFlashcardsHandler 创建闪卡处理器
func NewFlashcardsHandler(provider llm.Provider, config Config) *FlashcardsHandler {
	return &FlashcardsHandler{provider: provider, config: config}
}

// Name 返回类别
func (h *FlashcardsHandler) Name() types.Category {
	return types.CategoryFlashcards
}

// Required 张数有默认值，不设必需参数
func (h *FlashcardsHandler) Required() []string {
	return nil
}

// Handle 生成闪卡
func (h *FlashcardsHandler) Handle(ctx context.Context, in Input) (*Output, error) {
	if len(in.Context) == 0 {
		return nil, types.NewError(types.ErrInsufficientContext,
			"cannot extract flashcards without study material").WithStage("dispatching")
	}

	count := h.config.FlashcardCount
	if raw := in.Params["count"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, types.NewError(types.ErrMissingParameter,
				"count must be a positive integer").WithStage("dispatching")
		}
		count = n
	}

	user := "Study material:\n" +
		formatContext(in.Context, h.config.ContextTokenBudget, h.config.TokenizerEncoding) +
		"\nFocus: " + extractTopic(in.Question)

	completion, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(flashcardsSystemPrompt, count)},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		Answer:  completion.Content,
		Sources: sourceRefs(in.Context),
		Metadata: map[string]string{
			metaGrounded: boolMeta(true),
			metaCount:    strconv.Itoa(count),
		},
	}, nil
}
