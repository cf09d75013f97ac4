package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/types"
)

// importantQuestionsSystemPrompt 重点预测的系统提示词
const importantQuestionsSystemPrompt = `You are an exam analyst. From the provided study
material, predict the %d most likely exam questions. For each:
- Number it (1., 2., ...)
- State the question as it would appear on the paper
- Suggest a marks weighting (2, 5, 10 or 16 marks) based on the depth of the topic
- In one sentence, say why it is likely, citing [Source N]
Order from most to least likely.`

// ImportantQuestionsHandler 基于文档上下文预测重点考题。
// 上下文为空时报 InsufficientContext：没有材料无从判断出题倾向。
type ImportantQuestionsHandler struct {
	provider llm.Provider
	config   Config
}

// NewImportantQuestionsHandler 创建重点预测处理器
func NewImportantQuestionsHandler(provider llm.Provider, config Config) *ImportantQuestionsHandler {
	return &ImportantQuestionsHandler{provider: provider, config: config}
}

// Name 返回类别
func (h *ImportantQuestionsHandler) Name() types.Category {
	return types.CategoryImportantQuestions
}

// Required 数量有默认值，不设必需参数
func (h *ImportantQuestionsHandler) Required() []string {
	return nil
}

// Handle 生成预测
func (h *ImportantQuestionsHandler) Handle(ctx context.Context, in Input) (*Output, error) {
	if len(in.Context) == 0 {
		return nil, types.NewError(types.ErrInsufficientContext,
			"cannot predict exam questions without study material").WithStage("dispatching")
	}

	count := h.config.ImportantQuestionCount
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
		"\nSubject focus: " + extractTopic(in.Question)

	completion, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(importantQuestionsSystemPrompt, count)},
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
