package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/types"
)

// quizSystemPrompt 测验的系统提示词
const quizSystemPrompt = `You are a quiz generator. Create %d single-select multiple-choice
questions at %s difficulty, strictly based on the provided study material.
For each question:
- Number it (Q1, Q2, ...)
- Give exactly four options labelled A-D: one correct answer and three plausible distractors
- After the options, state "Answer: <letter>" and a one-sentence explanation citing [Source N]
Do not invent facts that are not in the material.`

// validDifficulties 允许的难度等级
var validDifficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
}

// QuizHandler 基于文档上下文生成选择题测验。
// 上下文为空时报 InsufficientContext 而不是凭空编题。
type QuizHandler struct {
	provider llm.Provider
	config   Config
}

// NewQuizHandler 创建测验处理器
func NewQuizHandler(provider llm.Provider, config Config) *QuizHandler {
	return &QuizHandler{provider: provider, config: config}
}

// Name 返回类别
func (h *QuizHandler) Name() types.Category {
	return types.CategoryQuiz
}

// Required 题数和难度有文档化的默认值，不设必需参数
func (h *QuizHandler) Required() []string {
	return nil
}

// Handle 生成测验
func (h *QuizHandler) Handle(ctx context.Context, in Input) (*Output, error) {
	if len(in.Context) == 0 {
		return nil, types.NewError(types.ErrInsufficientContext,
			"cannot generate a quiz without study material").WithStage("dispatching")
	}

	count := h.config.QuizCount
	if raw := in.Params["count"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, types.NewError(types.ErrMissingParameter,
				"count must be a positive integer").WithStage("dispatching")
		}
		count = n
	}

	difficulty := h.config.QuizDifficulty
	if raw := in.Params["difficulty"]; raw != "" {
		if !validDifficulties[raw] {
			return nil, types.NewError(types.ErrMissingParameter,
				"difficulty must be one of easy, medium, hard").WithStage("dispatching")
		}
		difficulty = raw
	}

	user := "Study material:\n" +
		formatContext(in.Context, h.config.ContextTokenBudget, h.config.TokenizerEncoding) +
		"\nTopic: " + extractTopic(in.Question)

	completion, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(quizSystemPrompt, count, difficulty)},
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
			metaGrounded:   boolMeta(true),
			metaCount:      strconv.Itoa(count),
			metaDifficulty: difficulty,
		},
	}, nil
}
