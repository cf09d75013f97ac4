package tools

import (
	"context"
	"fmt"
	"regexp"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/types"
)

// examSystemPrompt 长答题的系统提示词：固定的答题结构
const examSystemPrompt = `You are an exam coach writing a model long-form answer worth %s marks.
Structure the answer exactly as:
1. Introduction (2-3 sentences framing the topic)
2. Four to five main points, each developed in its own paragraph with a bold heading
3. Conclusion (2-3 sentences)

For every main point, cite which provided source it draws on as [Source N].
If a point is not covered by the sources, mark it as (general knowledge).
Write at the depth expected for a %s-mark university exam answer.`

// marksPattern 从问题中提取分值（"16-mark"、"10 mark"）
var marksPattern = regexp.MustCompile(`(\d+)[- ]mark`)

// ExamAnswerHandler 生成带固定结构的长答题范文
type ExamAnswerHandler struct {
	provider llm.Provider
	config   Config
}

// NewExamAnswerHandler 创建长答题处理器
func NewExamAnswerHandler(provider llm.Provider, config Config) *ExamAnswerHandler {
	return &ExamAnswerHandler{provider: provider, config: config}
}

// Name 返回类别
func (h *ExamAnswerHandler) Name() types.Category {
	return types.CategoryExamAnswer
}

// Required 无必需参数；分值从问题或 marks 参数推断，默认 16
func (h *ExamAnswerHandler) Required() []string {
	return nil
}

// Handle 生成答案
func (h *ExamAnswerHandler) Handle(ctx context.Context, in Input) (*Output, error) {
	marks := in.Params["marks"]
	if marks == "" {
		if m := marksPattern.FindStringSubmatch(in.Question); m != nil {
			marks = m[1]
		} else {
			marks = "16"
		}
	}

	grounded := len(in.Context) > 0
	user := "Question: " + in.Question
	if grounded {
		user = "Study material:\n" +
			formatContext(in.Context, h.config.ContextTokenBudget, h.config.TokenizerEncoding) +
			"\n" + user
	} else {
		user = "No study material is available; answer from general knowledge and say so.\n" + user
	}

	completion, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: fmt.Sprintf(examSystemPrompt, marks, marks)},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		Answer: completion.Content,
		Metadata: map[string]string{
			metaGrounded: boolMeta(grounded),
			metaMarks:    marks,
		},
	}
	if grounded {
		out.Sources = sourceRefs(in.Context)
	}
	return out, nil
}
