package tools

import (
	"context"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/types"
)

// explainSystemPrompt 概念讲解的系统提示词：固定的七段讲解结构
const explainSystemPrompt = `You are a tutor explaining a concept in depth. Structure the
explanation as:
1. One-line summary
2. Intuition (an everyday analogy)
3. Formal definition
4. How it works, step by step
5. A worked example
6. Common misconceptions
7. How it is typically examined

Ground the explanation in the provided study material and cite [Source N] where used.
If no material is provided, answer from general knowledge and begin the answer with
"Note: this explanation is not based on your uploaded documents."`

// ExplainHandler 深度概念讲解。
// 无上下文时不报错，而是明确标注答案无文档支撑且不带引用。
type ExplainHandler struct {
	provider llm.Provider
	config   Config
}

// NewExplainHandler 创建概念讲解处理器
func NewExplainHandler(provider llm.Provider, config Config) *ExplainHandler {
	return &ExplainHandler{provider: provider, config: config}
}

// Name 返回类别
func (h *ExplainHandler) Name() types.Category {
	return types.CategoryConceptExplain
}

// Required 无必需参数
func (h *ExplainHandler) Required() []string {
	return nil
}

// Handle 生成讲解
func (h *ExplainHandler) Handle(ctx context.Context, in Input) (*Output, error) {
	grounded := len(in.Context) > 0

	user := "Concept to explain: " + extractTopic(in.Question)
	if grounded {
		user = "Study material:\n" +
			formatContext(in.Context, h.config.ContextTokenBudget, h.config.TokenizerEncoding) +
			"\n" + user
	} else if len(in.WebResults) > 0 {
		user = "Web results:\n" +
			formatWebResults(in.WebResults, h.config.ContextTokenBudget, h.config.TokenizerEncoding) +
			"\n" + user
	} else {
		user = "No study material is provided.\n" + user
	}

	completion, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: explainSystemPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Output{
		Answer:   completion.Content,
		Metadata: map[string]string{metaGrounded: boolMeta(grounded)},
	}
	if grounded {
		out.Sources = sourceRefs(in.Context)
	} else if len(in.WebResults) > 0 {
		out.Sources = webSourceRefs(in.WebResults)
	}
	return out, nil
}
