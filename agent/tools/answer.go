package tools

import (
	"context"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/types"
)

// answerSystemPrompt 文档问答的系统提示词
const answerSystemPrompt = `You are a study assistant helping a student prepare for exams.
Answer the question using the provided study material. Cite sources as [Source N].
If the material does not cover the question, say so and answer from general knowledge,
clearly stating that the answer is not based on the student's documents.`

// RetrieveHandler 基于文档上下文的基础问答。
// 上下文为空时退化为通用知识回答，并在元数据中标记无文档支撑。
type RetrieveHandler struct {
	provider llm.Provider
	config   Config
}

// NewRetrieveHandler 创建文档问答处理器
func NewRetrieveHandler(provider llm.Provider, config Config) *RetrieveHandler {
	return &RetrieveHandler{provider: provider, config: config}
}

// Name 返回类别
func (h *RetrieveHandler) Name() types.Category {
	return types.CategoryRetrieveDocuments
}

// Required 无必需参数
func (h *RetrieveHandler) Required() []string {
	return nil
}

// Handle 执行问答
func (h *RetrieveHandler) Handle(ctx context.Context, in Input) (*Output, error) {
	grounded := len(in.Context) > 0

	user := "Question: " + in.Question
	if grounded {
		user = "Study material:\n" +
			formatContext(in.Context, h.config.ContextTokenBudget, h.config.TokenizerEncoding) +
			"\n" + user
	} else if len(in.WebResults) > 0 {
		user = "Web results:\n" +
			formatWebResults(in.WebResults, h.config.ContextTokenBudget, h.config.TokenizerEncoding) +
			"\n" + user
	} else {
		user = "No study material is available for this question.\n" + user
	}

	completion, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: answerSystemPrompt},
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

// webAnswerSystemPrompt 网络问答的系统提示词
const webAnswerSystemPrompt = `You are a study assistant. Answer the question using the
web search results provided. Cite sources as [Web N] and include the URL when referencing
a result. If the results are insufficient, say what is missing.`

// WebSearchHandler 基于网络搜索结果的问答
type WebSearchHandler struct {
	provider llm.Provider
	config   Config
}

// NewWebSearchHandler 创建网络问答处理器
func NewWebSearchHandler(provider llm.Provider, config Config) *WebSearchHandler {
	return &WebSearchHandler{provider: provider, config: config}
}

// Name 返回类别
func (h *WebSearchHandler) Name() types.Category {
	return types.CategoryWebSearch
}

// Required 无必需参数
func (h *WebSearchHandler) Required() []string {
	return nil
}

// Handle 执行问答
func (h *WebSearchHandler) Handle(ctx context.Context, in Input) (*Output, error) {
	user := "Question: " + in.Question
	if len(in.WebResults) > 0 {
		user = "Web results:\n" +
			formatWebResults(in.WebResults, h.config.ContextTokenBudget, h.config.TokenizerEncoding) +
			"\n" + user
	} else {
		user = "No web results were retrieved.\n" + user
	}

	completion, err := h.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: webAnswerSystemPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		Answer:   completion.Content,
		Sources:  webSourceRefs(in.WebResults),
		Metadata: map[string]string{metaGrounded: boolMeta(false)},
	}, nil
}
