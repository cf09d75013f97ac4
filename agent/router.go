package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/types"
)

// RouterConfig 意图路由配置
type RouterConfig struct {
	// 是否在关键词未命中时调用 LLM 分类
	UseLLM bool `json:"use_llm"`
	// 分类超时
	Timeout time.Duration `json:"timeout"`
	// 分类失败时的降级类别
	DefaultCategory types.Category `json:"default_category"`
}

// DefaultRouterConfig 默认路由配置
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		UseLLM:          true,
		Timeout:         10 * time.Second,
		DefaultCategory: types.CategoryRetrieveDocuments,
	}
}

// keywordRule 关键词规则：命中即决定类别，无需调用分类模型
type keywordRule struct {
	pattern  *regexp.Regexp
	category types.Category
}

// keywordRules 按特异性从高到低排列：专用工具关键词优先于
// 泛化的检索/解释类别
var keywordRules = []keywordRule{
	{regexp.MustCompile(`(?i)\b\d+[- ]mark\b`), types.CategoryExamAnswer},
	{regexp.MustCompile(`(?i)\bstudy\s+plan\b|\brevision\s+plan\b|\bstudy\s+schedule\b`), types.CategoryStudyPlan},
	{regexp.MustCompile(`(?i)\bquiz\b|\bmcq\b|\bmultiple\s+choice\b`), types.CategoryQuiz},
	{regexp.MustCompile(`(?i)\bflash\s?cards?\b`), types.CategoryFlashcards},
	{regexp.MustCompile(`(?i)\bimportant\s+questions?\b|\bpredict\b|\bexpected\s+questions?\b`), types.CategoryImportantQuestions},
	{regexp.MustCompile(`(?i)\bsearch\s+(the\s+)?web\b|\bweb\s+search\b|\bsearch\s+online\b|\blatest\s+news\b`), types.CategoryWebSearch},
	{regexp.MustCompile(`(?i)\bexplain\b|\bwhat\s+is\b|\bwhat\s+are\b|\bdefine\b`), types.CategoryConceptExplain},
}

// routerSystemPrompt LLM 分类的系统提示词
const routerSystemPrompt = `You are an intent classifier for a study assistant.
Classify the student's message into exactly one category:
- retrieve_documents: answer from the student's uploaded study material
- web_search: needs current information from the web
- exam_answer: wants a structured long-form exam answer
- study_plan: wants a day-by-day study schedule
- quiz: wants practice questions with options
- flashcards: wants term/definition cards
- concept_explain: wants a concept explained in depth
- predict_important_questions: wants likely exam questions

Respond with JSON only: {"category": "<one of the above>"}`

// IntentRouter 把用户问题分类到闭合类别集。
// 先用关键词规则做确定性预判，未命中时交给 LLM 分类，
// 分类输出在边界处校验，绝不产生集合外的类别。
type IntentRouter struct {
	provider llm.Provider
	config   RouterConfig
	logger   *zap.Logger
}

// NewIntentRouter 创建意图路由器
func NewIntentRouter(provider llm.Provider, config RouterConfig, logger *zap.Logger) *IntentRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntentRouter{
		provider: provider,
		config:   config,
		logger:   logger.With(zap.String("component", "intent_router")),
	}
}

// Route 返回问题所属的类别。
//
// 分类后端不可达或输出非法时返回 RoutingUnavailable / RoutingTimeout；
// 调用方（编排器）收到错误后降级到默认类别而不是中止本轮。
func (r *IntentRouter) Route(ctx context.Context, question string, history []types.Exchange) (types.Category, error) {
	if c, ok := matchKeyword(question); ok {
		r.logger.Debug("keyword rule matched",
			zap.String("category", string(c)))
		return c, nil
	}

	if !r.config.UseLLM || r.provider == nil {
		return r.config.DefaultCategory, nil
	}

	return r.classify(ctx, question, history)
}

// matchKeyword 关键词预判
func matchKeyword(question string) (types.Category, bool) {
	for _, rule := range keywordRules {
		if rule.pattern.MatchString(question) {
			return rule.category, true
		}
	}
	return "", false
}

// classify 调用 LLM 分类并在边界校验输出
func (r *IntentRouter) classify(ctx context.Context, question string, history []types.Exchange) (types.Category, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	messages := []llm.Message{{Role: "system", Content: routerSystemPrompt}}
	// 最近的对话有助于消解指代（"再来一组"指的是测验还是闪卡）
	for _, ex := range tail(history, 3) {
		messages = append(messages,
			llm.Message{Role: "user", Content: ex.Question},
			llm.Message{Role: "assistant", Content: fmt.Sprintf("{%q: %q}", "category", ex.Category)},
		)
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})

	completion, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Messages: messages,
		JSONMode: true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || types.IsCode(err, types.ErrGenerationTimeout) {
			return "", types.NewError(types.ErrRoutingTimeout, "classification timed out").
				WithStage("routing").WithCause(err)
		}
		return "", types.NewError(types.ErrRoutingUnavailable, "classification backend failed").
			WithStage("routing").WithCause(err)
	}

	var decoded struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(completion.Content), &decoded); err != nil {
		return "", types.NewError(types.ErrRoutingUnavailable, "classifier returned malformed output").
			WithStage("routing").WithCause(err)
	}

	category, err := types.ParseCategory(strings.TrimSpace(decoded.Category))
	if err != nil {
		return "", types.NewError(types.ErrRoutingUnavailable,
			"classifier returned unrecognized category: "+decoded.Category).
			WithStage("routing")
	}

	r.logger.Debug("llm classification",
		zap.String("category", string(category)))
	return category, nil
}

// tail 返回切片最后 n 个元素
func tail(history []types.Exchange, n int) []types.Exchange {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
