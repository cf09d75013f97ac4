package agent

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/studybuddy/agent/tools"
	"github.com/BaSui01/studybuddy/internal/metrics"
	"github.com/BaSui01/studybuddy/llm"
	"github.com/BaSui01/studybuddy/rag"
	"github.com/BaSui01/studybuddy/testutil"
	"github.com/BaSui01/studybuddy/types"
)

// fullRegistry 注册全部处理器，统一使用同一个脚本化 LLM
func fullRegistry(provider llm.Provider) *tools.Registry {
	cfg := tools.DefaultConfig()
	registry := tools.NewRegistry(nil)
	registry.Register(tools.NewRetrieveHandler(provider, cfg))
	registry.Register(tools.NewWebSearchHandler(provider, cfg))
	registry.Register(tools.NewExamAnswerHandler(provider, cfg))
	registry.Register(tools.NewStudyPlanHandler(provider, cfg))
	registry.Register(tools.NewQuizHandler(provider, cfg))
	registry.Register(tools.NewFlashcardsHandler(provider, cfg))
	registry.Register(tools.NewExplainHandler(provider, cfg))
	registry.Register(tools.NewImportantQuestionsHandler(provider, cfg))
	return registry
}

type orchestratorFixture struct {
	orch   *Orchestrator
	search *testutil.ScriptedSearch
}

func newFixture(t *testing.T, routerLLM, handlerLLM llm.Provider, hybridFallback bool) *orchestratorFixture {
	t.Helper()

	retriever := rag.NewRetriever(
		rag.NewSplitter(rag.SplitterConfig{MaxSize: 200, Overlap: 40}, nil),
		testutil.NewFakeEmbedder(256),
		rag.NewMemoryStore(nil),
		rag.RetrieverConfig{TopK: 5, RelevanceThreshold: 0.3, EmbedRetries: 1, Parallelism: 2},
		nil,
	)
	search := testutil.NewScriptedSearch(rag.SearchResult{
		Title: "Neural networks overview", URL: "https://example.com/nn", Content: "Layers of neurons.", Score: 0.8,
	})

	cfg := DefaultOrchestratorConfig()
	cfg.HybridFallback = hybridFallback

	collector := metrics.NewCollector("studybuddy_test", prometheus.NewRegistry(), nil)

	orch := NewOrchestrator(
		NewIntentRouter(routerLLM, DefaultRouterConfig(), nil),
		retriever,
		search,
		fullRegistry(handlerLLM),
		cfg,
		collector,
		nil,
	)
	return &orchestratorFixture{orch: orch, search: search}
}

func ingestPythonNotes(t *testing.T, f *orchestratorFixture) {
	t.Helper()
	result, err := f.orch.ProcessDocuments(testutil.TestContext(t), "cs101", []types.Document{
		{ID: "d1", Source: "python.txt", Text: "Python programming uses indentation. Python lists are mutable and ordered."},
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
}

func TestOrchestrator_GroundedQuizTurn(t *testing.T) {
	handlerLLM := testutil.NewScriptedLLM("Q1. What are Python lists? ...")
	f := newFixture(t, testutil.NewScriptedLLM(), handlerLLM, true)
	ingestPythonNotes(t, f)

	result, err := f.orch.Ask(testutil.TestContext(t), "cs101", "Generate a quiz on Python programming", nil)
	require.NoError(t, err)

	assert.Equal(t, types.CategoryQuiz, result.Category)
	assert.Equal(t, "Q1. What are Python lists? ...", result.Answer)
	assert.NotEmpty(t, result.Sources)
	assert.Equal(t, "python.txt", result.Sources[0].Source)
	assert.Equal(t,
		[]State{StateIdle, StateRouting, StateRetrieving, StateDispatching, StateCompleted},
		result.StateTrace)
	assert.Zero(t, f.search.Calls(), "strong retrieval must not trigger web search")
	assert.NotContains(t, result.Metadata, "routing_degraded")
}

func TestOrchestrator_EmptyCorpusExplainIsUngrounded(t *testing.T) {
	handlerLLM := testutil.NewScriptedLLM("Note: this explanation is not based on your uploaded documents. ...")
	f := newFixture(t, testutil.NewScriptedLLM(), handlerLLM, false)

	result, err := f.orch.Ask(testutil.TestContext(t), "cs101", "Explain neural networks", nil)
	require.NoError(t, err)

	assert.Equal(t, types.CategoryConceptExplain, result.Category)
	assert.Empty(t, result.Sources, "ungrounded answer must not fabricate citations")
	assert.Equal(t, "false", result.Metadata["grounded"])
	assert.Equal(t,
		[]State{StateIdle, StateRouting, StateRetrieving, StateDispatching, StateCompleted},
		result.StateTrace)
}

func TestOrchestrator_WeakRetrievalFallsBackToWebOnce(t *testing.T) {
	handlerLLM := testutil.NewScriptedLLM("Neural networks are layered models. [Web 1]")
	f := newFixture(t, testutil.NewScriptedLLM(), handlerLLM, true)
	ingestPythonNotes(t, f)

	// 语料库只有 Python 材料，对神经网络的检索必然低于阈值
	result, err := f.orch.Ask(testutil.TestContext(t), "cs101", "Explain neural networks in depth", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, f.search.Calls(), "web search backend must be invoked exactly once")
	assert.Contains(t, result.StateTrace, StateWebSearching)
	assert.Equal(t,
		[]State{StateIdle, StateRouting, StateRetrieving, StateWebSearching, StateDispatching, StateCompleted},
		result.StateTrace)
}

func TestOrchestrator_WebSearchCategorySkipsRetrieval(t *testing.T) {
	handlerLLM := testutil.NewScriptedLLM("According to [Web 1] ...")
	f := newFixture(t, testutil.NewScriptedLLM(), handlerLLM, true)

	result, err := f.orch.Ask(testutil.TestContext(t), "cs101", "search the web for exam date changes", nil)
	require.NoError(t, err)

	assert.Equal(t, types.CategoryWebSearch, result.Category)
	assert.Equal(t, 1, f.search.Calls())
	assert.Equal(t,
		[]State{StateIdle, StateRouting, StateWebSearching, StateDispatching, StateCompleted},
		result.StateTrace)
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "https://example.com/nn", result.Sources[0].Source)
}

func TestOrchestrator_RoutingFailureDegradesToDefault(t *testing.T) {
	routerLLM := testutil.NewScriptedLLM().
		WithErrors(types.NewError(types.ErrGenerationUnavailable, "down"))
	handlerLLM := testutil.NewScriptedLLM("Answer from notes.")
	f := newFixture(t, routerLLM, handlerLLM, false)
	ingestPythonNotes(t, f)

	// 无关键词问题 + 分类后端故障 → 降级到 retrieve_documents，照常完成
	result, err := f.orch.Ask(testutil.TestContext(t), "cs101", "summarize my notes on lists please", nil)
	require.NoError(t, err)
	assert.Equal(t, types.CategoryRetrieveDocuments, result.Category)
	assert.Equal(t, StateCompleted, result.StateTrace[len(result.StateTrace)-1])
	// 降级要在结果里可见，不能只留在日志里
	assert.Equal(t, "true", result.Metadata["routing_degraded"])
}

func TestOrchestrator_MissingParameterAbortsTurn(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedLLM(), testutil.NewScriptedLLM("plan"), false)

	_, err := f.orch.Ask(testutil.TestContext(t), "cs101",
		"Create a study plan for my exam in 30 days", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrMissingParameter, types.GetErrorCode(err))

	// 失败的轮次不计入历史
	assert.Empty(t, f.orch.History("cs101"))
}

func TestOrchestrator_StudyPlanWithParameters(t *testing.T) {
	handlerLLM := testutil.NewScriptedLLM("Day 1 (2026-09-01): ...")
	f := newFixture(t, testutil.NewScriptedLLM(), handlerLLM, false)

	result, err := f.orch.Ask(testutil.TestContext(t), "cs101",
		"Create a study plan for my exam in 30 days",
		map[string]string{"hours_per_day": "4"})
	require.NoError(t, err)

	assert.Equal(t, types.CategoryStudyPlan, result.Category)
	// 空语料库：计划不经过检索阶段
	assert.Equal(t,
		[]State{StateIdle, StateRouting, StateDispatching, StateCompleted},
		result.StateTrace)
	assert.Equal(t, "true", result.Metadata["date_defaulted"])
}

func TestOrchestrator_StudyPlanRetrievesWhenCorpusHasMaterial(t *testing.T) {
	handlerLLM := testutil.NewScriptedLLM("Day 1: Python basics ...")
	f := newFixture(t, testutil.NewScriptedLLM(), handlerLLM, false)
	ingestPythonNotes(t, f)

	result, err := f.orch.Ask(testutil.TestContext(t), "cs101",
		"Create a study plan for my exam in 30 days",
		map[string]string{"hours_per_day": "3", "exam_date": "2099-01-01"})
	require.NoError(t, err)

	assert.Contains(t, result.StateTrace, StateRetrieving)
	assert.Equal(t, "false", result.Metadata["date_defaulted"])
}

func TestOrchestrator_QuizOnEmptyCorpusIsInsufficientContext(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedLLM(), testutil.NewScriptedLLM("quiz"), false)

	_, err := f.orch.Ask(testutil.TestContext(t), "cs101", "Generate a quiz on Python programming", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientContext, types.GetErrorCode(err))
}

func TestOrchestrator_WeakQuizDoesNotSearchWeb(t *testing.T) {
	f := newFixture(t, testutil.NewScriptedLLM(), testutil.NewScriptedLLM("quiz"), true)

	// 测验处理器不消费网络结果：混合回退开着也不该搜网络，
	// 语料不足直接报错
	_, err := f.orch.Ask(testutil.TestContext(t), "cs101", "Generate a quiz on neural networks", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInsufficientContext, types.GetErrorCode(err))
	assert.Zero(t, f.search.Calls(), "quiz must not trigger web search")
}

func TestOrchestrator_HistoryBoundedAndOnlyCompletedTurns(t *testing.T) {
	handlerLLM := testutil.NewScriptedLLM("answer")
	f := newFixture(t, testutil.NewScriptedLLM(), handlerLLM, false)
	f.orch.config.HistoryMaxTurns = 3
	ingestPythonNotes(t, f)

	ctx := testutil.TestContext(t)
	for i := 0; i < 5; i++ {
		_, err := f.orch.Ask(ctx, "cs101", "Explain neural networks", nil)
		require.NoError(t, err)
	}

	history := f.orch.History("cs101")
	assert.Len(t, history, 3)
	assert.Equal(t, types.CategoryConceptExplain, history[0].Category)
	assert.Equal(t, "answer", history[0].Answer)
}

func TestOrchestrator_TurnsAreIsolatedAcrossCorpora(t *testing.T) {
	handlerLLM := testutil.NewScriptedLLM("answer")
	f := newFixture(t, testutil.NewScriptedLLM(), handlerLLM, false)
	ingestPythonNotes(t, f)

	_, err := f.orch.Ask(testutil.TestContext(t), "cs101", "Explain neural networks", nil)
	require.NoError(t, err)

	assert.Len(t, f.orch.History("cs101"), 1)
	assert.Empty(t, f.orch.History("bio201"))
}

func TestOrchestrator_ClearCorpus(t *testing.T) {
	handlerLLM := testutil.NewScriptedLLM("answer")
	f := newFixture(t, testutil.NewScriptedLLM(), handlerLLM, false)
	ingestPythonNotes(t, f)

	ctx := testutil.TestContext(t)
	_, err := f.orch.Ask(ctx, "cs101", "Explain neural networks", nil)
	require.NoError(t, err)

	require.NoError(t, f.orch.ClearCorpus(ctx, "cs101"))
	assert.Empty(t, f.orch.History("cs101"))
}
