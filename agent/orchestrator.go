package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/studybuddy/agent/tools"
	"github.com/BaSui01/studybuddy/internal/metrics"
	"github.com/BaSui01/studybuddy/rag"
	"github.com/BaSui01/studybuddy/types"
)

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	// 弱检索时是否回退到网络搜索
	HybridFallback bool `json:"hybrid_fallback"`
	// 网络搜索最大结果数
	SearchMaxResults int `json:"search_max_results"`
	// 网络搜索阶段超时
	WebSearchTimeout time.Duration `json:"web_search_timeout"`
	// 工具生成阶段超时
	GenerationTimeout time.Duration `json:"generation_timeout"`
	// 跨轮次保留的最大历史轮数
	HistoryMaxTurns int `json:"history_max_turns"`
}

// DefaultOrchestratorConfig 默认编排器配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		HybridFallback:    true,
		SearchMaxResults:  5,
		WebSearchTimeout:  20 * time.Second,
		GenerationTimeout: 60 * time.Second,
		HistoryMaxTurns:   10,
	}
}

// Result 一轮问答的结构化结果
type Result struct {
	// 答案正文
	Answer string `json:"answer"`
	// 答案引用的来源
	Sources []types.SourceRef `json:"sources,omitempty"`
	// 路由选中的类别
	Category types.Category `json:"category"`
	// 处理器附加元数据
	Metadata map[string]string `json:"metadata,omitempty"`
	// 本轮经过的状态序列，用于观测和调试
	StateTrace []State `json:"state_trace"`
}

// Orchestrator 每轮问答的状态机：路由 → 按需检索/网络搜索 →
// 分发到处理器 → 返回带来源的结构化结果。
//
// 每轮拥有独立的 ConversationState；跨轮只保留有界的问答历史，
// 按语料库隔离，处理器只读。
type Orchestrator struct {
	router    *IntentRouter
	retriever *rag.Retriever
	search    rag.SearchProvider
	registry  *tools.Registry
	config    OrchestratorConfig
	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger

	historyMu sync.Mutex
	histories map[string][]types.Exchange
}

// NewOrchestrator 创建编排器。collector 可为 nil（不收集指标）。
func NewOrchestrator(
	router *IntentRouter,
	retriever *rag.Retriever,
	search rag.SearchProvider,
	registry *tools.Registry,
	config OrchestratorConfig,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		router:    router,
		retriever: retriever,
		search:    search,
		registry:  registry,
		config:    config,
		collector: collector,
		tracer:    otel.Tracer("github.com/BaSui01/studybuddy/agent"),
		logger:    logger.With(zap.String("component", "orchestrator")),
		histories: make(map[string][]types.Exchange),
	}
}

// turn 单轮状态跟踪
type turn struct {
	state State
	trace []State
}

func newTurn() *turn {
	return &turn{state: StateIdle, trace: []State{StateIdle}}
}

// to 执行状态转换，非法转换返回错误
func (t *turn) to(s State) error {
	if !CanTransition(t.state, s) {
		return ErrInvalidTransition{From: t.state, To: s}
	}
	t.state = s
	t.trace = append(t.trace, s)
	return nil
}

// groundedCategories 需要文档上下文的类别
var groundedCategories = map[types.Category]bool{
	types.CategoryRetrieveDocuments:  true,
	types.CategoryExamAnswer:         true,
	types.CategoryQuiz:               true,
	types.CategoryFlashcards:         true,
	types.CategoryConceptExplain:     true,
	types.CategoryImportantQuestions: true,
}

// webFallbackCategories 弱检索时回退网络搜索的类别。
// 仅限处理器会消费网络结果的类别；测验、闪卡和重点预测
// 只基于文档上下文出题。
var webFallbackCategories = map[types.Category]bool{
	types.CategoryRetrieveDocuments: true,
	types.CategoryConceptExplain:    true,
}

// ProcessDocuments 把一批文档摄入语料库。
// 按文档身份幂等：重复处理同一文档会替换其旧块。
func (o *Orchestrator) ProcessDocuments(ctx context.Context, corpus string, docs []types.Document) (*types.IngestionResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.process_documents",
		trace.WithAttributes(
			attribute.String("corpus", corpus),
			attribute.Int("documents", len(docs)),
		))
	defer span.End()

	result, err := o.retriever.Ingest(ctx, corpus, docs)
	if err != nil {
		return nil, err
	}

	o.collector.ObserveIngestion(len(docs)-len(result.Errors), len(result.Errors), result.ChunksCreated)
	return result, nil
}

// Documents 返回语料库中已摄入的文档来源
func (o *Orchestrator) Documents(ctx context.Context, corpus string) ([]string, error) {
	return o.retriever.Documents(ctx, corpus)
}

// Ask 处理一轮问答。
//
// 失败的轮次不产生部分答案：返回具名错误，语料库和历史保持可用，
// 下一轮不受影响。只有完成的轮次才计入历史。
func (o *Orchestrator) Ask(ctx context.Context, corpus, question string, params map[string]string) (*Result, error) {
	turnID := uuid.NewString()
	started := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.ask",
		trace.WithAttributes(
			attribute.String("turn_id", turnID),
			attribute.String("corpus", corpus),
		))
	defer span.End()

	log := o.logger.With(zap.String("turn_id", turnID), zap.String("corpus", corpus))
	t := newTurn()
	history := o.History(corpus)

	// ---- 路由 ----
	if err := t.to(StateRouting); err != nil {
		return nil, err
	}
	category, routingDegraded := o.route(ctx, question, history, log)
	span.SetAttributes(attribute.String("category", string(category)))

	// ---- 检索 / 网络搜索 ----
	var retrieved []types.ScoredChunk
	var webResults []rag.SearchResult

	needsWeb := category == types.CategoryWebSearch
	needsRetrieval := groundedCategories[category]
	if category == types.CategoryStudyPlan {
		// 学习计划的检索是可选的：有材料时用材料排课程
		if n, err := o.retriever.Count(ctx, corpus); err == nil && n > 0 {
			needsRetrieval = true
		}
	}

	if needsRetrieval {
		if err := t.to(StateRetrieving); err != nil {
			return nil, err
		}
		var err error
		retrieved, err = o.retrieve(ctx, corpus, question)
		if err != nil {
			return nil, o.fail(t, category, started, log, err)
		}
		// 弱检索回退：文档支撑不足时查网络而不是硬答
		if o.config.HybridFallback && o.retriever.IsWeak(retrieved) && webFallbackCategories[category] {
			needsWeb = true
		}
	}

	if needsWeb {
		if err := t.to(StateWebSearching); err != nil {
			return nil, err
		}
		var err error
		webResults, err = o.webSearch(ctx, question)
		if err != nil {
			return nil, o.fail(t, category, started, log, err)
		}
	}

	// ---- 分发 ----
	if err := t.to(StateDispatching); err != nil {
		return nil, err
	}
	output, err := o.dispatch(ctx, category, tools.Input{
		Question:   question,
		Context:    retrieved,
		WebResults: webResults,
		History:    history,
		Params:     params,
	})
	if err != nil {
		return nil, o.fail(t, category, started, log, err)
	}

	if err := t.to(StateCompleted); err != nil {
		return nil, err
	}
	o.appendHistory(corpus, types.Exchange{
		Question: question,
		Answer:   output.Answer,
		Category: category,
		At:       time.Now(),
	})

	o.collector.ObserveTurn(string(category), "completed", time.Since(started))
	log.Info("turn completed",
		zap.String("category", string(category)),
		zap.Int("context_chunks", len(retrieved)),
		zap.Int("web_results", len(webResults)),
		zap.Duration("elapsed", time.Since(started)))

	meta := output.Metadata
	if routingDegraded {
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[metaRoutingDegraded] = "true"
	}

	return &Result{
		Answer:     output.Answer,
		Sources:    output.Sources,
		Category:   category,
		Metadata:   meta,
		StateTrace: t.trace,
	}, nil
}

// metaRoutingDegraded 标记本轮分类后端故障、走了默认类别
const metaRoutingDegraded = "routing_degraded"

// route 意图分类；后端失败时降级到默认类别而不是中止本轮，
// 降级通过第二个返回值暴露给调用方并记入结果元数据
func (o *Orchestrator) route(ctx context.Context, question string, history []types.Exchange, log *zap.Logger) (types.Category, bool) {
	start := time.Now()
	defer func() { o.collector.ObserveStage("routing", time.Since(start)) }()

	ctx, span := o.tracer.Start(ctx, "orchestrator.routing")
	defer span.End()

	category, err := o.router.Route(ctx, question, history)
	if err != nil {
		fallback := o.router.config.DefaultCategory
		log.Warn("routing failed, degrading to default category",
			zap.String("default", string(fallback)),
			zap.Error(err))
		return fallback, true
	}
	return category, false
}

// retrieve 本地语料库检索
func (o *Orchestrator) retrieve(ctx context.Context, corpus, question string) ([]types.ScoredChunk, error) {
	start := time.Now()
	defer func() { o.collector.ObserveStage("retrieving", time.Since(start)) }()

	ctx, span := o.tracer.Start(ctx, "orchestrator.retrieving")
	defer span.End()

	results, err := o.retriever.Retrieve(ctx, corpus, question)
	if err != nil {
		return nil, err
	}
	o.collector.ObserveRetrieval(len(results), o.retriever.IsWeak(results))
	span.SetAttributes(attribute.Int("chunks", len(results)))
	return results, nil
}

// webSearch 网络搜索阶段，受独立超时约束
func (o *Orchestrator) webSearch(ctx context.Context, question string) ([]rag.SearchResult, error) {
	start := time.Now()
	defer func() { o.collector.ObserveStage("web_searching", time.Since(start)) }()

	ctx, span := o.tracer.Start(ctx, "orchestrator.web_searching")
	defer span.End()

	if o.config.WebSearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.WebSearchTimeout)
		defer cancel()
	}
	return o.search.Search(ctx, question, o.config.SearchMaxResults)
}

// dispatch 工具执行阶段，受生成超时约束
func (o *Orchestrator) dispatch(ctx context.Context, category types.Category, in tools.Input) (*tools.Output, error) {
	start := time.Now()
	defer func() { o.collector.ObserveStage("dispatching", time.Since(start)) }()

	ctx, span := o.tracer.Start(ctx, "orchestrator.dispatching",
		trace.WithAttributes(attribute.String("category", string(category))))
	defer span.End()

	if o.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.GenerationTimeout)
		defer cancel()
	}
	return o.registry.Dispatch(ctx, category, in)
}

// fail 把本轮转入 Errored 并返回原始错误
func (o *Orchestrator) fail(t *turn, category types.Category, started time.Time, log *zap.Logger, err error) error {
	_ = t.to(StateErrored)
	o.collector.ObserveTurn(string(category), "errored", time.Since(started))
	log.Warn("turn errored",
		zap.String("category", string(category)),
		zap.String("state", string(t.state)),
		zap.Error(err))
	return err
}

// History 返回语料库历史的只读副本
func (o *Orchestrator) History(corpus string) []types.Exchange {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()
	h := o.histories[corpus]
	out := make([]types.Exchange, len(h))
	copy(out, h)
	return out
}

// appendHistory 追加一轮历史并裁剪到上限
func (o *Orchestrator) appendHistory(corpus string, ex types.Exchange) {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()
	h := append(o.histories[corpus], ex)
	if max := o.config.HistoryMaxTurns; max > 0 && len(h) > max {
		h = h[len(h)-max:]
	}
	o.histories[corpus] = h
}

// ClearCorpus 清空语料库及其历史
func (o *Orchestrator) ClearCorpus(ctx context.Context, corpus string) error {
	if err := o.retriever.Clear(ctx, corpus); err != nil {
		return err
	}
	o.historyMu.Lock()
	delete(o.histories, corpus)
	o.historyMu.Unlock()
	return nil
}
