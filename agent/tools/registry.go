// Package tools 实现各能力类别的处理器：考试答案、学习计划、
// 测验、闪卡、概念讲解、重点预测以及基础的文档/网络问答。
//
// 处理器通过 Registry 按类别分发；每个处理器声明自己必需的
// 参数，缺参在分发前统一校验，不做静默兜底。
package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/studybuddy/rag"
	"github.com/BaSui01/studybuddy/types"
)

// Input 处理器输入：本轮的不可变快照。
// 处理器只产出 Output，不回写 Input 的任何字段。
type Input struct {
	// 用户问题
	Question string
	// 检索到的文档上下文，按相关性降序
	Context []types.ScoredChunk
	// 网络搜索结果（仅在经过网络搜索阶段时非空）
	WebResults []rag.SearchResult
	// 跨轮次历史，只读
	History []types.Exchange
	// 透传参数（考试日期、每日学时、题数、难度等）
	Params map[string]string
}

// Output 处理器输出
type Output struct {
	// 答案正文
	Answer string
	// 答案引用的来源
	Sources []types.SourceRef
	// 附加元数据（是否有文档支撑、使用的难度等）
	Metadata map[string]string
}

// Handler 能力处理器接口
type Handler interface {
	// Name 返回处理器负责的类别
	Name() types.Category

	// Required 返回必需参数名；缺失时分发器报 MissingParameter
	Required() []string

	// Handle 执行处理
	Handle(ctx context.Context, in Input) (*Output, error)
}

// Registry 类别到处理器的映射
type Registry struct {
	handlers map[types.Category]Handler
	logger   *zap.Logger
}

// NewRegistry 创建空注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[types.Category]Handler),
		logger:   logger.With(zap.String("component", "tool_registry")),
	}
}

// Register 注册处理器，同类别重复注册时覆盖
func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// Get 按类别查找处理器
func (r *Registry) Get(category types.Category) (Handler, bool) {
	h, ok := r.handlers[category]
	return h, ok
}

// Categories 返回已注册的类别
func (r *Registry) Categories() []types.Category {
	out := make([]types.Category, 0, len(r.handlers))
	for _, c := range types.AllCategories() {
		if _, ok := r.handlers[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Dispatch 校验必需参数并调用对应处理器。
// 未注册的类别和缺失的必需参数都是调用方可见的结构化错误。
func (r *Registry) Dispatch(ctx context.Context, category types.Category, in Input) (*Output, error) {
	h, ok := r.handlers[category]
	if !ok {
		return nil, types.NewError(types.ErrInvalidCategory,
			fmt.Sprintf("no handler registered for category %s", category)).
			WithStage("dispatching")
	}

	for _, name := range h.Required() {
		if in.Params[name] == "" {
			return nil, types.NewError(types.ErrMissingParameter,
				fmt.Sprintf("required parameter %q is missing", name)).
				WithStage("dispatching")
		}
	}

	r.logger.Debug("dispatching to handler",
		zap.String("category", string(category)),
		zap.Int("context_chunks", len(in.Context)),
		zap.Int("web_results", len(in.WebResults)))

	return h.Handle(ctx, in)
}
