// Package agent 实现多智能体路由层：意图分类、单轮状态机编排，
// 以及把类别分发到对应处理器的调度逻辑。
//
// 单轮状态流:
//
//	Idle → Routing → [Retrieving] → [WebSearching] → Dispatching → Completed
//
// 任一活动状态失败都进入 Errored；失败的轮次不产生部分答案，
// 语料库与历史保持可用。
package agent
