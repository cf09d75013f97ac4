package agent

import "fmt"

// State 定义单轮问答的处理状态
type State string

const (
	StateIdle         State = "idle"          // 等待提问
	StateRouting      State = "routing"       // 意图分类中
	StateRetrieving   State = "retrieving"    // 本地语料库检索中
	StateWebSearching State = "web_searching" // 网络搜索中
	StateDispatching  State = "dispatching"   // 工具执行中
	StateCompleted    State = "completed"     // 本轮完成
	StateErrored      State = "errored"       // 本轮失败
)

// validTransitions 定义合法的状态转换
var validTransitions = map[State][]State{
	StateIdle:    {StateRouting},
	StateRouting: {StateRetrieving, StateWebSearching, StateDispatching, StateErrored},
	// 弱检索时回退到网络搜索
	StateRetrieving:   {StateDispatching, StateWebSearching, StateErrored},
	StateWebSearching: {StateDispatching, StateErrored},
	StateDispatching:  {StateCompleted, StateErrored},
	// 终态回到 Idle 开始下一轮
	StateCompleted: {StateIdle},
	StateErrored:   {StateIdle},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition 非法状态转换错误
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}
