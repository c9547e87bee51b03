package order

import (
	"errors"
	"fmt"
)

// LifecycleState 活动订单的生命周期：OPENED -> REINFORCED -> RESOLVED，
// 或 OPENED -> RESOLVED。加仓的一次性标记就是 REINFORCED 状态本身。
type LifecycleState string

const (
	StateOpened     LifecycleState = "OPENED"
	StateReinforced LifecycleState = "REINFORCED"
	StateResolved   LifecycleState = "RESOLVED"
)

// ErrIllegalTransition 非法状态转换
var ErrIllegalTransition = errors.New("illegal lifecycle transition")

// StateTransition 状态转换
type StateTransition struct {
	From LifecycleState
	To   LifecycleState
}

// 所有合法的状态转换，终态 RESOLVED 不能再转换
var legalTransitions = map[StateTransition]bool{
	{StateOpened, StateReinforced}:   true,
	{StateOpened, StateResolved}:     true,
	{StateReinforced, StateResolved}: true,
}

// ValidateTransition 验证状态转换是否合法
func ValidateTransition(from, to LifecycleState) error {
	if legalTransitions[StateTransition{From: from, To: to}] {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// IsFinalState 判断是否是终态
func IsFinalState(s LifecycleState) bool {
	return s == StateResolved
}

// Lifecycle 单笔活动订单的状态。只由主循环访问，不加锁。
type Lifecycle struct {
	state LifecycleState
}

// NewLifecycle 新开订单，状态 OPENED。
func NewLifecycle() Lifecycle {
	return Lifecycle{state: StateOpened}
}

// State 当前状态
func (l *Lifecycle) State() LifecycleState { return l.state }

// Transition 转换状态
func (l *Lifecycle) Transition(to LifecycleState) error {
	if err := ValidateTransition(l.state, to); err != nil {
		return err
	}
	l.state = to
	return nil
}

// CanReinforce 只有 OPENED 状态允许加仓。
func (l *Lifecycle) CanReinforce() bool { return l.state == StateOpened }

// Reinforced 本轮生命周期是否已加仓。
func (l *Lifecycle) Reinforced() bool { return l.state == StateReinforced }
