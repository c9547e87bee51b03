package order

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Event 确认事件。只有本包内的类型实现它，Reconciler 通过 normalize 统一归一化。
type Event interface {
	Source() Source
	normalize(o Order, now time.Time) ResolvedResult
}

// PushEvent 券商推送的平仓事件，订单号不可靠，只能按时间窗口匹配。
type PushEvent struct {
	Ref        string // 可选；有值时优先精确匹配
	Asset      string // 可选；有值时只匹配同一标的
	CloseTime  time.Time
	RawOutcome string
	RawProfit  float64
}

func (PushEvent) Source() Source { return SourcePush }

func (e PushEvent) normalize(o Order, now time.Time) ResolvedResult {
	closed := e.CloseTime
	if closed.IsZero() {
		closed = now
	}
	amount := safeDecimal(e.RawProfit).Abs()
	switch NormalizeLabel(e.RawOutcome) {
	case OutcomeWin:
		if amount.IsZero() {
			amount = WinProfit(o.Stake, o.Payout)
		}
		return newResult(o, OutcomeWin, amount, closed, SourcePush)
	case OutcomeDraw:
		return newResult(o, OutcomeDraw, decimal.Zero, closed, SourcePush)
	case OutcomeLoss:
		if amount.IsZero() {
			return newResult(o, OutcomeLoss, LossProfit(o.Stake), closed, SourcePush)
		}
		return newResult(o, OutcomeLoss, amount.Neg(), closed, SourcePush)
	default:
		// 无法识别的标签：悲观处理
		return newResult(o, OutcomeLoss, LossProfit(o.Stake), closed, SourcePush)
	}
}

// PollEvent 后台轮询拿到的带符号金额。
type PollEvent struct {
	Value     decimal.Decimal
	CloseTime time.Time
	Malformed bool
}

func (PollEvent) Source() Source { return SourcePoll }

func (e PollEvent) normalize(o Order, now time.Time) ResolvedResult {
	closed := e.CloseTime
	if closed.IsZero() {
		closed = now
	}
	if e.Malformed {
		return newResult(o, OutcomeLoss, LossProfit(o.Stake), closed, SourcePoll)
	}
	outcome, profit := OutcomeFromSign(e.Value)
	return newResult(o, outcome, profit, closed, SourcePoll)
}

// CheckEvent 主循环权威查询得到的胜负标记，不产生 DRAW。
type CheckEvent struct {
	Flag      string
	CloseTime time.Time
}

func (CheckEvent) Source() Source { return SourceCheck }

func (e CheckEvent) normalize(o Order, now time.Time) ResolvedResult {
	closed := e.CloseTime
	if closed.IsZero() {
		closed = now
	}
	if IsAffirmativeWin(e.Flag) {
		return newResult(o, OutcomeWin, WinProfit(o.Stake, o.Payout), closed, SourceCheck)
	}
	return newResult(o, OutcomeLoss, LossProfit(o.Stake), closed, SourceCheck)
}

// TimeoutEvent 超时强制结算，恒为 LOSS。
type TimeoutEvent struct {
	Tier Escalation
	At   time.Time
}

func (TimeoutEvent) Source() Source { return SourceTimeout }

func (e TimeoutEvent) normalize(o Order, now time.Time) ResolvedResult {
	at := e.At
	if at.IsZero() {
		at = now
	}
	return newResult(o, OutcomeLoss, LossProfit(o.Stake), at, SourceTimeout)
}

// EventFromCheck 把权威查询的 Answer 转为事件；AnswerNone 返回 nil。
func EventFromCheck(a Answer) Event {
	switch a.Kind {
	case AnswerNone:
		return nil
	case AnswerFlag:
		return CheckEvent{Flag: a.Flag, CloseTime: a.CloseTime}
	default:
		// 数字或无法识别的形态不是明确的赢标记
		return CheckEvent{Flag: "", CloseTime: a.CloseTime}
	}
}

// EventFromPoll 把轮询 Answer 转为事件；AnswerNone 返回 nil。
func EventFromPoll(a Answer) Event {
	switch a.Kind {
	case AnswerNone:
		return nil
	case AnswerNumeric:
		return PollEvent{Value: a.Value, CloseTime: a.CloseTime}
	case AnswerFlag:
		// 轮询接口偶尔回传文字标记，按推送词表解释
		switch NormalizeLabel(a.Flag) {
		case OutcomeWin, OutcomeLoss, OutcomeDraw:
			return PushEvent{RawOutcome: a.Flag, CloseTime: a.CloseTime}
		}
		return PollEvent{Malformed: true, CloseTime: a.CloseTime}
	default:
		return PollEvent{Malformed: true, CloseTime: a.CloseTime}
	}
}

func safeDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
