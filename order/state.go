package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction 开仓方向（二元期权 call/put）。
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// ParseDirection 兼容券商常用的 call/put、up/down 写法。
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "call", "up", "buy":
		return DirectionLong, nil
	case "short", "put", "down", "sell":
		return DirectionShort, nil
	default:
		return "", fmt.Errorf("unknown direction %q", raw)
	}
}

// Outcome 订单终态结果。
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
	OutcomeDraw Outcome = "DRAW"
)

// Kind 区分主单与加仓单。
type Kind string

const (
	KindPrimary       Kind = "primary"
	KindReinforcement Kind = "reinforcement"
)

// Source 标记是哪条确认路径给出了终态。
type Source string

const (
	SourcePush    Source = "push"
	SourcePoll    Source = "poll"
	SourceCheck   Source = "check"
	SourceTimeout Source = "timeout"
)

// Order 一笔已开仓的订单，开仓后不可变。
type Order struct {
	ID         string // trade id，asset-ref
	Ref        string // 券商分配的订单号，查询结果时使用
	Asset      string
	Direction  Direction
	Kind       Kind
	Stake      decimal.Decimal
	Payout     decimal.Decimal // 总回报倍数，WIN 时返还 stake*payout
	EntryPrice float64
	OpenedAt   time.Time
	Duration   time.Duration
	Regime     string
	Reason     string
}

// ExpiresAt 返回合约到期时间。
func (o Order) ExpiresAt() time.Time {
	return o.OpenedAt.Add(o.Duration)
}

// TradeID 订单号由标的与券商订单号拼成，与历史日志保持一致。
func TradeID(asset, ref string) string {
	return asset + "-" + ref
}

// OpenRequest 开仓请求。
type OpenRequest struct {
	Asset      string
	Direction  Direction
	Kind       Kind
	Stake      decimal.Decimal
	Payout     decimal.Decimal
	EntryPrice float64
	Duration   time.Duration
	Regime     string
	Reason     string
}

// ResolvedResult 终态结果，产生后不再修改。
type ResolvedResult struct {
	OrderID   string
	Outcome   Outcome
	Profit    decimal.Decimal
	OpenTime  time.Time
	CloseTime time.Time
	Duration  time.Duration
	Source    Source
}

// DurationSec 持仓秒数。
func (r ResolvedResult) DurationSec() float64 {
	return r.Duration.Seconds()
}

// WinProfit WIN 的净收益：stake*payout - stake。
func WinProfit(stake, payout decimal.Decimal) decimal.Decimal {
	return stake.Mul(payout).Sub(stake)
}

// LossProfit LOSS 扣除全部本金。
func LossProfit(stake decimal.Decimal) decimal.Decimal {
	return stake.Neg()
}

func newResult(o Order, outcome Outcome, profit decimal.Decimal, closedAt time.Time, src Source) ResolvedResult {
	if closedAt.IsZero() || closedAt.Before(o.OpenedAt) {
		closedAt = o.OpenedAt
	}
	return ResolvedResult{
		OrderID:   o.ID,
		Outcome:   outcome,
		Profit:    profit,
		OpenTime:  o.OpenedAt,
		CloseTime: closedAt,
		Duration:  closedAt.Sub(o.OpenedAt),
		Source:    src,
	}
}
