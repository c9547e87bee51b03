package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"binary-trader-go/order"
)

// DefaultAdversePct 价格逆向移动 0.2% 视为明显不利。
const DefaultAdversePct = 0.002

const (
	reinforceRegime = "reinforcement"
	reinforceReason = "price improvement"
)

// ReinforceInput 一次加仓判断需要的全部输入。
type ReinforceInput struct {
	Order             order.Order
	AlreadyReinforced bool
	LatestPrice       float64
	Step              int
	MaxSteps          int
	Stake             decimal.Decimal
	Payout            decimal.Decimal
}

// Reinforcer 在主单未结算且价格逆向移动时给出同方向、同标的的加仓请求。
// 每个 idle tick 评估一次，由调用方保证每轮生命周期最多执行一次。
type Reinforcer struct {
	adversePct float64
}

// NewReinforcer pct<=0 时使用默认 0.2%。
func NewReinforcer(pct float64) *Reinforcer {
	if pct <= 0 {
		pct = DefaultAdversePct
	}
	return &Reinforcer{adversePct: pct}
}

// AdversePct 当前阈值
func (r *Reinforcer) AdversePct() float64 { return r.adversePct }

// AdverseMove 多单价格低于 entry*(1-pct)，空单价格高于 entry*(1+pct)。
func (r *Reinforcer) AdverseMove(dir order.Direction, entry, latest float64) bool {
	if entry <= 0 || latest <= 0 {
		return false
	}
	switch dir {
	case order.DirectionLong:
		return latest < entry*(1-r.adversePct)
	case order.DirectionShort:
		return latest > entry*(1+r.adversePct)
	default:
		return false
	}
}

// MaybeReinforce 条件全部满足时返回加仓请求：未加仓过、step < maxSteps、价格逆向。
func (r *Reinforcer) MaybeReinforce(in ReinforceInput) (order.OpenRequest, bool) {
	o := in.Order
	if o.ID == "" || in.AlreadyReinforced {
		return order.OpenRequest{}, false
	}
	if in.Step >= in.MaxSteps {
		return order.OpenRequest{}, false
	}
	if !in.Stake.IsPositive() {
		return order.OpenRequest{}, false
	}
	if !r.AdverseMove(o.Direction, o.EntryPrice, in.LatestPrice) {
		return order.OpenRequest{}, false
	}
	duration := o.Duration
	if duration <= 0 {
		duration = time.Minute
	}
	return order.OpenRequest{
		Asset:      o.Asset,
		Direction:  o.Direction,
		Kind:       order.KindReinforcement,
		Stake:      in.Stake,
		Payout:     in.Payout,
		EntryPrice: in.LatestPrice,
		Duration:   duration,
		Regime:     reinforceRegime,
		Reason:     reinforceReason,
	}, true
}
