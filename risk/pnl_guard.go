package risk

import "github.com/shopspring/decimal"

// PnLSource 提供本次会话的已实现盈亏。
type PnLSource interface {
	NetProfit() decimal.Decimal
}

// PnLGuard 会话级止损/止盈：已实现亏损达到 StopLoss 或盈利达到 TakeProfit 后拒绝开仓。
type PnLGuard struct {
	StopLoss   decimal.Decimal // 正数，表示最多亏损多少；零表示不限制
	TakeProfit decimal.Decimal // 正数；零表示不限制
	Source     PnLSource
}

func (g *PnLGuard) PreOpen(string, decimal.Decimal) error {
	if g == nil || g.Source == nil {
		return nil
	}
	pnl := g.Source.NetProfit()
	if g.StopLoss.IsPositive() && pnl.LessThanOrEqual(g.StopLoss.Neg()) {
		return ErrStopLoss
	}
	if g.TakeProfit.IsPositive() && pnl.GreaterThanOrEqual(g.TakeProfit) {
		return ErrTakeProfit
	}
	return nil
}
