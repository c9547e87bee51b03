package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// GuardConfig 组装开仓前风控的参数。
type GuardConfig struct {
	SingleMax       decimal.Decimal
	DailyMax        decimal.Decimal
	StopLoss        decimal.Decimal
	TakeProfit      decimal.Decimal
	MinOpenInterval time.Duration
}

// BuildGuards 方便组装常用的风控组合；breaker 可为 nil。
func BuildGuards(cfg GuardConfig, pnl PnLSource, breaker *CircuitBreaker, clock Clock) Guard {
	var guards []Guard
	if cfg.SingleMax.IsPositive() || cfg.DailyMax.IsPositive() {
		guards = append(guards, NewLimitChecker(Limits{SingleMax: cfg.SingleMax, DailyMax: cfg.DailyMax}, clock))
	}
	if pnl != nil && (cfg.StopLoss.IsPositive() || cfg.TakeProfit.IsPositive()) {
		guards = append(guards, &PnLGuard{StopLoss: cfg.StopLoss, TakeProfit: cfg.TakeProfit, Source: pnl})
	}
	if cfg.MinOpenInterval > 0 {
		guards = append(guards, NewLatencyGuard(cfg.MinOpenInterval, clock))
	}
	if breaker != nil {
		guards = append(guards, breaker)
	}
	return MultiGuard{Guards: guards}
}
