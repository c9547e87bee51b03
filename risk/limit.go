package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Limits 配置。零值表示不限制。
type Limits struct {
	SingleMax decimal.Decimal // 单笔最大下注
	DailyMax  decimal.Decimal // 单标的每日累计下注上限
}

// LimitChecker 维护日累计下注额与单笔校验，按 UTC 自然日重置。
type LimitChecker struct {
	cfg    Limits
	mu     sync.Mutex
	dayVol map[string]decimal.Decimal
	day    string
	clock  Clock
}

func NewLimitChecker(cfg Limits, clock Clock) *LimitChecker {
	if clock == nil {
		clock = NowUTC
	}
	return &LimitChecker{
		cfg:    cfg,
		dayVol: make(map[string]decimal.Decimal),
		clock:  clock,
	}
}

// PreOpen 校验开仓前约束，通过后计入当日累计。
func (lc *LimitChecker) PreOpen(asset string, stake decimal.Decimal) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	day := lc.clock.Now().UTC().Format(time.DateOnly)
	if day != lc.day {
		lc.dayVol = make(map[string]decimal.Decimal)
		lc.day = day
	}

	if lc.cfg.SingleMax.IsPositive() && stake.GreaterThan(lc.cfg.SingleMax) {
		return fmt.Errorf("%w: %s > single %s", ErrStakeExceed, stake, lc.cfg.SingleMax)
	}
	next := lc.dayVol[asset].Add(stake)
	if lc.cfg.DailyMax.IsPositive() && next.GreaterThan(lc.cfg.DailyMax) {
		return fmt.Errorf("%w: %s > daily %s", ErrDailyExceed, next, lc.cfg.DailyMax)
	}
	lc.dayVol[asset] = next
	return nil
}

// DailyStake 当日累计下注
func (lc *LimitChecker) DailyStake(asset string) decimal.Decimal {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.dayVol[asset]
}
