package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// LatencyGuard 限制同一标的两次开仓的最小间隔。
type LatencyGuard struct {
	MinInterval time.Duration
	mu          sync.Mutex
	last        map[string]time.Time
	clock       Clock
}

func NewLatencyGuard(minInterval time.Duration, clock Clock) *LatencyGuard {
	if clock == nil {
		clock = NowUTC
	}
	return &LatencyGuard{
		MinInterval: minInterval,
		last:        make(map[string]time.Time),
		clock:       clock,
	}
}

func (g *LatencyGuard) PreOpen(asset string, _ decimal.Decimal) error {
	if g == nil || g.MinInterval <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	if last, ok := g.last[asset]; ok && now.Sub(last) < g.MinInterval {
		return ErrTooFrequent
	}
	g.last[asset] = now
	return nil
}
