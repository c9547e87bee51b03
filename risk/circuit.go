package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Tick 依赖 minimal 行情信息。
type Tick struct {
	Price float64
	Ts    time.Time
}

// CircuitBreaker 基于近期涨跌幅触发熔断，按标的独立统计。
// 触发后 Cooldown 内拒绝该标的开仓。
type CircuitBreaker struct {
	// 阈值：1m、5m 相对涨跌幅
	OneMinuteThresh  float64
	FiveMinuteThresh float64
	Cooldown         time.Duration

	mu        sync.Mutex
	window1m  map[string][]Tick
	window5m  map[string][]Tick
	trippedAt map[string]time.Time
	clock     Clock
}

func NewCircuitBreaker(one, five float64, cooldown time.Duration, clock Clock) *CircuitBreaker {
	if clock == nil {
		clock = NowUTC
	}
	return &CircuitBreaker{
		OneMinuteThresh:  one,
		FiveMinuteThresh: five,
		Cooldown:         cooldown,
		window1m:         make(map[string][]Tick),
		window5m:         make(map[string][]Tick),
		trippedAt:        make(map[string]time.Time),
		clock:            clock,
	}
}

// OnTick 返回 (是否触发, 触发窗口 "1m"/"5m"/"")
func (c *CircuitBreaker) OnTick(asset string, t Tick) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w1 := trim(append(c.window1m[asset], t), t.Ts.Add(-1*time.Minute))
	w5 := trim(append(c.window5m[asset], t), t.Ts.Add(-5*time.Minute))
	c.window1m[asset] = w1
	c.window5m[asset] = w5

	span := ""
	if check(w1, c.OneMinuteThresh) {
		span = "1m"
	} else if check(w5, c.FiveMinuteThresh) {
		span = "5m"
	}
	if span == "" {
		return false, ""
	}
	c.trippedAt[asset] = t.Ts
	return true, span
}

// PreOpen 熔断冷却期内拒绝开仓。
func (c *CircuitBreaker) PreOpen(asset string, _ decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.trippedAt[asset]
	if !ok {
		return nil
	}
	if c.clock.Now().Sub(at) < c.Cooldown {
		return ErrCircuitOpen
	}
	delete(c.trippedAt, asset)
	return nil
}

func trim(buf []Tick, cutoff time.Time) []Tick {
	i := 0
	for ; i < len(buf); i++ {
		if buf[i].Ts.After(cutoff) {
			break
		}
	}
	return buf[i:]
}

func check(buf []Tick, thresh float64) bool {
	if thresh <= 0 || len(buf) == 0 {
		return false
	}
	first := buf[0].Price
	last := buf[len(buf)-1].Price
	if first == 0 {
		return false
	}
	change := (last - first) / first
	return change > thresh || change < -thresh
}
