package market

import (
	"sync"
	"time"
)

const defaultHistory = 120

// KlineAggregator 从报价流生成固定周期的 Kline，周期按 Interval 对齐。
type KlineAggregator struct {
	Asset    string
	Interval time.Duration

	mu      sync.Mutex
	current *Kline
	history []Kline
	maxHist int
}

func NewKlineAggregator(asset string, interval time.Duration) *KlineAggregator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &KlineAggregator{Asset: asset, Interval: interval, maxHist: defaultHistory}
}

// OnTick 更新当前 Kline；跨周期时返回刚闭合的 Kline，否则返回 nil。
// 早于当前周期的报价被丢弃。
func (a *KlineAggregator) OnTick(price float64, ts time.Time) *Kline {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := ts.Truncate(a.Interval)
	if a.current != nil && start.Before(a.current.Ts) {
		return nil
	}
	if a.current == nil || start.After(a.current.Ts) {
		var closed *Kline
		if a.current != nil {
			c := *a.current
			closed = &c
			a.history = append(a.history, c)
			if len(a.history) > a.maxHist {
				a.history = a.history[len(a.history)-a.maxHist:]
			}
		}
		a.current = &Kline{
			Asset: a.Asset,
			Open:  price,
			High:  price,
			Low:   price,
			Close: price,
			Ticks: 1,
			Ts:    start,
		}
		return closed
	}

	if price > a.current.High {
		a.current.High = price
	}
	if price < a.current.Low {
		a.current.Low = price
	}
	a.current.Close = price
	a.current.Ticks++
	return nil
}

// Current 当前未闭合的 Kline。
func (a *KlineAggregator) Current() (Kline, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Kline{}, false
	}
	return *a.current, true
}

// History 最近 n 根已闭合 Kline（旧到新）。
func (a *KlineAggregator) History(n int) []Kline {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 || n > len(a.history) {
		n = len(a.history)
	}
	out := make([]Kline, n)
	copy(out, a.history[len(a.history)-n:])
	return out
}
