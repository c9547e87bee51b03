package strategy

import (
	"context"
	"time"

	"binary-trader-go/market"
	"binary-trader-go/order"
)

// Signal 开仓信号
type Signal struct {
	Asset     string
	Direction order.Direction
	Regime    string
	Reason    string
	Price     float64
}

// SignalSource 产生开仓信号；没有信号时返回 false。
type SignalSource interface {
	Next(ctx context.Context, now time.Time) (Signal, bool)
}

// CandleData 信号所需的行情接口，market.Service 满足。
type CandleData interface {
	Candles(asset string, n int) []market.Kline
	LatestClose(asset string) (float64, error)
	Regime(asset string) market.MarketRegime
	Staleness(asset string, now time.Time) time.Duration
}

// CandleSignal 跟随最近一根已闭合 1m K 线的方向，轮流扫描各标的。
// 每根 K 线最多触发一次。
type CandleSignal struct {
	data     CandleData
	assets   []string
	maxStale time.Duration
	// 只在趋势状态下开仓
	trendOnly bool

	cursor int
	used   map[string]time.Time
}

// NewCandleSignal 创建信号源
func NewCandleSignal(data CandleData, assets []string, maxStale time.Duration, trendOnly bool) *CandleSignal {
	if maxStale <= 0 {
		maxStale = 10 * time.Second
	}
	return &CandleSignal{
		data:      data,
		assets:    append([]string(nil), assets...),
		maxStale:  maxStale,
		trendOnly: trendOnly,
		used:      make(map[string]time.Time),
	}
}

func (s *CandleSignal) Next(ctx context.Context, now time.Time) (Signal, bool) {
	for i := 0; i < len(s.assets); i++ {
		if ctx.Err() != nil {
			return Signal{}, false
		}
		asset := s.assets[(s.cursor+i)%len(s.assets)]
		sig, ok := s.evaluate(asset, now)
		if ok {
			s.cursor = (s.cursor + i + 1) % len(s.assets)
			return sig, true
		}
	}
	return Signal{}, false
}

func (s *CandleSignal) evaluate(asset string, now time.Time) (Signal, bool) {
	if s.data.Staleness(asset, now) > s.maxStale {
		return Signal{}, false
	}
	candles := s.data.Candles(asset, 1)
	if len(candles) == 0 {
		return Signal{}, false
	}
	last := candles[len(candles)-1]
	if used, ok := s.used[asset]; ok && !last.Ts.After(used) {
		return Signal{}, false
	}

	var dir order.Direction
	switch {
	case last.Bullish():
		dir = order.DirectionLong
	case last.Bearish():
		dir = order.DirectionShort
	default:
		return Signal{}, false
	}

	regime := s.data.Regime(asset)
	if regime == market.RegimeHighVol {
		return Signal{}, false
	}
	if s.trendOnly {
		if regime == market.RegimeTrendUp && dir != order.DirectionLong {
			return Signal{}, false
		}
		if regime == market.RegimeTrendDown && dir != order.DirectionShort {
			return Signal{}, false
		}
		if regime == market.RegimeCalm {
			return Signal{}, false
		}
	}

	price, err := s.data.LatestClose(asset)
	if err != nil {
		return Signal{}, false
	}
	s.used[asset] = last.Ts
	return Signal{
		Asset:     asset,
		Direction: dir,
		Regime:    regime.String(),
		Reason:    "candle " + string(dir),
		Price:     price,
	}, true
}
