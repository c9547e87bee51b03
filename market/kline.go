package market

import "time"

// Kline OHLC 蜡烛，Ts 为周期起点。
type Kline struct {
	Asset string
	Open  float64
	High  float64
	Low   float64
	Close float64
	Ticks int
	Ts    time.Time
}

// Bullish 收盘高于开盘。
func (k Kline) Bullish() bool { return k.Close > k.Open }

// Bearish 收盘低于开盘。
func (k Kline) Bearish() bool { return k.Close < k.Open }

// Range 振幅
func (k Kline) Range() float64 { return k.High - k.Low }
