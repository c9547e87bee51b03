package market

import (
	"math"
	"time"
)

// VolatilityCalculator 基于收盘价计算窗口内的已实现波动率。
type VolatilityCalculator struct {
	windowSize int
	prices     []float64
	times      []time.Time
}

// NewVolatilityCalculator creates a new volatility calculator
func NewVolatilityCalculator(windowSize int) *VolatilityCalculator {
	if windowSize < 2 {
		windowSize = 2
	}
	return &VolatilityCalculator{
		windowSize: windowSize,
		prices:     make([]float64, 0, windowSize),
		times:      make([]time.Time, 0, windowSize),
	}
}

// AddPrice 加入一个价格，只保留最近 windowSize 个
func (v *VolatilityCalculator) AddPrice(price float64, ts time.Time) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	v.prices = append(v.prices, price)
	v.times = append(v.times, ts)
	if len(v.prices) > v.windowSize {
		v.prices = v.prices[1:]
		v.times = v.times[1:]
	}
}

// RealizedVol 对数收益率的标准差（不做年化）
func (v *VolatilityCalculator) RealizedVol() float64 {
	if len(v.prices) < 2 {
		return 0
	}
	logReturns := make([]float64, 0, len(v.prices)-1)
	for i := 1; i < len(v.prices); i++ {
		logReturns = append(logReturns, math.Log(v.prices[i]/v.prices[i-1]))
	}

	mean := 0.0
	for _, r := range logReturns {
		mean += r
	}
	mean /= float64(len(logReturns))

	variance := 0.0
	for _, r := range logReturns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(logReturns))
	return math.Sqrt(variance)
}

// IsReady checks if we have enough data to calculate volatility
func (v *VolatilityCalculator) IsReady() bool {
	return len(v.prices) >= 2
}
