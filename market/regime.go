package market

import "math"

// MarketRegime 市场状态
type MarketRegime int

const (
	RegimeCalm MarketRegime = iota
	RegimeTrendUp
	RegimeTrendDown
	RegimeHighVol
)

// String 写入记录的 regime 标签：趋势统一记为 trend，震荡记为 range。
func (r MarketRegime) String() string {
	switch r {
	case RegimeTrendUp, RegimeTrendDown:
		return "trend"
	case RegimeHighVol:
		return "high_vol"
	default:
		return "range"
	}
}

// RegimeDetector 根据波动率与长短均线偏离判断市场状态
type RegimeDetector struct {
	volThresholdHigh        float64
	priceDeviationThreshold float64
	shortMA                 []float64
	longMA                  []float64
	shortWindow             int
	longWindow              int
}

// NewRegimeDetector creates a new regime detector
func NewRegimeDetector(volThresholdHigh, priceDeviationThreshold float64, shortWindow, longWindow int) *RegimeDetector {
	if shortWindow <= 0 {
		shortWindow = 5
	}
	if longWindow < shortWindow {
		longWindow = shortWindow * 4
	}
	return &RegimeDetector{
		volThresholdHigh:        volThresholdHigh,
		priceDeviationThreshold: priceDeviationThreshold,
		shortMA:                 make([]float64, 0, shortWindow),
		longMA:                  make([]float64, 0, longWindow),
		shortWindow:             shortWindow,
		longWindow:              longWindow,
	}
}

// AddPrice adds a new price for moving average calculation
func (r *RegimeDetector) AddPrice(price float64) {
	r.shortMA = append(r.shortMA, price)
	if len(r.shortMA) > r.shortWindow {
		r.shortMA = r.shortMA[1:]
	}
	r.longMA = append(r.longMA, price)
	if len(r.longMA) > r.longWindow {
		r.longMA = r.longMA[1:]
	}
}

// DetectRegime 波动率超过上限为 HighVol；均线数据足够且偏离超过阈值为趋势；否则 Calm。
func (r *RegimeDetector) DetectRegime(volatility float64) MarketRegime {
	if r.volThresholdHigh > 0 && volatility > r.volThresholdHigh {
		return RegimeHighVol
	}
	if len(r.longMA) < r.longWindow || len(r.shortMA) < r.shortWindow {
		return RegimeCalm
	}

	longAvg := mean(r.longMA)
	shortAvg := mean(r.shortMA)
	if longAvg == 0 {
		return RegimeCalm
	}
	deviation := math.Abs(shortAvg-longAvg) / longAvg
	if deviation > r.priceDeviationThreshold {
		if shortAvg > longAvg {
			return RegimeTrendUp
		}
		return RegimeTrendDown
	}
	return RegimeCalm
}

// IsTrendRegime checks if the current regime is a trend regime
func (r *RegimeDetector) IsTrendRegime(regime MarketRegime) bool {
	return regime == RegimeTrendUp || regime == RegimeTrendDown
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
