package strategy

import (
	"errors"
	"time"
)

// SignalType 信号源类型
type SignalType string

const (
	SignalCandle SignalType = "candle"
	SignalTrend  SignalType = "trend"
)

// SignalConfig 信号源配置
type SignalConfig struct {
	Type     SignalType
	Assets   []string
	MaxStale time.Duration
}

// SignalFactory creates signal sources based on configuration.
type SignalFactory struct {
	data CandleData
}

// NewSignalFactory creates a new SignalFactory.
func NewSignalFactory(data CandleData) *SignalFactory {
	return &SignalFactory{data: data}
}

// Create 按类型创建信号源
func (f *SignalFactory) Create(cfg SignalConfig) (SignalSource, error) {
	if f.data == nil {
		return nil, errors.New("signal factory: nil market data")
	}
	if len(cfg.Assets) == 0 {
		return nil, errors.New("signal factory: no assets")
	}
	switch cfg.Type {
	case SignalCandle, "":
		return NewCandleSignal(f.data, cfg.Assets, cfg.MaxStale, false), nil
	case SignalTrend:
		return NewCandleSignal(f.data, cfg.Assets, cfg.MaxStale, true), nil
	default:
		return nil, errors.New("unknown signal type: " + string(cfg.Type))
	}
}
