package market

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoData 该标的还没有任何报价
var ErrNoData = errors.New("no market data")

// ServiceConfig 行情服务配置
type ServiceConfig struct {
	CandleInterval   time.Duration // 默认 1m
	VolWindow        int           // 波动率窗口（根数），默认 20
	VolThresholdHigh float64       // 默认 0.01
	TrendDeviation   float64       // 默认 0.001
	ShortWindow      int           // 默认 5
	LongWindow       int           // 默认 20
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.CandleInterval <= 0 {
		c.CandleInterval = time.Minute
	}
	if c.VolWindow <= 1 {
		c.VolWindow = 20
	}
	if c.VolThresholdHigh <= 0 {
		c.VolThresholdHigh = 0.01
	}
	if c.TrendDeviation <= 0 {
		c.TrendDeviation = 0.001
	}
	if c.ShortWindow <= 0 {
		c.ShortWindow = 5
	}
	if c.LongWindow <= c.ShortWindow {
		c.LongWindow = 20
	}
	return c
}

type assetState struct {
	agg    *KlineAggregator
	vol    *VolatilityCalculator
	regime *RegimeDetector
	last   Tick
}

// Service 维护各标的最新报价与 K 线，并向订阅者广播。
type Service struct {
	pub    *Publisher
	cfg    ServiceConfig
	mu     sync.RWMutex
	assets map[string]*assetState
}

func NewService(pub *Publisher, cfg ServiceConfig) *Service {
	if pub == nil {
		pub = NewPublisher()
	}
	return &Service{
		pub:    pub,
		cfg:    cfg.withDefaults(),
		assets: make(map[string]*assetState),
	}
}

// Publisher 返回事件分发器
func (s *Service) Publisher() *Publisher { return s.pub }

// OnTick 更新报价，闭合的 K 线同时喂给波动率与状态检测并广播。
func (s *Service) OnTick(asset string, price float64, ts time.Time) {
	if asset == "" || price <= 0 {
		return
	}
	s.mu.Lock()
	st, ok := s.assets[asset]
	if !ok {
		st = &assetState{
			agg:    NewKlineAggregator(asset, s.cfg.CandleInterval),
			vol:    NewVolatilityCalculator(s.cfg.VolWindow),
			regime: NewRegimeDetector(s.cfg.VolThresholdHigh, s.cfg.TrendDeviation, s.cfg.ShortWindow, s.cfg.LongWindow),
		}
		s.assets[asset] = st
	}
	tick := Tick{Asset: asset, Price: price, Ts: ts}
	if ts.After(st.last.Ts) || st.last.Ts.IsZero() {
		st.last = tick
	}
	closed := st.agg.OnTick(price, ts)
	if closed != nil {
		st.vol.AddPrice(closed.Close, closed.Ts)
		st.regime.AddPrice(closed.Close)
	}
	s.mu.Unlock()

	s.pub.PublishTick(tick)
	if closed != nil {
		s.pub.PublishCandle(*closed)
	}
}

// LatestClose 最新成交价。
func (s *Service) LatestClose(asset string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.assets[asset]
	if !ok || st.last.Price <= 0 {
		return 0, fmt.Errorf("latest close %s: %w", asset, ErrNoData)
	}
	return st.last.Price, nil
}

// Candles 最近 n 根已闭合 K 线。
func (s *Service) Candles(asset string, n int) []Kline {
	s.mu.RLock()
	st, ok := s.assets[asset]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return st.agg.History(n)
}

// Regime 当前市场状态。
func (s *Service) Regime(asset string) MarketRegime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.assets[asset]
	if !ok {
		return RegimeCalm
	}
	return st.regime.DetectRegime(st.vol.RealizedVol())
}

// Staleness 返回距离上次报价的时间间隔；如无数据返回一年。
func (s *Service) Staleness(asset string, now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.assets[asset]
	if !ok || st.last.Ts.IsZero() {
		return time.Hour * 24 * 365
	}
	return now.Sub(st.last.Ts)
}

// Assets 已有报价的标的
func (s *Service) Assets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.assets))
	for a := range s.assets {
		out = append(out, a)
	}
	return out
}
