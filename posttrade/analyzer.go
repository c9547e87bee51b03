package posttrade

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"binary-trader-go/order"
)

// Stats 会话统计
type Stats struct {
	Opened        int
	Total         int
	Wins          int
	Losses        int
	Draws         int
	Forced        int
	Reinforcement int
	WinRate       float64
	NetProfit     decimal.Decimal
	GrossWon      decimal.Decimal
	GrossLost     decimal.Decimal
	PeakProfit    decimal.Decimal
	MaxDrawdown   decimal.Decimal
	ByAsset       map[string]AssetStats
}

// AssetStats 单个标的的统计
type AssetStats struct {
	Total     int
	Wins      int
	NetProfit decimal.Decimal
}

// Analyzer 从结果记录累计会话盈亏，本身实现 order.ResultSink，
// 同时作为 risk.PnLGuard 的盈亏来源。
type Analyzer struct {
	mu    sync.RWMutex
	stats Stats
	cum   decimal.Decimal
}

// NewAnalyzer creates a new post-trade analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{stats: Stats{ByAsset: make(map[string]AssetStats)}}
}

// Persist 累计一条记录，OPEN 只计数。
func (a *Analyzer) Persist(_ context.Context, rec order.Record) error {
	a.Add(rec)
	return nil
}

// Add 累计一条记录
func (a *Analyzer) Add(rec order.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if rec.Status == order.StatusOpen {
		a.stats.Opened++
		return
	}

	s := &a.stats
	s.Total++
	if rec.Kind == order.KindReinforcement {
		s.Reinforcement++
	}
	if rec.Source == order.SourceTimeout {
		s.Forced++
	}
	switch rec.Outcome {
	case order.OutcomeWin:
		s.Wins++
		s.GrossWon = s.GrossWon.Add(rec.Profit)
	case order.OutcomeLoss:
		s.Losses++
		s.GrossLost = s.GrossLost.Add(rec.Profit.Abs())
	case order.OutcomeDraw:
		s.Draws++
	}
	a.cum = a.cum.Add(rec.Profit)
	s.NetProfit = a.cum
	if a.cum.GreaterThan(s.PeakProfit) {
		s.PeakProfit = a.cum
	}
	if dd := s.PeakProfit.Sub(a.cum); dd.GreaterThan(s.MaxDrawdown) {
		s.MaxDrawdown = dd
	}
	if decided := s.Wins + s.Losses; decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided)
	}

	as := s.ByAsset[rec.Asset]
	as.Total++
	if rec.Outcome == order.OutcomeWin {
		as.Wins++
	}
	as.NetProfit = as.NetProfit.Add(rec.Profit)
	s.ByAsset[rec.Asset] = as
}

// NetProfit 当前累计净盈亏
func (a *Analyzer) NetProfit() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cum
}

// Stats computes and returns statistics
func (a *Analyzer) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := a.stats
	out.ByAsset = make(map[string]AssetStats, len(a.stats.ByAsset))
	for k, v := range a.stats.ByAsset {
		out.ByAsset[k] = v
	}
	return out
}

// Reset 清空统计（例如跨日重置）
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = Stats{ByAsset: make(map[string]AssetStats)}
	a.cum = decimal.Zero
}
