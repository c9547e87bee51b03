package sim

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"binary-trader-go/internal/engine"
	"binary-trader-go/market"
	"binary-trader-go/order"
	"binary-trader-go/posttrade"
	"binary-trader-go/risk"
)

// Runner 用模拟时钟把纸面券商 -> 行情 -> 引擎 -> 对账串起来，
// 每一步同步执行，结果可复现。
type Runner struct {
	Venue      *PaperVenue
	Market     *market.Service
	Reconciler *order.Reconciler
	Engine     *engine.TradingEngine
	Analyzer   *posttrade.Analyzer
	Breaker    *risk.CircuitBreaker // 可选

	cfg        RunnerConfig
	martingale *risk.Martingale

	mu       sync.Mutex
	now      time.Time
	lastPoll time.Time
	steps    int
}

// Report 模拟结束时的汇总
type Report struct {
	Steps          int
	Opened         int64
	Reinforcements int64
	Resolved       int64
	Wins           int64
	Losses         int64
	Draws          int64
	Rejected       int64
	Pending        int
	MartingaleStep int
	NetProfit      decimal.Decimal
	MaxDrawdown    decimal.Decimal
	Stats          posttrade.Stats
}

// Now 模拟时钟
func (r *Runner) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// Step 推进一个 tick：行情与到期结算，到点时执行一轮对账，最后驱动引擎。
func (r *Runner) Step(ctx context.Context) engine.TickAction {
	r.mu.Lock()
	r.now = r.now.Add(r.cfg.TickInterval)
	now := r.now
	poll := now.Sub(r.lastPoll) >= r.cfg.PollInterval
	if poll {
		r.lastPoll = now
	}
	r.steps++
	r.mu.Unlock()

	r.Venue.Step(now)
	if poll {
		r.Reconciler.Reconcile(ctx)
	}
	return r.Engine.Tick(ctx, now)
}

// Run 执行 steps 步，ctx 取消时提前结束。
func (r *Runner) Run(ctx context.Context, steps int) Report {
	for i := 0; i < steps; i++ {
		if ctx.Err() != nil {
			break
		}
		r.Step(ctx)
	}
	return r.Report()
}

// Drain 停止开仓后继续推进时钟，直到所有在途订单结算或超过 maxSteps。
func (r *Runner) Drain(ctx context.Context, maxSteps int) Report {
	if r.Engine.GetState() == engine.StateRunning {
		_ = r.Engine.Pause()
	}
	for i := 0; i < maxSteps; i++ {
		if ctx.Err() != nil {
			break
		}
		if _, active := r.Engine.ActiveOrder(); !active && r.Reconciler.Pending() == 0 {
			break
		}
		r.Step(ctx)
	}
	return r.Report()
}

// Report 当前汇总
func (r *Runner) Report() Report {
	es := r.Engine.GetStatistics()
	st := r.Analyzer.Stats()
	r.mu.Lock()
	steps := r.steps
	r.mu.Unlock()
	return Report{
		Steps:          steps,
		Opened:         es.TotalOpened,
		Reinforcements: es.Reinforcements,
		Resolved:       es.Resolved,
		Wins:           es.Wins,
		Losses:         es.Losses,
		Draws:          es.Draws,
		Rejected:       es.Rejected,
		Pending:        r.Reconciler.Pending(),
		MartingaleStep: r.martingale.Step(),
		NetProfit:      st.NetProfit,
		MaxDrawdown:    st.MaxDrawdown,
		Stats:          st,
	}
}
