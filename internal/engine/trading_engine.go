package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"binary-trader-go/infrastructure/logger"
	"binary-trader-go/order"
	"binary-trader-go/risk"
	"binary-trader-go/strategy"
)

// EngineState 引擎状态
type EngineState int

const (
	// StateIdle 空闲状态
	StateIdle EngineState = iota
	// StateRunning 运行状态
	StateRunning
	// StatePaused 暂停状态：仍然结算活动订单，但不再开新单与加仓
	StatePaused
	// StateStopped 停止状态
	StateStopped
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// TickAction 单个 tick 实际做了什么
type TickAction int

const (
	ActionNone TickAction = iota
	ActionResolved
	ActionReinforced
	ActionOpened
	ActionRejected
	ActionSkipped
)

func (a TickAction) String() string {
	switch a {
	case ActionResolved:
		return "resolved"
	case ActionReinforced:
		return "reinforced"
	case ActionOpened:
		return "opened"
	case ActionRejected:
		return "rejected"
	case ActionSkipped:
		return "skipped"
	default:
		return "none"
	}
}

// Config 引擎配置
type Config struct {
	Duration         time.Duration // 合约时长
	TickInterval     time.Duration // 主循环间隔
	ReinforceEnabled bool
	DefaultPayout    decimal.Decimal // 券商不提供报价时用于开仓前校验
}

// PriceSource 最新价，market.Service 满足。
type PriceSource interface {
	LatestClose(asset string) (float64, error)
}

// PayoutSource 标的当前赔率，纸面券商满足。
type PayoutSource interface {
	Payout(asset string) decimal.Decimal
}

// Metrics 引擎指标，monitor.Monitor 满足。
type Metrics interface {
	RecordOpened(kind string)
	RecordOpenRejected(reason string)
	RecordReinforcement()
	RecordRiskReject(reason string)
	UpdateMartingaleStep(step int)
	UpdateRealizedPnL(value float64)
}

type nopMetrics struct{}

func (nopMetrics) RecordOpened(string)       {}
func (nopMetrics) RecordOpenRejected(string) {}
func (nopMetrics) RecordReinforcement()      {}
func (nopMetrics) RecordRiskReject(string)   {}
func (nopMetrics) UpdateMartingaleStep(int)  {}
func (nopMetrics) UpdateRealizedPnL(float64) {}

// Components 引擎依赖组件
type Components struct {
	Venue       order.Opener
	Resolver    *order.Resolver
	Reconciler  *order.Reconciler
	Signals     strategy.SignalSource
	Prices      PriceSource
	Payouts     PayoutSource // 可选
	Martingale  *risk.Martingale
	Reinforcer  *strategy.Reinforcer
	Guard       risk.Guard // 可选
	Constraints order.ConstraintSet
	Sink        order.ResultSink // OPEN 记录
	PnL         risk.PnLSource   // 可选，用于已实现盈亏指标
	Metrics     Metrics
	Logger      *logger.Logger
	Now         func() time.Time
}

// TradingEngine 单槽位交易引擎：每个 tick 先结算活动订单，
// 空闲 tick 评估加仓，无活动订单时按信号开新单。
type TradingEngine struct {
	config Config

	venue       order.Opener
	resolver    *order.Resolver
	reconciler  *order.Reconciler
	signals     strategy.SignalSource
	prices      PriceSource
	payouts     PayoutSource
	martingale  *risk.Martingale
	reinforcer  *strategy.Reinforcer
	guard       risk.Guard
	constraints order.ConstraintSet
	sink        order.ResultSink
	pnl         risk.PnLSource
	metrics     Metrics
	logger      *logger.Logger
	now         func() time.Time

	// tickMu 串行化 tick；session 只在 tick 内访问
	tickMu  sync.Mutex
	session *order.Session

	// 状态
	state EngineState
	mu    sync.RWMutex
	// Arm 进入的 RUNNING 没有内部循环
	looping bool

	// 控制通道
	stopChan chan struct{}
	doneChan chan struct{}

	// 统计信息
	stats Statistics
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime      time.Time
	TotalTicks     int64
	TotalOpened    int64
	Reinforcements int64
	Resolved       int64
	Wins           int64
	Losses         int64
	Draws          int64
	Rejected       int64
	TotalErrors    int64
	LastTickTime   time.Time
	LastOpenTime   time.Time
	LastResult     order.ResolvedResult
	mu             sync.RWMutex
}

// New 创建交易引擎
func New(cfg Config, c Components) (*TradingEngine, error) {
	if err := validateComponents(c); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Minute
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.DefaultPayout.IsZero() {
		cfg.DefaultPayout = decimal.RequireFromString("1.8")
	}
	if c.Metrics == nil {
		c.Metrics = nopMetrics{}
	}
	if c.Guard == nil {
		c.Guard = risk.MultiGuard{}
	}
	if c.Reinforcer == nil {
		c.Reinforcer = strategy.NewReinforcer(0)
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}

	return &TradingEngine{
		config:      cfg,
		venue:       c.Venue,
		resolver:    c.Resolver,
		reconciler:  c.Reconciler,
		signals:     c.Signals,
		prices:      c.Prices,
		payouts:     c.Payouts,
		martingale:  c.Martingale,
		reinforcer:  c.Reinforcer,
		guard:       c.Guard,
		constraints: c.Constraints,
		sink:        c.Sink,
		pnl:         c.PnL,
		metrics:     c.Metrics,
		logger:      c.Logger,
		now:         c.Now,
		session:     order.NewSession(),
		state:       StateIdle,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}, nil
}

// Start 启动引擎
func (e *TradingEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle && e.state != StateStopped {
		e.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	// 如果从 StateStopped 复启，需要重建通道
	if e.state == StateStopped {
		e.stopChan = make(chan struct{})
		e.doneChan = make(chan struct{})
	}
	e.state = StateRunning
	e.looping = true
	e.mu.Unlock()

	e.stats.mu.Lock()
	e.stats.StartTime = e.now()
	e.stats.mu.Unlock()

	e.logger.Info("Trading engine starting",
		zap.Duration("tick_interval", e.config.TickInterval),
		zap.Duration("duration", e.config.Duration),
		zap.Bool("reinforce", e.config.ReinforceEnabled),
		zap.String("base_stake", e.martingale.Stake().String()),
		zap.Int("max_steps", e.martingale.MaxSteps()))

	go e.run(ctx)
	return nil
}

// Stop 停止引擎，不撤销在途订单：它们仍由对账器结算。
func (e *TradingEngine) Stop() error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil // 幂等：已停止则直接返回
	}
	if e.state != StateRunning && e.state != StatePaused {
		e.mu.Unlock()
		return fmt.Errorf("engine not running (state: %s)", e.state)
	}
	looping := e.looping
	e.mu.Unlock()

	e.logger.Info("Trading engine stopping...")

	if looping {
		select {
		case <-e.stopChan:
		default:
			close(e.stopChan)
		}

		select {
		case <-e.doneChan:
		case <-time.After(10 * time.Second):
			e.logger.Warn("Timeout waiting for engine to stop")
		}
	}

	e.mu.Lock()
	e.state = StateStopped
	e.looping = false
	e.mu.Unlock()

	if act, ok := e.activeOrder(); ok {
		e.logger.Warn("Engine stopped with an unresolved active order",
			zap.String("order_id", act.ID),
			zap.Time("expires_at", act.ExpiresAt()))
	}
	e.logger.Info("Trading engine stopped")
	return nil
}

// Arm 不启动内部循环，只进入 RUNNING，由外部时钟驱动 Tick（离线模拟使用）。
func (e *TradingEngine) Arm() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle && e.state != StateStopped {
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	e.state = StateRunning
	return nil
}

// Pause 暂停开仓
func (e *TradingEngine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return fmt.Errorf("engine not running (state: %s)", e.state)
	}
	e.state = StatePaused
	e.logger.Info("Trading engine paused")
	return nil
}

// Resume 恢复开仓
func (e *TradingEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePaused {
		return fmt.Errorf("engine not paused (state: %s)", e.state)
	}
	e.state = StateRunning
	e.logger.Info("Trading engine resumed")
	return nil
}

// run 主事件循环
func (e *TradingEngine) run(ctx context.Context) {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Context done, stopping engine")
			return
		case <-e.stopChan:
			e.logger.Info("Stop signal received")
			return
		case <-ticker.C:
			e.Tick(ctx, e.now())
		}
	}
}

// Tick 执行一次决策：结算 > 加仓 > 开仓，每个 tick 只做其中一件事。
// 任何券商错误都降级为本 tick 无动作，不会阻塞或中断主循环。
func (e *TradingEngine) Tick(ctx context.Context, now time.Time) TickAction {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.stats.mu.Lock()
	e.stats.TotalTicks++
	e.stats.LastTickTime = now
	e.stats.mu.Unlock()

	// 1. 结算活动订单
	if act, ok := e.session.Active(); ok {
		o := act.Order
		if res, done := e.resolver.PollActiveOrder(ctx, e.session, now); done {
			e.onResolved(o, res)
			return ActionResolved
		}
		if e.GetState() != StateRunning {
			return ActionSkipped
		}
		// 2. 空闲 tick：评估加仓
		if e.config.ReinforceEnabled && act.CanReinforce() {
			return e.tryReinforce(ctx, act, now)
		}
		return ActionNone
	}

	if e.GetState() != StateRunning {
		return ActionSkipped
	}
	// 3. 无活动订单：按信号开仓
	return e.tryOpen(ctx, now)
}

func (e *TradingEngine) onResolved(o order.Order, res order.ResolvedResult) {
	step := e.martingale.OnOutcome(string(res.Outcome))
	e.metrics.UpdateMartingaleStep(step)
	if e.pnl != nil {
		v, _ := e.pnl.NetProfit().Float64()
		e.metrics.UpdateRealizedPnL(v)
	}

	e.stats.mu.Lock()
	e.stats.Resolved++
	switch res.Outcome {
	case order.OutcomeWin:
		e.stats.Wins++
	case order.OutcomeLoss:
		e.stats.Losses++
	case order.OutcomeDraw:
		e.stats.Draws++
	}
	e.stats.LastResult = res
	e.stats.mu.Unlock()

	e.logger.LogTrade("primary_resolved", map[string]interface{}{
		"order_id":        o.ID,
		"asset":           o.Asset,
		"outcome":         string(res.Outcome),
		"profit":          res.Profit.String(),
		"source":          string(res.Source),
		"martingale_step": step,
		"next_stake":      e.martingale.Stake().String(),
	})
}

func (e *TradingEngine) tryReinforce(ctx context.Context, act *order.Active, now time.Time) TickAction {
	latest, err := e.prices.LatestClose(act.Order.Asset)
	if err != nil {
		e.logger.Debug("no price for reinforcement check",
			zap.String("asset", act.Order.Asset), zap.Error(err))
		return ActionNone
	}
	req, ok := e.reinforcer.MaybeReinforce(strategy.ReinforceInput{
		Order:             act.Order,
		AlreadyReinforced: act.Reinforced(),
		LatestPrice:       latest,
		Step:              e.martingale.Step(),
		MaxSteps:          e.martingale.MaxSteps(),
		Stake:             e.martingale.Stake(),
		Payout:            e.payoutFor(act.Order.Asset, act.Order.Payout),
	})
	if !ok {
		return ActionNone
	}

	o, err := e.open(ctx, req, now)
	if err != nil {
		// 加仓失败不消耗一次性机会，下一个空闲 tick 重新评估
		e.logger.Warn("Reinforcement open failed",
			zap.String("primary_id", act.Order.ID),
			zap.Error(err))
		return ActionRejected
	}
	if err := act.MarkReinforced(o.ID); err != nil {
		e.logger.Error("Failed to mark reinforcement", zap.String("order_id", act.Order.ID), zap.Error(err))
	}
	e.metrics.RecordReinforcement()
	e.stats.mu.Lock()
	e.stats.Reinforcements++
	e.stats.mu.Unlock()
	e.logger.Info("Reinforcement opened",
		zap.String("primary_id", act.Order.ID),
		zap.String("order_id", o.ID),
		zap.String("direction", string(o.Direction)),
		zap.Float64("primary_entry", act.Order.EntryPrice),
		zap.Float64("latest", latest),
		zap.String("stake", o.Stake.String()))
	return ActionReinforced
}

func (e *TradingEngine) tryOpen(ctx context.Context, now time.Time) TickAction {
	sig, ok := e.signals.Next(ctx, now)
	if !ok {
		return ActionNone
	}
	req := order.OpenRequest{
		Asset:      sig.Asset,
		Direction:  sig.Direction,
		Kind:       order.KindPrimary,
		Stake:      e.martingale.Stake(),
		Payout:     e.payoutFor(sig.Asset, decimal.Zero),
		EntryPrice: sig.Price,
		Duration:   e.config.Duration,
		Regime:     sig.Regime,
		Reason:     sig.Reason,
	}
	o, err := e.open(ctx, req, now)
	if err != nil {
		return ActionRejected
	}
	if err := e.session.Open(*o); err != nil {
		// 槽位只在本 tick 内修改，不应出现
		e.logger.Error("Active slot occupied after open", zap.String("order_id", o.ID), zap.Error(err))
		return ActionRejected
	}
	e.logger.Info("Order opened",
		zap.String("order_id", o.ID),
		zap.String("asset", o.Asset),
		zap.String("direction", string(o.Direction)),
		zap.String("stake", o.Stake.String()),
		zap.String("payout", o.Payout.String()),
		zap.Float64("entry_price", o.EntryPrice),
		zap.Int("martingale_step", e.martingale.Step()))
	return ActionOpened
}

// open 风控与限额校验、下单、登记、写 OPEN 记录。
func (e *TradingEngine) open(ctx context.Context, req order.OpenRequest, now time.Time) (*order.Order, error) {
	limits := e.constraints.For(req.Asset)
	req.Stake = limits.Clamp(req.Stake)
	if err := limits.Validate(req.Stake, req.Payout); err != nil {
		e.reject("constraints", req, err)
		return nil, err
	}
	if err := e.guard.PreOpen(req.Asset, req.Stake); err != nil {
		e.metrics.RecordRiskReject(riskReason(err))
		e.logger.LogRisk("open_blocked", map[string]interface{}{
			"asset":  req.Asset,
			"kind":   string(req.Kind),
			"stake":  req.Stake.String(),
			"reason": err.Error(),
		})
		e.reject("risk", req, err)
		return nil, err
	}

	o, err := e.venue.OpenOrder(ctx, req)
	if err != nil || o == nil {
		if err == nil {
			err = errors.New("venue returned no order")
		}
		e.recordError()
		e.reject("venue", req, err)
		return nil, err
	}
	if o.OpenedAt.IsZero() {
		o.OpenedAt = now
	}
	if o.Kind == "" {
		o.Kind = req.Kind
	}

	if err := e.reconciler.Register(*o); err != nil {
		// 表中已有同 id：不可能出现重复开仓，记录后继续由槽位跟踪
		e.logger.Error("Failed to register order", zap.String("order_id", o.ID), zap.Error(err))
	}
	if e.sink != nil {
		if err := e.sink.Persist(ctx, order.NewOpenRecord(*o, now)); err != nil {
			e.logger.Error("Failed to persist open record", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	e.metrics.RecordOpened(string(o.Kind))
	e.stats.mu.Lock()
	e.stats.TotalOpened++
	e.stats.LastOpenTime = now
	e.stats.mu.Unlock()
	return o, nil
}

func (e *TradingEngine) reject(reason string, req order.OpenRequest, err error) {
	e.metrics.RecordOpenRejected(reason)
	e.stats.mu.Lock()
	e.stats.Rejected++
	e.stats.mu.Unlock()
	e.logger.Debug("Open rejected",
		zap.String("reason", reason),
		zap.String("asset", req.Asset),
		zap.String("kind", string(req.Kind)),
		zap.String("stake", req.Stake.String()),
		zap.Error(err))
}

func (e *TradingEngine) payoutFor(asset string, fallback decimal.Decimal) decimal.Decimal {
	if e.payouts != nil {
		if p := e.payouts.Payout(asset); p.GreaterThan(decimal.NewFromInt(1)) {
			return p
		}
	}
	if fallback.GreaterThan(decimal.NewFromInt(1)) {
		return fallback
	}
	return e.config.DefaultPayout
}

func riskReason(err error) string {
	switch {
	case errors.Is(err, risk.ErrStakeExceed):
		return "single_limit"
	case errors.Is(err, risk.ErrDailyExceed):
		return "daily_limit"
	case errors.Is(err, risk.ErrStopLoss), errors.Is(err, risk.ErrTakeProfit):
		return "pnl"
	case errors.Is(err, risk.ErrTooFrequent):
		return "frequency"
	case errors.Is(err, risk.ErrCircuitOpen):
		return "circuit"
	default:
		return "other"
	}
}

// recordError 记录错误
func (e *TradingEngine) recordError() {
	e.stats.mu.Lock()
	e.stats.TotalErrors++
	e.stats.mu.Unlock()
}

func (e *TradingEngine) activeOrder() (order.Order, bool) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	act, ok := e.session.Active()
	if !ok {
		return order.Order{}, false
	}
	return act.Order, true
}

// ActiveOrder 当前活动订单（只读副本）
func (e *TradingEngine) ActiveOrder() (order.Order, bool) {
	return e.activeOrder()
}

// UpdateMartingale 热更新倍投参数
func (e *TradingEngine) UpdateMartingale(cfg risk.MartingaleConfig) error {
	if err := e.martingale.Update(cfg); err != nil {
		return err
	}
	e.logger.Info("Martingale updated",
		zap.String("base_stake", cfg.BaseStake.String()),
		zap.String("multiplier", cfg.Multiplier.String()),
		zap.Int("max_steps", cfg.MaxSteps))
	return nil
}

// SetReinforceEnabled 热更新加仓开关
func (e *TradingEngine) SetReinforceEnabled(enabled bool) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.config.ReinforceEnabled = enabled
}

// GetState 获取引擎状态
func (e *TradingEngine) GetState() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetStatistics 获取统计信息
func (e *TradingEngine) GetStatistics() Statistics {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()
	return Statistics{
		StartTime:      e.stats.StartTime,
		TotalTicks:     e.stats.TotalTicks,
		TotalOpened:    e.stats.TotalOpened,
		Reinforcements: e.stats.Reinforcements,
		Resolved:       e.stats.Resolved,
		Wins:           e.stats.Wins,
		Losses:         e.stats.Losses,
		Draws:          e.stats.Draws,
		Rejected:       e.stats.Rejected,
		TotalErrors:    e.stats.TotalErrors,
		LastTickTime:   e.stats.LastTickTime,
		LastOpenTime:   e.stats.LastOpenTime,
		LastResult:     e.stats.LastResult,
	}
}

// validateComponents 验证组件
func validateComponents(c Components) error {
	if c.Venue == nil {
		return errors.New("venue is required")
	}
	if c.Resolver == nil || c.Reconciler == nil {
		return errors.New("resolver and reconciler are required")
	}
	if c.Signals == nil {
		return errors.New("signal source is required")
	}
	if c.Prices == nil {
		return errors.New("price source is required")
	}
	if c.Martingale == nil {
		return errors.New("martingale is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
