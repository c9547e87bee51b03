package order

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Recorder 结算相关指标。参数只用基础类型，指标实现不需要依赖本包。
type Recorder interface {
	RecordResolved(outcome, source string, profit float64)
	RecordForced(tier string)
	RecordDuplicate(source string)
	RecordQueryError(path string)
	RecordQueryLatency(path string, d time.Duration)
	RecordPushUnmatched()
	RecordPushAmbiguous()
	SetPending(n int)
}

// Alerter 告警出口，alert.Manager 满足该接口。
type Alerter interface {
	SendError(message string, fields map[string]interface{}) error
}

type nopRecorder struct{}

func (nopRecorder) RecordResolved(string, string, float64)   {}
func (nopRecorder) RecordForced(string)                      {}
func (nopRecorder) RecordDuplicate(string)                   {}
func (nopRecorder) RecordQueryError(string)                  {}
func (nopRecorder) RecordQueryLatency(string, time.Duration) {}
func (nopRecorder) RecordPushUnmatched()                     {}
func (nopRecorder) RecordPushAmbiguous()                     {}
func (nopRecorder) SetPending(int)                           {}

type nopAlerter struct{}

func (nopAlerter) SendError(string, map[string]interface{}) error { return nil }

// ReconcilerConfig 对账器配置
type ReconcilerConfig struct {
	Interval     time.Duration // 轮询间隔，默认 3s
	MatchWindow  time.Duration // 推送匹配窗口，默认 ±2s
	HardGrace    time.Duration // 到期后强制结算的宽限，默认 15s
	ExpirySlack  time.Duration // 距到期不足该值即开始查询，默认 0.5s
	QueryTimeout time.Duration // 单次查询超时，默认 2s

	Logger  *zap.Logger
	Metrics Recorder
	Alerter Alerter
	Now     func() time.Time
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.Interval <= 0 {
		c.Interval = 3 * time.Second
	}
	if c.MatchWindow <= 0 {
		c.MatchWindow = 2 * time.Second
	}
	if c.HardGrace <= 0 {
		c.HardGrace = DefaultGrace().Hard
	}
	if c.ExpirySlack <= 0 {
		c.ExpirySlack = 500 * time.Millisecond
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = nopRecorder{}
	}
	if c.Alerter == nil {
		c.Alerter = nopAlerter{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Reconciler 订单结算器：推送、轮询、超时三条路径竞争同一张待确认表，
// 每笔订单只产生一次终态并写入存储一次。
type Reconciler struct {
	table  *PendingTable
	poller Poller
	sink   ResultSink
	cfg    ReconcilerConfig
	logger *zap.Logger

	running atomic.Bool
	started atomic.Bool
	wake    chan struct{}

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex
	// 统计信息
	totalPasses   int64
	resolved      int64
	pushMatched   int64
	pushUnmatched int64
	forced        int64
	duplicates    int64
	queryErrors   int64
	lastPassTime  time.Time
}

// NewReconciler 创建结算器。poller 可为 nil（只依赖推送与超时）。
func NewReconciler(table *PendingTable, poller Poller, sink ResultSink, cfg ReconcilerConfig) *Reconciler {
	if table == nil {
		table = NewPendingTable()
	}
	if sink == nil {
		sink = discardSink{}
	}
	cfg = cfg.withDefaults()
	return &Reconciler{
		table:    table,
		poller:   poller,
		sink:     sink,
		cfg:      cfg,
		logger:   cfg.Logger.Named("reconciler"),
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Table 返回底层待确认表。
func (r *Reconciler) Table() *PendingTable { return r.table }

// Register 登记新开订单并唤醒轮询循环。
func (r *Reconciler) Register(o Order) error {
	if err := r.table.Register(o); err != nil {
		return err
	}
	r.cfg.Metrics.SetPending(r.table.Len())
	r.logger.Debug("order registered",
		zap.String("order_id", o.ID),
		zap.String("ref", o.Ref),
		zap.String("asset", o.Asset),
		zap.Time("opened_at", o.OpenedAt))
	r.Wake()
	return nil
}

// Wake 提前触发一轮轮询（非阻塞）。
func (r *Reconciler) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pending 当前未结算订单数。
func (r *Reconciler) Pending() int { return r.table.Len() }

// TakeSettled 取出由其他路径结算的结果。
func (r *Reconciler) TakeSettled(id string) (ResolvedResult, bool) {
	return r.table.TakeSettled(id)
}

// Resolve 用事件结算订单。订单不存在或已结算时返回 false（no-op）。
func (r *Reconciler) Resolve(ctx context.Context, id string, ev Event) (ResolvedResult, bool) {
	o, res, ok := r.table.settle(id, ev, r.cfg.Now())
	if !ok {
		r.noteDuplicate(id, ev.Source())
		return ResolvedResult{}, false
	}
	r.emit(ctx, o, res)
	return res, true
}

// HandlePush 处理券商推送的平仓事件。
func (r *Reconciler) HandlePush(ctx context.Context, ev PushEvent) (ResolvedResult, bool) {
	o, res, candidates, ok := r.table.settlePush(ev, r.cfg.MatchWindow, r.cfg.Now())
	if !ok {
		r.mu.Lock()
		r.pushUnmatched++
		r.mu.Unlock()
		r.cfg.Metrics.RecordPushUnmatched()
		r.logger.Debug("push event matched no pending order",
			zap.String("ref", ev.Ref),
			zap.String("asset", ev.Asset),
			zap.Time("close_time", ev.CloseTime),
			zap.String("outcome", ev.RawOutcome))
		return ResolvedResult{}, false
	}
	if candidates > 1 {
		r.cfg.Metrics.RecordPushAmbiguous()
		r.logger.Warn("push event matched several pending orders, taking the earliest",
			zap.String("order_id", o.ID),
			zap.Int("candidates", candidates),
			zap.Time("close_time", ev.CloseTime))
	}
	r.mu.Lock()
	r.pushMatched++
	r.mu.Unlock()
	r.emit(ctx, o, res)
	return res, true
}

func (r *Reconciler) noteDuplicate(id string, src Source) {
	r.mu.Lock()
	r.duplicates++
	r.mu.Unlock()
	r.cfg.Metrics.RecordDuplicate(string(src))
	r.logger.Debug("resolution ignored, order already settled",
		zap.String("order_id", id),
		zap.String("source", string(src)))
}

// emit 在表锁之外写入存储；写入失败只记录日志。
func (r *Reconciler) emit(ctx context.Context, o Order, res ResolvedResult) {
	r.mu.Lock()
	r.resolved++
	r.mu.Unlock()

	profit, _ := res.Profit.Float64()
	r.cfg.Metrics.RecordResolved(string(res.Outcome), string(res.Source), profit)
	r.cfg.Metrics.SetPending(r.table.Len())

	r.logger.Info("order resolved",
		zap.String("order_id", res.OrderID),
		zap.String("asset", o.Asset),
		zap.String("kind", string(o.Kind)),
		zap.String("outcome", string(res.Outcome)),
		zap.String("profit", res.Profit.String()),
		zap.String("source", string(res.Source)),
		zap.Float64("duration_sec", res.DurationSec()))

	rec := NewCloseRecord(o, res, r.cfg.Now())
	if err := r.sink.Persist(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error("Failed to persist result",
			zap.String("order_id", res.OrderID),
			zap.Error(err))
	}
}

// Start 启动后台轮询。
func (r *Reconciler) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("reconciler already started")
	}
	r.running.Store(true)
	go r.pollLoop(ctx)
	r.logger.Info("reconciler started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("match_window", r.cfg.MatchWindow))
	return nil
}

// Stop 停止轮询。正在进行的查询会完成，结果若已被其他路径结算则被丢弃。
func (r *Reconciler) Stop() error {
	r.running.Store(false)
	r.stopOnce.Do(func() { close(r.stopChan) })
	if r.started.Load() {
		<-r.doneChan
	}
	return nil
}

// Running 轮询循环是否在运行。
func (r *Reconciler) Running() bool { return r.running.Load() }

func (r *Reconciler) pollLoop(ctx context.Context) {
	defer close(r.doneChan)
	defer r.running.Store(false)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for r.running.Load() {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
		case <-r.wake:
		}
		if !r.running.Load() {
			return
		}
		r.Reconcile(ctx)
	}
}

// Reconcile 执行一轮轮询：到期前的订单跳过，超过硬超时的订单强制按亏损结算，
// 其余订单各查询一次。查询失败只计数，不中断本轮。
func (r *Reconciler) Reconcile(ctx context.Context) int {
	now := r.cfg.Now()
	r.mu.Lock()
	r.totalPasses++
	r.lastPassTime = now
	r.mu.Unlock()

	settled := 0
	for _, b := range r.table.Snapshot() {
		if b.Resolved {
			continue
		}
		o := b.Order
		expiry := o.ExpiresAt()
		if !now.Before(expiry.Add(r.cfg.HardGrace)) {
			if r.forceTimeout(ctx, o, now) {
				settled++
			}
			continue
		}
		if now.Before(expiry.Add(-r.cfg.ExpirySlack)) {
			continue
		}
		if r.poller == nil || o.Ref == "" {
			continue
		}
		if r.pollOne(ctx, o) {
			settled++
		}
	}
	return settled
}

func (r *Reconciler) pollOne(ctx context.Context, o Order) bool {
	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	answer, err := r.poller.PollResult(qctx, o.Ref)
	r.cfg.Metrics.RecordQueryLatency("poll", time.Since(start))
	if err != nil {
		r.mu.Lock()
		r.queryErrors++
		r.mu.Unlock()
		r.cfg.Metrics.RecordQueryError("poll")
		r.logger.Warn("poll query failed",
			zap.String("order_id", o.ID),
			zap.String("ref", o.Ref),
			zap.Error(err))
		return false
	}
	ev := EventFromPoll(answer)
	if ev == nil {
		return false
	}
	if answer.Kind == AnswerMalformed {
		r.logger.Warn("malformed poll answer, settling as loss",
			zap.String("order_id", o.ID),
			zap.String("raw", answer.Raw))
	}
	_, ok := r.Resolve(ctx, o.ID, ev)
	return ok
}

func (r *Reconciler) forceTimeout(ctx context.Context, o Order, now time.Time) bool {
	res, ok := r.Resolve(ctx, o.ID, TimeoutEvent{Tier: EscalationHard, At: now})
	if !ok {
		return false
	}
	r.mu.Lock()
	r.forced++
	r.mu.Unlock()
	r.cfg.Metrics.RecordForced(EscalationHard.String())
	r.logger.Error("order unconfirmed past hard timeout, forced loss",
		zap.String("order_id", o.ID),
		zap.String("asset", o.Asset),
		zap.Duration("duration", o.Duration),
		zap.String("profit", res.Profit.String()))
	if err := r.cfg.Alerter.SendError("order forced to loss after hard timeout", map[string]interface{}{
		"order_id": o.ID,
		"asset":    o.Asset,
		"stake":    o.Stake.String(),
	}); err != nil {
		r.logger.Warn("Failed to send alert", zap.Error(err))
	}
	return true
}

// ForceReconcile 立即执行一轮轮询（用于测试或紧急情况）
func (r *Reconciler) ForceReconcile(ctx context.Context) int {
	return r.Reconcile(ctx)
}

// ReconcilerStats 结算统计
type ReconcilerStats struct {
	TotalPasses   int64
	Resolved      int64
	PushMatched   int64
	PushUnmatched int64
	Forced        int64
	Duplicates    int64
	QueryErrors   int64
	Pending       int
	LastPassTime  time.Time
	Interval      time.Duration
}

// GetStatistics 获取统计信息
func (r *Reconciler) GetStatistics() ReconcilerStats {
	pending := r.table.Len()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ReconcilerStats{
		TotalPasses:   r.totalPasses,
		Resolved:      r.resolved,
		PushMatched:   r.pushMatched,
		PushUnmatched: r.pushUnmatched,
		Forced:        r.forced,
		Duplicates:    r.duplicates,
		QueryErrors:   r.queryErrors,
		Pending:       pending,
		LastPassTime:  r.lastPassTime,
		Interval:      r.cfg.Interval,
	}
}
