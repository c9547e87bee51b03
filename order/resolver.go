package order

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrSlotOccupied 已有活动订单时不能再开主单
var ErrSlotOccupied = errors.New("active order slot occupied")

// Active 活动订单及其生命周期。
type Active struct {
	Order          Order
	lifecycle      Lifecycle
	Reinforcements []string // 本轮生命周期内开出的加仓单
}

// State 生命周期状态
func (a *Active) State() LifecycleState { return a.lifecycle.State() }

// Reinforced 是否已加仓
func (a *Active) Reinforced() bool { return a.lifecycle.Reinforced() }

// CanReinforce 是否还允许加仓
func (a *Active) CanReinforce() bool { return a.lifecycle.CanReinforce() }

// MarkReinforced 记录一次加仓；第二次调用返回 ErrIllegalTransition。
func (a *Active) MarkReinforced(reinforcementID string) error {
	if err := a.lifecycle.Transition(StateReinforced); err != nil {
		return err
	}
	if reinforcementID != "" {
		a.Reinforcements = append(a.Reinforcements, reinforcementID)
	}
	return nil
}

// Session 主循环持有的活动订单槽位，只由主循环访问，不加锁。
type Session struct {
	active *Active
}

// NewSession 创建空槽位。
func NewSession() *Session { return &Session{} }

// Open 占用槽位。
func (s *Session) Open(o Order) error {
	if s.active != nil {
		return ErrSlotOccupied
	}
	s.active = &Active{Order: o, lifecycle: NewLifecycle()}
	return nil
}

// Active 返回当前活动订单。
func (s *Session) Active() (*Active, bool) {
	return s.active, s.active != nil
}

// HasActive 槽位是否被占用。
func (s *Session) HasActive() bool { return s.active != nil }

// Release 释放槽位，生命周期进入 RESOLVED。
func (s *Session) Release() (Order, bool) {
	if s.active == nil {
		return Order{}, false
	}
	a := s.active
	_ = a.lifecycle.Transition(StateResolved)
	s.active = nil
	return a.Order, true
}

// ResolverConfig 结果解析器配置
type ResolverConfig struct {
	Grace        Grace
	QueryTimeout time.Duration // 单次权威查询上限，默认 500ms
	Logger       *zap.Logger
	Metrics      Recorder
	Alerter      Alerter
}

// Resolver 主循环每个 tick 调用一次，负责活动订单的终态判定。
type Resolver struct {
	checker Checker
	rec     *Reconciler
	cfg     ResolverConfig
	logger  *zap.Logger
}

// NewResolver 创建解析器。checker 为 nil 时只依赖超时与其他确认路径。
func NewResolver(checker Checker, rec *Reconciler, cfg ResolverConfig) *Resolver {
	cfg.Grace = cfg.Grace.withDefaults()
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.Alerter == nil {
		cfg.Alerter = nopAlerter{}
	}
	return &Resolver{
		checker: checker,
		rec:     rec,
		cfg:     cfg,
		logger:  cfg.Logger.Named("resolver"),
	}
}

// Grace 当前宽限配置
func (r *Resolver) Grace() Grace { return r.cfg.Grace }

// PollActiveOrder 检查活动订单是否已有终态。
// 返回 false 表示订单仍在正常结算窗口内；返回 true 时槽位已经释放。
func (r *Resolver) PollActiveOrder(ctx context.Context, s *Session, now time.Time) (ResolvedResult, bool) {
	act, ok := s.Active()
	if !ok {
		return ResolvedResult{}, false
	}
	o := act.Order

	// 推送或轮询路径已经结算
	if res, ok := r.rec.TakeSettled(o.ID); ok {
		s.Release()
		r.logger.Debug("active order settled by another path",
			zap.String("order_id", o.ID),
			zap.String("source", string(res.Source)))
		return res, true
	}

	var ev Event
	answer := r.check(ctx, o)
	if answer.Present() {
		if answer.Kind == AnswerMalformed {
			r.logger.Warn("malformed check answer, settling as loss",
				zap.String("order_id", o.ID),
				zap.String("raw", answer.Raw))
		}
		ce := EventFromCheck(answer).(CheckEvent)
		if ce.CloseTime.IsZero() {
			ce.CloseTime = now
		}
		ev = ce
	} else {
		tier := r.cfg.Grace.Escalate(now.Sub(o.OpenedAt), o.Duration)
		if tier == EscalationNone {
			return ResolvedResult{}, false
		}
		ev = TimeoutEvent{Tier: tier, At: now}
	}

	res, resolved := r.rec.Resolve(ctx, o.ID, ev)
	switch {
	case resolved:
		// 自己结算的结果不需要留给别人
		r.rec.TakeSettled(o.ID)
		if te, ok := ev.(TimeoutEvent); ok {
			r.cfg.Metrics.RecordForced(te.Tier.String())
			r.logEscalation(o, te.Tier, now)
		}
	default:
		if settled, ok := r.rec.TakeSettled(o.ID); ok {
			res = settled
		} else {
			// 表中从未登记或记录已淘汰，只在本地计算，不再写入存储
			res = ev.normalize(o, now)
			r.logger.Warn("active order missing from pending table",
				zap.String("order_id", o.ID),
				zap.String("outcome", string(res.Outcome)))
		}
	}

	s.Release()
	return res, true
}

// check 一次有界的权威查询，任何错误都视为本轮无结果。
func (r *Resolver) check(ctx context.Context, o Order) Answer {
	if r.checker == nil || o.Ref == "" {
		return NoAnswer()
	}
	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	answer, err := r.checker.CheckResult(qctx, o.Ref)
	r.cfg.Metrics.RecordQueryLatency("check", time.Since(start))
	if err != nil {
		r.cfg.Metrics.RecordQueryError("check")
		r.logger.Debug("check query failed",
			zap.String("order_id", o.ID),
			zap.Error(err))
		return NoAnswer()
	}
	return answer
}

// logEscalation 只决定日志级别与告警，结果一律为亏损。
func (r *Resolver) logEscalation(o Order, tier Escalation, now time.Time) {
	fields := []zap.Field{
		zap.String("order_id", o.ID),
		zap.String("asset", o.Asset),
		zap.String("tier", tier.String()),
		zap.Duration("elapsed", now.Sub(o.OpenedAt)),
		zap.Duration("duration", o.Duration),
		zap.String("stake", o.Stake.String()),
	}
	switch tier {
	case EscalationNormal:
		r.logger.Info("no confirmation after expiry, forced loss", fields...)
	case EscalationSoft:
		r.logger.Warn("confirmation overdue, forced loss", fields...)
	default:
		r.logger.Error("confirmation missing past hard timeout, forced loss", fields...)
		if err := r.cfg.Alerter.SendError("active order forced to loss after hard timeout", map[string]interface{}{
			"order_id": o.ID,
			"asset":    o.Asset,
			"stake":    o.Stake.String(),
		}); err != nil {
			r.logger.Warn("Failed to send alert", zap.Error(err))
		}
	}
}
