package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"binary-trader-go/config"
	"binary-trader-go/gateway"
	"binary-trader-go/infrastructure/alert"
	"binary-trader-go/infrastructure/logger"
	"binary-trader-go/infrastructure/monitor"
	"binary-trader-go/internal/engine"
	"binary-trader-go/internal/store"
	"binary-trader-go/market"
	"binary-trader-go/order"
	"binary-trader-go/posttrade"
	"binary-trader-go/risk"
	"binary-trader-go/sim"
	"binary-trader-go/strategy"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg     *config.AppConfig
	cfgPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 券商
	venue  order.Venue
	paper  *sim.PaperVenue // 纸面模式
	stream *gateway.PushStream

	// 存储
	sqlite   *store.SQLiteStore
	journal  *store.Journal
	analyzer *posttrade.Analyzer
	sink     order.ResultSink

	// 核心服务
	marketData *market.Service
	breaker    *risk.CircuitBreaker
	martingale *risk.Martingale
	reconciler *order.Reconciler
	engine     *engine.TradingEngine

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 读取配置文件创建 Container
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewFromConfig(cfg)
	c.cfgPath = configPath
	return c, nil
}

// NewFromConfig 使用已加载的配置创建 Container，不监听配置文件。
func NewFromConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       &cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildStore(); err != nil {
		return fmt.Errorf("build store failed: %w", err)
	}

	if err := c.buildGateway(); err != nil {
		return fmt.Errorf("build gateway failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully",
		zap.String("env", c.cfg.Env),
		zap.String("venue", c.cfg.Venue.Mode),
		zap.Strings("components", c.lifecycle.Names()))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())

	channels := []alert.Channel{alert.NewZapChannel("log", c.logger.Logger)}
	if c.cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookChannel("webhook", c.cfg.Alert.WebhookURL, 5*time.Second))
	}
	c.alerts = alert.NewManager(channels, c.cfg.Alert.Throttle)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildStore() error {
	c.analyzer = posttrade.NewAnalyzer()
	sinks := []order.ResultSink{c.analyzer}

	sc := c.cfg.Store
	if sc.SQLitePath != "" {
		db, err := store.OpenSQLite(sc.SQLitePath)
		if err != nil {
			return err
		}
		c.sqlite = db
		sinks = append(sinks, db)
	}
	if sc.CSVPath != "" || sc.JSONLPath != "" {
		j, err := store.OpenJournal(sc.CSVPath, sc.JSONLPath)
		if err != nil {
			return err
		}
		c.journal = j
		sinks = append(sinks, j)
	}
	sinks = append(sinks, order.SinkFunc(func(_ context.Context, rec order.Record) error {
		c.logger.LogRecord(rec)
		return nil
	}))
	c.sink = store.NewMultiSink(c.logger.Logger, sinks...)

	c.logger.Info("store built",
		zap.String("sqlite", sc.SQLitePath),
		zap.String("csv", sc.CSVPath),
		zap.String("jsonl", sc.JSONLPath))
	return nil
}

func (c *Container) buildGateway() error {
	vc := c.cfg.Venue
	var limiter gateway.RateLimiter
	if vc.RateLimit > 0 {
		limiter = gateway.NewTokenBucketLimiter(vc.RateLimit, vc.Burst)
	}

	switch vc.Mode {
	case "paper":
		p := vc.Paper
		c.paper = sim.NewPaperVenue(sim.PaperConfig{
			Assets:         c.cfg.Trading.Assets,
			StartPrice:     p.StartPrice,
			Volatility:     p.Volatility,
			Payout:         decimal.NewFromFloat(p.Payout),
			Seed:           p.Seed,
			PushDropRate:   p.PushDropRate,
			QueryErrorRate: p.QueryErrorRate,
			Latency:        p.Latency,
		})
		c.venue = gateway.NewLimitedVenue(c.paper, limiter)
	case "rest":
		c.venue = gateway.NewRESTVenue(vc.BaseURL, vc.APIKey, vc.APISecret, limiter)
	default:
		return fmt.Errorf("unknown venue mode %q", vc.Mode)
	}

	c.logger.Info("gateway built",
		zap.String("mode", vc.Mode),
		zap.Float64("rate_limit", vc.RateLimit))
	return nil
}

func (c *Container) buildCoreServices() error {
	tc := c.cfg.Trading
	c.marketData = market.NewService(market.NewPublisher(), market.ServiceConfig{})

	rc := c.cfg.Resolver
	grace := order.Grace{Normal: rc.NormalGrace, Soft: rc.SoftGrace, Hard: rc.HardGrace}
	wc := c.cfg.Watcher
	c.reconciler = order.NewReconciler(nil, c.venue, c.sink, order.ReconcilerConfig{
		Interval:     wc.PollInterval,
		MatchWindow:  wc.MatchWindow,
		HardGrace:    rc.HardGrace,
		ExpirySlack:  wc.ExpirySlack,
		QueryTimeout: rc.QueryTimeout,
		Logger:       c.logger.Logger,
		Metrics:      c.monitor,
		Alerter:      c.alerts,
	})
	resolver := order.NewResolver(c.venue, c.reconciler, order.ResolverConfig{
		Grace:        grace,
		QueryTimeout: rc.QueryTimeout,
		Logger:       c.logger.Logger,
		Metrics:      c.monitor,
		Alerter:      c.alerts,
	})

	// 推送流：rest 模式连接券商，纸面模式只用于解析纸面券商的帧
	c.stream = gateway.NewPushStream(gateway.PushStreamConfig{
		URL:     c.cfg.Venue.PushURL,
		Logger:  c.logger.Logger,
		Metrics: c.monitor,
	}, c.reconciler, c.marketData)
	c.stream.SetConnectedHandler(c.reconciler.Wake)
	c.stream.SetFatalErrorHandler(func(err error) {
		c.logger.LogError(err, map[string]interface{}{"component": "push_stream"})
		_ = c.alerts.SendCritical("push stream gave up reconnecting", map[string]interface{}{"error": err.Error()})
	})
	if c.paper != nil {
		c.paper.SetQuoteHandler(c.marketData)
		c.paper.SetPushSink(c.stream.HandleFrame)
	}

	var err error
	c.martingale, err = risk.NewMartingale(martingaleConfig(c.cfg.Martingale))
	if err != nil {
		return err
	}

	rk := c.cfg.Risk
	if rk.ShockPct1m > 0 || rk.ShockPct5m > 0 {
		c.breaker = risk.NewCircuitBreaker(rk.ShockPct1m, rk.ShockPct5m, rk.HaltCooldown, nil)
	}
	guard := risk.BuildGuards(risk.GuardConfig{
		SingleMax:       decimal.NewFromFloat(rk.SingleMax),
		DailyMax:        decimal.NewFromFloat(rk.DailyMax),
		StopLoss:        decimal.NewFromFloat(rk.StopLoss),
		TakeProfit:      decimal.NewFromFloat(rk.TakeProfit),
		MinOpenInterval: rk.MinOpenInterval,
	}, c.analyzer, c.breaker, nil)

	signals, err := strategy.NewSignalFactory(c.marketData).Create(strategy.SignalConfig{
		Type:     strategy.SignalType(tc.Signal),
		Assets:   tc.Assets,
		MaxStale: tc.MaxStale,
	})
	if err != nil {
		return err
	}

	var payouts engine.PayoutSource
	if c.paper != nil {
		payouts = c.paper
	}
	c.engine, err = engine.New(engine.Config{
		Duration:         tc.Duration,
		TickInterval:     tc.TickInterval,
		ReinforceEnabled: c.cfg.Reinforce.Enabled,
		DefaultPayout:    decimal.NewFromFloat(c.cfg.Venue.Paper.Payout),
	}, engine.Components{
		Venue:       c.venue,
		Resolver:    resolver,
		Reconciler:  c.reconciler,
		Signals:     signals,
		Prices:      c.marketData,
		Payouts:     payouts,
		Martingale:  c.martingale,
		Reinforcer:  strategy.NewReinforcer(c.cfg.Reinforce.AdversePct),
		Guard:       guard,
		Constraints: constraintSet(tc),
		Sink:        c.sink,
		PnL:         c.analyzer,
		Metrics:     c.monitor,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}

	c.logger.Info("core services built",
		zap.Strings("assets", tc.Assets),
		zap.String("signal", tc.Signal),
		zap.Duration("duration", tc.Duration))
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		})
	}

	c.lifecycle.Register(&funcComponent{
		name:  "reconciler",
		start: c.reconciler.Start,
		stop:  c.reconciler.Stop,
		health: func() error {
			if !c.reconciler.Running() {
				return errors.New("poll loop not running")
			}
			return nil
		},
	})

	if c.paper != nil {
		c.lifecycle.Register(&loopComponent{
			name:   "paper_venue",
			run:    c.runPaperVenue,
			logger: c.logger,
		})
	} else if c.cfg.Venue.PushURL != "" {
		c.lifecycle.Register(&funcComponent{
			name:  "push_stream",
			start: c.stream.Start,
			stop:  func() error { c.stream.Stop(); return nil },
		})
	}

	if c.breaker != nil {
		ticks := c.marketData.Publisher().SubscribeTicks(256)
		c.lifecycle.Register(&loopComponent{
			name:   "circuit_breaker",
			run:    func(ctx context.Context) { c.feedBreaker(ctx, ticks) },
			logger: c.logger,
		})
	}

	c.lifecycle.Register(&funcComponent{
		name:  "engine",
		start: c.engine.Start,
		stop:  c.engine.Stop,
		health: func() error {
			if s := c.engine.GetState(); s != engine.StateRunning && s != engine.StatePaused {
				return fmt.Errorf("engine %s", s)
			}
			return nil
		},
	})

	if c.cfgPath != "" {
		w := &config.Watcher{Path: c.cfgPath, Logger: c.logger.Logger}
		c.lifecycle.Register(&loopComponent{
			name: "config_watcher",
			run: func(ctx context.Context) {
				if err := w.Start(ctx, c.applyConfig); err != nil && !errors.Is(err, context.Canceled) {
					c.logger.Warn("config watcher stopped", zap.Error(err))
				}
			},
			logger: c.logger,
		})
	}
}

// runPaperVenue 纸面模式下按 tick 间隔推进价格并结算到期订单。
func (c *Container) runPaperVenue(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Trading.TickInterval)
	defer ticker.Stop()
	c.paper.Step(time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.paper.Step(now.UTC())
		}
	}
}

// feedBreaker 把行情送入熔断器，并维护风控暂停指标。
func (c *Container) feedBreaker(ctx context.Context, ticks <-chan market.Tick) {
	halted := make(map[string]time.Time)
	cooldown := c.cfg.Risk.HaltCooldown
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticks:
			if tripped, span := c.breaker.OnTick(t.Asset, risk.Tick{Price: t.Price, Ts: t.Ts}); tripped {
				halted[t.Asset] = t.Ts
				c.logger.LogRisk("circuit_tripped", map[string]interface{}{
					"asset":  t.Asset,
					"window": span,
					"price":  t.Price,
				})
			}
			for a, at := range halted {
				if t.Ts.Sub(at) >= cooldown {
					delete(halted, a)
				}
			}
			c.monitor.UpdateRiskPaused(len(halted) > 0)
		}
	}
}

// applyConfig 热更新：只调整倍投参数与加仓开关，其余配置需要重启。
func (c *Container) applyConfig(cfg config.AppConfig) {
	if err := c.engine.UpdateMartingale(martingaleConfig(cfg.Martingale)); err != nil {
		c.logger.Warn("martingale update rejected", zap.Error(err))
		return
	}
	c.engine.SetReinforceEnabled(cfg.Reinforce.Enabled)
	c.monitor.UpdateMartingaleStep(c.martingale.Step())
	c.cfg.Martingale = cfg.Martingale
	c.cfg.Reinforce.Enabled = cfg.Reinforce.Enabled
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Stop 停止所有组件。在途订单不撤销，重启后需要人工核对。
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	if n := c.reconciler.Pending(); n > 0 {
		c.logger.Warn("stopped with unresolved orders", zap.Int("pending", n))
		_ = c.alerts.SendWarning("stopped with unresolved orders", map[string]interface{}{"pending": n})
	}
	stats := c.analyzer.Stats()
	c.logger.LogTrade("session_summary", map[string]interface{}{
		"opened":     stats.Opened,
		"closed":     stats.Total,
		"wins":       stats.Wins,
		"losses":     stats.Losses,
		"draws":      stats.Draws,
		"forced":     stats.Forced,
		"net_profit": stats.NetProfit.String(),
	})

	if c.journal != nil {
		err = multierr.Append(err, c.journal.Close())
	}
	if c.sqlite != nil {
		err = multierr.Append(err, c.sqlite.Close())
	}
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Engine 交易引擎
func (c *Container) Engine() *engine.TradingEngine { return c.engine }

// Logger 日志
func (c *Container) Logger() *logger.Logger { return c.logger }

// Analyzer 会话统计
func (c *Container) Analyzer() *posttrade.Analyzer { return c.analyzer }

// Components 已注册的生命周期组件名
func (c *Container) Components() []string { return c.lifecycle.Names() }

func martingaleConfig(m config.MartingaleConfig) risk.MartingaleConfig {
	return risk.MartingaleConfig{
		BaseStake:  decimal.NewFromFloat(m.BaseStake),
		Multiplier: decimal.NewFromFloat(m.Multiplier),
		MaxSteps:   m.MaxSteps,
	}
}

func constraintSet(tc config.TradingConfig) order.ConstraintSet {
	conv := func(s config.StakeLimits) order.StakeConstraints {
		return order.StakeConstraints{
			MinStake:  decimal.NewFromFloat(s.Min),
			MaxStake:  decimal.NewFromFloat(s.Max),
			MinPayout: decimal.NewFromFloat(s.MinPayout),
		}
	}
	set := order.ConstraintSet{Default: conv(tc.Stake)}
	if len(tc.PerAsset) > 0 {
		set.PerAsset = make(map[string]order.StakeConstraints, len(tc.PerAsset))
		for asset, lim := range tc.PerAsset {
			set.PerAsset[asset] = conv(lim)
		}
	}
	return set
}
