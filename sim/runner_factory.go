package sim

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"binary-trader-go/gateway"
	"binary-trader-go/infrastructure/logger"
	"binary-trader-go/internal/engine"
	"binary-trader-go/internal/store"
	"binary-trader-go/market"
	"binary-trader-go/order"
	"binary-trader-go/posttrade"
	"binary-trader-go/risk"
	"binary-trader-go/strategy"
)

// RunnerConfig 描述 Runner 的可选参数。
type RunnerConfig struct {
	Assets         []string
	Start          time.Time     // 模拟起点，默认 2026-01-01 UTC
	TickInterval   time.Duration // 默认 1s
	PollInterval   time.Duration // 默认 3s
	Duration       time.Duration // 合约时长，默认 1m
	CandleInterval time.Duration // 默认 1m
	Signal         strategy.SignalType

	Martingale  risk.MartingaleConfig
	Reinforce   bool
	AdversePct  float64
	Grace       order.Grace
	Constraints order.ConstraintSet

	// 风控，零值表示不限制
	Guard        risk.GuardConfig
	ShockPct1m   float64
	ShockPct5m   float64
	HaltCooldown time.Duration

	Paper PaperConfig

	// 额外的结果存储，例如 sqlite 或 csv 日志
	Sinks  []order.ResultSink
	Logger *logger.Logger
}

// BuildRunner 基于配置组装完整的离线交易链路：纸面券商、行情、信号、
// 对账器、解析器与引擎共用同一个模拟时钟。
func BuildRunner(cfg RunnerConfig) (*Runner, error) {
	if len(cfg.Assets) == 0 {
		return nil, errors.New("sim: no assets")
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Minute
	}
	if cfg.Martingale.BaseStake.IsZero() {
		cfg.Martingale = risk.MartingaleConfig{
			BaseStake:  decimal.NewFromInt(1),
			Multiplier: decimal.NewFromInt(2),
			MaxSteps:   3,
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	paper := cfg.Paper
	if len(paper.Assets) == 0 {
		paper.Assets = cfg.Assets
	}

	r := &Runner{now: cfg.Start, cfg: cfg}
	clock := risk.ClockFunc(r.Now)

	mart, err := risk.NewMartingale(cfg.Martingale)
	if err != nil {
		return nil, err
	}

	r.Venue = NewPaperVenue(paper)
	r.Market = market.NewService(market.NewPublisher(), market.ServiceConfig{CandleInterval: cfg.CandleInterval})
	r.Analyzer = posttrade.NewAnalyzer()

	sinks := append([]order.ResultSink{r.Analyzer}, cfg.Sinks...)
	sink := store.NewMultiSink(cfg.Logger.Logger, sinks...)

	r.Reconciler = order.NewReconciler(nil, r.Venue, sink, order.ReconcilerConfig{
		Interval:  cfg.PollInterval,
		HardGrace: cfg.Grace.Hard,
		Logger:    cfg.Logger.Logger,
		Now:       r.Now,
	})
	resolver := order.NewResolver(r.Venue, r.Reconciler, order.ResolverConfig{
		Grace:  cfg.Grace,
		Logger: cfg.Logger.Logger,
	})

	if cfg.ShockPct1m > 0 || cfg.ShockPct5m > 0 {
		r.Breaker = risk.NewCircuitBreaker(cfg.ShockPct1m, cfg.ShockPct5m, cfg.HaltCooldown, clock)
	}
	guard := risk.BuildGuards(cfg.Guard, r.Analyzer, r.Breaker, clock)

	signals, err := strategy.NewSignalFactory(r.Market).Create(strategy.SignalConfig{
		Type:     cfg.Signal,
		Assets:   cfg.Assets,
		MaxStale: 2 * cfg.TickInterval,
	})
	if err != nil {
		return nil, err
	}

	r.Engine, err = engine.New(engine.Config{
		Duration:         cfg.Duration,
		TickInterval:     cfg.TickInterval,
		ReinforceEnabled: cfg.Reinforce,
	}, engine.Components{
		Venue:       r.Venue,
		Resolver:    resolver,
		Reconciler:  r.Reconciler,
		Signals:     signals,
		Prices:      r.Market,
		Payouts:     r.Venue,
		Martingale:  mart,
		Reinforcer:  strategy.NewReinforcer(cfg.AdversePct),
		Guard:       guard,
		Constraints: cfg.Constraints,
		Sink:        sink,
		PnL:         r.Analyzer,
		Logger:      cfg.Logger,
		Now:         r.Now,
	})
	if err != nil {
		return nil, err
	}
	if err := r.Engine.Arm(); err != nil {
		return nil, err
	}
	r.martingale = mart

	// 推送帧走与线上相同的解析路径
	stream := gateway.NewPushStream(gateway.PushStreamConfig{Logger: cfg.Logger.Logger}, r.Reconciler, nil)
	r.Venue.SetPushSink(stream.HandleFrame)
	r.Venue.SetQuoteHandler(quoteFanout{market: r.Market, breaker: r.Breaker, log: cfg.Logger.Logger})

	return r, nil
}

// quoteFanout 同步地把行情送入行情服务与熔断器。
type quoteFanout struct {
	market  *market.Service
	breaker *risk.CircuitBreaker
	log     *zap.Logger
}

func (q quoteFanout) OnTick(asset string, price float64, ts time.Time) {
	q.market.OnTick(asset, price, ts)
	if q.breaker == nil {
		return
	}
	if tripped, span := q.breaker.OnTick(asset, risk.Tick{Price: price, Ts: ts}); tripped {
		q.log.Warn("circuit breaker tripped",
			zap.String("asset", asset),
			zap.String("window", span),
			zap.Float64("price", price))
	}
}
