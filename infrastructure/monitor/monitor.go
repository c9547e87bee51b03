package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
// 同时实现 order.Recorder 与 gateway.StreamMetrics。
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersOpened   *prometheus.CounterVec
	openRejects    *prometheus.CounterVec
	reinforcements prometheus.Counter
	resolved       *prometheus.CounterVec
	forced         *prometheus.CounterVec
	duplicates     *prometheus.CounterVec
	pending        prometheus.Gauge

	// 盈亏
	realizedPnL     prometheus.Gauge
	martingaleStep  prometheus.Gauge
	resolvedProfits prometheus.Histogram

	// 查询
	queryErrors  *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec

	// 推送
	pushUnmatched   prometheus.Counter
	pushAmbiguous   prometheus.Counter
	streamConnected prometheus.Gauge
	streamFrames    *prometheus.CounterVec

	// 风控
	riskRejects *prometheus.CounterVec
	riskPaused  prometheus.Gauge
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "bt",
		Subsystem: "trading",
	}
}

// New 创建新的Monitor实例，使用独立 registry。
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	m := &Monitor{
		registry: reg,

		ordersOpened: counter("orders_opened_total", "开仓总数", "kind"),
		openRejects:  counter("open_rejects_total", "开仓被拒总数", "reason"),
		reinforcements: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "reinforcements_total",
			Help:      "加仓次数",
		}),
		resolved:   counter("orders_resolved_total", "结算总数", "outcome", "source"),
		forced:     counter("forced_resolutions_total", "强制结算次数", "tier"),
		duplicates: counter("duplicate_results_total", "重复结果（已忽略）", "source"),
		pending:    gauge("pending_orders", "待结算订单数"),

		realizedPnL:    gauge("realized_pnl", "已实现盈亏"),
		martingaleStep: gauge("martingale_step", "当前倍投步数"),
		resolvedProfits: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "resolved_profit",
			Help:      "单笔结算盈亏分布",
			Buckets:   []float64{-100, -50, -20, -10, -5, 0, 5, 10, 20, 50, 100},
		}),

		queryErrors: counter("query_errors_total", "结果查询失败次数", "path"),
		queryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "query_latency_seconds",
			Help:      "结果查询延迟（秒）",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"path"}),

		pushUnmatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "push_unmatched_total",
			Help:      "未匹配到订单的推送",
		}),
		pushAmbiguous: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "push_ambiguous_total",
			Help:      "窗口内多笔候选的推送",
		}),
		streamConnected: gauge("stream_connected", "推送连接状态(1=在线)"),
		streamFrames:    counter("stream_frames_total", "推送帧数", "kind"),

		riskRejects: counter("risk_rejects_total", "风控拒单总数", "reason"),
		riskPaused:  gauge("risk_paused", "熔断/暂停状态(1=暂停)"),
	}
	return m
}

// order.Recorder

func (m *Monitor) RecordResolved(outcome, source string, profit float64) {
	m.resolved.WithLabelValues(outcome, source).Inc()
	m.resolvedProfits.Observe(profit)
}

func (m *Monitor) RecordForced(tier string) {
	m.forced.WithLabelValues(tier).Inc()
}

func (m *Monitor) RecordDuplicate(source string) {
	m.duplicates.WithLabelValues(source).Inc()
}

func (m *Monitor) RecordQueryError(path string) {
	m.queryErrors.WithLabelValues(path).Inc()
}

func (m *Monitor) RecordQueryLatency(path string, d time.Duration) {
	m.queryLatency.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Monitor) RecordPushUnmatched() {
	m.pushUnmatched.Inc()
}

func (m *Monitor) RecordPushAmbiguous() {
	m.pushAmbiguous.Inc()
}

func (m *Monitor) SetPending(n int) {
	m.pending.Set(float64(n))
}

// gateway.StreamMetrics

func (m *Monitor) SetStreamConnected(connected bool) {
	if connected {
		m.streamConnected.Set(1)
		return
	}
	m.streamConnected.Set(0)
}

func (m *Monitor) RecordStreamFrame(kind string) {
	m.streamFrames.WithLabelValues(kind).Inc()
}

// 引擎相关方法

func (m *Monitor) RecordOpened(kind string) {
	m.ordersOpened.WithLabelValues(kind).Inc()
}

func (m *Monitor) RecordOpenRejected(reason string) {
	m.openRejects.WithLabelValues(reason).Inc()
}

func (m *Monitor) RecordReinforcement() {
	m.reinforcements.Inc()
}

func (m *Monitor) UpdateRealizedPnL(value float64) {
	m.realizedPnL.Set(value)
}

func (m *Monitor) UpdateMartingaleStep(step int) {
	m.martingaleStep.Set(float64(step))
}

// 风控相关方法

func (m *Monitor) RecordRiskReject(reason string) {
	m.riskRejects.WithLabelValues(reason).Inc()
}

func (m *Monitor) UpdateRiskPaused(paused bool) {
	if paused {
		m.riskPaused.Set(1)
		return
	}
	m.riskPaused.Set(0)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
