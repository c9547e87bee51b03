package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"binary-trader-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env        string           `yaml:"env"`
	Trading    TradingConfig    `yaml:"trading"`
	Martingale MartingaleConfig `yaml:"martingale"`
	Reinforce  ReinforceConfig  `yaml:"reinforce"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Venue      VenueConfig      `yaml:"venue"`
	Store      StoreConfig      `yaml:"store"`
	Log        logger.Config    `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Alert      AlertConfig      `yaml:"alert"`
	Risk       RiskConfig       `yaml:"risk"`
}

type TradingConfig struct {
	Assets       []string               `yaml:"assets"`
	Duration     time.Duration          `yaml:"duration"`      // 合约时长
	TickInterval time.Duration          `yaml:"tick_interval"` // 主循环间隔
	Signal       string                 `yaml:"signal"`        // candle / trend
	MaxStale     time.Duration          `yaml:"max_stale"`     // 行情超过该时长不开仓
	Stake        StakeLimits            `yaml:"stake"`
	PerAsset     map[string]StakeLimits `yaml:"per_asset"`
}

// StakeLimits 下注金额与最低赔率，0 表示不限制。
type StakeLimits struct {
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	MinPayout float64 `yaml:"min_payout"`
}

type MartingaleConfig struct {
	BaseStake  float64 `yaml:"base_stake"`
	Multiplier float64 `yaml:"multiplier"`
	MaxSteps   int     `yaml:"max_steps"`
}

type ReinforceConfig struct {
	Enabled    bool    `yaml:"enabled"`
	AdversePct float64 `yaml:"adverse_pct"` // 0.002 = 0.2%
}

// ResolverConfig 到期后的三级宽限与单次查询超时。
type ResolverConfig struct {
	NormalGrace  time.Duration `yaml:"normal_grace"`
	SoftGrace    time.Duration `yaml:"soft_grace"`
	HardGrace    time.Duration `yaml:"hard_grace"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

type WatcherConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MatchWindow  time.Duration `yaml:"match_window"`
	ExpirySlack  time.Duration `yaml:"expiry_slack"`
}

type VenueConfig struct {
	Mode      string      `yaml:"mode"` // paper / rest
	BaseURL   string      `yaml:"base_url"`
	APIKey    string      `yaml:"api_key"`
	APISecret string      `yaml:"api_secret"`
	PushURL   string      `yaml:"push_url"`
	RateLimit float64     `yaml:"rate_limit"` // 每秒请求数，0 不限速
	Burst     int         `yaml:"burst"`
	Paper     PaperConfig `yaml:"paper"`
}

type PaperConfig struct {
	StartPrice     float64       `yaml:"start_price"`
	Volatility     float64       `yaml:"volatility"`
	Payout         float64       `yaml:"payout"`
	Seed           int64         `yaml:"seed"`
	PushDropRate   float64       `yaml:"push_drop_rate"`
	QueryErrorRate float64       `yaml:"query_error_rate"`
	Latency        time.Duration `yaml:"latency"`
}

type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	CSVPath    string `yaml:"csv_path"`
	JSONLPath  string `yaml:"jsonl_path"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type AlertConfig struct {
	Throttle   time.Duration `yaml:"throttle"`
	WebhookURL string        `yaml:"webhook_url"`
}

type RiskConfig struct {
	SingleMax       float64       `yaml:"single_max"`
	DailyMax        float64       `yaml:"daily_max"`
	StopLoss        float64       `yaml:"stop_loss"`
	TakeProfit      float64       `yaml:"take_profit"`
	MinOpenInterval time.Duration `yaml:"min_open_interval"`
	ShockPct1m      float64       `yaml:"shock_pct_1m"`
	ShockPct5m      float64       `yaml:"shock_pct_5m"`
	HaltCooldown    time.Duration `yaml:"halt_cooldown"`
}

// Default 返回带默认值的配置（纸面模式）。
func Default() AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Trading.Duration <= 0 {
		cfg.Trading.Duration = time.Minute
	}
	if cfg.Trading.TickInterval <= 0 {
		cfg.Trading.TickInterval = time.Second
	}
	if cfg.Trading.Signal == "" {
		cfg.Trading.Signal = "candle"
	}
	if cfg.Trading.MaxStale <= 0 {
		cfg.Trading.MaxStale = 10 * time.Second
	}
	if cfg.Martingale.BaseStake <= 0 {
		cfg.Martingale.BaseStake = 1
	}
	if cfg.Martingale.Multiplier <= 0 {
		cfg.Martingale.Multiplier = 2
	}
	if cfg.Reinforce.AdversePct <= 0 {
		cfg.Reinforce.AdversePct = 0.002
	}
	if cfg.Resolver.NormalGrace <= 0 {
		cfg.Resolver.NormalGrace = 3 * time.Second
	}
	if cfg.Resolver.SoftGrace <= 0 {
		cfg.Resolver.SoftGrace = 8 * time.Second
	}
	if cfg.Resolver.HardGrace <= 0 {
		cfg.Resolver.HardGrace = 15 * time.Second
	}
	if cfg.Resolver.QueryTimeout <= 0 {
		cfg.Resolver.QueryTimeout = 2 * time.Second
	}
	if cfg.Watcher.PollInterval <= 0 {
		cfg.Watcher.PollInterval = 3 * time.Second
	}
	if cfg.Watcher.MatchWindow <= 0 {
		cfg.Watcher.MatchWindow = 2 * time.Second
	}
	if cfg.Watcher.ExpirySlack <= 0 {
		cfg.Watcher.ExpirySlack = 500 * time.Millisecond
	}
	if cfg.Venue.Mode == "" {
		cfg.Venue.Mode = "paper"
	}
	if cfg.Venue.Burst <= 0 {
		cfg.Venue.Burst = 5
	}
	if cfg.Venue.Paper.Payout <= 0 {
		cfg.Venue.Paper.Payout = 1.8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = []string{"stdout"}
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.MaxSize <= 0 {
		cfg.Log.MaxSize = 100
	}
	if cfg.Alert.Throttle <= 0 {
		cfg.Alert.Throttle = 5 * time.Minute
	}
}

// Load reads YAML config from path, applies defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides fields from BT_* env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, Validate(cfg)
}

func applyEnv(cfg *AppConfig) error {
	str := map[string]*string{
		"BT_ENV":              &cfg.Env,
		"BT_VENUE_MODE":       &cfg.Venue.Mode,
		"BT_VENUE_BASE_URL":   &cfg.Venue.BaseURL,
		"BT_VENUE_API_KEY":    &cfg.Venue.APIKey,
		"BT_VENUE_API_SECRET": &cfg.Venue.APISecret,
		"BT_VENUE_PUSH_URL":   &cfg.Venue.PushURL,
		"BT_STORE_SQLITE":     &cfg.Store.SQLitePath,
		"BT_LOG_LEVEL":        &cfg.Log.Level,
		"BT_METRICS_ADDR":     &cfg.Metrics.Addr,
		"BT_ALERT_WEBHOOK":    &cfg.Alert.WebhookURL,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("BT_ASSETS"); v != "" {
		cfg.Trading.Assets = splitList(v)
	}
	if v := os.Getenv("BT_BASE_STAKE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return ErrInvalid("BT_BASE_STAKE must be a number")
		}
		cfg.Martingale.BaseStake = f
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
