package config

import (
	"fmt"
	"time"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present and values are in range.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if len(cfg.Trading.Assets) == 0 {
		return ErrInvalid("trading.assets is required")
	}
	if cfg.Trading.Duration < 5*time.Second {
		return ErrInvalid("trading.duration must be >= 5s")
	}
	if cfg.Trading.TickInterval <= 0 {
		return ErrInvalid("trading.tick_interval must be > 0")
	}
	switch cfg.Trading.Signal {
	case "candle", "trend":
	default:
		return ErrInvalid(fmt.Sprintf("trading.signal %q not supported", cfg.Trading.Signal))
	}
	if err := validateStake("trading.stake", cfg.Trading.Stake); err != nil {
		return err
	}
	for asset, lim := range cfg.Trading.PerAsset {
		if err := validateStake("trading.per_asset."+asset, lim); err != nil {
			return err
		}
	}

	if cfg.Martingale.BaseStake <= 0 {
		return ErrInvalid("martingale.base_stake must be > 0")
	}
	if cfg.Martingale.Multiplier < 1 {
		return ErrInvalid("martingale.multiplier must be >= 1")
	}
	if cfg.Martingale.MaxSteps < 0 {
		return ErrInvalid("martingale.max_steps must be >= 0")
	}
	if cfg.Reinforce.AdversePct <= 0 || cfg.Reinforce.AdversePct >= 1 {
		return ErrInvalid("reinforce.adverse_pct must be in (0, 1)")
	}

	r := cfg.Resolver
	if r.NormalGrace <= 0 || r.SoftGrace < r.NormalGrace || r.HardGrace < r.SoftGrace {
		return ErrInvalid("resolver graces must satisfy 0 < normal <= soft <= hard")
	}
	if r.QueryTimeout <= 0 {
		return ErrInvalid("resolver.query_timeout must be > 0")
	}
	if cfg.Watcher.PollInterval <= 0 || cfg.Watcher.MatchWindow <= 0 {
		return ErrInvalid("watcher.poll_interval/match_window must be > 0")
	}

	switch cfg.Venue.Mode {
	case "paper":
		p := cfg.Venue.Paper
		if p.Payout <= 1 {
			return ErrInvalid("venue.paper.payout must be > 1")
		}
		if p.PushDropRate < 0 || p.PushDropRate > 1 || p.QueryErrorRate < 0 || p.QueryErrorRate > 1 {
			return ErrInvalid("venue.paper rates must be in [0, 1]")
		}
	case "rest":
		if cfg.Venue.BaseURL == "" {
			return ErrInvalid("venue.base_url is required in rest mode")
		}
		if cfg.Venue.APIKey == "" || cfg.Venue.APISecret == "" {
			return ErrInvalid("venue.api_key/api_secret is required (or env overrides)")
		}
	default:
		return ErrInvalid(fmt.Sprintf("venue.mode %q not supported", cfg.Venue.Mode))
	}
	if cfg.Venue.RateLimit < 0 {
		return ErrInvalid("venue.rate_limit must be >= 0")
	}

	rk := cfg.Risk
	if rk.SingleMax < 0 || rk.DailyMax < 0 || rk.StopLoss < 0 || rk.TakeProfit < 0 {
		return ErrInvalid("risk limits must be >= 0")
	}
	if rk.ShockPct1m < 0 || rk.ShockPct5m < 0 || rk.HaltCooldown < 0 || rk.MinOpenInterval < 0 {
		return ErrInvalid("risk breaker settings must be >= 0")
	}
	return nil
}

func validateStake(path string, s StakeLimits) error {
	if s.Min < 0 || s.Max < 0 {
		return ErrInvalid(path + " bounds must be >= 0")
	}
	if s.Max > 0 && s.Min > s.Max {
		return ErrInvalid(path + ".min must be <= max")
	}
	if s.MinPayout != 0 && s.MinPayout <= 1 {
		return ErrInvalid(path + ".min_payout must be > 1")
	}
	return nil
}
