package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StakeConstraints 描述单个标的的下注金额与赔率限制。
type StakeConstraints struct {
	MinStake  decimal.Decimal
	MaxStake  decimal.Decimal
	MinPayout decimal.Decimal
}

// Validate 开仓前检查下注金额与赔率，零值表示不限制。
func (c StakeConstraints) Validate(stake, payout decimal.Decimal) error {
	if !stake.IsPositive() {
		return fmt.Errorf("stake %s must be positive", stake)
	}
	if c.MinStake.IsPositive() && stake.LessThan(c.MinStake) {
		return fmt.Errorf("stake %s < minStake %s", stake, c.MinStake)
	}
	if c.MaxStake.IsPositive() && stake.GreaterThan(c.MaxStake) {
		return fmt.Errorf("stake %s > maxStake %s", stake, c.MaxStake)
	}
	if payout.LessThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("payout %s must be greater than 1", payout)
	}
	if c.MinPayout.IsPositive() && payout.LessThan(c.MinPayout) {
		return fmt.Errorf("payout %s < minPayout %s", payout, c.MinPayout)
	}
	return nil
}

// Clamp 把下注金额限制在 [MinStake, MaxStake] 内。
func (c StakeConstraints) Clamp(stake decimal.Decimal) decimal.Decimal {
	if c.MinStake.IsPositive() && stake.LessThan(c.MinStake) {
		return c.MinStake
	}
	if c.MaxStake.IsPositive() && stake.GreaterThan(c.MaxStake) {
		return c.MaxStake
	}
	return stake
}

// ConstraintSet 按标的查找限制，缺省使用 Default。
type ConstraintSet struct {
	Default  StakeConstraints
	PerAsset map[string]StakeConstraints
}

// For 返回某标的的限制。
func (s ConstraintSet) For(asset string) StakeConstraints {
	if c, ok := s.PerAsset[asset]; ok {
		return c
	}
	return s.Default
}
