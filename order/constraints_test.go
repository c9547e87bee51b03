package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStakeConstraintsValidate(t *testing.T) {
	c := StakeConstraints{MinStake: dec("1"), MaxStake: dec("100"), MinPayout: dec("1.7")}

	assert.NoError(t, c.Validate(dec("10"), dec("1.85")))
	assert.Error(t, c.Validate(dec("0"), dec("1.85")), "stake must be positive")
	assert.Error(t, c.Validate(dec("0.5"), dec("1.85")))
	assert.Error(t, c.Validate(dec("101"), dec("1.85")))
	assert.Error(t, c.Validate(dec("10"), dec("1.6")))
	assert.Error(t, c.Validate(dec("10"), dec("1")), "payout 1 never pays")

	// 零值不限制金额，但赔率仍须大于 1
	var open StakeConstraints
	assert.NoError(t, open.Validate(dec("100000"), dec("1.01")))
	assert.Error(t, open.Validate(dec("5"), dec("0.9")))
}

func TestStakeConstraintsClamp(t *testing.T) {
	c := StakeConstraints{MinStake: dec("2"), MaxStake: dec("50")}
	assert.True(t, dec("2").Equal(c.Clamp(dec("1"))))
	assert.True(t, dec("50").Equal(c.Clamp(dec("64"))))
	assert.True(t, dec("8").Equal(c.Clamp(dec("8"))))
	assert.True(t, dec("64").Equal(StakeConstraints{}.Clamp(dec("64"))))
}

func TestConstraintSetFor(t *testing.T) {
	set := ConstraintSet{
		Default:  StakeConstraints{MinStake: dec("1")},
		PerAsset: map[string]StakeConstraints{"BTCUSD": {MinStake: dec("5")}},
	}
	assert.True(t, dec("5").Equal(set.For("BTCUSD").MinStake))
	assert.True(t, dec("1").Equal(set.For("EURUSD").MinStake))
}
