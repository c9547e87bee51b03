package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfitFormulas(t *testing.T) {
	stake := decimal.NewFromInt(10)
	payout := decimal.RequireFromString("1.5")

	assert.True(t, WinProfit(stake, payout).Equal(decimal.NewFromInt(5)))
	assert.True(t, LossProfit(stake).Equal(decimal.NewFromInt(-10)))

	// 不做四舍五入
	odd := WinProfit(decimal.RequireFromString("3.33"), decimal.RequireFromString("1.87"))
	assert.Equal(t, "2.8971", odd.String())
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"long": DirectionLong, "CALL": DirectionLong, "up": DirectionLong,
		"short": DirectionShort, "Put": DirectionShort, "down": DirectionShort,
	}
	for raw, want := range cases {
		got, err := ParseDirection(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}

func TestNewResultClampsCloseTime(t *testing.T) {
	o := testOrder("a", t0)

	res := newResult(o, OutcomeLoss, LossProfit(o.Stake), t0.Add(-time.Second), SourcePoll)
	assert.Equal(t, t0, res.CloseTime)
	assert.Zero(t, res.DurationSec())

	res = newResult(o, OutcomeWin, WinProfit(o.Stake, o.Payout), t0.Add(61*time.Second), SourceCheck)
	assert.Equal(t, 61.0, res.DurationSec())
	assert.Equal(t, "a", res.OrderID)
	assert.Equal(t, t0, res.OpenTime)
}

func TestLifecycleTransitions(t *testing.T) {
	l := NewLifecycle()
	assert.True(t, l.CanReinforce())
	require.NoError(t, l.Transition(StateReinforced))
	assert.True(t, l.Reinforced())
	assert.False(t, l.CanReinforce())

	// 一次性：不能再次加仓
	err := l.Transition(StateReinforced)
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	require.NoError(t, l.Transition(StateResolved))
	assert.True(t, IsFinalState(l.State()))
	assert.Error(t, l.Transition(StateOpened))
}

func TestRecordFields(t *testing.T) {
	o := testOrder("EURUSD-1", t0)
	res := newResult(o, OutcomeWin, WinProfit(o.Stake, o.Payout), t0.Add(60*time.Second), SourcePush)
	rec := NewCloseRecord(o, res, t0.Add(61*time.Second))

	f := rec.Fields()
	for _, key := range []string{"timestamp", "asset", "stake", "direction", "payout", "outcome",
		"regime", "reason", "entry_price", "profit", "trade_id", "open_time", "close_time", "duration_sec"} {
		assert.Contains(t, f, key)
	}
	assert.Equal(t, "CLOSE", f["status"])
	assert.Equal(t, "WIN", f["outcome"])
	assert.Equal(t, "5", f["profit"])
	assert.Equal(t, 60.0, f["duration_sec"])

	open := NewOpenRecord(o, t0).Fields()
	assert.Equal(t, "OPEN", open["status"])
	assert.Equal(t, "", open["outcome"])
	assert.Equal(t, "", open["close_time"])
}

func TestTradeID(t *testing.T) {
	assert.Equal(t, "EURUSD-123456", TradeID("EURUSD", "123456"))
}
