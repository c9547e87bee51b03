package posttrade

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binary-trader-go/order"
)

func closeRec(asset string, outcome order.Outcome, profit string) order.Record {
	return order.Record{
		Status:  order.StatusClose,
		Asset:   asset,
		Kind:    order.KindPrimary,
		Outcome: outcome,
		Profit:  decimal.RequireFromString(profit),
		Source:  order.SourcePush,
	}
}

func TestAnalyzerStats(t *testing.T) {
	a := NewAnalyzer()
	ctx := context.Background()

	require.NoError(t, a.Persist(ctx, order.Record{Status: order.StatusOpen, Asset: "EURUSD"}))
	require.NoError(t, a.Persist(ctx, closeRec("EURUSD", order.OutcomeWin, "8")))
	require.NoError(t, a.Persist(ctx, closeRec("EURUSD", order.OutcomeLoss, "-10")))
	require.NoError(t, a.Persist(ctx, closeRec("GBPUSD", order.OutcomeLoss, "-20")))
	forced := closeRec("GBPUSD", order.OutcomeLoss, "-5")
	forced.Source = order.SourceTimeout
	forced.Kind = order.KindReinforcement
	require.NoError(t, a.Persist(ctx, forced))
	require.NoError(t, a.Persist(ctx, closeRec("GBPUSD", order.OutcomeDraw, "0")))
	require.NoError(t, a.Persist(ctx, closeRec("EURUSD", order.OutcomeWin, "40")))

	s := a.Stats()
	assert.Equal(t, 1, s.Opened)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 3, s.Losses)
	assert.Equal(t, 1, s.Draws)
	assert.Equal(t, 1, s.Forced)
	assert.Equal(t, 1, s.Reinforcement)
	assert.InDelta(t, 0.4, s.WinRate, 1e-9)
	assert.Equal(t, "13", s.NetProfit.String())
	assert.Equal(t, "48", s.GrossWon.String())
	assert.Equal(t, "35", s.GrossLost.String())
	// 累计 8, -2, -22, -27, -27, 13：峰值 13，最大回撤 8-(-27)=35
	assert.Equal(t, "13", s.PeakProfit.String())
	assert.Equal(t, "35", s.MaxDrawdown.String())
	assert.Equal(t, 3, s.ByAsset["EURUSD"].Total)
	assert.Equal(t, "38", s.ByAsset["EURUSD"].NetProfit.String())
	assert.Equal(t, "13", a.NetProfit().String())
}

func TestAnalyzerReset(t *testing.T) {
	a := NewAnalyzer()
	a.Add(closeRec("EURUSD", order.OutcomeLoss, "-10"))
	assert.Equal(t, "-10", a.NetProfit().String())
	// 起点为 0，第一次亏损即回撤
	assert.Equal(t, "10", a.Stats().MaxDrawdown.String())

	a.Reset()
	assert.True(t, a.NetProfit().IsZero())
	assert.Equal(t, 0, a.Stats().Total)
}

func TestAnalyzerStatsIsCopy(t *testing.T) {
	a := NewAnalyzer()
	a.Add(closeRec("EURUSD", order.OutcomeWin, "8"))
	s := a.Stats()
	s.ByAsset["EURUSD"] = AssetStats{}
	assert.Equal(t, 1, a.Stats().ByAsset["EURUSD"].Total)
}
