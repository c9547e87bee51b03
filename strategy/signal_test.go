package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binary-trader-go/market"
	"binary-trader-go/order"
)

func feed(svc *market.Service, asset string, start time.Time, prices ...float64) time.Time {
	ts := start
	for _, p := range prices {
		svc.OnTick(asset, p, ts)
		ts = ts.Add(20 * time.Second)
	}
	return ts
}

func TestCandleSignalFollowsLastCandle(t *testing.T) {
	svc := market.NewService(nil, market.ServiceConfig{})
	start := time.Unix(1700000000, 0).Truncate(time.Minute)
	// 第一根 K 线 100 -> 101（阳线），第二根开盘触发闭合
	end := feed(svc, "EURUSD", start, 100, 100.5, 101, 101.2)

	sig := NewCandleSignal(svc, []string{"EURUSD"}, time.Minute, false)
	got, ok := sig.Next(context.Background(), end)
	require.True(t, ok)
	assert.Equal(t, order.DirectionLong, got.Direction)
	assert.Equal(t, "EURUSD", got.Asset)
	assert.Equal(t, 101.2, got.Price)
	assert.Equal(t, "range", got.Regime)

	// 同一根 K 线不重复触发
	_, ok = sig.Next(context.Background(), end)
	assert.False(t, ok)
}

func TestCandleSignalSkipsStaleData(t *testing.T) {
	svc := market.NewService(nil, market.ServiceConfig{})
	start := time.Unix(1700000000, 0).Truncate(time.Minute)
	end := feed(svc, "EURUSD", start, 101, 100.5, 100, 99.9)

	sig := NewCandleSignal(svc, []string{"EURUSD"}, 5*time.Second, false)
	_, ok := sig.Next(context.Background(), end.Add(time.Minute))
	assert.False(t, ok)

	got, ok := sig.Next(context.Background(), end.Add(-20*time.Second))
	require.True(t, ok)
	assert.Equal(t, order.DirectionShort, got.Direction)
}

func TestCandleSignalRotatesAssets(t *testing.T) {
	svc := market.NewService(nil, market.ServiceConfig{})
	start := time.Unix(1700000000, 0).Truncate(time.Minute)
	feed(svc, "EURUSD", start, 100, 100.5, 101, 101.2)
	end := feed(svc, "GBPUSD", start, 1.3, 1.29, 1.28, 1.27)

	sig := NewCandleSignal(svc, []string{"EURUSD", "GBPUSD"}, time.Minute, false)
	first, ok := sig.Next(context.Background(), end)
	require.True(t, ok)
	second, ok := sig.Next(context.Background(), end)
	require.True(t, ok)
	assert.NotEqual(t, first.Asset, second.Asset)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = sig.Next(ctx, end)
	assert.False(t, ok)
}

func TestTrendOnlySignalNeedsTrend(t *testing.T) {
	svc := market.NewService(nil, market.ServiceConfig{})
	start := time.Unix(1700000000, 0).Truncate(time.Minute)
	end := feed(svc, "EURUSD", start, 100, 100.5, 101, 101.2)

	sig := NewCandleSignal(svc, []string{"EURUSD"}, time.Minute, true)
	_, ok := sig.Next(context.Background(), end)
	assert.False(t, ok, "calm regime has no trend signal")
}
