package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binary-trader-go/gateway"
	"binary-trader-go/order"
)

type tickRecorder struct {
	mu    sync.Mutex
	ticks map[string]int
}

func (r *tickRecorder) OnTick(asset string, _ float64, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticks == nil {
		r.ticks = make(map[string]int)
	}
	r.ticks[asset]++
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openAt(t *testing.T, v *PaperVenue, dir order.Direction) *order.Order {
	t.Helper()
	o, err := v.OpenOrder(context.Background(), order.OpenRequest{
		Asset:     "EURUSD",
		Direction: dir,
		Stake:     decimal.NewFromInt(10),
		Duration:  time.Minute,
	})
	require.NoError(t, err)
	return o
}

func TestPaperVenueSettlesAtExpiry(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Assets: []string{"EURUSD"}, Seed: 1})
	var frames [][]byte
	v.SetPushSink(func(b []byte) { frames = append(frames, b) })
	ticks := &tickRecorder{}
	v.SetQuoteHandler(ticks)

	v.Step(t0)
	v.SetPrice("EURUSD", 1.1)
	long := openAt(t, v, order.DirectionLong)
	short := openAt(t, v, order.DirectionShort)
	assert.Equal(t, "EURUSD-"+long.Ref, long.ID)
	assert.Equal(t, order.KindPrimary, long.Kind)
	assert.Equal(t, "1.8", long.Payout.String())
	assert.Equal(t, t0, long.OpenedAt)
	assert.Equal(t, 2, v.Open())

	// 未到期查询无结果
	a, err := v.CheckResult(context.Background(), long.Ref)
	require.NoError(t, err)
	assert.False(t, a.Present())

	v.SetPrice("EURUSD", 1.2)
	// 结算前先游走一步，偏移远小于 0.1
	v.Step(t0.Add(time.Minute))
	assert.Equal(t, 0, v.Open())
	require.Len(t, frames, 2)
	assert.Equal(t, 2, ticks.ticks["EURUSD"])

	ev, err := gateway.ParsePushFrame(frames[0])
	require.NoError(t, err)
	assert.Equal(t, long.Ref, ev.Ref)
	assert.Equal(t, "win", ev.RawOutcome)
	assert.InDelta(t, 8.0, ev.RawProfit, 1e-9)
	assert.Equal(t, long.ExpiresAt().Unix(), ev.CloseTime.Unix())

	a, err = v.CheckResult(context.Background(), long.Ref)
	require.NoError(t, err)
	assert.Equal(t, order.AnswerFlag, a.Kind)
	assert.True(t, order.IsAffirmativeWin(a.Flag))

	a, err = v.PollResult(context.Background(), short.Ref)
	require.NoError(t, err)
	assert.Equal(t, order.AnswerNumeric, a.Kind)
	assert.Equal(t, "-10", a.Value.String())
}

func TestPaperVenueDropsPushes(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Assets: []string{"EURUSD"}, Seed: 7, PushDropRate: 1})
	var frames int
	v.SetPushSink(func([]byte) { frames++ })
	v.Step(t0)
	o := openAt(t, v, order.DirectionLong)
	v.Step(t0.Add(2 * time.Minute))
	assert.Zero(t, frames)

	// 推送丢了，查询仍然能拿到结果
	a, err := v.PollResult(context.Background(), o.Ref)
	require.NoError(t, err)
	assert.True(t, a.Present())
}

func TestPaperVenueFaults(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Assets: []string{"EURUSD"}, Seed: 3, QueryErrorRate: 1})
	_, err := v.OpenOrder(context.Background(), order.OpenRequest{Asset: "GBPUSD"})
	assert.ErrorIs(t, err, ErrUnknownAsset)

	_, err = v.CheckResult(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrInjected)

	slow := NewPaperVenue(PaperConfig{Assets: []string{"EURUSD"}, Latency: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = slow.PollResult(ctx, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPaperVenuePayoutOverride(t *testing.T) {
	v := NewPaperVenue(PaperConfig{
		Assets:        []string{"EURUSD", "BTCUSD"},
		PayoutByAsset: map[string]decimal.Decimal{"BTCUSD": decimal.RequireFromString("1.7")},
	})
	assert.Equal(t, "1.7", v.Payout("BTCUSD").String())
	assert.Equal(t, "1.8", v.Payout("EURUSD").String())
	p, ok := v.LatestPrice("EURUSD")
	assert.True(t, ok)
	assert.Equal(t, 1.0, p)
}
