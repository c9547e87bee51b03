package store

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binary-trader-go/order"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleOrder(id string) order.Order {
	return order.Order{
		ID:         id,
		Ref:        "ref-" + id,
		Asset:      "EURUSD",
		Direction:  order.DirectionLong,
		Kind:       order.KindPrimary,
		Stake:      decimal.NewFromInt(10),
		Payout:     decimal.RequireFromString("1.8"),
		EntryPrice: 1.0852,
		OpenedAt:   t0,
		Duration:   time.Minute,
		Regime:     "trend",
		Reason:     "candle",
	}
}

func closeRecord(id string) order.Record {
	o := sampleOrder(id)
	res := order.ResolvedResult{
		OrderID:   id,
		Outcome:   order.OutcomeWin,
		Profit:    order.WinProfit(o.Stake, o.Payout),
		OpenTime:  t0,
		CloseTime: t0.Add(time.Minute),
		Duration:  time.Minute,
		Source:    order.SourcePush,
	}
	return order.NewCloseRecord(o, res, t0.Add(61*time.Second))
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "trades.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.Persist(ctx, order.NewOpenRecord(sampleOrder("EURUSD-1"), t0)))
	require.NoError(t, st.Persist(ctx, closeRecord("EURUSD-1")))
	// 同一 trade_id 重复写入必须保留
	require.NoError(t, st.Persist(ctx, closeRecord("EURUSD-1")))

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	closes, err := st.Records(ctx, Query{Status: order.StatusClose})
	require.NoError(t, err)
	require.Len(t, closes, 2)
	got := closes[0]
	assert.Equal(t, "EURUSD-1", got.TradeID)
	assert.Equal(t, order.OutcomeWin, got.Outcome)
	assert.Equal(t, "8", got.Profit.String())
	assert.Equal(t, "1.8", got.Payout.String())
	assert.Equal(t, t0, got.OpenTime)
	assert.Equal(t, t0.Add(time.Minute), got.CloseTime)
	assert.Equal(t, 60.0, got.DurationSec)
	assert.InDelta(t, 1.0852, got.EntryPrice, 1e-12)
	assert.Equal(t, order.SourcePush, got.Source)

	opens, err := st.Records(ctx, Query{Status: order.StatusOpen, Asset: "EURUSD", Limit: 10})
	require.NoError(t, err)
	require.Len(t, opens, 1)
	assert.True(t, opens[0].CloseTime.IsZero())
}

func TestSQLiteStoreConcurrentPersist(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				assert.NoError(t, st.Persist(ctx, closeRecord("EURUSD-x")))
			}
		}()
	}
	wg.Wait()
	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("")
	assert.Error(t, err)
}

func TestJournalWritesCSVAndJSONL(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "trades.csv")
	jsonlPath := filepath.Join(dir, "trades.jsonl")

	j, err := OpenJournal(csvPath, jsonlPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, j.Persist(ctx, order.NewOpenRecord(sampleOrder("EURUSD-1"), t0)))
	require.NoError(t, j.Persist(ctx, closeRecord("EURUSD-1")))
	require.NoError(t, j.Close())

	// 重新打开不重复写表头
	j, err = OpenJournal(csvPath, jsonlPath)
	require.NoError(t, err)
	require.NoError(t, j.Persist(ctx, closeRecord("EURUSD-2")))
	require.NoError(t, j.Close())

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns, rows[0])
	rec, err := fromRow(rows[2])
	require.NoError(t, err)
	assert.Equal(t, order.StatusClose, rec.Status)
	assert.Equal(t, "8", rec.Profit.String())

	jf, err := os.Open(jsonlPath)
	require.NoError(t, err)
	defer jf.Close()
	sc := bufio.NewScanner(jf)
	var lines int
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		assert.Contains(t, m, "trade_id")
		lines++
	}
	assert.Equal(t, 3, lines)
}

type failingSink struct{ err error }

func (f failingSink) Persist(context.Context, order.Record) error { return f.err }

type countingSink struct {
	mu sync.Mutex
	n  int
}

func (c *countingSink) Persist(context.Context, order.Record) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

func TestMultiSinkFanOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	boom := errors.New("disk full")
	m := NewMultiSink(nil, a, nil, failingSink{err: boom}, b)

	err := m.Persist(context.Background(), closeRecord("EURUSD-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	// 失败的下游不影响其他下游
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}

func TestMultiSinkPassesUnknownStatus(t *testing.T) {
	a := &countingSink{}
	m := NewMultiSink(nil, a)
	// 状态未知的记录没有 schema，直接写入
	require.NoError(t, m.Persist(context.Background(), order.Record{TradeID: "x"}))
	assert.Equal(t, 1, a.n)

	require.NoError(t, m.Persist(context.Background(), closeRecord("EURUSD-1")))
	assert.Equal(t, 2, a.n)
}

func TestFromRowRejectsShortRow(t *testing.T) {
	_, err := fromRow(strings.Split("a,b", ","))
	assert.Error(t, err)
}
