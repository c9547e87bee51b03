package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RecordStatus 记录类型。
type RecordStatus string

const (
	StatusOpen  RecordStatus = "OPEN"
	StatusClose RecordStatus = "CLOSE"
)

// Record 写入结果存储的一行，字段集合固定。
// OPEN 记录的 Outcome/Profit/CloseTime 为空。
type Record struct {
	Timestamp   time.Time
	Status      RecordStatus
	TradeID     string
	Asset       string
	Direction   Direction
	Kind        Kind
	Stake       decimal.Decimal
	Payout      decimal.Decimal
	Outcome     Outcome
	Regime      string
	Reason      string
	EntryPrice  float64
	Profit      decimal.Decimal
	OpenTime    time.Time
	CloseTime   time.Time
	DurationSec float64
	Source      Source
}

// ResultSink 只追加的结果存储。不得因 trade_id 看似重复而拒绝写入。
type ResultSink interface {
	Persist(ctx context.Context, rec Record) error
}

// SinkFunc 适配普通函数。
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Persist(ctx context.Context, rec Record) error { return f(ctx, rec) }

type discardSink struct{}

func (discardSink) Persist(context.Context, Record) error { return nil }

// NewOpenRecord 开仓记录。
func NewOpenRecord(o Order, now time.Time) Record {
	return Record{
		Timestamp:  now,
		Status:     StatusOpen,
		TradeID:    o.ID,
		Asset:      o.Asset,
		Direction:  o.Direction,
		Kind:       o.Kind,
		Stake:      o.Stake,
		Payout:     o.Payout,
		Regime:     o.Regime,
		Reason:     o.Reason,
		EntryPrice: o.EntryPrice,
		OpenTime:   o.OpenedAt,
	}
}

// NewCloseRecord 终态记录。
func NewCloseRecord(o Order, res ResolvedResult, now time.Time) Record {
	rec := NewOpenRecord(o, now)
	rec.Status = StatusClose
	rec.Outcome = res.Outcome
	rec.Profit = res.Profit
	rec.CloseTime = res.CloseTime
	rec.DurationSec = res.DurationSec()
	rec.Source = res.Source
	return rec
}

// Fields 展开为日志/存储使用的字段表，键名即存储列名。
func (r Record) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"timestamp":    r.Timestamp.UTC().Format(time.RFC3339Nano),
		"status":       string(r.Status),
		"trade_id":     r.TradeID,
		"asset":        r.Asset,
		"direction":    string(r.Direction),
		"kind":         string(r.Kind),
		"stake":        r.Stake.String(),
		"payout":       r.Payout.String(),
		"outcome":      string(r.Outcome),
		"regime":       r.Regime,
		"reason":       r.Reason,
		"entry_price":  r.EntryPrice,
		"profit":       r.Profit.String(),
		"open_time":    formatTime(r.OpenTime),
		"close_time":   formatTime(r.CloseTime),
		"duration_sec": r.DurationSec,
		"source":       string(r.Source),
	}
	return fields
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
