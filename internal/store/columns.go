package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"binary-trader-go/order"
)

// Columns 记录的固定列顺序，CSV 表头与 sqlite 列名一致。
var Columns = []string{
	"timestamp", "status", "trade_id", "asset", "direction", "kind", "stake", "payout",
	"outcome", "regime", "reason", "entry_price", "profit", "open_time", "close_time",
	"duration_sec", "source",
}

// row 按 Columns 顺序输出字符串值。
func row(rec order.Record) []string {
	f := rec.Fields()
	out := make([]string, len(Columns))
	for i, c := range Columns {
		switch v := f[c].(type) {
		case string:
			out[i] = v
		case float64:
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

// fromRow 从 Columns 顺序的字符串还原记录。
func fromRow(vals []string) (order.Record, error) {
	if len(vals) != len(Columns) {
		return order.Record{}, fmt.Errorf("row has %d columns, want %d", len(vals), len(Columns))
	}
	get := func(name string) string {
		for i, c := range Columns {
			if c == name {
				return vals[i]
			}
		}
		return ""
	}
	rec := order.Record{
		Status:    order.RecordStatus(get("status")),
		TradeID:   get("trade_id"),
		Asset:     get("asset"),
		Direction: order.Direction(get("direction")),
		Kind:      order.Kind(get("kind")),
		Outcome:   order.Outcome(get("outcome")),
		Regime:    get("regime"),
		Reason:    get("reason"),
		Source:    order.Source(get("source")),
	}
	var err error
	if rec.Timestamp, err = parseTime(get("timestamp")); err != nil {
		return rec, fmt.Errorf("timestamp: %w", err)
	}
	if rec.OpenTime, err = parseTime(get("open_time")); err != nil {
		return rec, fmt.Errorf("open_time: %w", err)
	}
	if rec.CloseTime, err = parseTime(get("close_time")); err != nil {
		return rec, fmt.Errorf("close_time: %w", err)
	}
	if rec.Stake, err = parseDecimal(get("stake")); err != nil {
		return rec, fmt.Errorf("stake: %w", err)
	}
	if rec.Payout, err = parseDecimal(get("payout")); err != nil {
		return rec, fmt.Errorf("payout: %w", err)
	}
	if rec.Profit, err = parseDecimal(get("profit")); err != nil {
		return rec, fmt.Errorf("profit: %w", err)
	}
	if rec.EntryPrice, err = parseFloat(get("entry_price")); err != nil {
		return rec, fmt.Errorf("entry_price: %w", err)
	}
	if rec.DurationSec, err = parseFloat(get("duration_sec")); err != nil {
		return rec, fmt.Errorf("duration_sec: %w", err)
	}
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
