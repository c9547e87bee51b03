package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLimitChecker(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	lc := NewLimitChecker(Limits{
		SingleMax: decimal.NewFromInt(20),
		DailyMax:  decimal.NewFromInt(30),
	}, ClockFunc(func() time.Time { return now }))

	if err := lc.PreOpen("EURUSD", decimal.NewFromInt(25)); !errors.Is(err, ErrStakeExceed) {
		t.Fatalf("expected single exceed, got %v", err)
	}
	if err := lc.PreOpen("EURUSD", decimal.NewFromInt(20)); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := lc.PreOpen("EURUSD", decimal.NewFromInt(15)); !errors.Is(err, ErrDailyExceed) {
		t.Fatalf("expected daily exceed, got %v", err)
	}
	// 被拒绝的下注不计入累计
	if got := lc.DailyStake("EURUSD"); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected daily stake %s", got)
	}

	now = now.Add(2 * time.Hour)
	if err := lc.PreOpen("EURUSD", decimal.NewFromInt(15)); err != nil {
		t.Fatalf("new day should reset: %v", err)
	}
}
