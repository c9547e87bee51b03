package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLatencyGuard(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g := NewLatencyGuard(30*time.Second, ClockFunc(func() time.Time { return now }))
	one := decimal.NewFromInt(1)

	if err := g.PreOpen("EURUSD", one); err != nil {
		t.Fatalf("first open should pass: %v", err)
	}
	now = now.Add(10 * time.Second)
	if err := g.PreOpen("EURUSD", one); err != ErrTooFrequent {
		t.Fatalf("expected ErrTooFrequent, got %v", err)
	}
	if err := g.PreOpen("GBPUSD", one); err != nil {
		t.Fatalf("other asset should pass: %v", err)
	}
	now = now.Add(30 * time.Second)
	if err := g.PreOpen("EURUSD", one); err != nil {
		t.Fatalf("open after interval should pass: %v", err)
	}
}
