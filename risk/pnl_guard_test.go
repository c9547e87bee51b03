package risk

import (
	"testing"

	"github.com/shopspring/decimal"
)

type staticPnL struct{ v decimal.Decimal }

func (s staticPnL) NetProfit() decimal.Decimal { return s.v }

func TestPnLGuard(t *testing.T) {
	g := &PnLGuard{
		StopLoss:   decimal.NewFromInt(50),
		TakeProfit: decimal.NewFromInt(100),
	}
	one := decimal.NewFromInt(1)

	g.Source = staticPnL{decimal.NewFromInt(-49)}
	if err := g.PreOpen("EURUSD", one); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	g.Source = staticPnL{decimal.NewFromInt(-50)}
	if err := g.PreOpen("EURUSD", one); err != ErrStopLoss {
		t.Fatalf("expected stop loss, got %v", err)
	}
	g.Source = staticPnL{decimal.NewFromInt(120)}
	if err := g.PreOpen("EURUSD", one); err != ErrTakeProfit {
		t.Fatalf("expected take profit, got %v", err)
	}
	var nilGuard *PnLGuard
	if err := nilGuard.PreOpen("EURUSD", one); err != nil {
		t.Fatalf("nil guard should pass")
	}
}
