package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBuildGuards(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := ClockFunc(func() time.Time { return now })
	g := BuildGuards(GuardConfig{
		SingleMax:       decimal.NewFromInt(10),
		StopLoss:        decimal.NewFromInt(20),
		MinOpenInterval: time.Second,
	}, staticPnL{decimal.NewFromInt(-5)}, nil, clock)

	mg, ok := g.(MultiGuard)
	if !ok || len(mg.Guards) != 3 {
		t.Fatalf("unexpected guards %+v", g)
	}
	if err := g.PreOpen("EURUSD", decimal.NewFromInt(5)); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if err := g.PreOpen("EURUSD", decimal.NewFromInt(50)); !errors.Is(err, ErrStakeExceed) {
		t.Fatalf("expected stake exceed, got %v", err)
	}

	empty := BuildGuards(GuardConfig{}, nil, nil, clock)
	if err := empty.PreOpen("EURUSD", decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("empty guard set should pass: %v", err)
	}
}
