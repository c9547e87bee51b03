package market

import (
	"errors"
	"testing"
	"time"
)

func TestServiceLatestCloseAndStaleness(t *testing.T) {
	svc := NewService(nil, ServiceConfig{})
	if _, err := svc.LatestClose("EURUSD"); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	ts := time.Unix(1700000000, 0)
	svc.OnTick("EURUSD", 1.08, ts)
	svc.OnTick("EURUSD", 1.09, ts.Add(time.Second))
	// 乱序的旧报价不覆盖最新价
	svc.OnTick("EURUSD", 1.01, ts.Add(-time.Second))

	price, err := svc.LatestClose("EURUSD")
	if err != nil || price != 1.09 {
		t.Fatalf("unexpected latest close %f %v", price, err)
	}
	if st := svc.Staleness("EURUSD", ts.Add(3*time.Second)); st != 2*time.Second {
		t.Fatalf("unexpected staleness %v", st)
	}
	if st := svc.Staleness("GBPUSD", ts); st < time.Hour {
		t.Fatalf("expected large staleness for unknown asset")
	}
}

func TestServiceCandlesPublish(t *testing.T) {
	pub := NewPublisher()
	candles := pub.SubscribeCandles(4)
	svc := NewService(pub, ServiceConfig{CandleInterval: time.Minute})

	ts := time.Unix(1700000040, 0).Truncate(time.Minute)
	svc.OnTick("EURUSD", 100, ts)
	svc.OnTick("EURUSD", 101, ts.Add(30*time.Second))
	svc.OnTick("EURUSD", 102, ts.Add(61*time.Second))

	select {
	case k := <-candles:
		if k.Asset != "EURUSD" || k.Open != 100 || k.Close != 101 {
			t.Fatalf("unexpected candle %+v", k)
		}
	default:
		t.Fatalf("expected candle published")
	}
	if got := svc.Candles("EURUSD", 5); len(got) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(got))
	}
	if svc.Regime("EURUSD") != RegimeCalm {
		t.Fatalf("expected calm regime before warm-up")
	}
	if len(svc.Assets()) != 1 {
		t.Fatalf("expected one asset")
	}
}
