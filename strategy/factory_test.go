package strategy

import (
	"testing"

	"binary-trader-go/market"
)

func TestSignalFactory(t *testing.T) {
	factory := NewSignalFactory(market.NewService(nil, market.ServiceConfig{}))

	src, err := factory.Create(SignalConfig{Type: SignalCandle, Assets: []string{"EURUSD"}})
	if err != nil || src == nil {
		t.Fatalf("Failed to create candle signal: %v", err)
	}
	cs, ok := src.(*CandleSignal)
	if !ok || cs.trendOnly {
		t.Fatalf("unexpected source %+v", src)
	}

	src, err = factory.Create(SignalConfig{Type: SignalTrend, Assets: []string{"EURUSD"}})
	if err != nil || !src.(*CandleSignal).trendOnly {
		t.Fatalf("expected trend-only source: %v", err)
	}

	if _, err := factory.Create(SignalConfig{Type: "grid", Assets: []string{"EURUSD"}}); err == nil {
		t.Error("Expected error for unknown signal type")
	}
	if _, err := factory.Create(SignalConfig{Type: SignalCandle}); err == nil {
		t.Error("Expected error without assets")
	}
	if _, err := NewSignalFactory(nil).Create(SignalConfig{Assets: []string{"EURUSD"}}); err == nil {
		t.Error("Expected error without market data")
	}
}
