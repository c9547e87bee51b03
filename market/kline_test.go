package market

import "testing"

func TestKlineDirection(t *testing.T) {
	k := Kline{Open: 100, High: 103, Low: 99, Close: 102}
	if !k.Bullish() || k.Bearish() {
		t.Fatalf("expected bullish kline %+v", k)
	}
	if k.Range() != 4 {
		t.Fatalf("unexpected range %f", k.Range())
	}
	flat := Kline{Open: 100, Close: 100}
	if flat.Bullish() || flat.Bearish() {
		t.Fatalf("flat kline has no direction")
	}
}
