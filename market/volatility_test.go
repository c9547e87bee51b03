package market

import (
	"testing"
	"time"
)

func TestVolatilityCalculator_AddPrice(t *testing.T) {
	calculator := NewVolatilityCalculator(2)
	now := time.Now()
	calculator.AddPrice(100.0, now)
	calculator.AddPrice(-1, now)
	calculator.AddPrice(101.0, now.Add(time.Minute))
	calculator.AddPrice(102.0, now.Add(2*time.Minute))

	if len(calculator.prices) != 2 {
		t.Fatalf("Expected 2 prices, got %d", len(calculator.prices))
	}
	if calculator.prices[0] != 101.0 || calculator.prices[1] != 102.0 {
		t.Errorf("unexpected window %v", calculator.prices)
	}
}

func TestVolatilityCalculator_RealizedVol(t *testing.T) {
	calculator := NewVolatilityCalculator(10)
	if calculator.IsReady() {
		t.Fatalf("empty calculator should not be ready")
	}
	now := time.Now()
	for i := 0; i < 5; i++ {
		calculator.AddPrice(100.0, now.Add(time.Duration(i)*time.Minute))
	}
	if vol := calculator.RealizedVol(); vol != 0.0 {
		t.Errorf("Expected zero volatility for constant prices, got %f", vol)
	}

	choppy := NewVolatilityCalculator(10)
	for i, p := range []float64{100, 102, 99, 103, 98} {
		choppy.AddPrice(p, now.Add(time.Duration(i)*time.Minute))
	}
	if vol := choppy.RealizedVol(); vol <= 0.01 {
		t.Errorf("Expected noticeable volatility, got %f", vol)
	}
}
