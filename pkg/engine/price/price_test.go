package price

import (
	"math/rand"
	"testing"
)

func testConfig() Config {
	return Config{
		Symbol:           "PIT",
		Start:            1000,
		TickSize:         5,
		CandleTicks:      4,
		History:          3,
		BiasThreshold:    0.02,
		BiasMaxDeviation: 0.10,
	}
}

func TestStepMovesExactlyOneTick(t *testing.T) {
	a := New(testConfig())
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		prev := a.Price
		a.Step(rng)
		diff := a.Price - prev
		if diff != 5 && diff != -5 {
			t.Fatalf("step %d moved by %d, want ±5", i, diff)
		}
		if a.Price%5 != 0 {
			t.Fatalf("price %d off the tick grid", a.Price)
		}
	}
}

func TestDeterministicForSeed(t *testing.T) {
	a := New(testConfig())
	b := New(testConfig())
	rngA := rand.New(rand.NewSource(42))
	rngB := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		a.Step(rngA)
		b.Step(rngB)
		if a.Price != b.Price {
			t.Fatalf("tick %d: prices diverged, %d vs %d", i, a.Price, b.Price)
		}
	}
}

func TestFairDefaultsToStart(t *testing.T) {
	a := New(testConfig())
	if a.Fair != 1000 {
		t.Errorf("fair = %d, want 1000", a.Fair)
	}
	cfg := testConfig()
	cfg.Fair = 1200
	if b := New(cfg); b.Fair != 1200 {
		t.Errorf("fair = %d, want 1200", b.Fair)
	}
}

func TestPriceFloor(t *testing.T) {
	cfg := testConfig()
	cfg.Start = 5 // one tick above zero
	cfg.Fair = 5
	a := New(cfg)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		a.Step(rng)
		if a.Price < 5 {
			t.Fatalf("price %d fell below one tick", a.Price)
		}
	}
}

func TestCandleAggregation(t *testing.T) {
	a := New(testConfig())
	rng := rand.New(rand.NewSource(9))

	var closed []Candle
	for i := 0; i < 12; i++ {
		if c := a.Step(rng); c != nil {
			closed = append(closed, *c)
		}
	}
	if len(closed) != 3 {
		t.Fatalf("closed %d candles over 12 ticks, want 3", len(closed))
	}
	for i, c := range closed {
		if c.Ticks != 4 {
			t.Errorf("candle %d spans %d ticks, want 4", i, c.Ticks)
		}
		if c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close {
			t.Errorf("candle %d OHLC inconsistent: %+v", i, c)
		}
	}
	// Each candle opens at the previous close.
	for i := 1; i < len(closed); i++ {
		if closed[i].Open != closed[i-1].Close {
			t.Errorf("candle %d opens at %d, previous closed at %d", i, closed[i].Open, closed[i-1].Close)
		}
	}
}

func TestHistoryBounded(t *testing.T) {
	a := New(testConfig())
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		a.Step(rng)
	}
	if len(a.History()) != 3 {
		t.Errorf("history holds %d candles, want cap 3", len(a.History()))
	}
}

func TestReversionBias(t *testing.T) {
	tests := []struct {
		name      string
		deviation float64
		want      float64
	}{
		{"inside threshold", 0.01, 0.5},
		{"at threshold", 0.02, 0.5},
		{"midway", 0.06, 0.75},
		{"at max deviation", 0.10, 1.0},
		{"beyond max", 0.50, 1.0},
		{"negative deviation mirrors", -0.06, 0.75},
	}
	for _, tt := range tests {
		got := ReversionBias(tt.deviation, 0.02, 0.10)
		if got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("%s: bias(%v) = %v, want %v", tt.name, tt.deviation, got, tt.want)
		}
	}
}

func TestBiasPullsTowardFair(t *testing.T) {
	cfg := testConfig()
	cfg.Start = 1200 // 20% above fair 1000, beyond max deviation
	cfg.Fair = 1000
	a := New(cfg)
	rng := rand.New(rand.NewSource(11))
	a.Step(rng)
	if a.Price != 1195 {
		t.Errorf("price = %d, want forced step down to 1195", a.Price)
	}
}
