package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultRoundValid(t *testing.T) {
	if err := Default().Round.Validate(); err != nil {
		t.Fatalf("default round invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Default().Round

	tests := []struct {
		name    string
		mutate  func(*Round)
		wantErr bool
	}{
		{"valid", func(r *Round) {}, false},
		{"zero tick", func(r *Round) { r.TickMs = 0 }, true},
		{"negative cash", func(r *Round) { r.InitialCash = -1 }, true},
		{"zero lot", func(r *Round) { r.TradeLotSize = 0 }, true},
		{"decay above one", func(r *Round) { r.OrderFlowDecay = 1.5 }, true},
		{"no assets", func(r *Round) { r.Assets = nil }, true},
		{"empty symbol", func(r *Round) { r.Assets[0].Symbol = "" }, true},
		{"zero start price", func(r *Round) { r.Assets[0].StartPrice = 0 }, true},
		{"start off tick grid", func(r *Round) { r.Assets[0].StartPrice = 1003 }, true},
		{"unknown bot kind", func(r *Round) { r.Bots[0].Kind = "martingale" }, true},
	}
	for _, tt := range tests {
		r := base
		r.Assets = append([]AssetConfig(nil), base.Assets...)
		r.Bots = append([]BotConfig(nil), base.Bots...)
		tt.mutate(&r)
		err := r.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestTickInterval(t *testing.T) {
	r := Round{TickMs: 250}
	if got := r.TickInterval(); got != 250*time.Millisecond {
		t.Errorf("interval = %v, want 250ms", got)
	}
}

func TestLoadRoundFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round.yaml")
	yaml := `
tick_ms: 100
long_only: true
seed: 42
assets:
  - symbol: PIT
    start_price: 2000
    tick_size: 10
    candle_ticks: 6
bots:
  - id: bot-1
    name: Taker
    kind: taker
    symbol: PIT
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	round, err := LoadRoundFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if round.TickMs != 100 || !round.LongOnly || round.Seed != 42 {
		t.Errorf("round knobs = %+v", round)
	}
	// Unset knobs keep their defaults.
	if round.InitialCash != Default().Round.InitialCash {
		t.Errorf("initial cash = %v, want default", round.InitialCash)
	}
	if len(round.Assets) != 1 || round.Assets[0].StartPrice != 2000 || round.Assets[0].TickSize != 10 {
		t.Errorf("assets = %+v", round.Assets)
	}
	if len(round.Bots) != 1 || round.Bots[0].Kind != "taker" {
		t.Errorf("bots = %+v", round.Bots)
	}
}

func TestLoadRoundFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "round.yaml")
	if err := os.WriteFile(path, []byte("tick_ms: 100\nassets: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRoundFile(path); err == nil {
		t.Error("round without assets should fail validation")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("TICK_MS", "125")
	t.Setenv("LONG_ONLY", "true")
	t.Setenv("ROUND_SEED", "7")

	cfg := LoadFromEnv("")
	if cfg.Listen != ":9999" {
		t.Errorf("listen = %s", cfg.Listen)
	}
	if cfg.Round.TickMs != 125 || !cfg.Round.LongOnly || cfg.Round.Seed != 7 {
		t.Errorf("round = %+v", cfg.Round)
	}
}
