package params

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AssetConfig describes one tradable asset for a round.
type AssetConfig struct {
	Symbol      string `yaml:"symbol"`
	StartPrice  int64  `yaml:"start_price"`
	FairValue   int64  `yaml:"fair_value"` // 0 = anchor at start price
	TickSize    int64  `yaml:"tick_size"`
	CandleTicks int    `yaml:"candle_ticks"`
}

// BotConfig selects a strategy variant for one automated participant. Kind is
// parsed once at configuration time into a concrete strategy.
type BotConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"` // "taker" or "maker"
	Symbol string `yaml:"symbol"`
}

// Round carries everything the engine needs for one round.
type Round struct {
	TickMs        int     `yaml:"tick_ms"`
	InitialCash   float64 `yaml:"initial_cash"`
	MaxPosition   int64   `yaml:"max_position"` // absolute ceiling, 0 = unlimited
	LongOnly      bool    `yaml:"long_only"`
	MaxLoss       float64 `yaml:"max_loss"` // advisory stop threshold, enforced externally
	MaxCrossTicks int64   `yaml:"max_cross_ticks"`
	TradeLotSize  int64   `yaml:"trade_lot_size"`

	// House liquidity: market-order remainders and newly marketable resting
	// limits fill against a synthetic per-asset pool of HouseDepth lots that
	// replenishes geometrically by OrderFlowDecay each tick.
	HouseDepth     int64   `yaml:"house_depth"`
	OrderFlowDecay float64 `yaml:"order_flow_decay"`

	CandleHistory int   `yaml:"candle_history"`
	Seed          int64 `yaml:"seed"` // 0 = time-seeded

	BiasThreshold    float64 `yaml:"bias_threshold"`
	BiasMaxDeviation float64 `yaml:"bias_max_deviation"`

	Assets []AssetConfig `yaml:"assets"`
	Bots   []BotConfig   `yaml:"bots"`
}

func (r Round) TickInterval() time.Duration {
	return time.Duration(r.TickMs) * time.Millisecond
}

type Config struct {
	Listen      string // api listen address
	JournalPath string // pebble journal dir, "" = journaling off
	LogPath     string // "" = console only
	Round       Round
}

func Default() Config {
	return Config{
		Listen:      ":8080",
		JournalPath: "",
		Round: Round{
			TickMs:           250,
			InitialCash:      100_000,
			MaxPosition:      0,
			LongOnly:         false,
			MaxCrossTicks:    10,
			TradeLotSize:     1,
			HouseDepth:       50,
			OrderFlowDecay:   0.25,
			CandleHistory:    120,
			BiasThreshold:    0.02,
			BiasMaxDeviation: 0.10,
			Assets: []AssetConfig{
				{Symbol: "PIT", StartPrice: 1000, TickSize: 5, CandleTicks: 8},
			},
			Bots: []BotConfig{
				{ID: "bot-taker-1", Name: "Taker One", Kind: "taker", Symbol: "PIT"},
				{ID: "bot-maker-1", Name: "Maker One", Kind: "maker", Symbol: "PIT"},
			},
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.JournalPath = v
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("TICK_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Round.TickMs = ms
		}
	}
	if v := os.Getenv("ROUND_SEED"); v != "" {
		if s, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Round.Seed = s
		}
	}
	if v := os.Getenv("LONG_ONLY"); v != "" {
		cfg.Round.LongOnly = v == "true"
	}
	if v := os.Getenv("INITIAL_CASH"); v != "" {
		if c, err := strconv.ParseFloat(v, 64); err == nil && c > 0 {
			cfg.Round.InitialCash = c
		}
	}

	if v := os.Getenv("ROUND_FILE"); v != "" {
		round, err := LoadRoundFile(v)
		if err == nil {
			cfg.Round = round
		}
	}

	return cfg
}

// LoadRoundFile reads a full round definition (assets, bots, knobs) from a
// YAML file. Zero-valued knobs fall back to defaults.
func LoadRoundFile(path string) (Round, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Round{}, fmt.Errorf("read round file: %w", err)
	}
	round := Default().Round
	round.Assets = nil
	round.Bots = nil
	if err := yaml.Unmarshal(raw, &round); err != nil {
		return Round{}, fmt.Errorf("parse round file: %w", err)
	}
	if err := round.Validate(); err != nil {
		return Round{}, err
	}
	return round, nil
}

// Validate rejects rounds that the engine could not start.
func (r Round) Validate() error {
	if r.TickMs <= 0 {
		return fmt.Errorf("tick_ms must be positive, got %d", r.TickMs)
	}
	if r.InitialCash <= 0 {
		return fmt.Errorf("initial_cash must be positive, got %v", r.InitialCash)
	}
	if r.TradeLotSize <= 0 {
		return fmt.Errorf("trade_lot_size must be positive, got %d", r.TradeLotSize)
	}
	if r.OrderFlowDecay < 0 || r.OrderFlowDecay > 1 {
		return fmt.Errorf("order_flow_decay must be within [0,1], got %v", r.OrderFlowDecay)
	}
	if len(r.Assets) == 0 {
		return fmt.Errorf("round needs at least one asset")
	}
	for _, a := range r.Assets {
		if a.Symbol == "" {
			return fmt.Errorf("asset symbol cannot be empty")
		}
		if a.StartPrice <= 0 {
			return fmt.Errorf("asset %s: start_price must be positive", a.Symbol)
		}
		if a.TickSize <= 0 {
			return fmt.Errorf("asset %s: tick_size must be positive", a.Symbol)
		}
		if a.StartPrice%a.TickSize != 0 {
			return fmt.Errorf("asset %s: start_price %d not on tick grid %d", a.Symbol, a.StartPrice, a.TickSize)
		}
	}
	for _, b := range r.Bots {
		switch b.Kind {
		case "taker", "maker":
		default:
			return fmt.Errorf("bot %s: unknown kind %q", b.ID, b.Kind)
		}
	}
	return nil
}
