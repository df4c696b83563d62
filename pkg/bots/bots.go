// Package bots provides the built-in strategy agents. Strategies are a
// closed set of concrete variants selected while parsing configuration;
// they act on the engine only through the capability surface
// (engine.BotContext, engine.Trader).
package bots

import (
	"fmt"

	"tradepit/params"
	"tradepit/pkg/engine"
)

// FromConfig maps a configured bot kind onto a concrete strategy.
func FromConfig(cfg params.BotConfig, seed int64) (engine.Strategy, error) {
	switch cfg.Kind {
	case "taker":
		return NewRandomizedTaker(seed), nil
	case "maker":
		return NewLadderMaker(), nil
	default:
		return nil, fmt.Errorf("bots: unknown kind %q", cfg.Kind)
	}
}
