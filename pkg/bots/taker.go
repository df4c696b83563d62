package bots

import (
	"math/rand"

	"tradepit/pkg/engine"
	"tradepit/pkg/engine/price"
)

// RandomizedTaker submits a single limit order on a throttled cadence,
// leaning with the same fair-value reversion curve the price process uses:
// the further price sits above fair, the more it wants to sell, and vice
// versa. Aggressive orders price through the opposite best to trade
// immediately; passive ones rest a few ticks behind their own side.
type RandomizedTaker struct {
	EveryTicks int64 // decision cadence
	MinQty     int64
	MaxQty     int64
	Aggression float64 // probability of pricing through the book
	RangeTicks int64   // 1..RangeTicks through or away from best

	// Reversion lean, same shape as the price process bias.
	BiasThreshold    float64
	BiasMaxDeviation float64

	// Resting orders are swept away once this many accumulate.
	MaxOpen int

	rng   *rand.Rand
	phase int64
}

func NewRandomizedTaker(seed int64) *RandomizedTaker {
	rng := rand.New(rand.NewSource(seed))
	return &RandomizedTaker{
		EveryTicks:       3,
		MinQty:           1,
		MaxQty:           5,
		Aggression:       0.45,
		RangeTicks:       4,
		BiasThreshold:    0.02,
		BiasMaxDeviation: 0.10,
		MaxOpen:          8,
		rng:              rng,
		phase:            rng.Int63n(3),
	}
}

func (b *RandomizedTaker) Decide(ctx *engine.BotContext, t engine.Trader) {
	if b.EveryTicks > 1 && (ctx.Tick+b.phase)%b.EveryTicks != 0 {
		return
	}

	if open := t.OpenOrders(); len(open) >= b.MaxOpen {
		ids := make([]engine.OrderID, len(open))
		for i, o := range open {
			ids[i] = o.ID
		}
		t.Cancel(ids...)
	}

	deviation := float64(ctx.Price-ctx.Fair) / float64(ctx.Fair)
	lean := price.ReversionBias(deviation, b.BiasThreshold, b.BiasMaxDeviation)
	buyProb := 0.5
	if deviation > 0 {
		buyProb = 1 - lean // rich vs fair: prefer selling
	} else if deviation < 0 {
		buyProb = lean
	}

	side := engine.Sell
	if b.rng.Float64() < buyProb {
		side = engine.Buy
	}
	qty := b.MinQty + b.rng.Int63n(b.MaxQty-b.MinQty+1)
	ticks := 1 + b.rng.Int63n(b.RangeTicks)
	offset := ticks * ctx.TickSize
	aggressive := b.rng.Float64() < b.Aggression

	var px int64
	if side == engine.Buy {
		if aggressive {
			px = pick(ctx.BestAsk, ctx.Mid()) + offset
		} else {
			px = pick(ctx.BestBid, ctx.Mid()) - offset
		}
	} else {
		if aggressive {
			px = pick(ctx.BestBid, ctx.Mid()) - offset
		} else {
			px = pick(ctx.BestAsk, ctx.Mid()) + offset
		}
	}
	if px < ctx.TickSize {
		px = ctx.TickSize
	}

	t.Submit(engine.Intent{
		Symbol: ctx.Symbol,
		Type:   engine.Limit,
		Side:   side,
		Price:  px,
		Qty:    qty,
	})
}

func pick(best, fallback int64) int64 {
	if best > 0 {
		return best
	}
	return fallback
}
