package bots

import (
	"tradepit/pkg/engine"
)

// LadderMaker keeps a symmetric ladder of resting limit orders around the
// mid price. It is a no-op on most ticks: the ladder is torn down and
// re-quoted only when displayed depth near the mid has thinned out, the mid
// has drifted, the refresh budget has elapsed, or one of its own quotes has
// been eaten below the tracked size.
type LadderMaker struct {
	Levels      int   // rungs per side
	QtyPerLevel int64 // lots per rung
	GapTicks    int64 // rung spacing

	RadiusTicks  int64 // depth scan radius around mid
	MinDepth     int64 // re-quote when displayed depth within radius drops below
	DriftTicks   int64 // re-quote when mid moved this many ticks from anchor
	RefreshEvery int64 // re-quote at least this often, ticks
	MinOwnQty    int64 // re-quote when any own rung drops below

	placed      []engine.OrderID
	anchorMid   int64
	lastRefresh int64
}

func NewLadderMaker() *LadderMaker {
	return &LadderMaker{
		Levels:       3,
		QtyPerLevel:  5,
		GapTicks:     1,
		RadiusTicks:  4,
		MinDepth:     10,
		DriftTicks:   3,
		RefreshEvery: 40,
		MinOwnQty:    2,
	}
}

func (b *LadderMaker) Decide(ctx *engine.BotContext, t engine.Trader) {
	mid := ctx.Mid()
	if mid <= 0 {
		return
	}
	if !b.needsRefresh(ctx, t, mid) {
		return
	}

	if len(b.placed) > 0 {
		t.Cancel(b.placed...)
		b.placed = b.placed[:0]
	}

	gap := b.GapTicks * ctx.TickSize
	for i := 1; i <= b.Levels; i++ {
		bid := mid - int64(i)*gap
		ask := mid + int64(i)*gap
		if bid >= ctx.TickSize {
			if res := t.Submit(engine.Intent{
				Symbol: ctx.Symbol, Type: engine.Limit, Side: engine.Buy,
				Price: bid, Qty: b.QtyPerLevel,
			}); res.RestingID != 0 {
				b.placed = append(b.placed, res.RestingID)
			}
		}
		if res := t.Submit(engine.Intent{
			Symbol: ctx.Symbol, Type: engine.Limit, Side: engine.Sell,
			Price: ask, Qty: b.QtyPerLevel,
		}); res.RestingID != 0 {
			b.placed = append(b.placed, res.RestingID)
		}
	}
	b.anchorMid = mid
	b.lastRefresh = ctx.Tick
}

func (b *LadderMaker) needsRefresh(ctx *engine.BotContext, t engine.Trader, mid int64) bool {
	if len(b.placed) == 0 {
		return true
	}
	if abs(mid-b.anchorMid) >= b.DriftTicks*ctx.TickSize {
		return true
	}
	if ctx.Tick-b.lastRefresh >= b.RefreshEvery {
		return true
	}
	if b.depthWithin(ctx, mid) < b.MinDepth {
		return true
	}

	own := make(map[engine.OrderID]int64)
	for _, o := range t.OpenOrders() {
		own[o.ID] = o.Remaining
	}
	for _, id := range b.placed {
		if own[id] < b.MinOwnQty {
			return true
		}
	}
	return false
}

// depthWithin sums displayed quantity on both sides within RadiusTicks of
// the mid.
func (b *LadderMaker) depthWithin(ctx *engine.BotContext, mid int64) int64 {
	radius := b.RadiusTicks * ctx.TickSize
	var sum int64
	for _, l := range ctx.Bids {
		if mid-l.Price <= radius {
			sum += l.Qty
		}
	}
	for _, l := range ctx.Asks {
		if l.Price-mid <= radius {
			sum += l.Qty
		}
	}
	return sum
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
