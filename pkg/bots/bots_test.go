package bots

import (
	"testing"

	"tradepit/params"
	"tradepit/pkg/engine"
)

// fakeTrader records submissions and cancellations without an engine.
type fakeTrader struct {
	submits []engine.Intent
	cancels []engine.OrderID
	open    []engine.OrderView
	nextID  engine.OrderID
}

func (f *fakeTrader) Submit(in engine.Intent) engine.SubmitResult {
	f.submits = append(f.submits, in)
	f.nextID++
	return engine.SubmitResult{Accepted: true, RestingID: f.nextID}
}

func (f *fakeTrader) Cancel(ids ...engine.OrderID) []engine.OrderID {
	f.cancels = append(f.cancels, ids...)
	return ids
}

func (f *fakeTrader) OpenOrders() []engine.OrderView { return f.open }

func marketCtx(tick int64) *engine.BotContext {
	return &engine.BotContext{
		Tick:     tick,
		Symbol:   "PIT",
		Price:    1000,
		Fair:     1000,
		TickSize: 5,
		BestBid:  995,
		BestAsk:  1005,
		Bids:     []engine.Level{{Price: 995, Qty: 20}},
		Asks:     []engine.Level{{Price: 1005, Qty: 20}},
	}
}

func TestFromConfig(t *testing.T) {
	if _, err := FromConfig(params.BotConfig{Kind: "taker"}, 1); err != nil {
		t.Errorf("taker: %v", err)
	}
	if _, err := FromConfig(params.BotConfig{Kind: "maker"}, 1); err != nil {
		t.Errorf("maker: %v", err)
	}
	if _, err := FromConfig(params.BotConfig{Kind: "martingale"}, 1); err == nil {
		t.Error("unknown kind should error")
	}
}

func TestTakerCadence(t *testing.T) {
	b := NewRandomizedTaker(1)
	ft := &fakeTrader{}

	for tick := int64(1); tick <= 30; tick++ {
		b.Decide(marketCtx(tick), ft)
	}
	// EveryTicks = 3: exactly a third of the ticks act.
	if len(ft.submits) != 10 {
		t.Errorf("submitted %d orders over 30 ticks, want 10", len(ft.submits))
	}
}

func TestTakerOrdersAreSane(t *testing.T) {
	b := NewRandomizedTaker(7)
	ft := &fakeTrader{}

	for tick := int64(1); tick <= 300; tick++ {
		b.Decide(marketCtx(tick), ft)
	}
	for i, in := range ft.submits {
		if in.Type != engine.Limit {
			t.Fatalf("submit %d: type %v, want limit", i, in.Type)
		}
		if in.Qty < b.MinQty || in.Qty > b.MaxQty {
			t.Fatalf("submit %d: qty %d outside [%d,%d]", i, in.Qty, b.MinQty, b.MaxQty)
		}
		if in.Price < 5 {
			t.Fatalf("submit %d: price %d below one tick", i, in.Price)
		}
	}
}

func TestTakerLeansTowardFair(t *testing.T) {
	b := NewRandomizedTaker(3)
	ft := &fakeTrader{}

	// Price far above fair: the reversion lean should make sells dominate.
	ctx := marketCtx(0)
	ctx.Price = 1200
	ctx.BestBid = 1195
	ctx.BestAsk = 1205

	var buys, sells int
	for tick := int64(1); tick <= 900; tick++ {
		ctx.Tick = tick
		b.Decide(ctx, ft)
	}
	for _, in := range ft.submits {
		if in.Side == engine.Buy {
			buys++
		} else {
			sells++
		}
	}
	if sells <= buys {
		t.Errorf("rich market: %d sells vs %d buys, want sell-heavy", sells, buys)
	}
}

func TestTakerSweepsAtMaxOpen(t *testing.T) {
	b := NewRandomizedTaker(1)
	ft := &fakeTrader{}
	for i := 0; i < b.MaxOpen; i++ {
		ft.open = append(ft.open, engine.OrderView{ID: engine.OrderID(i + 1)})
	}

	for tick := int64(1); tick <= 3; tick++ {
		b.Decide(marketCtx(tick), ft)
	}
	if len(ft.cancels) != b.MaxOpen {
		t.Errorf("canceled %d orders, want all %d", len(ft.cancels), b.MaxOpen)
	}
}

func TestMakerQuotesLadder(t *testing.T) {
	b := NewLadderMaker()
	ft := &fakeTrader{}

	b.Decide(marketCtx(1), ft)

	if len(ft.submits) != 2*b.Levels {
		t.Fatalf("submitted %d orders, want %d rungs", len(ft.submits), 2*b.Levels)
	}
	var bids, asks int
	for _, in := range ft.submits {
		if in.Type != engine.Limit || in.Qty != b.QtyPerLevel {
			t.Fatalf("rung = %+v", in)
		}
		mid := int64(1000)
		if in.Side == engine.Buy {
			bids++
			if in.Price >= mid {
				t.Errorf("bid rung at %d crosses mid", in.Price)
			}
		} else {
			asks++
			if in.Price <= mid {
				t.Errorf("ask rung at %d crosses mid", in.Price)
			}
		}
	}
	if bids != b.Levels || asks != b.Levels {
		t.Errorf("ladder = %d bids / %d asks, want %d each", bids, asks, b.Levels)
	}
}

func TestMakerHoldsWhileLadderHealthy(t *testing.T) {
	b := NewLadderMaker()
	ft := &fakeTrader{}

	b.Decide(marketCtx(1), ft)
	placed := len(ft.submits)

	// Mirror the placed ladder as the bot's open orders at full size.
	for i, in := range ft.submits {
		ft.open = append(ft.open, engine.OrderView{
			ID: engine.OrderID(i + 1), Remaining: in.Qty,
		})
	}

	b.Decide(marketCtx(2), ft)
	if len(ft.submits) != placed {
		t.Errorf("re-quoted with a healthy ladder: %d new orders", len(ft.submits)-placed)
	}
}

func TestMakerRequotesOnDrift(t *testing.T) {
	b := NewLadderMaker()
	ft := &fakeTrader{}

	b.Decide(marketCtx(1), ft)
	placed := len(ft.submits)
	for i, in := range ft.submits {
		ft.open = append(ft.open, engine.OrderView{ID: engine.OrderID(i + 1), Remaining: in.Qty})
	}

	// Mid moves DriftTicks away: tear down and re-quote around the new mid.
	ctx := marketCtx(2)
	ctx.BestBid += b.DriftTicks * ctx.TickSize
	ctx.BestAsk += b.DriftTicks * ctx.TickSize
	b.Decide(ctx, ft)

	if len(ft.cancels) != placed {
		t.Errorf("canceled %d, want the whole ladder of %d", len(ft.cancels), placed)
	}
	if len(ft.submits) != 2*placed {
		t.Errorf("submitted %d total, want a fresh ladder", len(ft.submits)-placed)
	}
}

func TestMakerRequotesWhenRungEaten(t *testing.T) {
	b := NewLadderMaker()
	ft := &fakeTrader{}

	b.Decide(marketCtx(1), ft)
	placed := len(ft.submits)
	for i, in := range ft.submits {
		rem := in.Qty
		if i == 0 {
			rem = b.MinOwnQty - 1 // one rung nearly consumed
		}
		ft.open = append(ft.open, engine.OrderView{ID: engine.OrderID(i + 1), Remaining: rem})
	}

	b.Decide(marketCtx(2), ft)
	if len(ft.submits) == placed {
		t.Error("eaten rung should trigger a re-quote")
	}
}
