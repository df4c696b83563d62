package engine

import "time"

// BotContext is the market snapshot handed to a strategy each tick. It is a
// value copy; strategies cannot reach engine state through it.
type BotContext struct {
	Tick     int64
	Now      time.Time
	Symbol   string
	Price    int64
	Fair     int64
	TickSize int64
	BestBid  int64 // 0 when the side is empty
	BestAsk  int64
	Bids     []Level
	Asks     []Level
}

func (c *BotContext) Mid() int64 {
	switch {
	case c.BestBid > 0 && c.BestAsk > 0:
		return (c.BestBid + c.BestAsk) / 2
	case c.BestBid > 0:
		return c.BestBid
	case c.BestAsk > 0:
		return c.BestAsk
	default:
		return c.Price
	}
}

// Trader is the capability set a strategy acts through: submit, cancel and
// query its own resting orders. Nothing else is reachable.
type Trader interface {
	Submit(in Intent) SubmitResult
	Cancel(ids ...OrderID) []OrderID
	OpenOrders() []OrderView
}

// Strategy is a pluggable bot decision function, ticked alongside human
// players. Implementations are chosen at configuration time; there is no
// runtime registry.
type Strategy interface {
	Decide(ctx *BotContext, t Trader)
}

// boundTrader grants one player's capabilities on the engine. It is only
// handed to strategies inside the scheduler's execution context.
type boundTrader struct {
	eng    *Engine
	player string
}

func (t boundTrader) Submit(in Intent) SubmitResult { return t.eng.Submit(t.player, in) }
func (t boundTrader) Cancel(ids ...OrderID) []OrderID {
	return t.eng.Cancel(t.player, ids)
}
func (t boundTrader) OpenOrders() []OrderView { return t.eng.OpenOrders(t.player) }

// botContext builds the per-asset snapshot for strategies.
func (e *Engine) botContext(symbol string) (*BotContext, bool) {
	as, ok := e.assets[symbol]
	if !ok {
		return nil, false
	}
	bb, _ := as.book.BestBid()
	ba, _ := as.book.BestAsk()
	return &BotContext{
		Tick:     e.tick,
		Now:      e.clock.Now(),
		Symbol:   symbol,
		Price:    as.price.Price,
		Fair:     as.price.Fair,
		TickSize: as.cfg.TickSize,
		BestBid:  bb,
		BestAsk:  ba,
		Bids:     as.book.BidDepth(10),
		Asks:     as.book.AskDepth(10),
	}, true
}
