package engine

import (
	"sort"
	"time"

	"tradepit/pkg/engine/book"
	"tradepit/pkg/metrics"
)

func (p *pendingDelta) touch(player string) {
	if player == HouseParticipant {
		return
	}
	p.touched[player] = struct{}{}
}

// StepTick advances the whole engine by one tick: replenish house liquidity,
// step every price process, fill resting orders the new price moved through,
// release algo children, then roll volume windows. The step is synchronous
// and commits fully; an invariant violation halts the round instead.
func (e *Engine) StepTick() error {
	if !e.active {
		if e.failed {
			return e.fatal
		}
		return nil
	}
	start := time.Now()
	e.tick++

	for _, sym := range e.symbols {
		as := e.assets[sym]
		e.replenishHouse(as)

		if closed := as.price.Step(e.rng); closed != nil {
			e.pend.closed[sym] = closed
		}
		metrics.LastPrice.WithLabelValues(sym).Set(float64(as.price.Price))

		e.rematch(as)
		if e.failed {
			return e.fatal
		}
	}

	e.releaseAlgos()
	if e.failed {
		return e.fatal
	}

	for _, sym := range e.symbols {
		as := e.assets[sym]
		as.rollVolume()
		metrics.RestingOrders.WithLabelValues(sym).Set(float64(as.book.Len()))
	}

	metrics.TicksTotal.Inc()
	metrics.TickSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// replenishHouse decays the house pool back toward its cap. The decay factor
// is the fraction of the outstanding deficit restored per tick.
func (e *Engine) replenishHouse(as *assetState) {
	deficit := e.cfg.HouseDepth - as.housePool
	if deficit <= 0 || e.cfg.OrderFlowDecay <= 0 {
		return
	}
	add := int64(float64(deficit) * e.cfg.OrderFlowDecay)
	if add == 0 {
		add = 1 // integer decay must not stall short of the cap
	}
	as.housePool += add
	if as.housePool > e.cfg.HouseDepth {
		as.housePool = e.cfg.HouseDepth
	}
}

// rematch fills resting limit orders that the new reference price has reached
// or moved through, at their resting price, oldest first per level, against
// the house pool. Buys are marketable when ref <= limit, sells when
// ref >= limit. In long-only rounds a sell fill is clipped to the quantity
// actually held at fill time; an unfillable leftover is canceled.
func (e *Engine) rematch(as *assetState) {
	ref := as.price.Price

	for _, id := range as.book.MarketableBids(ref) {
		if as.housePool <= 0 {
			return
		}
		o, ok := as.book.Get(id)
		if !ok {
			continue
		}
		qty := o.Remaining
		if qty > as.housePool {
			qty = as.housePool
		}
		e.settleHouseFill(o.Owner, as, Buy, qty, o.Price)
		as.housePool -= qty
		e.reduceTracked(as, o.Owner, id, qty)
		if e.failed {
			return
		}
	}

	for _, id := range as.book.MarketableAsks(ref) {
		if as.housePool <= 0 {
			return
		}
		o, ok := as.book.Get(id)
		if !ok {
			continue
		}
		qty := o.Remaining
		if qty > as.housePool {
			qty = as.housePool
		}
		if e.cfg.LongOnly {
			held := e.heldQty(o.Owner, as.cfg.Symbol)
			if held <= 0 {
				e.Cancel(o.Owner, []OrderID{id})
				continue
			}
			if qty > held {
				qty = held
			}
		}
		e.settleHouseFill(o.Owner, as, Sell, qty, o.Price)
		as.housePool -= qty
		e.reduceTracked(as, o.Owner, id, qty)
		if e.failed {
			return
		}
		if e.cfg.LongOnly {
			if _, still := as.book.Get(id); still && e.heldQty(o.Owner, as.cfg.Symbol) <= 0 {
				e.Cancel(o.Owner, []OrderID{id})
			}
		}
	}
}

// reduceTracked consumes from a resting order and untracks it when gone.
func (e *Engine) reduceTracked(as *assetState, owner string, id book.OrderID, qty int64) {
	as.book.Reduce(id, qty)
	if _, still := as.book.Get(id); still {
		return
	}
	if ps, ok := e.players[owner]; ok {
		delete(ps.open, id)
		for _, st := range ps.algos {
			delete(st.children, id)
		}
	}
}

// releaseAlgos walks every active algo parent in deterministic order and,
// when its burst gate and participation cap allow, releases a child limit
// order at the parent's price.
func (e *Engine) releaseAlgos() {
	for _, pid := range e.playerOrder {
		ps := e.players[pid]
		if len(ps.algos) == 0 {
			continue
		}
		ids := make([]book.OrderID, 0, len(ps.algos))
		for id := range ps.algos {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			st := ps.algos[id]
			parent := st.parent
			if parent.Remaining <= 0 {
				if len(st.children) == 0 {
					delete(ps.algos, id)
					delete(ps.open, id)
					e.pend.touch(pid)
				}
				continue
			}
			ap := parent.Algo
			if ap.BurstEveryTicks > 0 && e.tick-st.lastBurst < ap.BurstEveryTicks {
				continue
			}
			as := e.assets[parent.Symbol]

			qty := ap.SliceQty
			if ap.CapPerBurst > 0 && qty > ap.CapPerBurst {
				qty = ap.CapPerBurst
			}
			if ap.ParticipationRate > 0 {
				allowed := int64(ap.ParticipationRate * float64(as.recentVolume()))
				if allowed <= 0 {
					continue // wait for traded volume
				}
				if qty > allowed {
					qty = allowed
				}
			}
			if qty > parent.Remaining {
				qty = parent.Remaining
			}
			qty -= qty % e.cfg.TradeLotSize
			if qty <= 0 {
				continue
			}

			res := e.submitLimit(ps, as, Limit, parent.Side, parent.Price, qty, 0, parent.ID)
			parent.Remaining -= qty
			st.lastBurst = e.tick
			if res.RestingID != 0 {
				st.children[res.RestingID] = struct{}{}
			}
			e.pend.touch(pid)
			if e.failed {
				return
			}
		}
	}
}

// CollectDelta drains everything that changed since the last collection into
// one consolidated outbound delta. The transport layer owns fan-out.
func (e *Engine) CollectDelta() *Delta {
	d := &Delta{Tick: e.tick, Time: e.clock.Now()}

	for _, sym := range e.symbols {
		as := e.assets[sym]
		bb, _ := as.book.BestBid()
		ba, _ := as.book.BestAsk()
		d.Assets = append(d.Assets, AssetUpdate{
			Symbol:   sym,
			Price:    as.price.Price,
			Fair:     as.price.Fair,
			TickSize: as.cfg.TickSize,
			Open:     as.price.OpenCandle(),
			Closed:   e.pend.closed[sym],
			BestBid:  bb,
			BestAsk:  ba,
			Bids:     as.book.BidDepth(5),
			Asks:     as.book.AskDepth(5),
		})
	}

	players := make([]string, 0, len(e.pend.touched))
	for id := range e.pend.touched {
		players = append(players, id)
	}
	sort.Strings(players)
	for _, id := range players {
		if pu, ok := e.playerUpdate(id); ok {
			d.Players = append(d.Players, pu)
		}
	}

	d.Executions = e.pend.execs
	d.Trades = e.pend.trades
	e.pend.reset()
	return d
}

// Depth returns the bounded book snapshot for one asset.
func (e *Engine) Depth(symbol string, maxLevels int) (*DepthSnapshot, bool) {
	as, ok := e.assets[symbol]
	if !ok {
		return nil, false
	}
	snap := &DepthSnapshot{
		Symbol:   symbol,
		TickSize: as.cfg.TickSize,
		Bids:     as.book.BidDepth(maxLevels),
		Asks:     as.book.AskDepth(maxLevels),
	}
	if bb, ok := as.book.BestBid(); ok {
		snap.BestBid = bb
	}
	if ba, ok := as.book.BestAsk(); ok {
		snap.BestAsk = ba
	}
	if snap.BestBid != 0 && snap.BestAsk != 0 {
		snap.Spread = snap.BestAsk - snap.BestBid
	}
	return snap, true
}

// PlayerView builds the full per-player update on demand.
func (e *Engine) PlayerView(id string) (PlayerUpdate, bool) {
	return e.playerUpdate(id)
}

func (e *Engine) playerUpdate(id string) (PlayerUpdate, bool) {
	ps, ok := e.players[id]
	if !ok {
		return PlayerUpdate{}, false
	}
	acc, ok := e.ledger.Account(id)
	if !ok {
		return PlayerUpdate{}, false
	}
	pu := PlayerUpdate{Player: id, Name: ps.name, Cash: acc.Cash}

	syms := make([]string, 0, len(acc.Positions))
	for sym := range acc.Positions {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		pos := acc.Positions[sym]
		if pos.Qty == 0 && pos.Realized == 0 {
			continue
		}
		var mark int64
		if as, ok := e.assets[sym]; ok {
			mark = as.price.Price
		}
		pu.Positions = append(pu.Positions, PositionView{
			Symbol:     sym,
			Qty:        pos.Qty,
			AvgCost:    pos.AvgCost,
			Realized:   pos.Realized,
			Unrealized: pos.Unrealized(mark),
		})
	}

	ids := make([]book.OrderID, 0, len(ps.open))
	for oid := range ps.open {
		ids = append(ids, oid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, oid := range ids {
		if ov, ok := e.orderView(ps, oid); ok {
			pu.OpenOrders = append(pu.OpenOrders, ov)
		}
	}
	return pu, true
}

func (e *Engine) orderView(ps *playerState, id book.OrderID) (OrderView, bool) {
	if st, ok := ps.algos[id]; ok {
		p := st.parent
		return OrderView{
			ID: p.ID, Symbol: p.Symbol, Side: p.Side, Type: p.Type,
			Price: p.Price, Qty: p.Qty, Remaining: p.Remaining,
		}, true
	}
	sym, ok := ps.open[id]
	if !ok {
		return OrderView{}, false
	}
	o, ok := e.assets[sym].book.Get(id)
	if !ok {
		return OrderView{}, false
	}
	return OrderView{
		ID: o.ID, Symbol: o.Symbol, Side: o.Side, Type: o.Type,
		Price: o.Price, Qty: o.Qty, Remaining: o.Remaining, DisplayQty: o.DisplayQty,
	}, true
}

// OpenOrders lists the player's outstanding orders.
func (e *Engine) OpenOrders(player string) []OrderView {
	ps, ok := e.players[player]
	if !ok {
		return nil
	}
	ids := make([]book.OrderID, 0, len(ps.open))
	for id := range ps.open {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]OrderView, 0, len(ids))
	for _, id := range ids {
		if ov, ok := e.orderView(ps, id); ok {
			out = append(out, ov)
		}
	}
	return out
}

// AssetPrice returns the current reference price and fair value.
func (e *Engine) AssetPrice(symbol string) (price, fair int64, ok bool) {
	as, found := e.assets[symbol]
	if !found {
		return 0, 0, false
	}
	return as.price.Price, as.price.Fair, true
}

// Symbols lists the round's assets in configuration order.
func (e *Engine) Symbols() []string {
	out := make([]string, len(e.symbols))
	copy(out, e.symbols)
	return out
}

// CandleHistory returns the closed candles for one asset, oldest first.
func (e *Engine) CandleHistory(symbol string) ([]Candle, bool) {
	as, ok := e.assets[symbol]
	if !ok {
		return nil, false
	}
	return as.price.History(), true
}
