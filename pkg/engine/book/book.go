// Package book implements a single-asset limit order book with price-time
// priority. Price levels are FIFO queues keyed by integer price; best-price
// lookup is O(1) via max/min heaps of level prices. The book owns the arena of
// resting orders; callers hold only OrderIDs.
package book

import (
	"container/heap"
	"sort"
)

// Fill records one match against a resting (maker) order.
type Fill struct {
	MakerID    OrderID
	MakerOwner string
	Price      int64
	Qty        int64
}

// Level is an aggregated displayed quantity at one price.
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

type Book struct {
	tickSize int64

	bidHeap maxPriceHeap
	askHeap minPriceHeap
	bids    map[int64][]OrderID
	asks    map[int64][]OrderID

	// Arena: every resting order, lit or dark, lives here and nowhere else.
	orders map[OrderID]*Order
	dark   map[OrderID]struct{}
}

func New(tickSize int64) *Book {
	b := &Book{
		tickSize: tickSize,
		bids:     make(map[int64][]OrderID),
		asks:     make(map[int64][]OrderID),
		orders:   make(map[OrderID]*Order),
		dark:     make(map[OrderID]struct{}),
	}
	heap.Init(&b.bidHeap)
	heap.Init(&b.askHeap)
	return b
}

func (b *Book) TickSize() int64 { return b.tickSize }

// Get returns the resting order for id, if any. The returned pointer stays
// owned by the arena.
func (b *Book) Get(id OrderID) (*Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

func (b *Book) Len() int { return len(b.orders) }

// Insert rests an order. Dark orders join the dark pool only; everything else
// is appended to its price level, creating the level if needed.
func (b *Book) Insert(o *Order) {
	b.orders[o.ID] = o
	if o.Type == Dark {
		b.dark[o.ID] = struct{}{}
		return
	}
	if o.Side == Buy {
		if len(b.bids[o.Price]) == 0 {
			heap.Push(&b.bidHeap, o.Price)
		}
		b.bids[o.Price] = append(b.bids[o.Price], o.ID)
	} else {
		if len(b.asks[o.Price]) == 0 {
			heap.Push(&b.askHeap, o.Price)
		}
		b.asks[o.Price] = append(b.asks[o.Price], o.ID)
	}
}

// Cancel removes a resting order. Idempotent: an unknown or already-filled id
// returns false.
func (b *Book) Cancel(id OrderID) (*Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	b.unlink(o)
	return o, true
}

// Reduce consumes qty from a resting order, removing it from the book once
// nothing remains. Returns the order.
func (b *Book) Reduce(id OrderID, qty int64) (*Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	o.Remaining -= qty
	if o.Remaining <= 0 {
		o.Remaining = 0
		b.unlink(o)
	}
	return o, true
}

func (b *Book) unlink(o *Order) {
	delete(b.orders, o.ID)
	if o.Type == Dark {
		delete(b.dark, o.ID)
		return
	}
	levels := b.bids
	if o.Side == Sell {
		levels = b.asks
	}
	arr := levels[o.Price]
	for i, id := range arr {
		if id == o.ID {
			levels[o.Price] = append(arr[:i], arr[i+1:]...)
			break
		}
	}
	if len(levels[o.Price]) == 0 {
		delete(levels, o.Price)
		b.dropLevel(o.Side, o.Price)
	}
}

// dropLevel removes a now-empty price level from its heap. Linear scan, but
// heaps only hold distinct level prices.
func (b *Book) dropLevel(side Side, price int64) {
	if side == Buy {
		for i := 0; i < b.bidHeap.Len(); i++ {
			if b.bidHeap[i] == price {
				heap.Remove(&b.bidHeap, i)
				return
			}
		}
		return
	}
	for i := 0; i < b.askHeap.Len(); i++ {
		if b.askHeap[i] == price {
			heap.Remove(&b.askHeap, i)
			return
		}
	}
}

func (b *Book) BestBid() (int64, bool) {
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.peek(), true
}

func (b *Book) BestAsk() (int64, bool) {
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.peek(), true
}

// Match sweeps the side opposite to taker, consuming resting quantity
// oldest-first within a level, best level first. limit is the taker's price
// bound (0 = no bound, i.e. market). maxCross bounds how far, in price units
// from the best level at sweep start, the taker may walk (0 = unbounded).
// Iceberg makers are consumed through their full remainder: display refills
// from the hidden part immediately and the order keeps its time priority, so
// DisplayQty caps only what depth queries report.
//
// Match mutates maker remainders and prunes exhausted orders and levels.
// It returns the fills and the taker quantity left over.
func (b *Book) Match(taker Side, qty int64, limit int64, maxCross int64) ([]Fill, int64) {
	var fills []Fill

	var sweepBound int64
	haveBound := false
	for qty > 0 {
		var levelPrice int64
		var ok bool
		if taker == Buy {
			levelPrice, ok = b.BestAsk()
		} else {
			levelPrice, ok = b.BestBid()
		}
		if !ok {
			break
		}
		if limit != 0 {
			if taker == Buy && levelPrice > limit {
				break
			}
			if taker == Sell && levelPrice < limit {
				break
			}
		}
		if maxCross > 0 {
			if !haveBound {
				if taker == Buy {
					sweepBound = levelPrice + maxCross*b.tickSize
				} else {
					sweepBound = levelPrice - maxCross*b.tickSize
				}
				haveBound = true
			}
			if taker == Buy && levelPrice > sweepBound {
				break
			}
			if taker == Sell && levelPrice < sweepBound {
				break
			}
		}

		levels := b.asks
		if taker == Sell {
			levels = b.bids
		}
		queue := levels[levelPrice]
		if len(queue) == 0 {
			// Defensive: empty levels are pruned eagerly, so this
			// indicates heap/map drift.
			delete(levels, levelPrice)
			b.dropLevel(taker.Opposite(), levelPrice)
			continue
		}

		maker := b.orders[queue[0]]
		match := qty
		if maker.Remaining < match {
			match = maker.Remaining
		}
		qty -= match
		fills = append(fills, Fill{MakerID: maker.ID, MakerOwner: maker.Owner, Price: levelPrice, Qty: match})
		b.Reduce(maker.ID, match)
	}
	return fills, qty
}

// MarketableBids returns ids of resting buy orders whose limit the reference
// price has reached or moved through (price <= limit), best level first, FIFO
// within a level.
func (b *Book) MarketableBids(ref int64) []OrderID {
	var out []OrderID
	for _, p := range b.bidPrices() {
		if p < ref {
			break
		}
		out = append(out, b.bids[p]...)
	}
	return out
}

// MarketableAsks returns ids of resting sell orders with limit <= ref.
func (b *Book) MarketableAsks(ref int64) []OrderID {
	var out []OrderID
	for _, p := range b.askPrices() {
		if p > ref {
			break
		}
		out = append(out, b.asks[p]...)
	}
	return out
}

func (b *Book) bidPrices() []int64 {
	prices := make([]int64, 0, len(b.bids))
	for p := range b.bids {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] > prices[j] })
	return prices
}

func (b *Book) askPrices() []int64 {
	prices := make([]int64, 0, len(b.asks))
	for p := range b.asks {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	return prices
}

// BidDepth aggregates displayed bid quantity per level, best first, up to
// maxLevels (0 = all). Dark orders never appear; icebergs contribute at most
// their displayed quantity.
func (b *Book) BidDepth(maxLevels int) []Level {
	return b.depth(b.bids, b.bidPrices(), maxLevels)
}

// AskDepth aggregates displayed ask quantity per level, best first.
func (b *Book) AskDepth(maxLevels int) []Level {
	return b.depth(b.asks, b.askPrices(), maxLevels)
}

func (b *Book) depth(levels map[int64][]OrderID, prices []int64, maxLevels int) []Level {
	var out []Level
	for _, p := range prices {
		if maxLevels > 0 && len(out) >= maxLevels {
			break
		}
		var qty int64
		for _, id := range levels[p] {
			qty += b.orders[id].Displayed()
		}
		out = append(out, Level{Price: p, Qty: qty})
	}
	return out
}
