package engine

import "time"

// AssetUpdate is the per-tick market data for one asset.
type AssetUpdate struct {
	Symbol   string  `json:"symbol"`
	Price    int64   `json:"price"`
	Fair     int64   `json:"fair"`
	TickSize int64   `json:"tickSize"`
	Open     Candle  `json:"open"`
	Closed   *Candle `json:"closed,omitempty"` // candle that completed this tick, if any
	BestBid  int64   `json:"bestBid,omitempty"`
	BestAsk  int64   `json:"bestAsk,omitempty"`
	Bids     []Level `json:"bids,omitempty"`
	Asks     []Level `json:"asks,omitempty"`
}

// PositionView is a position marked at the current reference price.
type PositionView struct {
	Symbol     string  `json:"symbol"`
	Qty        int64   `json:"qty"`
	AvgCost    float64 `json:"avgCost"`
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
}

// PlayerUpdate is emitted for every player whose ledger or open orders
// changed since the last delta.
type PlayerUpdate struct {
	Player     string         `json:"player"`
	Name       string         `json:"name"`
	Cash       float64        `json:"cash"`
	Positions  []PositionView `json:"positions"`
	OpenOrders []OrderView    `json:"openOrders"`
}

// DepthSnapshot is the bounded order-book view for one asset.
type DepthSnapshot struct {
	Symbol   string  `json:"symbol"`
	TickSize int64   `json:"tickSize"`
	Bids     []Level `json:"bids"`
	Asks     []Level `json:"asks"`
	BestBid  int64   `json:"bestBid,omitempty"`
	BestAsk  int64   `json:"bestAsk,omitempty"`
	Spread   int64   `json:"spread,omitempty"`
}

// Delta is the consolidated outbound state change from one core operation or
// one full tick. The core returns it; the transport layer decides fan-out.
type Delta struct {
	Tick       int64          `json:"tick"`
	Time       time.Time      `json:"time"`
	Assets     []AssetUpdate  `json:"assets,omitempty"`
	Players    []PlayerUpdate `json:"players,omitempty"`
	Executions []Execution    `json:"executions,omitempty"`
	Trades     []Trade        `json:"trades,omitempty"`
}
