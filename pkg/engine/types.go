package engine

import (
	"time"

	"tradepit/pkg/engine/book"
	"tradepit/pkg/engine/ledger"
	"tradepit/pkg/engine/price"
)

// Re-export the leaf-package types callers work with; the book arena owns
// orders and the ledger owns accounts.
type (
	Side       = book.Side
	OrderType  = book.OrderType
	OrderID    = book.OrderID
	Order      = book.Order
	AlgoParams = book.AlgoParams
	Level      = book.Level
	Candle     = price.Candle
	Position   = ledger.Position
	Account    = ledger.Account
)

const (
	Buy  = book.Buy
	Sell = book.Sell

	Market  = book.Market
	Limit   = book.Limit
	Iceberg = book.Iceberg
	Dark    = book.Dark
	Algo    = book.Algo
)

// HouseParticipant marks the synthetic counterparty on trades filled against
// the reference price rather than a resting player order.
const HouseParticipant = "$house"

// Reject classifies declined order intents. All of these are
// caller-correctable and are returned, never thrown; none halt the engine.
type Reject string

const (
	RejectNone          Reject = ""
	RejectUnknownAsset  Reject = "unknown-asset"
	RejectUnknownPlayer Reject = "unknown-player"
	RejectBadQuantity   Reject = "bad-quantity"
	RejectBadPrice      Reject = "bad-price"
	RejectNotActive     Reject = "not-active"
	RejectPositionLimit Reject = "position-limit"
	RejectNoLiquidity   Reject = "no-liquidity"
	RejectNoPosition    Reject = "no-position"
)

// Intent is one order request as it arrives from a player or bot.
// TakeTarget != 0 turns the intent into a dark-pool take against that resting
// order; Type and Price are then ignored.
type Intent struct {
	Symbol     string      `json:"symbol"`
	Type       OrderType   `json:"type"`
	Side       Side        `json:"side"`
	Price      int64       `json:"price,omitempty"`
	Qty        int64       `json:"qty"`
	DisplayQty int64       `json:"displayQty,omitempty"`
	Algo       *AlgoParams `json:"algo,omitempty"`
	TakeTarget OrderID     `json:"takeTarget,omitempty"`
}

// Trade is one executed match. Buyer/Seller hold player ids, or
// HouseParticipant for synthetic fills. Trades drive ledger updates and
// outbound notices; the core does not retain them.
type Trade struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Price  int64     `json:"price"`
	Qty    int64     `json:"qty"`
	Buyer  string    `json:"buyer"`
	Seller string    `json:"seller"`
	Tick   int64     `json:"tick"`
	Time   time.Time `json:"time"`
}

// Execution is the per-player fill notice.
type Execution struct {
	Player    string    `json:"player"`
	Symbol    string    `json:"symbol"`
	SignedQty int64     `json:"signedQty"`
	Price     int64     `json:"price"`
	Tick      int64     `json:"tick"`
	Time      time.Time `json:"time"`
}

// OrderView is the read-only projection of an open order.
type OrderView struct {
	ID         OrderID   `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Type       OrderType `json:"type"`
	Price      int64     `json:"price"`
	Qty        int64     `json:"qty"`
	Remaining  int64     `json:"remaining"`
	DisplayQty int64     `json:"displayQty,omitempty"`
}

// SubmitResult is the synchronous outcome of one order intent.
type SubmitResult struct {
	Accepted     bool    `json:"accepted"`
	Reason       Reject  `json:"reason,omitempty"`
	FilledQty    int64   `json:"filledQty"`
	AvgFillPrice float64 `json:"avgFillPrice,omitempty"`
	RestingID    OrderID `json:"restingId,omitempty"`
	Trades       []Trade `json:"trades,omitempty"`
}

// PlayerHandle is returned on registration.
type PlayerHandle struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Cash float64 `json:"cash"`
}
