package api

import "tradepit/pkg/engine"

// Request/response shapes for the REST surface. The engine's own delta and
// view types are already wire-ready; these cover the inbound side.

type registerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type submitRequest struct {
	Player     string             `json:"player"`
	Symbol     string             `json:"symbol"`
	Type       string             `json:"type"` // market|limit|iceberg|dark|algo
	Side       string             `json:"side"` // buy|sell
	Price      int64              `json:"price,omitempty"`
	Qty        int64              `json:"qty"`
	DisplayQty int64              `json:"displayQty,omitempty"`
	Algo       *engine.AlgoParams `json:"algo,omitempty"`
	TakeTarget engine.OrderID     `json:"takeTarget,omitempty"`
}

type cancelRequest struct {
	Player string           `json:"player"`
	Orders []engine.OrderID `json:"orders,omitempty"`
	All    bool             `json:"all,omitempty"`
}

type closeAllRequest struct {
	Player string `json:"player"`
}

type statusResponse struct {
	State   string   `json:"state"`
	Symbols []string `json:"symbols"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func parseSide(s string) (engine.Side, bool) {
	switch s {
	case "buy", "BUY":
		return engine.Buy, true
	case "sell", "SELL":
		return engine.Sell, true
	default:
		return 0, false
	}
}

func parseOrderType(s string) (engine.OrderType, bool) {
	switch s {
	case "market":
		return engine.Market, true
	case "limit":
		return engine.Limit, true
	case "iceberg":
		return engine.Iceberg, true
	case "dark":
		return engine.Dark, true
	case "algo":
		return engine.Algo, true
	default:
		return 0, false
	}
}
