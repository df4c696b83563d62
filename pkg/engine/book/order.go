package book

import "time"

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Opposite returns the counter side.
func (s Side) Opposite() Side { return -s }

type OrderType int8

const (
	Market OrderType = iota
	Limit
	Iceberg
	Dark
	Algo
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Iceberg:
		return "iceberg"
	case Dark:
		return "dark"
	case Algo:
		return "algo"
	default:
		return "unknown"
	}
}

// OrderID is a round-scoped identifier allocated by the engine. The book's
// arena owns the Order value; every other component refers to orders by id.
type OrderID uint64

// AlgoParams drives child-order release for parent algo orders.
type AlgoParams struct {
	SliceQty          int64   // child limit order size, lots
	BurstEveryTicks   int64   // minimum ticks between child releases
	CapPerBurst       int64   // hard cap per release, 0 = uncapped
	ParticipationRate float64 // cap as fraction of recent traded volume, 0 = uncapped
}

type Order struct {
	ID         OrderID
	Owner      string
	Symbol     string
	Side       Side
	Type       OrderType
	Price      int64 // integer price units, 0 for market orders
	Qty        int64 // original quantity, lots
	Remaining  int64
	DisplayQty int64   // iceberg: cap on quantity exposed to depth queries
	ParentID   OrderID // set on children released by an algo parent
	Tick       int64   // tick index at submission
	Created    time.Time
	Algo       *AlgoParams // parent algo orders only
}

// Displayed returns the quantity this order exposes to depth queries. Dark
// orders display nothing; an iceberg shows at most DisplayQty of what is left,
// refilled from the hidden remainder as soon as displayed quantity is consumed.
func (o *Order) Displayed() int64 {
	switch o.Type {
	case Dark:
		return 0
	case Iceberg:
		if o.Remaining < o.DisplayQty {
			return o.Remaining
		}
		return o.DisplayQty
	default:
		return o.Remaining
	}
}
