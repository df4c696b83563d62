// Package ledger tracks per-player cash, positions and PnL. It is updated
// exclusively through confirmed fills; it knows nothing about orders or books.
package ledger

import "fmt"

// Position is one player's signed exposure in one asset. AvgCost is the
// weighted average entry price of the open quantity.
type Position struct {
	Symbol   string  `json:"symbol"`
	Qty      int64   `json:"qty"` // signed, positive = long
	AvgCost  float64 `json:"avgCost"`
	Realized float64 `json:"realized"`
}

// Unrealized marks the open quantity against price.
func (p *Position) Unrealized(price int64) float64 {
	return (float64(price) - p.AvgCost) * float64(p.Qty)
}

type Account struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Cash      float64              `json:"cash"`
	Positions map[string]*Position `json:"positions"`
}

// Position returns the account's position in symbol, creating it lazily.
func (a *Account) Position(symbol string) *Position {
	pos, ok := a.Positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		a.Positions[symbol] = pos
	}
	return pos
}

// Equity is cash plus collateral locked in open positions plus unrealized
// PnL at the given marks. With no open positions it equals cash.
func (a *Account) Equity(marks map[string]int64) float64 {
	eq := a.Cash
	for sym, pos := range a.Positions {
		if pos.Qty == 0 {
			continue
		}
		locked := pos.AvgCost * float64(abs(pos.Qty))
		eq += locked + pos.Unrealized(marks[sym])
	}
	return eq
}

// Ledger holds every player account for one round.
type Ledger struct {
	initialCash float64
	accounts    map[string]*Account
}

func New(initialCash float64) *Ledger {
	return &Ledger{
		initialCash: initialCash,
		accounts:    make(map[string]*Account),
	}
}

// Register creates an account with the round's starting cash. Registering an
// existing id returns the existing account untouched.
func (l *Ledger) Register(id, name string) *Account {
	if acc, ok := l.accounts[id]; ok {
		return acc
	}
	acc := &Account{
		ID:        id,
		Name:      name,
		Cash:      l.initialCash,
		Positions: make(map[string]*Position),
	}
	l.accounts[id] = acc
	return acc
}

func (l *Ledger) Account(id string) (*Account, bool) {
	acc, ok := l.accounts[id]
	return acc, ok
}

func (l *Ledger) Accounts() []*Account {
	out := make([]*Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, acc)
	}
	return out
}

// ApplyFill settles one confirmed fill for one player. signedQty is positive
// for a buy, negative for a sell.
//
// Accounting rules:
//   - extending or opening exposure debits cash by qty*price (collateral at
//     the fill price) and re-weights the average cost;
//   - reducing exposure credits cash back at the average cost and realizes
//     (price - avgCost) * closedQty * sign(oldQty) into both the realized
//     accumulator and cash;
//   - a flip closes the whole old side then opens the overshoot at the fill
//     price, which becomes the new average cost.
//
// Cash therefore moves by exactly ±Δ|qty|·price while the price is unchanged,
// and over a round trip by exactly the realized PnL.
func (l *Ledger) ApplyFill(player, symbol string, signedQty, price int64) error {
	if signedQty == 0 {
		return nil
	}
	acc, ok := l.accounts[player]
	if !ok {
		return fmt.Errorf("ledger: fill for unregistered player %q", player)
	}
	pos := acc.Position(symbol)

	oldQty := pos.Qty
	newQty := oldQty + signedQty
	px := float64(price)

	switch {
	case oldQty == 0 || sameSign(oldQty, signedQty):
		// Open or extend: collateral out, weighted average in.
		opened := abs(signedQty)
		total := abs(oldQty) + opened
		pos.AvgCost = (pos.AvgCost*float64(abs(oldQty)) + px*float64(opened)) / float64(total)
		acc.Cash -= px * float64(opened)

	case abs(signedQty) <= abs(oldQty):
		// Reduce (possibly to flat): return collateral at avg, realize PnL.
		closed := abs(signedQty)
		realized := (px - pos.AvgCost) * float64(closed) * float64(sign(oldQty))
		pos.Realized += realized
		acc.Cash += pos.AvgCost*float64(closed) + realized
		if newQty == 0 {
			pos.AvgCost = 0
		}

	default:
		// Flip: close the old side entirely, open the overshoot at px.
		closed := abs(oldQty)
		realized := (px - pos.AvgCost) * float64(closed) * float64(sign(oldQty))
		pos.Realized += realized
		acc.Cash += pos.AvgCost*float64(closed) + realized
		opened := abs(newQty)
		pos.AvgCost = px
		acc.Cash -= px * float64(opened)
	}

	pos.Qty = newQty
	return nil
}

// Reset returns every account to the new round's starting cash with no
// positions. Registered players survive round boundaries; their state does
// not.
func (l *Ledger) Reset(initialCash float64) {
	l.initialCash = initialCash
	for _, acc := range l.accounts {
		acc.Cash = l.initialCash
		acc.Positions = make(map[string]*Position)
	}
}

// CheckLongOnly reports the first account holding a negative position, if
// any. A violation is an engine bug, not a caller error.
func (l *Ledger) CheckLongOnly() error {
	for id, acc := range l.accounts {
		for sym, pos := range acc.Positions {
			if pos.Qty < 0 {
				return fmt.Errorf("ledger: player %s short %d %s in long-only round", id, -pos.Qty, sym)
			}
		}
	}
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func sameSign(a, b int64) bool { return (a > 0) == (b > 0) }
