// Package price generates the per-asset reference price: a tick-size random
// walk whose step direction is biased back toward a fair-value anchor once the
// price has wandered far enough, aggregated into fixed-tick-count OHLC candles.
package price

import "math/rand"

// Candle is OHLC over a fixed number of ticks.
type Candle struct {
	Open  int64 `json:"open"`
	High  int64 `json:"high"`
	Low   int64 `json:"low"`
	Close int64 `json:"close"`
	Ticks int   `json:"ticks"`
}

type Config struct {
	Symbol      string
	Start       int64 // initial reference price, price units
	Fair        int64 // fair value anchor the walk reverts toward
	TickSize    int64 // one step of the walk, also the book's price increment
	CandleTicks int   // ticks per candle
	History     int   // closed candles kept, oldest dropped first

	// Deviation band for the reversion bias. Below BiasThreshold the walk is
	// an unbiased coin; between the two the step probability interpolates
	// linearly toward fully reverting at BiasMaxDeviation.
	BiasThreshold    float64
	BiasMaxDeviation float64
}

// Asset is the price-process state for one tradable asset within a round.
type Asset struct {
	cfg Config

	Price int64
	Fair  int64

	open       Candle
	candleTick int
	history    []Candle
}

func New(cfg Config) *Asset {
	a := &Asset{
		cfg:   cfg,
		Price: cfg.Start,
		Fair:  cfg.Fair,
	}
	if a.Fair == 0 {
		a.Fair = cfg.Start
	}
	a.open = Candle{Open: a.Price, High: a.Price, Low: a.Price, Close: a.Price}
	return a
}

func (a *Asset) Symbol() string   { return a.cfg.Symbol }
func (a *Asset) TickSize() int64  { return a.cfg.TickSize }
func (a *Asset) OpenCandle() Candle { return a.open }
func (a *Asset) History() []Candle  { return a.history }

// ReversionBias maps a fractional deviation from fair value to a probability
// in [0.5, 1] of stepping back toward fair. Inside threshold the coin is
// unbiased; the bias ramps linearly until maxDev, beyond which the step is
// always reverting. Bot strategies reuse the same curve for lean.
func ReversionBias(deviation, threshold, maxDev float64) float64 {
	d := deviation
	if d < 0 {
		d = -d
	}
	if d <= threshold || maxDev <= threshold {
		return 0.5
	}
	r := (d - threshold) / (maxDev - threshold)
	if r > 1 {
		r = 1
	}
	return 0.5 + 0.5*r
}

// Step advances the walk by one tick and folds the new price into the open
// candle. When the candle reaches its tick count it is closed into bounded
// history and a new candle opens at the close. Returns the closed candle, if
// any. Deterministic for a given rng stream.
func (a *Asset) Step(rng *rand.Rand) *Candle {
	deviation := float64(a.Price-a.Fair) / float64(a.Fair)
	toward := ReversionBias(deviation, a.cfg.BiasThreshold, a.cfg.BiasMaxDeviation)

	dir := int64(1)
	if a.Price > a.Fair {
		dir = -1
	} else if a.Price == a.Fair {
		toward = 0.5
	}
	if rng.Float64() >= toward {
		dir = -dir
	}

	a.Price += dir * a.cfg.TickSize
	if a.Price < a.cfg.TickSize {
		a.Price = a.cfg.TickSize
	}

	if a.Price > a.open.High {
		a.open.High = a.Price
	}
	if a.Price < a.open.Low {
		a.open.Low = a.Price
	}
	a.open.Close = a.Price
	a.candleTick++
	a.open.Ticks = a.candleTick

	if a.cfg.CandleTicks > 0 && a.candleTick >= a.cfg.CandleTicks {
		closed := a.open
		a.history = append(a.history, closed)
		if a.cfg.History > 0 && len(a.history) > a.cfg.History {
			a.history = a.history[len(a.history)-a.cfg.History:]
		}
		a.candleTick = 0
		a.open = Candle{Open: a.Price, High: a.Price, Low: a.Price, Close: a.Price}
		return &closed
	}
	return nil
}
