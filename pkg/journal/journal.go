// Package journal persists the trade tape and closed candles to Pebble so a
// round can be replayed or inspected after the process exits. The journal is
// append-mostly and sits off the hot path; all methods are nil-safe so a node
// can run without one.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"tradepit/pkg/engine"
)

type Journal struct {
	db      *pebble.DB
	roundID string
}

func Open(path string) (*Journal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// BeginRound stamps subsequent writes with a fresh round id and returns it.
func (j *Journal) BeginRound() string {
	if j == nil {
		return ""
	}
	j.roundID = uuid.New().String()
	return j.roundID
}

// keys: t:<round>:<symbol>:<8-byte-tick>:<trade-id>, c:<round>:<symbol>:<8-byte-tick>
func (j *Journal) tradeKey(t engine.Trade) []byte {
	return []byte(fmt.Sprintf("t:%s:%s:%s:%s", j.roundID, t.Symbol, tickKey(t.Tick), t.ID))
}

func (j *Journal) candleKey(symbol string, tick int64) []byte {
	return []byte(fmt.Sprintf("c:%s:%s:%s", j.roundID, symbol, tickKey(tick)))
}

func tickKey(tick int64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(tick))
	return string(b[:])
}

// RecordDelta journals the trades and closed candles of one tick delta.
// Write errors are returned, not fatal; the caller decides whether a lossy
// journal is acceptable.
func (j *Journal) RecordDelta(d *engine.Delta) error {
	if j == nil || d == nil {
		return nil
	}
	for _, t := range d.Trades {
		val, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal trade: %w", err)
		}
		if err := j.db.Set(j.tradeKey(t), val, pebble.NoSync); err != nil {
			return fmt.Errorf("journal trade: %w", err)
		}
	}
	for _, a := range d.Assets {
		if a.Closed == nil {
			continue
		}
		val, err := json.Marshal(a.Closed)
		if err != nil {
			return fmt.Errorf("marshal candle: %w", err)
		}
		if err := j.db.Set(j.candleKey(a.Symbol, d.Tick), val, pebble.NoSync); err != nil {
			return fmt.Errorf("journal candle: %w", err)
		}
	}
	return nil
}

// RecentTrades loads the most recent trades for a symbol in the current
// round, newest first.
func (j *Journal) RecentTrades(symbol string, limit int) ([]engine.Trade, error) {
	if j == nil {
		return nil, nil
	}
	prefix := []byte(fmt.Sprintf("t:%s:%s:", j.roundID, symbol))
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []engine.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t engine.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Candles loads all journaled closed candles for a symbol in the current
// round, oldest first.
func (j *Journal) Candles(symbol string) ([]engine.Candle, error) {
	if j == nil {
		return nil, nil
	}
	prefix := []byte(fmt.Sprintf("c:%s:%s:", j.roundID, symbol))
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var candles []engine.Candle
	for iter.First(); iter.Valid(); iter.Next() {
		var c engine.Candle
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
