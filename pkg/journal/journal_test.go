package journal

import (
	"testing"
	"time"

	"tradepit/pkg/engine"
)

func TestNilJournalIsInert(t *testing.T) {
	var j *Journal
	if err := j.RecordDelta(&engine.Delta{}); err != nil {
		t.Errorf("nil journal record: %v", err)
	}
	if id := j.BeginRound(); id != "" {
		t.Errorf("nil journal round id = %q", id)
	}
	if err := j.Close(); err != nil {
		t.Errorf("nil journal close: %v", err)
	}
}

func TestRecordAndReadBack(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	j.BeginRound()

	now := time.Now()
	closed := engine.Candle{Open: 1000, High: 1010, Low: 995, Close: 1005, Ticks: 8}
	deltas := []*engine.Delta{
		{
			Tick: 1, Time: now,
			Trades: []engine.Trade{
				{ID: "t1", Symbol: "PIT", Price: 1000, Qty: 5, Buyer: "alice", Seller: "bob", Tick: 1, Time: now},
			},
		},
		{
			Tick: 8, Time: now,
			Trades: []engine.Trade{
				{ID: "t2", Symbol: "PIT", Price: 1005, Qty: 3, Buyer: "bob", Seller: "alice", Tick: 8, Time: now},
			},
			Assets: []engine.AssetUpdate{{Symbol: "PIT", Closed: &closed}},
		},
	}
	for _, d := range deltas {
		if err := j.RecordDelta(d); err != nil {
			t.Fatal(err)
		}
	}

	trades, err := j.RecentTrades("PIT", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	// Newest first.
	if trades[0].ID != "t2" || trades[1].ID != "t1" {
		t.Errorf("order = %s, %s", trades[0].ID, trades[1].ID)
	}

	candles, err := j.Candles("PIT")
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 1 || candles[0] != closed {
		t.Errorf("candles = %+v", candles)
	}
}

func TestRoundsIsolated(t *testing.T) {
	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	j.BeginRound()
	j.RecordDelta(&engine.Delta{Tick: 1, Trades: []engine.Trade{
		{ID: "t1", Symbol: "PIT", Price: 1000, Qty: 1, Tick: 1},
	}})

	// A new round sees none of the previous round's tape.
	j.BeginRound()
	trades, err := j.RecentTrades("PIT", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 0 {
		t.Errorf("trades leaked across rounds: %+v", trades)
	}
}
