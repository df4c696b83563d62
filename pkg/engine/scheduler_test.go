package engine

import (
	"testing"
	"time"
)

// newTestScheduler runs a scheduler whose ticker never fires, so every tick in
// the test is an explicit StepTick.
func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	e := New(testRound(), nil, nil)
	s := NewScheduler(e, time.Hour, nil)
	go s.Run()
	t.Cleanup(s.Shutdown)
	return s
}

func TestSchedulerLifecycle(t *testing.T) {
	s := newTestScheduler(t)

	if st := s.State(); st != StateLobby {
		t.Fatalf("state = %s, want lobby", st)
	}

	if err := s.StartRound(testRound()); err != nil {
		t.Fatal(err)
	}
	if st := s.State(); st != StateRunning {
		t.Fatalf("state = %s, want running", st)
	}

	// A round in progress cannot be restarted.
	if err := s.StartRound(testRound()); err == nil {
		t.Error("second StartRound should fail")
	}

	s.Pause()
	if st := s.State(); st != StatePaused {
		t.Fatalf("state = %s, want paused", st)
	}
	s.Resume()
	if st := s.State(); st != StateRunning {
		t.Fatalf("state = %s, want running after resume", st)
	}

	s.StopRound()
	if st := s.State(); st != StateEnded {
		t.Fatalf("state = %s, want ended", st)
	}

	// Ended is terminal until the next StartRound.
	s.Resume()
	if st := s.State(); st != StateEnded {
		t.Errorf("resume after stop: state = %s, want ended", st)
	}
	if err := s.StartRound(testRound()); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	if st := s.State(); st != StateRunning {
		t.Errorf("state = %s, want running", st)
	}
}

func TestSchedulerManualStep(t *testing.T) {
	s := newTestScheduler(t)

	// Not steppable before the round starts.
	if d := s.StepTick(); d != nil {
		t.Fatal("step in lobby should return nil")
	}

	if err := s.StartRound(testRound()); err != nil {
		t.Fatal(err)
	}
	d := s.StepTick()
	if d == nil || d.Tick != 1 {
		t.Fatalf("delta = %+v, want tick 1", d)
	}

	// Manual stepping also works while paused.
	s.Pause()
	d = s.StepTick()
	if d == nil || d.Tick != 2 {
		t.Fatalf("paused step: %+v, want tick 2", d)
	}
}

func TestSchedulerOrderFlow(t *testing.T) {
	s := newTestScheduler(t)
	if _, err := s.RegisterPlayer("alice", "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.StartRound(testRound()); err != nil {
		t.Fatal(err)
	}

	res := s.Submit("alice", Intent{Symbol: "PIT", Type: Limit, Side: Buy, Price: 900, Qty: 5})
	if !res.Accepted || res.RestingID == 0 {
		t.Fatalf("submit: %+v", res)
	}

	pu, ok := s.PlayerView("alice")
	if !ok || len(pu.OpenOrders) != 1 {
		t.Fatalf("player view: %+v", pu)
	}

	canceled := s.CancelAll("alice")
	if len(canceled) != 1 || canceled[0] != res.RestingID {
		t.Fatalf("canceled = %v", canceled)
	}

	snap, ok := s.Depth("PIT", 0)
	if !ok || len(snap.Bids) != 0 {
		t.Fatalf("depth = %+v, want empty", snap)
	}
}

func TestSchedulerDeltaCallback(t *testing.T) {
	s := newTestScheduler(t)
	var got []*Delta
	s.OnDelta = func(d *Delta) { got = append(got, d) }

	if err := s.StartRound(testRound()); err != nil {
		t.Fatal(err)
	}
	s.StepTick()
	s.StepTick()

	// OnDelta fires on the scheduler goroutine; the do()-based StepTick has
	// already synchronized, so the slice is safe to read here.
	if len(got) != 2 || got[0].Tick != 1 || got[1].Tick != 2 {
		t.Fatalf("deltas = %d, want ticks 1 and 2", len(got))
	}
}

func TestSchedulerBots(t *testing.T) {
	s := newTestScheduler(t)

	// A strategy that rests one far-away bid per tick.
	strat := strategyFunc(func(ctx *BotContext, tr Trader) {
		tr.Submit(Intent{Symbol: ctx.Symbol, Type: Limit, Side: Buy, Price: 500, Qty: 1})
	})
	if err := s.AddBot("bot-1", "Bot One", "PIT", strat); err != nil {
		t.Fatal(err)
	}
	if err := s.StartRound(testRound()); err != nil {
		t.Fatal(err)
	}

	s.StepTick()
	s.StepTick()

	pu, ok := s.PlayerView("bot-1")
	if !ok || len(pu.OpenOrders) != 2 {
		t.Fatalf("bot orders = %+v, want 2 resting bids", pu.OpenOrders)
	}
}

type strategyFunc func(*BotContext, Trader)

func (f strategyFunc) Decide(ctx *BotContext, t Trader) { f(ctx, t) }

// fakeClock feeds Run's tick pacing from a test-owned channel.
type fakeClock struct{ tick chan time.Time }

func (f *fakeClock) After(time.Duration) <-chan time.Time { return f.tick }
func (f *fakeClock) Now() time.Time                       { return time.Now() }

func TestSchedulerTicksOnClock(t *testing.T) {
	e := New(testRound(), nil, nil)
	s := NewScheduler(e, time.Hour, nil)
	fc := &fakeClock{tick: make(chan time.Time)}
	s.clock = fc
	deltas := make(chan *Delta, 8)
	s.OnDelta = func(d *Delta) { deltas <- d }
	go s.Run()
	t.Cleanup(s.Shutdown)

	if err := s.StartRound(testRound()); err != nil {
		t.Fatal(err)
	}

	fc.tick <- time.Time{}
	select {
	case d := <-deltas:
		if d.Tick != 1 {
			t.Fatalf("delta tick = %d, want 1", d.Tick)
		}
	case <-time.After(time.Second):
		t.Fatal("no delta after clock fire")
	}

	// Fires while paused are swallowed. State() synchronizes with the loop,
	// so by the time it returns the fire has been handled.
	s.Pause()
	fc.tick <- time.Time{}
	s.State()
	select {
	case d := <-deltas:
		t.Fatalf("paused scheduler ticked: %+v", d)
	default:
	}

	s.Resume()
	fc.tick <- time.Time{}
	select {
	case d := <-deltas:
		if d.Tick != 2 {
			t.Fatalf("delta tick = %d, want 2", d.Tick)
		}
	case <-time.After(time.Second):
		t.Fatal("no delta after resume")
	}
}
