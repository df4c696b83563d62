package engine

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"tradepit/params"
	"tradepit/pkg/util"
)

// State is the scheduler's round lifecycle.
type State int8

const (
	StateLobby State = iota
	StateRunning
	StatePaused
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type botEntry struct {
	player   string
	symbol   string
	strategy Strategy
}

// Scheduler serializes every engine interaction onto one goroutine and
// advances the engine at a fixed tick interval while running. Order
// submissions from any number of connections funnel through the command
// queue and execute between ticks; no partial-tick state is ever observable.
type Scheduler struct {
	log      *zap.Logger
	clock    util.Clock
	eng      *Engine
	interval time.Duration

	cmds chan func()
	done chan struct{}

	state State
	bots  []botEntry

	// OnDelta, when set before Run, receives the consolidated delta after
	// every tick. Called from the scheduler goroutine; implementations must
	// not block.
	OnDelta func(*Delta)
}

func NewScheduler(eng *Engine, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		log:      log,
		clock:    util.RealClock{},
		eng:      eng,
		interval: interval,
		cmds:     make(chan func(), 256),
		done:     make(chan struct{}),
		state:    StateLobby,
	}
}

// Run drains commands and drives ticks until Shutdown. It owns the engine:
// all mutation happens here. Tick pacing goes through the injected clock so
// tests can fire ticks by hand.
func (s *Scheduler) Run() {
	for {
		select {
		case <-s.done:
			return
		case cmd := <-s.cmds:
			cmd()
		case <-s.clock.After(s.interval):
			if s.state == StateRunning {
				s.tickOnce()
			}
		}
	}
}

// Shutdown stops the loop. Pending commands are dropped.
func (s *Scheduler) Shutdown() {
	close(s.done)
}

// do runs fn inside the scheduler goroutine and waits for completion.
func (s *Scheduler) do(fn func()) {
	doneCh := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(doneCh) }:
		<-doneCh
	case <-s.done:
	}
}

func (s *Scheduler) tickOnce() *Delta {
	if err := s.eng.StepTick(); err != nil {
		s.state = StateFailed
		s.log.Error("tick halted", zap.Error(err))
		return nil
	}
	s.runBots()
	delta := s.eng.CollectDelta()
	if s.eng.Failed() {
		s.state = StateFailed
	}
	if s.OnDelta != nil {
		s.OnDelta(delta)
	}
	return delta
}

func (s *Scheduler) runBots() {
	for _, b := range s.bots {
		ctx, ok := s.eng.botContext(b.symbol)
		if !ok {
			continue
		}
		b.strategy.Decide(ctx, boundTrader{eng: s.eng, player: b.player})
		if s.eng.Failed() {
			return
		}
	}
}

// AddBot registers an automated participant and its strategy. Safe at any
// point in the round; the bot starts deciding on the next tick.
func (s *Scheduler) AddBot(id, name, symbol string, strat Strategy) error {
	var err error
	s.do(func() {
		_, err = s.eng.RegisterBot(id, name)
		if err == nil {
			s.bots = append(s.bots, botEntry{player: id, symbol: symbol, strategy: strat})
		}
	})
	return err
}

// RegisterPlayer adds a human participant.
func (s *Scheduler) RegisterPlayer(id, name string) (PlayerHandle, error) {
	var h PlayerHandle
	var err error
	s.do(func() { h, err = s.eng.RegisterPlayer(id, name) })
	return h, err
}

// StartRound arms the engine and begins ticking.
func (s *Scheduler) StartRound(cfg params.Round) error {
	var err error
	s.do(func() {
		if s.state == StateRunning || s.state == StatePaused {
			err = fmt.Errorf("scheduler: round already in progress")
			return
		}
		if err = s.eng.StartRound(cfg); err != nil {
			return
		}
		s.state = StateRunning
	})
	return err
}

// Pause suspends ticking with book and ledger state preserved. A paused
// round still accepts orders; they match against the frozen price.
func (s *Scheduler) Pause() {
	s.do(func() {
		if s.state == StateRunning {
			s.state = StatePaused
			s.log.Info("round paused", zap.Int64("tick", s.eng.Tick()))
		}
	})
}

// Resume continues ticking after Pause.
func (s *Scheduler) Resume() {
	s.do(func() {
		if s.state == StatePaused {
			s.state = StateRunning
			s.log.Info("round resumed", zap.Int64("tick", s.eng.Tick()))
		}
	})
}

// StopRound ends the round; terminal until the next StartRound.
func (s *Scheduler) StopRound() {
	s.do(func() {
		if s.state == StateRunning || s.state == StatePaused {
			s.eng.Stop()
			s.state = StateEnded
		}
	})
}

// StepTick advances exactly one tick by hand. Only meaningful while paused
// (manual stepping) or running (extra tick between interval fires).
func (s *Scheduler) StepTick() *Delta {
	var d *Delta
	s.do(func() {
		if s.state != StateRunning && s.state != StatePaused {
			return
		}
		d = s.tickOnce()
	})
	return d
}

// Submit funnels an order intent into the engine between ticks.
func (s *Scheduler) Submit(player string, in Intent) SubmitResult {
	var res SubmitResult
	s.do(func() { res = s.eng.Submit(player, in) })
	return res
}

// Cancel removes the given orders.
func (s *Scheduler) Cancel(player string, ids []OrderID) []OrderID {
	var out []OrderID
	s.do(func() { out = s.eng.Cancel(player, ids) })
	return out
}

// CancelAll removes every outstanding order for the player.
func (s *Scheduler) CancelAll(player string) []OrderID {
	var out []OrderID
	s.do(func() { out = s.eng.CancelAll(player) })
	return out
}

// CloseAll flattens every position the player holds via market orders.
func (s *Scheduler) CloseAll(player string) SubmitResult {
	var res SubmitResult
	s.do(func() { res = s.eng.CloseAll(player) })
	return res
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	st := StateLobby
	s.do(func() {
		st = s.state
		if s.eng.Failed() {
			st = StateFailed
		}
	})
	return st
}

// Depth snapshots one asset's book.
func (s *Scheduler) Depth(symbol string, maxLevels int) (*DepthSnapshot, bool) {
	var snap *DepthSnapshot
	var ok bool
	s.do(func() { snap, ok = s.eng.Depth(symbol, maxLevels) })
	return snap, ok
}

// PlayerView snapshots one player's ledger and open orders.
func (s *Scheduler) PlayerView(id string) (PlayerUpdate, bool) {
	var pu PlayerUpdate
	var ok bool
	s.do(func() { pu, ok = s.eng.PlayerView(id) })
	return pu, ok
}

// Symbols lists round assets.
func (s *Scheduler) Symbols() []string {
	var out []string
	s.do(func() { out = s.eng.Symbols() })
	return out
}

// CandleHistory returns an asset's closed candles.
func (s *Scheduler) CandleHistory(symbol string) ([]Candle, bool) {
	var out []Candle
	var ok bool
	s.do(func() { out, ok = s.eng.CandleHistory(symbol) })
	return out, ok
}
