// Package engine is the matching and accounting core of the market
// simulation: order validation and matching against per-asset books, the
// position/cash ledger, the tick-driven price process and the algo/bot order
// plumbing. The engine is logically single-threaded: it holds no locks and
// expects every call to arrive on one execution context (the Scheduler).
package engine

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradepit/params"
	"tradepit/pkg/engine/book"
	"tradepit/pkg/engine/ledger"
	"tradepit/pkg/engine/price"
	"tradepit/pkg/metrics"
	"tradepit/pkg/util"
)

// volumeWindow is how many recent ticks of traded volume feed algo
// participation gating.
const volumeWindow = 16

type assetState struct {
	cfg   params.AssetConfig
	price *price.Asset
	book  *book.Book

	// House liquidity pool, lots. Consumed by synthetic fills, replenished
	// each tick toward HouseDepth by the orderFlowDecay factor.
	housePool int64

	volRecent [volumeWindow]int64
	volTick   int64
}

func (as *assetState) noteVolume(qty int64) { as.volTick += qty }

func (as *assetState) rollVolume() {
	copy(as.volRecent[:], as.volRecent[1:])
	as.volRecent[volumeWindow-1] = as.volTick
	as.volTick = 0
}

func (as *assetState) recentVolume() int64 {
	var sum int64
	for _, v := range as.volRecent {
		sum += v
	}
	return sum + as.volTick
}

type algoState struct {
	parent    *book.Order
	children  map[book.OrderID]struct{}
	lastBurst int64
}

type playerState struct {
	id   string
	name string
	bot  bool

	// open maps every outstanding order id (resting, dark, algo parent and
	// released children) to its asset symbol.
	open  map[book.OrderID]string
	algos map[book.OrderID]*algoState
}

// Engine owns all round state. Construct once, then drive through
// StartRound/Submit/Cancel/StepTick from a single goroutine.
type Engine struct {
	log   *zap.Logger
	clock util.Clock

	cfg    params.Round
	rng    *rand.Rand
	active bool
	failed bool
	fatal  error
	tick   int64

	nextOrder book.OrderID

	assets  map[string]*assetState
	symbols []string // deterministic iteration order

	ledger      *ledger.Ledger
	players     map[string]*playerState
	playerOrder []string

	pend pendingDelta
}

type pendingDelta struct {
	trades  []Trade
	execs   []Execution
	touched map[string]struct{}
	closed  map[string]*price.Candle
}

func (p *pendingDelta) reset() {
	p.trades = nil
	p.execs = nil
	p.touched = make(map[string]struct{})
	p.closed = make(map[string]*price.Candle)
}

func New(cfg params.Round, log *zap.Logger, clock util.Clock) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	e := &Engine{
		log:     log,
		clock:   clock,
		cfg:     cfg,
		assets:  make(map[string]*assetState),
		players: make(map[string]*playerState),
		ledger:  ledger.New(cfg.InitialCash),
	}
	e.pend.reset()
	return e
}

func (e *Engine) Active() bool { return e.active }
func (e *Engine) Failed() bool { return e.failed }
func (e *Engine) Tick() int64  { return e.tick }

// Failure returns the invariant violation that halted the round, if any.
func (e *Engine) Failure() error { return e.fatal }

// RegisterPlayer creates a ledger account with the round's initial cash.
// Registration is idempotent on id. Players persist across rounds; their
// cash and positions do not.
func (e *Engine) RegisterPlayer(id, name string) (PlayerHandle, error) {
	return e.register(id, name, false)
}

// RegisterBot is RegisterPlayer for automated participants. Bots compete for
// the same books with no special priority; the flag exists for reporting.
func (e *Engine) RegisterBot(id, name string) (PlayerHandle, error) {
	return e.register(id, name, true)
}

func (e *Engine) register(id, name string, bot bool) (PlayerHandle, error) {
	if id == "" {
		return PlayerHandle{}, fmt.Errorf("engine: empty player id")
	}
	if _, ok := e.players[id]; !ok {
		e.players[id] = &playerState{
			id:    id,
			name:  name,
			bot:   bot,
			open:  make(map[book.OrderID]string),
			algos: make(map[book.OrderID]*algoState),
		}
		e.playerOrder = append(e.playerOrder, id)
	}
	acc := e.ledger.Register(id, name)
	return PlayerHandle{ID: id, Name: acc.Name, Cash: acc.Cash}, nil
}

// StartRound tears down any previous round state and arms a fresh one:
// books emptied, ledger reset to initial cash, price processes rebuilt,
// tick counter zeroed.
func (e *Engine) StartRound(cfg params.Round) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.cfg = cfg
	e.assets = make(map[string]*assetState)
	e.symbols = e.symbols[:0]
	for _, ac := range cfg.Assets {
		candleTicks := ac.CandleTicks
		if candleTicks <= 0 {
			candleTicks = 8
		}
		as := &assetState{
			cfg: ac,
			price: price.New(price.Config{
				Symbol:           ac.Symbol,
				Start:            ac.StartPrice,
				Fair:             ac.FairValue,
				TickSize:         ac.TickSize,
				CandleTicks:      candleTicks,
				History:          cfg.CandleHistory,
				BiasThreshold:    cfg.BiasThreshold,
				BiasMaxDeviation: cfg.BiasMaxDeviation,
			}),
			book:      book.New(ac.TickSize),
			housePool: cfg.HouseDepth,
		}
		e.assets[ac.Symbol] = as
		e.symbols = append(e.symbols, ac.Symbol)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = e.clock.Now().UnixNano()
	}
	e.rng = rand.New(rand.NewSource(seed))

	e.ledger.Reset(cfg.InitialCash)
	for _, ps := range e.players {
		ps.open = make(map[book.OrderID]string)
		ps.algos = make(map[book.OrderID]*algoState)
	}
	e.tick = 0
	e.nextOrder = 0
	e.active = true
	e.failed = false
	e.fatal = nil
	e.pend.reset()

	e.log.Info("round started",
		zap.Int("assets", len(cfg.Assets)),
		zap.Int64("seed", seed),
		zap.Bool("longOnly", cfg.LongOnly),
	)
	return nil
}

// Stop freezes the round. Book and ledger state stay readable until the next
// StartRound.
func (e *Engine) Stop() {
	if e.active {
		e.log.Info("round stopped", zap.Int64("tick", e.tick))
	}
	e.active = false
}

// fail marks the round failed after an internal invariant violation. This is
// an implementation bug, never a caller error, so it halts further ticking
// rather than being absorbed.
func (e *Engine) fail(err error) {
	e.failed = true
	e.active = false
	e.fatal = err
	e.log.Error("round failed on invariant violation", zap.Error(err), zap.Int64("tick", e.tick))
}

func (e *Engine) nextID() book.OrderID {
	e.nextOrder++
	return e.nextOrder
}

// Submit validates and executes one order intent. All rejections come back as
// declined results; the only errors that escape the engine boundary are
// internal invariant failures, which halt the round.
func (e *Engine) Submit(player string, in Intent) SubmitResult {
	res := e.submit(player, in)
	result := "accepted"
	if !res.Accepted {
		result = string(res.Reason)
	}
	metrics.OrdersTotal.WithLabelValues(in.Type.String(), in.Side.String(), result).Inc()
	return res
}

func (e *Engine) submit(player string, in Intent) SubmitResult {
	reject := func(r Reject) SubmitResult { return SubmitResult{Reason: r} }

	ps, ok := e.players[player]
	if !ok {
		return reject(RejectUnknownPlayer)
	}
	if !e.active || e.failed {
		return reject(RejectNotActive)
	}
	as, ok := e.assets[in.Symbol]
	if !ok {
		return reject(RejectUnknownAsset)
	}

	if in.TakeTarget != 0 {
		return e.takeDark(ps, as, in)
	}

	qty := in.Qty
	if qty <= 0 {
		return reject(RejectBadQuantity)
	}
	qty -= qty % e.cfg.TradeLotSize
	if qty <= 0 {
		return reject(RejectBadQuantity)
	}

	px := in.Price
	switch in.Type {
	case Market:
		px = 0
	case Limit, Iceberg, Dark, Algo:
		if px <= 0 {
			return reject(RejectBadPrice)
		}
		px -= px % as.cfg.TickSize
		if px <= 0 {
			return reject(RejectBadPrice)
		}
	default:
		return reject(RejectBadPrice)
	}
	if in.Type == Iceberg && in.DisplayQty <= 0 {
		return reject(RejectBadQuantity)
	}
	if in.Type == Algo && (in.Algo == nil || in.Algo.SliceQty <= 0) {
		return reject(RejectBadQuantity)
	}

	if e.cfg.LongOnly && in.Side == Sell {
		avail := e.heldQty(player, in.Symbol) - e.openQty(ps, in.Symbol, Sell)
		if avail <= 0 {
			return reject(RejectPositionLimit)
		}
		if qty > avail {
			qty = avail // clipped, not rejected
		}
	}
	if e.cfg.MaxPosition > 0 && e.exceedsMaxPosition(ps, in.Symbol, in.Side, qty) {
		return reject(RejectPositionLimit)
	}

	switch in.Type {
	case Market:
		return e.submitMarket(ps, as, in.Side, qty)
	case Limit, Iceberg:
		return e.submitLimit(ps, as, in.Type, in.Side, px, qty, in.DisplayQty, 0)
	case Dark:
		return e.submitDark(ps, as, in.Side, px, qty)
	default: // Algo
		return e.submitAlgo(ps, as, in.Side, px, qty, *in.Algo)
	}
}

// submitMarket sweeps the opposite side, then fills any remainder against the
// house pool at the current reference price. Leftover beyond both is
// discarded; matching nothing at all is a no-liquidity rejection.
func (e *Engine) submitMarket(ps *playerState, as *assetState, side Side, qty int64) SubmitResult {
	fills, rem := as.book.Match(side, qty, 0, e.cfg.MaxCrossTicks)
	trades := e.settleBookFills(ps, as, side, fills)

	if rem > 0 && as.housePool > 0 {
		houseQty := rem
		if houseQty > as.housePool {
			houseQty = as.housePool
		}
		trades = append(trades, e.settleHouseFill(ps.id, as, side, houseQty, as.price.Price))
		as.housePool -= houseQty
		rem -= houseQty
	}

	filled := qty - rem
	if filled == 0 {
		return SubmitResult{Reason: RejectNoLiquidity}
	}
	return SubmitResult{
		Accepted:     true,
		FilledQty:    filled,
		AvgFillPrice: avgPrice(trades, filled),
		Trades:       trades,
	}
}

// submitLimit matches the crossing portion like a market order, then rests
// the remainder at the limit price. parentID links algo children.
func (e *Engine) submitLimit(ps *playerState, as *assetState, typ OrderType, side Side, px, qty, displayQty int64, parentID book.OrderID) SubmitResult {
	fills, rem := as.book.Match(side, qty, px, e.cfg.MaxCrossTicks)
	trades := e.settleBookFills(ps, as, side, fills)

	res := SubmitResult{
		Accepted:     true,
		FilledQty:    qty - rem,
		AvgFillPrice: avgPrice(trades, qty-rem),
		Trades:       trades,
	}
	if rem > 0 {
		o := &book.Order{
			ID:         e.nextID(),
			Owner:      ps.id,
			Symbol:     as.cfg.Symbol,
			Side:       side,
			Type:       typ,
			Price:      px,
			Qty:        qty,
			Remaining:  rem,
			DisplayQty: displayQty,
			ParentID:   parentID,
			Tick:       e.tick,
			Created:    e.clock.Now(),
		}
		as.book.Insert(o)
		ps.open[o.ID] = as.cfg.Symbol
		res.RestingID = o.ID
		e.pend.touch(ps.id)
	}
	return res
}

// submitDark rests the order in the dark pool without matching; it is only
// reachable through an explicit take.
func (e *Engine) submitDark(ps *playerState, as *assetState, side Side, px, qty int64) SubmitResult {
	o := &book.Order{
		ID:        e.nextID(),
		Owner:     ps.id,
		Symbol:    as.cfg.Symbol,
		Side:      side,
		Type:      Dark,
		Price:     px,
		Qty:       qty,
		Remaining: qty,
		Tick:      e.tick,
		Created:   e.clock.Now(),
	}
	as.book.Insert(o)
	ps.open[o.ID] = as.cfg.Symbol
	e.pend.touch(ps.id)
	return SubmitResult{Accepted: true, RestingID: o.ID}
}

// submitAlgo registers a parent order that never rests in the book; StepTick
// releases child limit orders from it.
func (e *Engine) submitAlgo(ps *playerState, as *assetState, side Side, px, qty int64, ap AlgoParams) SubmitResult {
	o := &book.Order{
		ID:        e.nextID(),
		Owner:     ps.id,
		Symbol:    as.cfg.Symbol,
		Side:      side,
		Type:      Algo,
		Price:     px,
		Qty:       qty,
		Remaining: qty,
		Tick:      e.tick,
		Created:   e.clock.Now(),
		Algo:      &ap,
	}
	ps.open[o.ID] = as.cfg.Symbol
	ps.algos[o.ID] = &algoState{
		parent:    o,
		children:  make(map[book.OrderID]struct{}),
		lastBurst: e.tick - ap.BurstEveryTicks, // eligible on the next tick
	}
	e.pend.touch(ps.id)
	return SubmitResult{Accepted: true, RestingID: o.ID}
}

// takeDark fills against a resting dark order at the dark order's price, up
// to the lesser of the requested and remaining quantity.
func (e *Engine) takeDark(ps *playerState, as *assetState, in Intent) SubmitResult {
	target, ok := as.book.Get(in.TakeTarget)
	if !ok || target.Type != Dark {
		return SubmitResult{Reason: RejectNoPosition}
	}
	if target.Side == in.Side {
		return SubmitResult{Reason: RejectNoPosition} // take must be counter-side
	}
	qty := in.Qty
	if qty <= 0 {
		return SubmitResult{Reason: RejectBadQuantity}
	}
	qty -= qty % e.cfg.TradeLotSize
	if qty <= 0 {
		return SubmitResult{Reason: RejectBadQuantity}
	}
	if qty > target.Remaining {
		qty = target.Remaining
	}
	if e.cfg.LongOnly && in.Side == Sell {
		avail := e.heldQty(ps.id, in.Symbol) - e.openQty(ps, in.Symbol, Sell)
		if avail <= 0 {
			return SubmitResult{Reason: RejectPositionLimit}
		}
		if qty > avail {
			qty = avail
		}
	}
	if e.cfg.MaxPosition > 0 && e.exceedsMaxPosition(ps, in.Symbol, in.Side, qty) {
		return SubmitResult{Reason: RejectPositionLimit}
	}

	fill := book.Fill{MakerID: target.ID, MakerOwner: target.Owner, Price: target.Price, Qty: qty}
	as.book.Reduce(target.ID, qty)
	trades := e.settleBookFills(ps, as, in.Side, []book.Fill{fill})
	return SubmitResult{
		Accepted:     true,
		FilledQty:    qty,
		AvgFillPrice: float64(target.Price),
		Trades:       trades,
	}
}

// Cancel removes the given orders if the player owns them. Unknown or
// already-gone ids are skipped, making cancellation idempotent. Cancelling an
// algo parent cascades to its resting children.
func (e *Engine) Cancel(player string, ids []OrderID) []OrderID {
	ps, ok := e.players[player]
	if !ok {
		return nil
	}
	var canceled []OrderID
	for _, id := range ids {
		canceled = append(canceled, e.cancelOne(ps, id)...)
	}
	if len(canceled) > 0 {
		e.pend.touch(player)
	}
	return canceled
}

func (e *Engine) cancelOne(ps *playerState, id OrderID) []OrderID {
	sym, owned := ps.open[id]
	if !owned {
		return nil
	}
	var canceled []OrderID

	if st, isAlgo := ps.algos[id]; isAlgo {
		for cid := range st.children {
			canceled = append(canceled, e.cancelOne(ps, cid)...)
		}
		delete(ps.algos, id)
		delete(ps.open, id)
		return append(canceled, id)
	}

	as := e.assets[sym]
	o, ok := as.book.Cancel(id)
	if ok {
		if o.ParentID != 0 {
			if st, pOK := ps.algos[o.ParentID]; pOK {
				delete(st.children, id)
			}
		}
		canceled = append(canceled, id)
	}
	delete(ps.open, id)
	return canceled
}

// CancelAll cancels every outstanding order the player has.
func (e *Engine) CancelAll(player string) []OrderID {
	ps, ok := e.players[player]
	if !ok {
		return nil
	}
	ids := make([]OrderID, 0, len(ps.open))
	for id := range ps.open {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return e.Cancel(player, ids)
}

// CloseAll cancels the player's outstanding orders, then flattens every
// position with market orders. Declined with no-position when flat.
func (e *Engine) CloseAll(player string) SubmitResult {
	ps, ok := e.players[player]
	if !ok {
		return SubmitResult{Reason: RejectUnknownPlayer}
	}
	if !e.active || e.failed {
		return SubmitResult{Reason: RejectNotActive}
	}
	e.CancelAll(player)

	acc, _ := e.ledger.Account(player)
	var total SubmitResult
	closedAny := false
	for _, sym := range e.symbols {
		pos, posOK := acc.Positions[sym]
		if !posOK || pos.Qty == 0 {
			continue
		}
		closedAny = true
		side := Sell
		if pos.Qty < 0 {
			side = Buy
		}
		res := e.submitMarket(ps, e.assets[sym], side, abs64(pos.Qty))
		total.FilledQty += res.FilledQty
		total.Trades = append(total.Trades, res.Trades...)
	}
	if !closedAny {
		return SubmitResult{Reason: RejectNoPosition}
	}
	total.Accepted = true
	return total
}

// settleBookFills applies one taker's fills to both sides of the ledger,
// records trades and executions, and untracks fully consumed makers.
func (e *Engine) settleBookFills(taker *playerState, as *assetState, takerSide Side, fills []book.Fill) []Trade {
	if len(fills) == 0 {
		return nil
	}
	now := e.clock.Now()
	trades := make([]Trade, 0, len(fills))
	for _, f := range fills {
		e.applyFill(taker.id, as.cfg.Symbol, int64(takerSide)*f.Qty, f.Price)
		e.applyFill(f.MakerOwner, as.cfg.Symbol, int64(takerSide.Opposite())*f.Qty, f.Price)

		if _, still := as.book.Get(f.MakerID); !still {
			if maker, ok := e.players[f.MakerOwner]; ok {
				delete(maker.open, f.MakerID)
				for _, st := range maker.algos {
					delete(st.children, f.MakerID)
				}
			}
		}

		buyer, seller := taker.id, f.MakerOwner
		if takerSide == Sell {
			buyer, seller = f.MakerOwner, taker.id
		}
		t := Trade{
			ID:     uuid.NewString(),
			Symbol: as.cfg.Symbol,
			Price:  f.Price,
			Qty:    f.Qty,
			Buyer:  buyer,
			Seller: seller,
			Tick:   e.tick,
			Time:   now,
		}
		trades = append(trades, t)
		e.pend.trades = append(e.pend.trades, t)
		e.pend.execs = append(e.pend.execs,
			Execution{Player: taker.id, Symbol: as.cfg.Symbol, SignedQty: int64(takerSide) * f.Qty, Price: f.Price, Tick: e.tick, Time: now},
			Execution{Player: f.MakerOwner, Symbol: as.cfg.Symbol, SignedQty: int64(takerSide.Opposite()) * f.Qty, Price: f.Price, Tick: e.tick, Time: now},
		)
		e.pend.touch(taker.id)
		e.pend.touch(f.MakerOwner)
		as.noteVolume(f.Qty)
		metrics.TradesTotal.WithLabelValues(as.cfg.Symbol, "book").Inc()
		metrics.TradedVolume.WithLabelValues(as.cfg.Symbol).Add(float64(f.Qty))
	}
	e.checkInvariants()
	return trades
}

// settleHouseFill applies a synthetic fill against the house at price.
func (e *Engine) settleHouseFill(player string, as *assetState, side Side, qty, px int64) Trade {
	now := e.clock.Now()
	e.applyFill(player, as.cfg.Symbol, int64(side)*qty, px)

	buyer, seller := player, HouseParticipant
	if side == Sell {
		buyer, seller = HouseParticipant, player
	}
	t := Trade{
		ID:     uuid.NewString(),
		Symbol: as.cfg.Symbol,
		Price:  px,
		Qty:    qty,
		Buyer:  buyer,
		Seller: seller,
		Tick:   e.tick,
		Time:   now,
	}
	e.pend.trades = append(e.pend.trades, t)
	e.pend.execs = append(e.pend.execs,
		Execution{Player: player, Symbol: as.cfg.Symbol, SignedQty: int64(side) * qty, Price: px, Tick: e.tick, Time: now})
	e.pend.touch(player)
	as.noteVolume(qty)
	metrics.TradesTotal.WithLabelValues(as.cfg.Symbol, "house").Inc()
	metrics.TradedVolume.WithLabelValues(as.cfg.Symbol).Add(float64(qty))
	e.checkInvariants()
	return t
}

func (e *Engine) applyFill(player, symbol string, signedQty, px int64) {
	if player == HouseParticipant {
		return
	}
	if err := e.ledger.ApplyFill(player, symbol, signedQty, px); err != nil {
		e.fail(err)
	}
}

// checkInvariants runs the cheap ledger consistency checks after every
// settlement batch. Violations are fatal for the round.
func (e *Engine) checkInvariants() {
	if e.failed {
		return
	}
	if e.cfg.LongOnly {
		if err := e.ledger.CheckLongOnly(); err != nil {
			e.fail(err)
		}
	}
}

func (e *Engine) heldQty(player, symbol string) int64 {
	acc, ok := e.ledger.Account(player)
	if !ok {
		return 0
	}
	pos, ok := acc.Positions[symbol]
	if !ok {
		return 0
	}
	return pos.Qty
}

// openQty sums the player's outstanding quantity on one side of symbol:
// resting and dark orders plus unreleased algo remainders. Long-only clipping
// and the position ceiling both count it, so open orders that later fill can
// never carry the position past either bound.
func (e *Engine) openQty(ps *playerState, symbol string, side Side) int64 {
	var sum int64
	for id, sym := range ps.open {
		if sym != symbol {
			continue
		}
		if st, ok := ps.algos[id]; ok {
			if st.parent.Side == side {
				sum += st.parent.Remaining
			}
			continue
		}
		if o, ok := e.assets[symbol].book.Get(id); ok && o.Side == side {
			sum += o.Remaining
		}
	}
	return sum
}

// exceedsMaxPosition projects the position if qty and every open same-side
// order were to fill, against the configured ceiling.
func (e *Engine) exceedsMaxPosition(ps *playerState, symbol string, side Side, qty int64) bool {
	projected := e.heldQty(ps.id, symbol) + int64(side)*(qty+e.openQty(ps, symbol, side))
	return abs64(projected) > e.cfg.MaxPosition
}

func avgPrice(trades []Trade, filled int64) float64 {
	if filled == 0 {
		return 0
	}
	var notional int64
	for _, t := range trades {
		notional += t.Price * t.Qty
	}
	return float64(notional) / float64(filled)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
