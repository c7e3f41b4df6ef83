package ledger

import (
	"sync"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/yanun0323/logs"
)

const ledgerShards = 32

// FillResult reports the ledger mutation caused by one fill.
type FillResult struct {
	Position    model.Position
	RealizedPnL model.Notional
	Closed      bool
	Opened      bool
}

// Ledger is the authoritative in-memory record of open positions and
// realized P&L. Mutation is serialized per instrument through sharded
// locks; unrelated instruments never contend.
type Ledger struct {
	shards   [ledgerShards]ledgerShard
	realized struct {
		mu  sync.Mutex
		pnl model.Notional
	}
	now func() int64
}

type ledgerShard struct {
	mu        sync.Mutex
	positions map[model.Instrument]model.Position
	marks     map[model.Instrument]model.Price
	halted    map[model.Instrument]bool
}

func New() *Ledger {
	l := &Ledger{now: func() int64 { return time.Now().UTC().UnixNano() }}
	for i := range l.shards {
		l.shards[i].positions = make(map[model.Instrument]model.Position)
		l.shards[i].marks = make(map[model.Instrument]model.Price)
		l.shards[i].halted = make(map[model.Instrument]bool)
	}
	return l
}

func (l *Ledger) shard(inst model.Instrument) *ledgerShard {
	return &l.shards[hashInstrument(inst)%ledgerShards]
}

// Position returns the open position for an instrument, zero when flat.
func (l *Ledger) Position(inst model.Instrument) (model.Position, bool) {
	s := l.shard(inst)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[inst]
	return p, ok
}

// ApplyFill folds a fill into the position. Average entry price uses
// weighted-average cost basis; a reducing fill realizes
// (fill - avgEntry) * closedQty, and the position is removed when the
// quantity returns to zero.
func (l *Ledger) ApplyFill(fill model.Fill) (FillResult, error) {
	if fill.Quantity <= 0 || fill.Price <= 0 {
		return FillResult{}, exception.ErrLedgerInvalidQuantity
	}

	s := l.shard(fill.Instrument)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted[fill.Instrument] {
		return FillResult{}, exception.ErrLedgerInstrumentHalt
	}

	position := s.positions[fill.Instrument]
	position.Instrument = fill.Instrument

	signed := int64(fill.Quantity)
	if fill.Side == enum.OrderSideSell {
		signed = -signed
	}

	var result FillResult
	current := int64(position.Quantity)
	next := current + signed

	switch {
	case current == 0 || sameSign(current, signed):
		// Opening or adding: weighted-average entry.
		total := absInt64(current) + absInt64(signed)
		if total > 0 {
			weighted := int64(position.AvgEntry)*absInt64(current) + int64(fill.Price)*absInt64(signed)
			position.AvgEntry = model.Price(weighted / total)
		}
		if current == 0 {
			position.OpenedAt = fill.TsNano
			result.Opened = true
		}
	default:
		// Reducing or closing: realize P&L on the closed quantity.
		closed := minInt64(absInt64(current), absInt64(signed))
		pnl := (int64(fill.Price) - int64(position.AvgEntry)) * closed * signOf(current)
		result.RealizedPnL = model.Notional(pnl)
		l.addRealized(result.RealizedPnL)

		if absInt64(signed) > absInt64(current) {
			// Crossing through zero flips the position at the fill price.
			position.AvgEntry = fill.Price
			position.OpenedAt = fill.TsNano
		}
	}

	position.Quantity = model.Quantity(next)
	if next == 0 {
		delete(s.positions, fill.Instrument)
		result.Closed = true
		position.AvgEntry = 0
		position.StopLoss = 0
		position.TakeProfit = 0
	} else {
		s.positions[fill.Instrument] = position
	}

	result.Position = position
	logs.Debugf("ledger: fill %s %s qty=%d price=%d pos=%d realized=%d",
		fill.Instrument, fill.Side, fill.Quantity, fill.Price, next, result.RealizedPnL)
	return result, nil
}

// SetStops attaches protective marks to an open position.
func (l *Ledger) SetStops(inst model.Instrument, stopLoss, takeProfit model.Price) {
	s := l.shard(inst)
	s.mu.Lock()
	defer s.mu.Unlock()
	if position, ok := s.positions[inst]; ok {
		position.StopLoss = stopLoss
		position.TakeProfit = takeProfit
		s.positions[inst] = position
	}
}

// Mark records the latest trade price used for exposure and stop scans.
func (l *Ledger) Mark(inst model.Instrument, price model.Price) {
	if price <= 0 {
		return
	}
	s := l.shard(inst)
	s.mu.Lock()
	s.marks[inst] = price
	s.mu.Unlock()
}

// Halt stops all further automated mutation for one instrument. Used
// when a fill references no open order; fatal only to that instrument.
func (l *Ledger) Halt(inst model.Instrument) {
	s := l.shard(inst)
	s.mu.Lock()
	s.halted[inst] = true
	s.mu.Unlock()
	logs.Errorf("ledger: instrument halted: %s", inst)
}

// Halted reports whether automated processing is stopped for an instrument.
func (l *Ledger) Halted(inst model.Instrument) bool {
	s := l.shard(inst)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted[inst]
}

// Snapshot builds a consistent portfolio view, one shard at a time.
func (l *Ledger) Snapshot() model.PortfolioState {
	state := model.PortfolioState{
		Positions: make(map[model.Instrument]model.Position),
		Marks:     make(map[model.Instrument]model.Price),
		TakenAt:   l.now(),
	}

	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for inst, position := range s.positions {
			state.Positions[inst] = position
			mark := s.marks[inst]
			if mark > 0 {
				state.Marks[inst] = mark
			}
			state.TotalExposure += position.Exposure(mark)
		}
		s.mu.Unlock()
	}

	l.realized.mu.Lock()
	state.RealizedPnL = l.realized.pnl
	l.realized.mu.Unlock()
	return state
}

// RealizedPnL returns the accumulated realized profit and loss.
func (l *Ledger) RealizedPnL() model.Notional {
	l.realized.mu.Lock()
	defer l.realized.mu.Unlock()
	return l.realized.pnl
}

// Count returns the number of open positions.
func (l *Ledger) Count() int {
	count := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		count += len(s.positions)
		s.mu.Unlock()
	}
	return count
}

func (l *Ledger) addRealized(pnl model.Notional) {
	l.realized.mu.Lock()
	l.realized.pnl += pnl
	l.realized.mu.Unlock()
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func minInt64(a, b int64) int64 {
	if b < a {
		return b
	}
	return a
}

func signOf(v int64) int64 {
	if v < 0 {
		return -1
	}
	return 1
}

func hashInstrument(inst model.Instrument) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	var hash uint32 = offset32
	for i := 0; i < len(inst); i++ {
		hash ^= uint32(inst[i])
		hash *= prime32
	}
	return hash
}
