package strategy

import (
	"sync"
	"time"

	"main/internal/model"
)

const quoteShards = 32

// QuoteContext is a read-only snapshot handed to the signal rules.
type QuoteContext struct {
	Quote         model.Quote
	SessionHigh   model.Price
	WindowVolume  model.Quantity
	SessionVolume model.Quantity
	SessionStart  int64
	HasQuote      bool
}

// QuoteBook keeps the most recent quote and a short rolling volume
// window per instrument. Fed by the market data stream; read by the
// signal generator and the stop-loss scan.
type QuoteBook struct {
	window time.Duration
	shards [quoteShards]quoteShard
}

type quoteShard struct {
	mu      sync.Mutex
	entries map[model.Instrument]*quoteEntry
}

type quoteEntry struct {
	last         model.Quote
	sessionHigh  model.Price
	sessionStart int64
	trades       []tradePoint
}

type tradePoint struct {
	tsNano int64
	qty    model.Quantity
}

func NewQuoteBook(window time.Duration) *QuoteBook {
	if window <= 0 {
		window = time.Minute
	}
	b := &QuoteBook{window: window}
	for i := range b.shards {
		b.shards[i].entries = make(map[model.Instrument]*quoteEntry)
	}
	return b
}

func (b *QuoteBook) shard(inst model.Instrument) *quoteShard {
	return &b.shards[hashInstrument(inst)%quoteShards]
}

// Apply records a trade tick.
func (b *QuoteBook) Apply(q model.Quote) {
	s := b.shard(q.Instrument)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[q.Instrument]
	if !ok {
		entry = &quoteEntry{sessionStart: q.EventTsNano}
		s.entries[q.Instrument] = entry
	}

	entry.last = q
	if q.High > entry.sessionHigh {
		entry.sessionHigh = q.High
	}
	if q.Last > entry.sessionHigh {
		entry.sessionHigh = q.Last
	}

	entry.trades = append(entry.trades, tradePoint{tsNano: q.EventTsNano, qty: q.TradeVolume})
	entry.trim(q.EventTsNano - b.window.Nanoseconds())
}

// Context returns the current snapshot for an instrument.
func (b *QuoteBook) Context(inst model.Instrument) QuoteContext {
	s := b.shard(inst)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[inst]
	if !ok {
		return QuoteContext{}
	}

	var window model.Quantity
	for _, tp := range entry.trades {
		window += tp.qty
	}
	return QuoteContext{
		Quote:         entry.last,
		SessionHigh:   entry.sessionHigh,
		WindowVolume:  window,
		SessionVolume: entry.last.TotalVolume,
		SessionStart:  entry.sessionStart,
		HasQuote:      true,
	}
}

// LastPrice returns the latest trade price, zero when unknown.
func (b *QuoteBook) LastPrice(inst model.Instrument) model.Price {
	s := b.shard(inst)
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[inst]; ok {
		return entry.last.Last
	}
	return 0
}

func (e *quoteEntry) trim(cutoff int64) {
	idx := 0
	for idx < len(e.trades) && e.trades[idx].tsNano < cutoff {
		idx++
	}
	if idx > 0 {
		e.trades = append(e.trades[:0], e.trades[idx:]...)
	}
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
