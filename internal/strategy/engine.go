package strategy

import (
	"time"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Config defines the VI transition rules. All thresholds come from
// configuration; the exchange never publishes the exact detection bands.
type Config struct {
	// Capital is the notional available to the strategy.
	Capital model.Notional `json:"capital"`
	// CapitalFractionBps sizes each entry as a fraction of Capital.
	CapitalFractionBps int64 `json:"capitalFractionBps"`
	// NearHighBps is the band below the session high that still counts
	// as "near high". 300 = 3%.
	NearHighBps int64 `json:"nearHighBps"`
	// MinVolumeRateBps is the minimum short-window volume rate relative
	// to the session average. 20000 = 2x.
	MinVolumeRateBps int64 `json:"minVolumeRateBps"`
	// QuoteTTL bounds quote staleness; older context resolves to Hold.
	QuoteTTL time.Duration `json:"quoteTTL"`
}

// Engine converts VI transitions plus quote context into trade signals.
// Ambiguous or missing context always resolves to Hold, never to a
// speculative order.
type Engine struct {
	cfg    Config
	quotes *QuoteBook
	now    func() int64
}

func NewEngine(cfg Config, quotes *QuoteBook) *Engine {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = 3 * time.Second
	}
	return &Engine{
		cfg:    cfg,
		quotes: quotes,
		now:    func() int64 { return time.Now().UTC().UnixNano() },
	}
}

// OnTransition produces exactly one signal per transition.
func (e *Engine) OnTransition(tr model.ViTransition, position model.Position) model.TradeSignal {
	signal := model.TradeSignal{
		ID:           uuid.NewString(),
		Instrument:   tr.Instrument,
		Direction:    enum.SignalHold,
		Reason:       enum.SignalReasonNone,
		TransitionID: tr.ID,
		GeneratedAt:  e.now(),
	}

	ctx := e.quotes.Context(tr.Instrument)

	switch {
	case tr.IsActivation():
		e.applyActivation(&signal, ctx)
	case tr.IsDeactivation():
		e.applyDeactivation(&signal, position)
	default:
		// Activated-to-activated and cooldown transitions carry no edge.
	}

	logs.Debugf("strategy: signal %s %s qty=%d reason=%s transition=%d",
		signal.Instrument, signal.Direction, signal.Quantity, signal.Reason, tr.ID)
	return signal
}

func (e *Engine) applyActivation(signal *model.TradeSignal, ctx QuoteContext) {
	if !ctx.HasQuote {
		signal.Reason = enum.SignalReasonMissingQuote
		return
	}
	if e.stale(ctx.Quote) {
		signal.Reason = enum.SignalReasonStaleQuote
		return
	}
	if !e.nearSessionHigh(ctx) || !e.volumeElevated(ctx) {
		signal.Reason = enum.SignalReasonViActivationNoMomentum
		return
	}

	qty := e.entryQuantity(ctx.Quote.Last)
	if qty <= 0 {
		signal.Reason = enum.SignalReasonViActivationNoMomentum
		return
	}

	signal.Direction = enum.SignalBuy
	signal.Quantity = qty
	signal.Price = ctx.Quote.Last
	signal.Reason = enum.SignalReasonViActivationMomentum
}

func (e *Engine) applyDeactivation(signal *model.TradeSignal, position model.Position) {
	if position.Quantity <= 0 {
		signal.Reason = enum.SignalReasonNoPosition
		return
	}
	signal.Direction = enum.SignalSell
	signal.Quantity = position.Quantity
	signal.Reason = enum.SignalReasonViDeactivationExit
}

func (e *Engine) stale(q model.Quote) bool {
	age := e.now() - q.RecvTsNano
	return age > e.cfg.QuoteTTL.Nanoseconds()
}

// nearSessionHigh checks last >= high * (1 - nearHighBps/10000).
func (e *Engine) nearSessionHigh(ctx QuoteContext) bool {
	if ctx.SessionHigh <= 0 || ctx.Quote.Last <= 0 {
		return false
	}
	if e.cfg.NearHighBps <= 0 {
		return ctx.Quote.Last >= ctx.SessionHigh
	}
	return int64(ctx.Quote.Last)*10000 >= int64(ctx.SessionHigh)*(10000-e.cfg.NearHighBps)
}

// volumeElevated compares the short-window volume rate against the
// session average rate scaled by the configured multiple.
func (e *Engine) volumeElevated(ctx QuoteContext) bool {
	if e.cfg.MinVolumeRateBps <= 0 {
		return true
	}
	elapsed := ctx.Quote.EventTsNano - ctx.SessionStart
	if elapsed <= 0 || ctx.SessionVolume <= 0 {
		return false
	}
	windowNanos := e.quotes.window.Nanoseconds()
	if windowNanos <= 0 || windowNanos > elapsed {
		windowNanos = elapsed
	}

	// windowVolume/window >= rate * sessionVolume/elapsed.
	windowRate := float64(ctx.WindowVolume) / float64(windowNanos)
	sessionRate := float64(ctx.SessionVolume) / float64(elapsed)
	return windowRate >= float64(e.cfg.MinVolumeRateBps)/10000*sessionRate
}

func (e *Engine) entryQuantity(price model.Price) model.Quantity {
	if price <= 0 || e.cfg.Capital <= 0 || e.cfg.CapitalFractionBps <= 0 {
		return 0
	}
	capital := int64(e.cfg.Capital)
	var budget int64
	if capital > maxInt64/e.cfg.CapitalFractionBps {
		budget = capital / 10000 * e.cfg.CapitalFractionBps
	} else {
		budget = capital * e.cfg.CapitalFractionBps / 10000
	}
	return model.Quantity(budget / int64(price))
}
