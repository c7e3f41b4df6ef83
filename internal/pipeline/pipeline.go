package pipeline

import (
	"context"
	"sync"
	"time"

	"main/internal/executor"
	"main/internal/ledger"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/strategy"
	"main/internal/vi"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"
)

type eventKind uint8

const (
	eventQuote eventKind = iota
	eventReport
	eventNormalize
)

type event struct {
	kind       eventKind
	quote      model.Quote
	report     model.ViReport
	instrument model.Instrument
	tsNano     int64
}

// Submitter accepts approved order intents.
type Submitter interface {
	Submit(intent model.OrderIntent) error
}

// Recorder receives pipeline events for persistence. Implementations
// must not block the caller.
type Recorder interface {
	Transition(tr model.ViTransition)
	Signal(signal model.TradeSignal, decision model.RiskDecision)
	Fill(order executor.Order, result ledger.FillResult)
}

// Config bounds the dispatch lanes and the VI release cooldown.
type Config struct {
	Lanes           int           `json:"lanes"`
	LaneDepth       int           `json:"laneDepth"`
	ReleaseCooldown time.Duration `json:"releaseCooldown"`
}

func (cfg Config) withDefaults() Config {
	if cfg.Lanes <= 0 {
		cfg.Lanes = 8
	}
	if cfg.LaneDepth <= 0 {
		cfg.LaneDepth = 1024
	}
	if cfg.ReleaseCooldown <= 0 {
		cfg.ReleaseCooldown = 3 * time.Minute
	}
	return cfg
}

// Pipeline routes feed events through the VI tracker, the strategy and
// the risk engine into the order executor. Events for one instrument
// always run on the same lane, so per-instrument ordering holds without
// a global lock.
type Pipeline struct {
	cfg      Config
	tracker  *vi.Tracker
	strategy *strategy.Engine
	quotes   *strategy.QuoteBook
	risk     *risk.Engine
	book     *ledger.Ledger
	executor Submitter
	metrics  *obs.Metrics
	recorder Recorder

	lanes []chan event
	ctx   context.Context
	wg    sync.WaitGroup

	exitMu      sync.Mutex
	pendingExit map[model.Instrument]struct{}
}

func New(
	cfg Config,
	tracker *vi.Tracker,
	engine *strategy.Engine,
	quotes *strategy.QuoteBook,
	riskEngine *risk.Engine,
	book *ledger.Ledger,
	submitter Submitter,
	metrics *obs.Metrics,
	recorder Recorder,
) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:         cfg,
		tracker:     tracker,
		strategy:    engine,
		quotes:      quotes,
		risk:        riskEngine,
		book:        book,
		executor:    submitter,
		metrics:     metrics,
		recorder:    recorder,
		lanes:       make([]chan event, cfg.Lanes),
		pendingExit: make(map[model.Instrument]struct{}),
	}
	for i := range p.lanes {
		p.lanes[i] = make(chan event, cfg.LaneDepth)
	}
	return p
}

// Run starts one worker per lane. Call before feeding events.
func (p *Pipeline) Run(ctx context.Context) {
	p.ctx = ctx
	for i := range p.lanes {
		p.wg.Add(1)
		go p.laneWorker(ctx, p.lanes[i])
	}
}

// Wait blocks until all lane workers exit.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) laneWorker(ctx context.Context, lane chan event) {
	defer p.wg.Done()
	for {
		select {
		case ev := <-lane:
			p.handle(ev)
		case <-ctx.Done():
			return
		}
	}
}

// OnQuote dispatches a trade tick onto the instrument's lane.
func (p *Pipeline) OnQuote(q model.Quote) {
	if q.Instrument == "" || q.Last <= 0 {
		p.metrics.IncFeedAnomaly()
		logs.Debugf("pipeline: drop malformed quote, instrument: %s", q.Instrument)
		return
	}
	p.dispatch(q.Instrument, event{kind: eventQuote, quote: q})
}

// OnViStatus dispatches a VI status report onto the instrument's lane.
func (p *Pipeline) OnViStatus(report model.ViReport) {
	if report.Instrument == "" {
		p.metrics.IncFeedAnomaly()
		logs.Debugf("pipeline: drop VI report without instrument")
		return
	}
	p.dispatch(report.Instrument, event{kind: eventReport, report: report})
}

func (p *Pipeline) dispatch(inst model.Instrument, ev event) {
	lane := p.lanes[hashInstrument(inst)%uint32(len(p.lanes))]
	select {
	case lane <- ev:
	case <-p.ctx.Done():
	}
}

func (p *Pipeline) handle(ev event) {
	switch ev.kind {
	case eventQuote:
		p.handleQuote(ev.quote)
	case eventReport:
		p.handleReport(ev.report)
	case eventNormalize:
		p.handleNormalize(ev.instrument, ev.tsNano)
	}
}

func (p *Pipeline) handleQuote(q model.Quote) {
	p.quotes.Apply(q)
	p.book.Mark(q.Instrument, q.Last)
	p.checkStops(q.Instrument, q.Last)
}

func (p *Pipeline) handleReport(report model.ViReport) {
	start := time.Now()
	tr, ok := p.tracker.OnStatusReport(report)
	if !ok {
		return
	}
	p.metrics.IncTransition()
	logs.Infof("pipeline: VI %s -> %s, instrument: %s trigger=%d",
		tr.From, tr.To, tr.Instrument, tr.TriggerPrice)
	if p.recorder != nil {
		p.recorder.Transition(tr)
	}
	if tr.IsDeactivation() {
		p.scheduleNormalize(tr.Instrument)
	}

	position, _ := p.book.Position(tr.Instrument)
	signal := p.strategy.OnTransition(tr, position)
	p.metrics.IncSignal(signal.Reason)
	p.route(signal, position)
	p.metrics.ObservePipeline(time.Since(start))
}

func (p *Pipeline) handleNormalize(inst model.Instrument, tsNano int64) {
	tr, ok := p.tracker.Normalize(inst, tsNano)
	if !ok {
		return
	}
	p.metrics.IncTransition()
	logs.Debugf("pipeline: VI cooldown elapsed, instrument: %s", inst)
	if p.recorder != nil {
		p.recorder.Transition(tr)
	}
}

// scheduleNormalize arms the post-release cooldown. The normalize runs
// on the instrument's lane like any other event.
func (p *Pipeline) scheduleNormalize(inst model.Instrument) {
	time.AfterFunc(p.cfg.ReleaseCooldown, func() {
		p.dispatch(inst, event{
			kind:       eventNormalize,
			instrument: inst,
			tsNano:     time.Now().UTC().UnixNano(),
		})
	})
}

// checkStops synthesizes forced exits for a crossed stop-loss or
// take-profit on the marked instrument. One forced exit stays pending
// until its fill closes the position, so repeated marks below the stop
// do not stack sell orders.
func (p *Pipeline) checkStops(inst model.Instrument, last model.Price) {
	position, ok := p.book.Position(inst)
	if !ok || (position.StopLoss <= 0 && position.TakeProfit <= 0) {
		return
	}

	p.exitMu.Lock()
	_, pending := p.pendingExit[inst]
	p.exitMu.Unlock()
	if pending {
		return
	}

	forced := p.risk.CheckStops(model.PortfolioState{
		Positions: map[model.Instrument]model.Position{inst: position},
		Marks:     map[model.Instrument]model.Price{inst: last},
		TakenAt:   time.Now().UTC().UnixNano(),
	})
	for _, signal := range forced {
		p.exitMu.Lock()
		p.pendingExit[inst] = struct{}{}
		p.exitMu.Unlock()
		p.metrics.IncSignal(signal.Reason)
		p.route(signal, position)
	}
}

// route runs a non-hold signal through the risk engine and submits the
// approved remainder.
func (p *Pipeline) route(signal model.TradeSignal, position model.Position) {
	if signal.Direction == enum.SignalHold {
		return
	}

	if p.book.Halted(signal.Instrument) {
		decision := model.RiskDecision{
			SignalID:    signal.ID,
			Instrument:  signal.Instrument,
			Action:      enum.RiskActionDeny,
			Reason:      enum.RiskReasonHalted,
			ProposedQty: signal.Quantity,
		}
		p.metrics.IncRiskReason(decision.Reason)
		if p.recorder != nil {
			p.recorder.Signal(signal, decision)
		}
		p.clearPendingExit(signal)
		return
	}

	decision := p.risk.Evaluate(signal, position, p.book.Snapshot())
	p.metrics.IncRiskReason(decision.Reason)
	if p.recorder != nil {
		p.recorder.Signal(signal, decision)
	}
	if !decision.Approved() {
		p.clearPendingExit(signal)
		return
	}

	intent := model.OrderIntent{
		ClientRef:    uuid.NewString(),
		SignalID:     signal.ID,
		TransitionID: signal.TransitionID,
		Instrument:   signal.Instrument,
		Side:         sideOf(signal.Direction),
		Type:         enum.OrderTypeLimit,
		Price:        signal.Price,
		Quantity:     decision.ApprovedQty,
		Forced:       signal.Forced,
		CreatedAt:    time.Now().UTC().UnixNano(),
	}
	if err := p.executor.Submit(intent); err != nil {
		logs.Errorf("pipeline: submit %s signal=%s, err: %+v", signal.Instrument, signal.ID, err)
		p.clearPendingExit(signal)
	}
}

// OnFill reacts to ledger mutations: fresh entries get their protective
// marks, closed exits release the pending flag. Wire this as the
// executor's fill hook.
func (p *Pipeline) OnFill(order executor.Order, result ledger.FillResult) {
	if p.recorder != nil {
		p.recorder.Fill(order, result)
	}

	if result.Closed {
		p.exitMu.Lock()
		delete(p.pendingExit, order.Instrument)
		p.exitMu.Unlock()
		return
	}

	if order.Side == enum.OrderSideBuy && !order.Forced && result.Position.Quantity > 0 {
		stopLoss, takeProfit := p.risk.Stops(result.Position.AvgEntry)
		if stopLoss > 0 || takeProfit > 0 {
			p.book.SetStops(order.Instrument, stopLoss, takeProfit)
		}
	}
}

// OnOrderTerminal reacts to orders that died without fully filling. A
// rejected or cancelled forced exit releases the pending flag, so the
// next stop scan fires again while the position sits past its mark.
// Wire this as the executor's terminal hook.
func (p *Pipeline) OnOrderTerminal(order executor.Order) {
	if !order.Forced {
		return
	}
	p.exitMu.Lock()
	delete(p.pendingExit, order.Instrument)
	p.exitMu.Unlock()
}

func (p *Pipeline) clearPendingExit(signal model.TradeSignal) {
	if !signal.Forced {
		return
	}
	p.exitMu.Lock()
	delete(p.pendingExit, signal.Instrument)
	p.exitMu.Unlock()
}

func sideOf(direction enum.SignalDirection) enum.OrderSide {
	if direction == enum.SignalSell {
		return enum.OrderSideSell
	}
	return enum.OrderSideBuy
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
