package feed

import (
	"context"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/yanun0323/logs"
)

// Subscriber manages per-instrument trade streams.
type Subscriber interface {
	SubscribeTrades(ctx context.Context, market enum.Market, inst model.Instrument) error
	UnsubscribeTrades(market enum.Market, inst model.Instrument) error
}

// AutoSubscriber opens the trade stream for an instrument when its VI
// activates and drops it once the post-release cooldown elapses, so the
// socket does not carry the whole market's ticks. A re-activation
// during the cooldown keeps the stream alive.
type AutoSubscriber struct {
	next     Handler
	client   Subscriber
	markets  map[model.Instrument]enum.Market
	cooldown time.Duration
	ctx      context.Context

	mu  sync.Mutex
	gen map[model.Instrument]uint64
}

func NewAutoSubscriber(ctx context.Context, next Handler, client Subscriber, markets map[model.Instrument]enum.Market, cooldown time.Duration) *AutoSubscriber {
	if cooldown <= 0 {
		cooldown = 3 * time.Minute
	}
	return &AutoSubscriber{
		next:     next,
		client:   client,
		markets:  markets,
		cooldown: cooldown,
		ctx:      ctx,
		gen:      make(map[model.Instrument]uint64),
	}
}

func (a *AutoSubscriber) OnQuote(q model.Quote) {
	a.next.OnQuote(q)
}

func (a *AutoSubscriber) OnViStatus(report model.ViReport) {
	a.track(report)
	a.next.OnViStatus(report)
}

func (a *AutoSubscriber) track(report model.ViReport) {
	market, ok := a.markets[report.Instrument]
	if !ok {
		return
	}

	switch {
	case report.Status.IsActivated():
		a.mu.Lock()
		_, streaming := a.gen[report.Instrument]
		a.gen[report.Instrument]++
		a.mu.Unlock()

		if !streaming {
			if err := a.client.SubscribeTrades(a.ctx, market, report.Instrument); err != nil {
				logs.Errorf("feed: subscribe trades %s, err: %+v", report.Instrument, err)
				a.mu.Lock()
				delete(a.gen, report.Instrument)
				a.mu.Unlock()
			}
		}
	case report.Status == enum.ViStatusDeactivated:
		a.mu.Lock()
		gen, streaming := a.gen[report.Instrument]
		a.mu.Unlock()
		if !streaming {
			return
		}
		a.scheduleUnsubscribe(report.Instrument, market, gen)
	}
}

func (a *AutoSubscriber) scheduleUnsubscribe(inst model.Instrument, market enum.Market, gen uint64) {
	time.AfterFunc(a.cooldown, func() {
		a.mu.Lock()
		current, ok := a.gen[inst]
		if !ok || current != gen {
			// Re-activated during the cooldown; keep the stream.
			a.mu.Unlock()
			return
		}
		delete(a.gen, inst)
		a.mu.Unlock()

		if err := a.client.UnsubscribeTrades(market, inst); err != nil {
			logs.Warnf("feed: unsubscribe trades %s, err: %+v", inst, err)
		}
	})
}

// Streaming reports whether an instrument's trade stream is open.
func (a *AutoSubscriber) Streaming(inst model.Instrument) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.gen[inst]
	return ok
}
