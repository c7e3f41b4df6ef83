package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/ledger"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/pkg/exception"

	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"
)

// Gateway is the broker order transport.
type Gateway interface {
	PlaceOrder(ctx context.Context, intent model.OrderIntent) (orderID string, err error)
	CancelOrder(ctx context.Context, orderID string) error
}

// FillHook observes ledger mutations caused by fills, e.g. to attach
// stop marks on a fresh entry or journal the execution.
type FillHook func(order Order, result ledger.FillResult)

// TerminalHook observes orders that end without fully filling: terminal
// rejections, cancels and exhausted retries. A forced exit that dies
// this way must release its pending flag upstream.
type TerminalHook func(order Order)

// Config bounds the submission pool and the retry policy.
type Config struct {
	Workers       int           `json:"workers"`
	QueueCap      int           `json:"queueCap"`
	OrdersPerSec  float64       `json:"ordersPerSec"`
	Burst         int           `json:"burst"`
	MaxRetries    int           `json:"maxRetries"`
	RetryBase     time.Duration `json:"retryBase"`
	RetryCeiling  time.Duration `json:"retryCeiling"`
	SubmitTimeout time.Duration `json:"submitTimeout"`
	DrainTimeout  time.Duration `json:"drainTimeout"`
}

func (cfg Config) withDefaults() Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = 30 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return cfg
}

type retryEntry struct {
	clientRef    string
	nextEligible int64
}

// parkedAck is a fill acknowledgment waiting for its submission to
// bind. The broker assigns order ids, so its execution push can outrun
// the HTTP response that carries the id.
type parkedAck struct {
	ack      model.OrderAck
	deadline int64
}

// Coordinator turns approved intents into broker orders, tracks their
// lifecycle and reconciles fills into the ledger. Submission is
// fire-and-forget: the pipeline never blocks on a broker round trip.
type Coordinator struct {
	cfg          Config
	gateway      Gateway
	book         *ledger.Ledger
	metrics      *obs.Metrics
	fillHook     FillHook
	terminalHook TerminalHook

	mu      sync.Mutex
	machine *StateMachine
	intents map[string]model.OrderIntent
	retries []retryEntry
	parked  []parkedAck

	limiter *rate.Limiter
	queue   chan model.OrderIntent
	running atomic.Bool
	wg      sync.WaitGroup
	now     func() int64
}

func NewCoordinator(cfg Config, gateway Gateway, book *ledger.Ledger, metrics *obs.Metrics, fillHook FillHook, terminalHook TerminalHook) *Coordinator {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.OrdersPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.OrdersPerSec), cfg.Burst)
	}
	return &Coordinator{
		cfg:          cfg,
		gateway:      gateway,
		book:         book,
		metrics:      metrics,
		fillHook:     fillHook,
		terminalHook: terminalHook,
		machine:      NewStateMachine(),
		intents:      make(map[string]model.OrderIntent),
		limiter:      limiter,
		queue:        make(chan model.OrderIntent, cfg.QueueCap),
		now:          func() int64 { return time.Now().UTC().UnixNano() },
	}
}

// Submit enqueues an approved intent. Admission control: a full queue
// rejects immediately instead of growing without bound.
func (c *Coordinator) Submit(intent model.OrderIntent) error {
	c.mu.Lock()
	_, err := c.machine.Track(intent, c.now())
	if err == nil {
		c.intents[intent.ClientRef] = intent
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case c.queue <- intent:
		c.metrics.IncOrderSubmitted()
		return nil
	default:
		c.mu.Lock()
		delete(c.intents, intent.ClientRef)
		c.mu.Unlock()
		c.metrics.IncQueueDrop()
		return exception.ErrOrderQueueFull
	}
}

// Run starts the submission workers and the retry scheduler.
func (c *Coordinator) Run(ctx context.Context) {
	if c.running.Swap(true) {
		return
	}

	for range c.cfg.Workers {
		c.wg.Add(1)
		go c.worker(ctx)
	}
	c.wg.Add(1)
	go c.retryLoop(ctx)
}

func (c *Coordinator) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case intent := <-c.queue:
			c.send(ctx, intent)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) send(ctx context.Context, intent model.OrderIntent) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	orderID, err := c.gateway.PlaceOrder(callCtx, intent)
	cancel()
	c.metrics.ObserveSubmit(time.Since(start))

	c.mu.Lock()

	if err != nil {
		// Transport failures are transient by definition; the broker
		// never saw the order.
		logs.Warnf("executor: submit failed %s ref=%s, err: %+v", intent.Instrument, intent.ClientRef, err)
		if o, ok := c.machine.OrderByRef(intent.ClientRef); ok {
			o.Status = enum.OrderStatusRejected
			o.Reason = enum.RejectReasonGatewayDown
		}
		exhausted, snapshot := c.scheduleRetryLocked(intent.ClientRef)
		c.mu.Unlock()
		if exhausted {
			c.notifyTerminal(snapshot)
		}
		return
	}

	if _, err := c.machine.Bind(intent.ClientRef, orderID); err != nil {
		c.mu.Unlock()
		logs.Errorf("executor: bind order id %s, err: %+v", orderID, err)
		return
	}
	replays := c.takeParkedLocked(orderID)
	c.mu.Unlock()

	logs.Infof("executor: submitted %s %s qty=%d ref=%s order=%s",
		intent.Instrument, intent.Side, intent.Quantity, intent.ClientRef, orderID)
	for _, ack := range replays {
		c.OnBrokerAck(ack)
	}
}

// OnBrokerAck applies an asynchronous acknowledgment. Fills mutate the
// ledger transactionally; rejections never do.
func (c *Coordinator) OnBrokerAck(ack model.OrderAck) {
	c.mu.Lock()
	order, delta, err := c.machine.ApplyAck(ack)
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, exception.ErrOrderUnknown) && ack.FilledQty > 0 && ack.Instrument != "" {
			if c.park(ack) {
				return
			}
			// An execution this process never ordered means the book
			// can no longer be trusted for that instrument.
			c.book.Halt(ack.Instrument)
			logs.Errorf("executor: %+v, order: %s instrument: %s",
				exception.ErrLedgerUnknownOrder, ack.OrderID, ack.Instrument)
			return
		}
		logs.Warnf("executor: drop ack order=%s status=%s, err: %+v", ack.OrderID, ack.Status, err)
		return
	}
	snapshot := *order
	c.mu.Unlock()

	c.metrics.IncOrderAck(ack.Status)

	if delta > 0 {
		result, err := c.book.ApplyFill(model.Fill{
			OrderID:    snapshot.OrderID,
			Instrument: snapshot.Instrument,
			Side:       snapshot.Side,
			Quantity:   delta,
			Price:      ack.FillPrice,
			TsNano:     ack.EventTsNano,
		})
		if err != nil {
			logs.Errorf("executor: apply fill order=%s, err: %+v", snapshot.OrderID, err)
			return
		}
		if c.fillHook != nil {
			c.fillHook(snapshot, result)
		}
	}

	if ack.Status == enum.OrderStatusCancelled {
		c.notifyTerminal(snapshot)
	}
	if ack.Status == enum.OrderStatusRejected {
		c.handleRejection(snapshot, ack.Reason)
	}
}

func (c *Coordinator) handleRejection(order Order, reason enum.RejectReason) {
	if !reason.IsTransient() {
		logs.Errorf("executor: terminal rejection %s ref=%s reason=%s",
			order.Instrument, order.ClientRef, reason)
		c.metrics.IncOrderTerminalReject()
		c.notifyTerminal(order)
		return
	}

	c.mu.Lock()
	exhausted, snapshot := c.scheduleRetryLocked(order.ClientRef)
	c.mu.Unlock()
	if exhausted {
		c.notifyTerminal(snapshot)
	}
}

func (c *Coordinator) notifyTerminal(order Order) {
	if c.terminalHook != nil {
		c.terminalHook(order)
	}
}

// scheduleRetryLocked implements the retry state machine: attempt count
// plus next-eligible time, no blocking sleeps. Exhaustion is reported
// back so the caller can fire the terminal hook outside the lock.
func (c *Coordinator) scheduleRetryLocked(clientRef string) (exhausted bool, snapshot Order) {
	order, ok := c.machine.OrderByRef(clientRef)
	if !ok {
		return false, Order{}
	}
	if order.Attempts > c.cfg.MaxRetries {
		logs.Errorf("executor: %+v %s ref=%s attempts=%d",
			exception.ErrOrderRetryExhausted, order.Instrument, clientRef, order.Attempts)
		c.metrics.IncOrderTerminalReject()
		return true, *order
	}

	backoff := c.cfg.RetryBase << (order.Attempts - 1)
	if backoff > c.cfg.RetryCeiling {
		backoff = c.cfg.RetryCeiling
	}
	c.retries = append(c.retries, retryEntry{
		clientRef:    clientRef,
		nextEligible: c.now() + backoff.Nanoseconds(),
	})
	c.metrics.IncOrderRetry()
	logs.Warnf("executor: retry scheduled ref=%s attempt=%d backoff=%s",
		clientRef, order.Attempts, backoff)
	return false, Order{}
}

// park holds a fill ack that may belong to a submission whose broker
// order id is not bound yet. Returns false when no live submission for
// the instrument can explain the ack.
func (c *Coordinator) park(ack model.OrderAck) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.machine.HasUnbound(ack.Instrument) {
		return false
	}
	c.parked = append(c.parked, parkedAck{
		ack:      ack,
		deadline: c.now() + c.cfg.SubmitTimeout.Nanoseconds(),
	})
	logs.Debugf("executor: park fill ack order=%s until submission binds", ack.OrderID)
	return true
}

func (c *Coordinator) takeParkedLocked(orderID string) []model.OrderAck {
	var out []model.OrderAck
	remaining := c.parked[:0]
	for _, entry := range c.parked {
		if entry.ack.OrderID == orderID {
			out = append(out, entry.ack)
			continue
		}
		remaining = append(remaining, entry)
	}
	c.parked = remaining
	return out
}

// expireParked halts instruments whose parked fills no submission
// claimed within the submit timeout.
func (c *Coordinator) expireParked() {
	c.mu.Lock()
	now := c.now()
	var expired []model.OrderAck
	remaining := c.parked[:0]
	for _, entry := range c.parked {
		if entry.deadline > now {
			remaining = append(remaining, entry)
			continue
		}
		expired = append(expired, entry.ack)
	}
	c.parked = remaining
	c.mu.Unlock()

	for _, ack := range expired {
		c.book.Halt(ack.Instrument)
		logs.Errorf("executor: %+v, order: %s instrument: %s",
			exception.ErrLedgerUnknownOrder, ack.OrderID, ack.Instrument)
	}
}

func (c *Coordinator) retryLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.expireParked()
			for _, intent := range c.dueRetries() {
				select {
				case c.queue <- intent:
				default:
					c.metrics.IncQueueDrop()
					logs.Warnf("executor: retry dropped, queue full ref=%s", intent.ClientRef)
				}
			}
		}
	}
}

func (c *Coordinator) dueRetries() []model.OrderIntent {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var due []model.OrderIntent
	remaining := c.retries[:0]
	for _, entry := range c.retries {
		if entry.nextEligible > now {
			remaining = append(remaining, entry)
			continue
		}
		order, err := c.machine.Resubmit(entry.clientRef, now)
		if err != nil {
			continue
		}
		if intent, ok := c.intents[entry.clientRef]; ok {
			// A partially filled order retries only the remainder.
			intent.Quantity = order.Quantity
			due = append(due, intent)
		}
	}
	c.retries = remaining
	return due
}

// Drain waits for in-flight submissions to finish, bounded by the
// configured timeout. Unprocessed intents are logged, never dropped
// silently.
func (c *Coordinator) Drain(cancel context.CancelFunc) {
	deadline := time.NewTimer(c.cfg.DrainTimeout)
	defer deadline.Stop()

	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for len(c.queue) > 0 {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}()

	select {
	case <-drained:
	case <-deadline.C:
		close(stop)
	}
	cancel()
	c.wg.Wait()

	if pending := len(c.queue); pending > 0 {
		logs.Warnf("executor: shutdown with %d unprocessed submissions", pending)
	}
	c.mu.Lock()
	open := c.machine.Open()
	c.mu.Unlock()
	for _, o := range open {
		logs.Warnf("executor: open order at shutdown ref=%s order=%s status=%s",
			o.ClientRef, o.OrderID, o.Status)
	}
}

// Orders exposes a point-in-time copy of an order for inspection.
func (c *Coordinator) Order(orderID string) (Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.machine.Order(orderID); ok {
		return *o, true
	}
	return Order{}, false
}

// OrderByRef exposes a point-in-time copy by client reference.
func (c *Coordinator) OrderByRef(clientRef string) (Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.machine.OrderByRef(clientRef); ok {
		return *o, true
	}
	return Order{}, false
}
