package obs

import (
	"sync/atomic"
	"time"

	"main/internal/model/enum"
)

const (
	maxOrderStatus  = int(enum.OrderStatusCancelled)
	maxRiskReason   = int(enum.RiskReasonHalted)
	maxSignalReason = int(enum.SignalReasonTakeProfit)
)

// Metrics collects lightweight counters and latency stats for the VI
// pipeline. All methods are nil-safe and lock-free.
type Metrics struct {
	transitions     uint64
	signals         [maxSignalReason + 1]uint64
	riskReasons     [maxRiskReason + 1]uint64
	orderSubmitted  uint64
	orderAcks       [maxOrderStatus + 1]uint64
	orderRetries    uint64
	terminalRejects uint64
	queueDrops      uint64
	feedAnomalies   uint64

	submitLatency   LatencyStats
	pipelineLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Transitions     uint64
	SignalReasons   map[enum.SignalReason]uint64
	RiskReasons     map[enum.RiskReason]uint64
	OrderSubmitted  uint64
	OrderAcks       map[enum.OrderStatus]uint64
	OrderRetries    uint64
	TerminalRejects uint64
	QueueDrops      uint64
	FeedAnomalies   uint64
	SubmitLatency   LatencySnapshot
	PipelineLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncTransition counts an emitted VI transition.
func (m *Metrics) IncTransition() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.transitions, 1)
}

// IncSignal counts a generated signal by reason.
func (m *Metrics) IncSignal(reason enum.SignalReason) {
	if m == nil {
		return
	}
	if idx := int(reason); idx >= 0 && idx < len(m.signals) {
		atomic.AddUint64(&m.signals[idx], 1)
	}
}

// IncRiskReason counts a veto or downsize by rule.
func (m *Metrics) IncRiskReason(reason enum.RiskReason) {
	if m == nil {
		return
	}
	if idx := int(reason); idx >= 0 && idx < len(m.riskReasons) {
		atomic.AddUint64(&m.riskReasons[idx], 1)
	}
}

// IncOrderSubmitted counts an accepted submission.
func (m *Metrics) IncOrderSubmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.orderSubmitted, 1)
}

// IncOrderAck counts a broker acknowledgment by resulting status.
func (m *Metrics) IncOrderAck(status enum.OrderStatus) {
	if m == nil {
		return
	}
	if idx := int(status); idx >= 0 && idx < len(m.orderAcks) {
		atomic.AddUint64(&m.orderAcks[idx], 1)
	}
}

// IncOrderRetry counts a scheduled resubmission.
func (m *Metrics) IncOrderRetry() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.orderRetries, 1)
}

// IncOrderTerminalReject counts a rejection surfaced without retry.
func (m *Metrics) IncOrderTerminalReject() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.terminalRejects, 1)
}

// IncQueueDrop records an admission-control drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncFeedAnomaly records a malformed or out-of-order feed event.
func (m *Metrics) IncFeedAnomaly() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.feedAnomalies, 1)
}

// ObserveSubmit measures a broker submission round trip.
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.submitLatency.Observe(d)
}

// ObservePipeline measures feed-to-decision latency.
func (m *Metrics) ObservePipeline(d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	signalCounts := make(map[enum.SignalReason]uint64)
	for i := range m.signals {
		if v := atomic.LoadUint64(&m.signals[i]); v > 0 {
			signalCounts[enum.SignalReason(i)] = v
		}
	}
	riskCounts := make(map[enum.RiskReason]uint64)
	for i := range m.riskReasons {
		if v := atomic.LoadUint64(&m.riskReasons[i]); v > 0 {
			riskCounts[enum.RiskReason(i)] = v
		}
	}
	ackCounts := make(map[enum.OrderStatus]uint64)
	for i := range m.orderAcks {
		if v := atomic.LoadUint64(&m.orderAcks[i]); v > 0 {
			ackCounts[enum.OrderStatus(i)] = v
		}
	}
	return Snapshot{
		Transitions:     atomic.LoadUint64(&m.transitions),
		SignalReasons:   signalCounts,
		RiskReasons:     riskCounts,
		OrderSubmitted:  atomic.LoadUint64(&m.orderSubmitted),
		OrderAcks:       ackCounts,
		OrderRetries:    atomic.LoadUint64(&m.orderRetries),
		TerminalRejects: atomic.LoadUint64(&m.terminalRejects),
		QueueDrops:      atomic.LoadUint64(&m.queueDrops),
		FeedAnomalies:   atomic.LoadUint64(&m.feedAnomalies),
		SubmitLatency:   m.submitLatency.Snapshot(),
		PipelineLatency: m.pipelineLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns a point-in-time view of the stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
