package journal

import (
	"context"
	"sync"
	"time"

	"main/internal/executor"
	"main/internal/ledger"
	"main/internal/model"
	"main/pkg/conn"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"
)

// TransitionRecord is one persisted VI transition.
type TransitionRecord struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	TransitionID uint64 `gorm:"index"`
	Instrument   string `gorm:"index;size:12"`
	FromStatus   string `gorm:"size:20"`
	ToStatus     string `gorm:"size:20"`
	TriggerPrice int64
	EventTsNano  int64
	CreatedAt    time.Time
}

func (TransitionRecord) TableName() string { return "vi_transitions" }

// SignalRecord is one persisted signal with its risk decision.
type SignalRecord struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	SignalID     string `gorm:"index;size:40"`
	TransitionID uint64
	Instrument   string `gorm:"index;size:12"`
	Direction    string `gorm:"size:10"`
	Reason       string `gorm:"size:40"`
	Quantity     int64
	Price        int64
	Forced       bool
	RiskAction   string `gorm:"size:12"`
	RiskReason   string `gorm:"size:24"`
	ApprovedQty  int64
	GeneratedAt  int64
	CreatedAt    time.Time
}

func (SignalRecord) TableName() string { return "trade_signals" }

// ExecutionRecord is one persisted fill application.
type ExecutionRecord struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	ClientRef    string `gorm:"index;size:40"`
	OrderID      string `gorm:"index;size:20"`
	SignalID     string `gorm:"size:40"`
	Instrument   string `gorm:"index;size:12"`
	Side         string `gorm:"size:6"`
	OrderQty     int64
	FilledQty    int64
	AvgFillPrice int64
	Status       string `gorm:"size:12"`
	RealizedPnl  int64
	PositionQty  int64
	Closed       bool
	CreatedAt    time.Time
}

func (ExecutionRecord) TableName() string { return "executions" }

// Writer persists pipeline events asynchronously. Enqueueing never
// blocks; when the queue backs up, records are dropped with a warning
// rather than stalling the trading path.
type Writer struct {
	db    *gorm.DB
	queue chan any
	wg    sync.WaitGroup
}

func NewWriter(client *conn.Client, depth int) (*Writer, error) {
	if depth <= 0 {
		depth = 1024
	}
	db := client.DB()
	if db == nil {
		return nil, errors.New("journal: nil database")
	}
	if err := db.AutoMigrate(&TransitionRecord{}, &SignalRecord{}, &ExecutionRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate journal tables")
	}
	return &Writer{db: db, queue: make(chan any, depth)}, nil
}

// Run starts the flush worker.
func (w *Writer) Run(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				w.flushRemaining()
				return
			case record := <-w.queue:
				w.persist(record)
			}
		}
	}()
}

// Wait blocks until the flush worker exits.
func (w *Writer) Wait() {
	w.wg.Wait()
}

func (w *Writer) flushRemaining() {
	for {
		select {
		case record := <-w.queue:
			w.persist(record)
		default:
			return
		}
	}
}

func (w *Writer) persist(record any) {
	if err := w.db.Create(record).Error; err != nil {
		logs.Errorf("journal: persist %T, err: %+v", record, err)
	}
}

func (w *Writer) enqueue(record any) {
	select {
	case w.queue <- record:
	default:
		logs.Warnf("journal: queue full, drop %T", record)
	}
}

// Transition implements the pipeline recorder.
func (w *Writer) Transition(tr model.ViTransition) {
	w.enqueue(toTransitionRecord(tr))
}

// Signal implements the pipeline recorder.
func (w *Writer) Signal(signal model.TradeSignal, decision model.RiskDecision) {
	w.enqueue(toSignalRecord(signal, decision))
}

// Fill implements the pipeline recorder.
func (w *Writer) Fill(order executor.Order, result ledger.FillResult) {
	w.enqueue(toExecutionRecord(order, result))
}

func toTransitionRecord(tr model.ViTransition) *TransitionRecord {
	return &TransitionRecord{
		TransitionID: tr.ID,
		Instrument:   string(tr.Instrument),
		FromStatus:   tr.From.String(),
		ToStatus:     tr.To.String(),
		TriggerPrice: int64(tr.TriggerPrice),
		EventTsNano:  tr.EventTsNano,
	}
}

func toSignalRecord(signal model.TradeSignal, decision model.RiskDecision) *SignalRecord {
	return &SignalRecord{
		SignalID:     signal.ID,
		TransitionID: signal.TransitionID,
		Instrument:   string(signal.Instrument),
		Direction:    signal.Direction.String(),
		Reason:       signal.Reason.String(),
		Quantity:     int64(signal.Quantity),
		Price:        int64(signal.Price),
		Forced:       signal.Forced,
		RiskAction:   decision.Action.String(),
		RiskReason:   decision.Reason.String(),
		ApprovedQty:  int64(decision.ApprovedQty),
		GeneratedAt:  signal.GeneratedAt,
	}
}

func toExecutionRecord(order executor.Order, result ledger.FillResult) *ExecutionRecord {
	return &ExecutionRecord{
		ClientRef:    order.ClientRef,
		OrderID:      order.OrderID,
		SignalID:     order.SignalID,
		Instrument:   string(order.Instrument),
		Side:         order.Side.String(),
		OrderQty:     int64(order.Quantity),
		FilledQty:    int64(order.FilledQty),
		AvgFillPrice: int64(order.AvgFillPrice),
		Status:       order.Status.String(),
		RealizedPnl:  int64(result.RealizedPnL),
		PositionQty:  int64(result.Position.Quantity),
		Closed:       result.Closed,
	}
}
