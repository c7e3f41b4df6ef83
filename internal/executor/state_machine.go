package executor

import (
	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

// Order holds the coordinator's view of an order lifecycle.
// FilledQty is cumulative; acknowledgments carry cumulative fills so a
// replayed ack never double-applies.
type Order struct {
	ClientRef    string
	OrderID      string
	SignalID     string
	TransitionID uint64
	Instrument   model.Instrument
	Side         enum.OrderSide
	Type         enum.OrderType
	Price        model.Price
	Quantity     model.Quantity
	FilledQty    model.Quantity
	AvgFillPrice model.Price
	Status       enum.OrderStatus
	Reason       enum.RejectReason
	Attempts     int
	Forced       bool
	SubmittedAt  int64
	LastUpdateAt int64
}

// StateMachine updates orders from intents and broker acknowledgments.
// Not safe for concurrent use; the coordinator serializes access.
type StateMachine struct {
	byRef map[string]*Order
	byID  map[string]*Order
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		byRef: make(map[string]*Order),
		byID:  make(map[string]*Order),
	}
}

// Track registers a new order in Submitted state.
func (m *StateMachine) Track(intent model.OrderIntent, tsNano int64) (*Order, error) {
	if intent.ClientRef == "" {
		return nil, exception.ErrOrderUnknown
	}
	if _, ok := m.byRef[intent.ClientRef]; ok {
		return nil, exception.ErrOrderDuplicate
	}
	o := &Order{
		ClientRef:    intent.ClientRef,
		SignalID:     intent.SignalID,
		TransitionID: intent.TransitionID,
		Instrument:   intent.Instrument,
		Side:         intent.Side,
		Type:         intent.Type,
		Price:        intent.Price,
		Quantity:     intent.Quantity,
		Status:       enum.OrderStatusSubmitted,
		Attempts:     1,
		Forced:       intent.Forced,
		SubmittedAt:  tsNano,
		LastUpdateAt: tsNano,
	}
	m.byRef[o.ClientRef] = o
	return o, nil
}

// Bind attaches the broker-assigned order id after submission.
func (m *StateMachine) Bind(clientRef, orderID string) (*Order, error) {
	o, ok := m.byRef[clientRef]
	if !ok {
		return nil, exception.ErrOrderUnknown
	}
	if o.OrderID != "" && o.OrderID != orderID {
		delete(m.byID, o.OrderID)
	}
	o.OrderID = orderID
	m.byID[orderID] = o
	return o, nil
}

// Resubmit returns a rejected order to Submitted state for a retry.
// A partially filled order retries only the unfilled remainder; the
// replacement broker order counts its cumulative fills from zero, so
// the old order id and fill counter must not survive.
func (m *StateMachine) Resubmit(clientRef string, tsNano int64) (*Order, error) {
	o, ok := m.byRef[clientRef]
	if !ok {
		return nil, exception.ErrOrderUnknown
	}
	if o.Status != enum.OrderStatusRejected {
		return nil, exception.ErrOrderInvalidTransition
	}
	if o.FilledQty > 0 {
		o.Quantity -= o.FilledQty
		o.FilledQty = 0
		o.AvgFillPrice = 0
	}
	if o.Quantity <= 0 {
		return nil, exception.ErrOrderInvalidFill
	}
	if o.OrderID != "" {
		delete(m.byID, o.OrderID)
		o.OrderID = ""
	}
	o.Status = enum.OrderStatusSubmitted
	o.Reason = enum.RejectReasonNone
	o.Attempts++
	o.LastUpdateAt = tsNano
	return o, nil
}

// HasUnbound reports whether a live order for the instrument still
// waits for its broker order id.
func (m *StateMachine) HasUnbound(inst model.Instrument) bool {
	for _, o := range m.byRef {
		if o.OrderID == "" && o.Instrument == inst && !o.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// Order looks up by broker order id.
func (m *StateMachine) Order(orderID string) (*Order, bool) {
	o, ok := m.byID[orderID]
	return o, ok
}

// OrderByRef looks up by client reference.
func (m *StateMachine) OrderByRef(clientRef string) (*Order, bool) {
	o, ok := m.byRef[clientRef]
	return o, ok
}

// ApplyAck folds a broker acknowledgment into the order and returns the
// newly executed quantity. A duplicate ack yields a zero delta and no
// state change, making replays harmless.
func (m *StateMachine) ApplyAck(ack model.OrderAck) (*Order, model.Quantity, error) {
	o, ok := m.byID[ack.OrderID]
	if !ok {
		return nil, 0, exception.ErrOrderUnknown
	}

	delta := ack.FilledQty - o.FilledQty
	if o.Status.IsTerminal() {
		if ack.Status == o.Status && delta <= 0 {
			return o, 0, nil
		}
		return o, 0, exception.ErrOrderInvalidTransition
	}
	if delta < 0 || ack.FilledQty > o.Quantity {
		return o, 0, exception.ErrOrderInvalidFill
	}

	if delta > 0 {
		// Weighted average across partial fills.
		prev := int64(o.AvgFillPrice) * int64(o.FilledQty)
		o.AvgFillPrice = model.Price((prev + int64(ack.FillPrice)*int64(delta)) / int64(ack.FilledQty))
		o.FilledQty = ack.FilledQty
	}

	switch ack.Status {
	case enum.OrderStatusPartFilled, enum.OrderStatusFilled,
		enum.OrderStatusRejected, enum.OrderStatusCancelled:
		o.Status = ack.Status
	case enum.OrderStatusSubmitted:
		// Acceptance echo; no state change.
	default:
		return o, delta, exception.ErrOrderInvalidTransition
	}
	if ack.Status == enum.OrderStatusRejected {
		o.Reason = ack.Reason
	}
	if o.FilledQty == o.Quantity && o.Quantity > 0 {
		o.Status = enum.OrderStatusFilled
	}
	o.LastUpdateAt = ack.EventTsNano
	return o, delta, nil
}

// Open returns all orders not yet in a terminal state.
func (m *StateMachine) Open() []*Order {
	var out []*Order
	for _, o := range m.byRef {
		if !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}
