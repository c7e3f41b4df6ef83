package executor

import (
	"testing"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intent(ref string) model.OrderIntent {
	return model.OrderIntent{
		ClientRef:    ref,
		SignalID:     "sig-1",
		TransitionID: 9,
		Instrument:   "005930",
		Side:         enum.OrderSideBuy,
		Type:         enum.OrderTypeLimit,
		Price:        10_000,
		Quantity:     10,
	}
}

func TestTrackAndBind(t *testing.T) {
	m := NewStateMachine()

	o, err := m.Track(intent("ref-1"), 100)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusSubmitted, o.Status)
	assert.Equal(t, 1, o.Attempts)
	assert.Equal(t, "sig-1", o.SignalID)
	assert.Equal(t, uint64(9), o.TransitionID)

	_, err = m.Track(intent("ref-1"), 100)
	assert.ErrorIs(t, err, exception.ErrOrderDuplicate)

	_, err = m.Bind("ref-1", "20240001")
	require.NoError(t, err)
	got, ok := m.Order("20240001")
	require.True(t, ok)
	assert.Equal(t, "ref-1", got.ClientRef)
}

func TestApplyAckLifecycle(t *testing.T) {
	m := NewStateMachine()
	_, err := m.Track(intent("ref-1"), 100)
	require.NoError(t, err)
	_, err = m.Bind("ref-1", "20240001")
	require.NoError(t, err)

	o, delta, err := m.ApplyAck(model.OrderAck{
		OrderID:   "20240001",
		Status:    enum.OrderStatusPartFilled,
		FilledQty: 4,
		FillPrice: 10_000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.Quantity(4), delta)
	assert.Equal(t, enum.OrderStatusPartFilled, o.Status)

	o, delta, err = m.ApplyAck(model.OrderAck{
		OrderID:   "20240001",
		Status:    enum.OrderStatusFilled,
		FilledQty: 10,
		FillPrice: 10_100,
	})
	require.NoError(t, err)
	assert.Equal(t, model.Quantity(6), delta)
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
	// (4*10000 + 6*10100) / 10 = 10060
	assert.Equal(t, model.Price(10_060), o.AvgFillPrice)
}

func TestApplyAckDuplicateIsNoop(t *testing.T) {
	m := NewStateMachine()
	_, err := m.Track(intent("ref-1"), 100)
	require.NoError(t, err)
	_, err = m.Bind("ref-1", "20240001")
	require.NoError(t, err)

	ack := model.OrderAck{
		OrderID:   "20240001",
		Status:    enum.OrderStatusFilled,
		FilledQty: 10,
		FillPrice: 10_050,
	}

	_, delta, err := m.ApplyAck(ack)
	require.NoError(t, err)
	assert.Equal(t, model.Quantity(10), delta)

	// Replay: same order id, status and cumulative quantity.
	o, delta, err := m.ApplyAck(ack)
	require.NoError(t, err)
	assert.Zero(t, delta, "replayed ack must not produce a fill delta")
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
}

func TestApplyAckOverfillRejected(t *testing.T) {
	m := NewStateMachine()
	_, err := m.Track(intent("ref-1"), 100)
	require.NoError(t, err)
	_, err = m.Bind("ref-1", "20240001")
	require.NoError(t, err)

	_, _, err = m.ApplyAck(model.OrderAck{
		OrderID:   "20240001",
		Status:    enum.OrderStatusFilled,
		FilledQty: 11,
		FillPrice: 10_000,
	})
	assert.ErrorIs(t, err, exception.ErrOrderInvalidFill)
}

func TestApplyAckUnknownOrder(t *testing.T) {
	m := NewStateMachine()
	_, _, err := m.ApplyAck(model.OrderAck{OrderID: "nope"})
	assert.ErrorIs(t, err, exception.ErrOrderUnknown)
}

func TestApplyAckAfterTerminal(t *testing.T) {
	m := NewStateMachine()
	_, err := m.Track(intent("ref-1"), 100)
	require.NoError(t, err)
	_, err = m.Bind("ref-1", "20240001")
	require.NoError(t, err)

	_, _, err = m.ApplyAck(model.OrderAck{OrderID: "20240001", Status: enum.OrderStatusCancelled})
	require.NoError(t, err)

	_, _, err = m.ApplyAck(model.OrderAck{
		OrderID:   "20240001",
		Status:    enum.OrderStatusFilled,
		FilledQty: 10,
	})
	assert.ErrorIs(t, err, exception.ErrOrderInvalidTransition)
}

func TestResubmit(t *testing.T) {
	m := NewStateMachine()
	_, err := m.Track(intent("ref-1"), 100)
	require.NoError(t, err)
	_, err = m.Bind("ref-1", "20240001")
	require.NoError(t, err)

	_, err = m.Resubmit("ref-1", 200)
	assert.ErrorIs(t, err, exception.ErrOrderInvalidTransition, "only rejected orders resubmit")

	_, _, err = m.ApplyAck(model.OrderAck{
		OrderID: "20240001",
		Status:  enum.OrderStatusRejected,
		Reason:  enum.RejectReasonThrottled,
	})
	require.NoError(t, err)

	o, err := m.Resubmit("ref-1", 200)
	require.NoError(t, err)
	assert.Equal(t, enum.OrderStatusSubmitted, o.Status)
	assert.Equal(t, 2, o.Attempts)
	assert.Equal(t, enum.RejectReasonNone, o.Reason)
}

func TestResubmitAfterPartialFillRetriesRemainder(t *testing.T) {
	m := NewStateMachine()
	_, err := m.Track(intent("ref-1"), 100)
	require.NoError(t, err)
	_, err = m.Bind("ref-1", "20240001")
	require.NoError(t, err)

	_, delta, err := m.ApplyAck(model.OrderAck{
		OrderID:   "20240001",
		Status:    enum.OrderStatusPartFilled,
		FilledQty: 4,
		FillPrice: 10_000,
	})
	require.NoError(t, err)
	require.Equal(t, model.Quantity(4), delta)

	_, _, err = m.ApplyAck(model.OrderAck{
		OrderID:   "20240001",
		Status:    enum.OrderStatusRejected,
		Reason:    enum.RejectReasonThrottled,
		FilledQty: 4,
	})
	require.NoError(t, err)

	o, err := m.Resubmit("ref-1", 200)
	require.NoError(t, err)
	assert.Equal(t, model.Quantity(6), o.Quantity, "only the remainder goes back out")
	assert.Zero(t, o.FilledQty)
	assert.Zero(t, o.AvgFillPrice)
	assert.Empty(t, o.OrderID)

	// The abandoned broker order no longer resolves.
	_, _, err = m.ApplyAck(model.OrderAck{
		OrderID:   "20240001",
		Status:    enum.OrderStatusFilled,
		FilledQty: 6,
		FillPrice: 10_100,
	})
	assert.ErrorIs(t, err, exception.ErrOrderUnknown)

	// The replacement counts its cumulative fills from zero.
	_, err = m.Bind("ref-1", "20240002")
	require.NoError(t, err)
	o, delta, err = m.ApplyAck(model.OrderAck{
		OrderID:   "20240002",
		Status:    enum.OrderStatusFilled,
		FilledQty: 6,
		FillPrice: 10_100,
	})
	require.NoError(t, err)
	assert.Equal(t, model.Quantity(6), delta)
	assert.Equal(t, enum.OrderStatusFilled, o.Status)
}

func TestHasUnbound(t *testing.T) {
	m := NewStateMachine()
	_, err := m.Track(intent("ref-1"), 100)
	require.NoError(t, err)
	assert.True(t, m.HasUnbound("005930"))
	assert.False(t, m.HasUnbound("000660"))

	_, err = m.Bind("ref-1", "20240001")
	require.NoError(t, err)
	assert.False(t, m.HasUnbound("005930"))
}

func TestOpenOrders(t *testing.T) {
	m := NewStateMachine()
	_, err := m.Track(intent("ref-1"), 100)
	require.NoError(t, err)
	second := intent("ref-2")
	_, err = m.Track(second, 100)
	require.NoError(t, err)
	_, err = m.Bind("ref-2", "20240002")
	require.NoError(t, err)
	_, _, err = m.ApplyAck(model.OrderAck{
		OrderID:   "20240002",
		Status:    enum.OrderStatusFilled,
		FilledQty: 10,
		FillPrice: 10_000,
	})
	require.NoError(t, err)

	open := m.Open()
	require.Len(t, open, 1)
	assert.Equal(t, "ref-1", open[0].ClientRef)
}
