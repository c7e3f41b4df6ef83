package journal

import (
	"testing"

	"main/internal/executor"
	"main/internal/ledger"
	"main/internal/model"
	"main/internal/model/enum"

	"github.com/stretchr/testify/assert"
)

func TestToTransitionRecord(t *testing.T) {
	record := toTransitionRecord(model.ViTransition{
		ID:           7,
		Instrument:   "005930",
		From:         enum.ViStatusNormal,
		To:           enum.ViStatusStaticActivated,
		TriggerPrice: 10_000,
		EventTsNano:  42,
	})

	assert.Equal(t, uint64(7), record.TransitionID)
	assert.Equal(t, "005930", record.Instrument)
	assert.Equal(t, "normal", record.FromStatus)
	assert.Equal(t, "static_activated", record.ToStatus)
	assert.Equal(t, int64(10_000), record.TriggerPrice)
	assert.Equal(t, int64(42), record.EventTsNano)
}

func TestToSignalRecord(t *testing.T) {
	record := toSignalRecord(
		model.TradeSignal{
			ID:           "sig-1",
			Instrument:   "005930",
			Direction:    enum.SignalBuy,
			Quantity:     100,
			Price:        10_000,
			Reason:       enum.SignalReasonViActivationMomentum,
			TransitionID: 7,
			GeneratedAt:  42,
		},
		model.RiskDecision{
			Action:      enum.RiskActionDownsize,
			Reason:      enum.RiskReasonInstrumentCap,
			ProposedQty: 100,
			ApprovedQty: 50,
		},
	)

	assert.Equal(t, "sig-1", record.SignalID)
	assert.Equal(t, "buy", record.Direction)
	assert.Equal(t, "vi_activation_momentum", record.Reason)
	assert.Equal(t, "downsize", record.RiskAction)
	assert.Equal(t, "instrument_cap", record.RiskReason)
	assert.Equal(t, int64(50), record.ApprovedQty)
}

func TestToExecutionRecord(t *testing.T) {
	record := toExecutionRecord(
		executor.Order{
			ClientRef:    "ref-1",
			OrderID:      "20240001",
			SignalID:     "sig-1",
			Instrument:   "005930",
			Side:         enum.OrderSideSell,
			Quantity:     10,
			FilledQty:    10,
			AvgFillPrice: 9_400,
			Status:       enum.OrderStatusFilled,
		},
		ledger.FillResult{
			RealizedPnL: -3_250,
			Closed:      true,
		},
	)

	assert.Equal(t, "ref-1", record.ClientRef)
	assert.Equal(t, "sell", record.Side)
	assert.Equal(t, "filled", record.Status)
	assert.Equal(t, int64(-3_250), record.RealizedPnl)
	assert.True(t, record.Closed)
	assert.Zero(t, record.PositionQty)
}
