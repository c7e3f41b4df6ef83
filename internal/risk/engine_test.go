package risk

import (
	"testing"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buySignal(qty model.Quantity, price model.Price) model.TradeSignal {
	return model.TradeSignal{
		ID:         "sig-1",
		Instrument: "005930",
		Direction:  enum.SignalBuy,
		Quantity:   qty,
		Price:      price,
		Reason:     enum.SignalReasonViActivationMomentum,
	}
}

func TestEvaluateAllow(t *testing.T) {
	engine := NewEngine(Config{
		MaxInstrumentNotional: 10_000_000,
		MaxPortfolioNotional:  50_000_000,
	})

	decision := engine.Evaluate(buySignal(100, 10_000), model.Position{}, model.PortfolioState{})
	assert.Equal(t, enum.RiskActionAllow, decision.Action)
	assert.Equal(t, model.Quantity(100), decision.ApprovedQty)
	assert.True(t, decision.Approved())
}

func TestEvaluateKillSwitch(t *testing.T) {
	engine := NewEngine(Config{KillSwitch: true})

	decision := engine.Evaluate(buySignal(1, 100), model.Position{}, model.PortfolioState{})
	assert.Equal(t, enum.RiskActionDeny, decision.Action)
	assert.Equal(t, enum.RiskReasonKillSwitch, decision.Reason)
	assert.False(t, decision.Approved())
}

func TestEvaluateInstrumentCap(t *testing.T) {
	engine := NewEngine(Config{MaxInstrumentNotional: 1_000_000})

	testCases := []struct {
		desc     string
		position model.Position
		qty      model.Quantity
		action   enum.RiskAction
		approved model.Quantity
	}{
		{
			"downsized to cap headroom",
			model.Position{Instrument: "005930", Quantity: 50, AvgEntry: 10_000},
			100,
			enum.RiskActionDownsize,
			50,
		},
		{
			"vetoed at full cap",
			model.Position{Instrument: "005930", Quantity: 100, AvgEntry: 10_000},
			10,
			enum.RiskActionDeny,
			0,
		},
		{
			"allowed inside cap",
			model.Position{},
			100,
			enum.RiskActionAllow,
			100,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			decision := engine.Evaluate(buySignal(tc.qty, 10_000), tc.position, model.PortfolioState{})
			assert.Equal(t, tc.action, decision.Action)
			assert.Equal(t, tc.approved, decision.ApprovedQty)
			if tc.action != enum.RiskActionAllow {
				assert.Equal(t, enum.RiskReasonInstrumentCap, decision.Reason)
			}
		})
	}
}

func TestEvaluatePortfolioCapDownsizesExactly(t *testing.T) {
	// Cap 100%, exposure at 90%: a buy pushing to 110% keeps exactly
	// the quantity that reaches 100%.
	engine := NewEngine(Config{MaxPortfolioNotional: 10_000_000})
	portfolio := model.PortfolioState{TotalExposure: 9_000_000}

	decision := engine.Evaluate(buySignal(200, 10_000), model.Position{}, portfolio)
	require.Equal(t, enum.RiskActionDownsize, decision.Action)
	assert.Equal(t, enum.RiskReasonPortfolioCap, decision.Reason)
	assert.Equal(t, model.Quantity(100), decision.ApprovedQty)
}

func TestEvaluatePortfolioCapVeto(t *testing.T) {
	engine := NewEngine(Config{MaxPortfolioNotional: 10_000_000})
	portfolio := model.PortfolioState{TotalExposure: 10_000_000}

	decision := engine.Evaluate(buySignal(1, 10_000), model.Position{}, portfolio)
	assert.Equal(t, enum.RiskActionDeny, decision.Action)
	assert.Equal(t, enum.RiskReasonPortfolioCap, decision.Reason)
}

func TestEvaluateSellBypassesCaps(t *testing.T) {
	engine := NewEngine(Config{MaxInstrumentNotional: 1, MaxPortfolioNotional: 1})
	signal := model.TradeSignal{
		ID:         "sig-2",
		Instrument: "005930",
		Direction:  enum.SignalSell,
		Quantity:   500,
		Price:      10_000,
		Reason:     enum.SignalReasonViDeactivationExit,
	}

	decision := engine.Evaluate(signal, model.Position{Quantity: 500}, model.PortfolioState{TotalExposure: 5_000_000})
	assert.Equal(t, enum.RiskActionAllow, decision.Action)
	assert.Equal(t, model.Quantity(500), decision.ApprovedQty)
}

func TestEvaluateCapNeverExceededAcrossFills(t *testing.T) {
	// Property: replaying approved buys into the position never drives
	// exposure past the instrument cap.
	engine := NewEngine(Config{MaxInstrumentNotional: 5_000_000})
	position := model.Position{Instrument: "005930"}
	price := model.Price(9_973)

	for i := 0; i < 50; i++ {
		qty := model.Quantity(7 + i*13%97)
		decision := engine.Evaluate(buySignal(qty, price), position, model.PortfolioState{})
		if !decision.Approved() {
			continue
		}
		position.Quantity += decision.ApprovedQty
		position.AvgEntry = price
		exposure, overflow := model.NotionalOf(price, position.Quantity)
		require.False(t, overflow)
		require.LessOrEqual(t, int64(exposure), int64(5_000_000))
	}
}

func TestCheckStops(t *testing.T) {
	engine := NewEngine(Config{})
	portfolio := model.PortfolioState{
		Positions: map[model.Instrument]model.Position{
			"005930": {Instrument: "005930", Quantity: 10, AvgEntry: 10_050, StopLoss: 9_500},
			"000660": {Instrument: "000660", Quantity: 5, AvgEntry: 8_000, TakeProfit: 9_000},
			"035720": {Instrument: "035720", Quantity: 3, AvgEntry: 4_000, StopLoss: 3_500},
		},
		Marks: map[model.Instrument]model.Price{
			"005930": 9_400, // below stop
			"000660": 9_100, // above take
			"035720": 3_900, // inside band
		},
	}

	forced := engine.CheckStops(portfolio)
	require.Len(t, forced, 2)

	byInst := map[model.Instrument]model.TradeSignal{}
	for _, s := range forced {
		byInst[s.Instrument] = s
	}

	stop := byInst["005930"]
	assert.Equal(t, enum.SignalSell, stop.Direction)
	assert.Equal(t, enum.SignalReasonStopLoss, stop.Reason)
	assert.Equal(t, model.Quantity(10), stop.Quantity)
	assert.True(t, stop.Forced)

	take := byInst["000660"]
	assert.Equal(t, enum.SignalReasonTakeProfit, take.Reason)
	assert.True(t, take.Forced)
}

func TestForcedExitBypassesKillSwitchCapsOnly(t *testing.T) {
	// Forced exits skip exposure caps but never the kill switch.
	engine := NewEngine(Config{KillSwitch: true})
	signal := model.TradeSignal{
		ID:         "sig-3",
		Instrument: "005930",
		Direction:  enum.SignalSell,
		Quantity:   10,
		Price:      9_400,
		Reason:     enum.SignalReasonStopLoss,
		Forced:     true,
	}

	decision := engine.Evaluate(signal, model.Position{Quantity: 10}, model.PortfolioState{})
	assert.Equal(t, enum.RiskActionDeny, decision.Action)
	assert.Equal(t, enum.RiskReasonKillSwitch, decision.Reason)
}

func TestStops(t *testing.T) {
	engine := NewEngine(Config{StopLossBps: 500, TakeProfitBps: 1000})

	stop, take := engine.Stops(10_000)
	assert.Equal(t, model.Price(9_500), stop)
	assert.Equal(t, model.Price(11_000), take)

	stop, take = engine.Stops(0)
	assert.Zero(t, stop)
	assert.Zero(t, take)
}
