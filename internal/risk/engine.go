package risk

import (
	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Config defines the risk limits. Caps are notionals; stop and take
// rates are bps offsets from the entry price applied to new positions.
type Config struct {
	KillSwitch            bool           `json:"killSwitch"`
	MaxInstrumentNotional model.Notional `json:"maxInstrumentNotional"`
	MaxPortfolioNotional  model.Notional `json:"maxPortfolioNotional"`
	StopLossBps           int64          `json:"stopLossBps"`
	TakeProfitBps         int64          `json:"takeProfitBps"`
}

// Engine vetoes, downsizes or approves trade signals and synthesizes
// forced exits for positions that crossed their stop or take marks.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate applies the checks in order: kill switch, per-instrument
// cap, portfolio cap. A Buy that partially exceeds a cap is downsized
// to the maximum allowed quantity; a veto happens only when that
// maximum is zero. Sells reduce exposure and pass the caps untouched.
func (e *Engine) Evaluate(signal model.TradeSignal, position model.Position, portfolio model.PortfolioState) model.RiskDecision {
	decision := model.RiskDecision{
		SignalID:    signal.ID,
		Instrument:  signal.Instrument,
		Action:      enum.RiskActionAllow,
		Reason:      enum.RiskReasonNone,
		ProposedQty: signal.Quantity,
		ApprovedQty: signal.Quantity,
	}

	if signal.Direction == enum.SignalHold || signal.Quantity <= 0 {
		decision.Action = enum.RiskActionDeny
		decision.Reason = enum.RiskReasonZeroQuantity
		decision.ApprovedQty = 0
		return decision
	}

	if e.cfg.KillSwitch {
		return e.deny(decision, enum.RiskReasonKillSwitch)
	}

	// Forced exits and plain sells are risk-reducing; caps do not apply.
	if signal.Forced || signal.Direction == enum.SignalSell {
		return decision
	}

	if signal.Price <= 0 {
		return e.deny(decision, enum.RiskReasonZeroQuantity)
	}

	allowed := decision.ProposedQty
	if e.cfg.MaxInstrumentNotional > 0 {
		headroom := int64(e.cfg.MaxInstrumentNotional) - int64(position.Exposure(signal.Price))
		allowed = minQty(allowed, quantityFor(headroom, signal.Price))
	}
	if e.cfg.MaxPortfolioNotional > 0 {
		headroom := int64(e.cfg.MaxPortfolioNotional) - int64(portfolio.TotalExposure)
		allowed = minQty(allowed, quantityFor(headroom, signal.Price))
	}

	switch {
	case allowed <= 0:
		reason := enum.RiskReasonInstrumentCap
		if e.cfg.MaxPortfolioNotional > 0 &&
			int64(portfolio.TotalExposure) >= int64(e.cfg.MaxPortfolioNotional) {
			reason = enum.RiskReasonPortfolioCap
		}
		return e.deny(decision, reason)
	case allowed < decision.ProposedQty:
		decision.Action = enum.RiskActionDownsize
		decision.Reason = e.downsizeReason(signal, position, allowed)
		decision.ApprovedQty = allowed
		logs.Warnf("risk: downsize %s qty %d -> %d rule=%s",
			signal.Instrument, decision.ProposedQty, allowed, decision.Reason)
	}
	return decision
}

// CheckStops scans open positions against the current marks and returns
// forced Sell signals for every crossed stop-loss or take-profit. The
// results bypass exposure checks downstream.
func (e *Engine) CheckStops(portfolio model.PortfolioState) []model.TradeSignal {
	var forced []model.TradeSignal
	for inst, position := range portfolio.Positions {
		if position.Quantity <= 0 {
			continue
		}
		mark, ok := portfolio.Marks[inst]
		if !ok || mark <= 0 {
			continue
		}

		var reason enum.SignalReason
		switch {
		case position.StopLoss > 0 && mark <= position.StopLoss:
			reason = enum.SignalReasonStopLoss
		case position.TakeProfit > 0 && mark >= position.TakeProfit:
			reason = enum.SignalReasonTakeProfit
		default:
			continue
		}

		logs.Warnf("risk: forced exit %s qty=%d mark=%d rule=%s",
			inst, position.Quantity, mark, reason)
		forced = append(forced, model.TradeSignal{
			ID:          uuid.NewString(),
			Instrument:  inst,
			Direction:   enum.SignalSell,
			Quantity:    position.Quantity,
			Price:       mark,
			Reason:      reason,
			GeneratedAt: portfolio.TakenAt,
			Forced:      true,
		})
	}
	return forced
}

// Stops derives the protective marks for a fresh entry.
func (e *Engine) Stops(entry model.Price) (stopLoss, takeProfit model.Price) {
	if entry <= 0 {
		return 0, 0
	}
	if e.cfg.StopLossBps > 0 {
		stopLoss = model.Price(int64(entry) * (10000 - e.cfg.StopLossBps) / 10000)
	}
	if e.cfg.TakeProfitBps > 0 {
		takeProfit = model.Price(int64(entry) * (10000 + e.cfg.TakeProfitBps) / 10000)
	}
	return stopLoss, takeProfit
}

func (e *Engine) deny(decision model.RiskDecision, reason enum.RiskReason) model.RiskDecision {
	decision.Action = enum.RiskActionDeny
	decision.Reason = reason
	decision.ApprovedQty = 0
	logs.Warnf("risk: veto %s signal=%s rule=%s", decision.Instrument, decision.SignalID, reason)
	return decision
}

func (e *Engine) downsizeReason(signal model.TradeSignal, position model.Position, allowed model.Quantity) enum.RiskReason {
	if e.cfg.MaxInstrumentNotional > 0 {
		headroom := int64(e.cfg.MaxInstrumentNotional) - int64(position.Exposure(signal.Price))
		if quantityFor(headroom, signal.Price) == allowed {
			return enum.RiskReasonInstrumentCap
		}
	}
	return enum.RiskReasonPortfolioCap
}

func quantityFor(headroom int64, price model.Price) model.Quantity {
	if headroom <= 0 || price <= 0 {
		return 0
	}
	return model.Quantity(headroom / int64(price))
}

func minQty(a, b model.Quantity) model.Quantity {
	if b < a {
		return b
	}
	return a
}
