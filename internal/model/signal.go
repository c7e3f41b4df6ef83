package model

import "main/internal/model/enum"

// TradeSignal is the strategy output for a single VI transition.
type TradeSignal struct {
	ID           string
	Instrument   Instrument
	Direction    enum.SignalDirection
	Quantity     Quantity
	Price        Price
	Reason       enum.SignalReason
	TransitionID uint64
	GeneratedAt  int64

	// Forced marks a risk-synthesized exit that bypasses exposure caps.
	Forced bool
}

// RiskDecision is the outcome of evaluating a trade signal.
type RiskDecision struct {
	SignalID    string
	Instrument  Instrument
	Action      enum.RiskAction
	Reason      enum.RiskReason
	ProposedQty Quantity
	ApprovedQty Quantity
}

// Approved reports whether any quantity survived the evaluation.
func (d RiskDecision) Approved() bool {
	return d.Action != enum.RiskActionDeny && d.ApprovedQty > 0
}
