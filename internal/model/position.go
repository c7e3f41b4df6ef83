package model

// Position is the ledger's record for one instrument.
// Quantity is signed; a zero quantity means the position is closed.
type Position struct {
	Instrument Instrument
	Quantity   Quantity
	AvgEntry   Price
	OpenedAt   int64
	StopLoss   Price
	TakeProfit Price
}

// Exposure is the absolute notional of the position at the given mark.
func (p Position) Exposure(mark Price) Notional {
	if mark <= 0 {
		mark = p.AvgEntry
	}
	n, overflow := NotionalOf(mark, p.Quantity.Abs())
	if overflow {
		return Notional(maxInt64)
	}
	return n
}

// PortfolioState is a consistent snapshot of the ledger.
type PortfolioState struct {
	Positions     map[Instrument]Position
	Marks         map[Instrument]Price
	TotalExposure Notional
	RealizedPnL   Notional
	TakenAt       int64
}
