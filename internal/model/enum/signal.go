package enum

// SignalDirection is the action suggested by the signal generator.
type SignalDirection uint16

const (
	_signal_direction_beg SignalDirection = iota
	SignalBuy
	SignalSell
	SignalHold
	_signal_direction_end
)

func (d SignalDirection) IsAvailable() bool {
	return d > _signal_direction_beg && d < _signal_direction_end
}

func (d SignalDirection) String() string {
	switch d {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	case SignalHold:
		return "hold"
	default:
		return "unknown"
	}
}

// SignalReason identifies which rule produced a signal. Carried on every
// signal for the audit chain and for risk decisions.
type SignalReason uint16

const (
	SignalReasonNone SignalReason = iota
	SignalReasonViActivationMomentum
	SignalReasonViActivationNoMomentum
	SignalReasonViDeactivationExit
	SignalReasonNoPosition
	SignalReasonMissingQuote
	SignalReasonStaleQuote
	SignalReasonStopLoss
	SignalReasonTakeProfit
)

func (r SignalReason) String() string {
	switch r {
	case SignalReasonViActivationMomentum:
		return "vi_activation_momentum"
	case SignalReasonViActivationNoMomentum:
		return "vi_activation_no_momentum"
	case SignalReasonViDeactivationExit:
		return "vi_deactivation_exit"
	case SignalReasonNoPosition:
		return "no_position"
	case SignalReasonMissingQuote:
		return "missing_quote"
	case SignalReasonStaleQuote:
		return "stale_quote"
	case SignalReasonStopLoss:
		return "stop_loss"
	case SignalReasonTakeProfit:
		return "take_profit"
	default:
		return "none"
	}
}

// RiskAction is the outcome of a risk evaluation.
type RiskAction uint16

const (
	RiskActionAllow RiskAction = iota
	RiskActionDownsize
	RiskActionDeny
)

func (a RiskAction) String() string {
	switch a {
	case RiskActionAllow:
		return "allow"
	case RiskActionDownsize:
		return "downsize"
	case RiskActionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// RiskReason identifies the rule behind a veto or downsize.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonKillSwitch
	RiskReasonInstrumentCap
	RiskReasonPortfolioCap
	RiskReasonZeroQuantity
	RiskReasonHalted
)

func (r RiskReason) String() string {
	switch r {
	case RiskReasonKillSwitch:
		return "kill_switch"
	case RiskReasonInstrumentCap:
		return "instrument_cap"
	case RiskReasonPortfolioCap:
		return "portfolio_cap"
	case RiskReasonZeroQuantity:
		return "zero_quantity"
	case RiskReasonHalted:
		return "halted"
	default:
		return "none"
	}
}
