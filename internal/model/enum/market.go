package enum

// Market is the exchange segment an instrument trades on.
type Market uint16

const (
	_market_beg Market = iota
	MarketKospi
	MarketKosdaq
	_market_end
)

func (m Market) IsAvailable() bool {
	return m > _market_beg && m < _market_end
}

func (m Market) String() string {
	switch m {
	case MarketKospi:
		return "kospi"
	case MarketKosdaq:
		return "kosdaq"
	default:
		return "unknown"
	}
}

// RealtimeCode returns the realtime trade stream code for the market.
func (m Market) RealtimeCode() string {
	switch m {
	case MarketKosdaq:
		return "K3_"
	default:
		return "S3_"
	}
}

// ParseMarket maps a config string to a market.
func ParseMarket(s string) (Market, bool) {
	switch s {
	case "kospi", "KOSPI":
		return MarketKospi, true
	case "kosdaq", "KOSDAQ":
		return MarketKosdaq, true
	default:
		return 0, false
	}
}
