package enum

// OrderSide describes order direction.
type OrderSide uint16

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// OrderType describes order pricing behavior.
type OrderType uint16

const (
	_order_type_beg OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

// OrderStatus is the lifecycle state of an order.
// Terminal states are Filled, Rejected and Cancelled.
type OrderStatus uint16

const (
	_order_status_beg OrderStatus = iota
	OrderStatusSubmitted
	OrderStatusPartFilled
	OrderStatusFilled
	OrderStatusRejected
	OrderStatusCancelled
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusSubmitted:
		return "submitted"
	case OrderStatusPartFilled:
		return "part_filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusRejected:
		return "rejected"
	case OrderStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RejectReason classifies broker rejections for retry decisions.
type RejectReason uint16

const (
	RejectReasonNone RejectReason = iota
	RejectReasonThrottled
	RejectReasonTimeout
	RejectReasonGatewayDown
	RejectReasonInvalidInstrument
	RejectReasonInsufficientFunds
	RejectReasonMarketClosed
	RejectReasonUnknown
)

// IsTransient reports whether a rejected order may be resubmitted.
func (r RejectReason) IsTransient() bool {
	switch r {
	case RejectReasonThrottled, RejectReasonTimeout, RejectReasonGatewayDown:
		return true
	default:
		return false
	}
}

func (r RejectReason) String() string {
	switch r {
	case RejectReasonNone:
		return "none"
	case RejectReasonThrottled:
		return "throttled"
	case RejectReasonTimeout:
		return "timeout"
	case RejectReasonGatewayDown:
		return "gateway_down"
	case RejectReasonInvalidInstrument:
		return "invalid_instrument"
	case RejectReasonInsufficientFunds:
		return "insufficient_funds"
	case RejectReasonMarketClosed:
		return "market_closed"
	default:
		return "unknown"
	}
}
