package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderQueueFull          = errors.New("order: submission queue full")
	ErrOrderDuplicate          = errors.New("order: already exists")
	ErrOrderUnknown            = errors.New("order: not found")
	ErrOrderInvalidTransition  = errors.New("order: invalid state transition")
	ErrOrderInvalidFill        = errors.New("order: invalid fill quantity")
	ErrOrderRetryExhausted     = errors.New("order: retry ceiling reached")
	ErrOrderDecodeResponseBody = errors.New("order: decode response body")
	ErrOrderGatewayRejected    = errors.New("order: gateway rejected request")
)
