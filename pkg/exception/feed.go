package exception

import "github.com/yanun0323/errors"

// Feed errors
var (
	ErrFeedMalformedPayload = errors.New("feed: malformed payload")
	ErrFeedUnknownCode      = errors.New("feed: unknown vi status code")
	ErrFeedSubscribeDenied  = errors.New("feed: subscription denied")
)
