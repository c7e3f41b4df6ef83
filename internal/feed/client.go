package feed

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

const (
	DefaultRealtimeURL = "wss://openapi.ls-sec.co.kr:9443/websocket"

	trVi     = "VI_"
	viKeyAll = "000000"

	trTypeSubscribe   = "3"
	trTypeUnsubscribe = "4"

	rspSuccess = "00000"
)

// Handler consumes parsed realtime events.
type Handler interface {
	OnQuote(q model.Quote)
	OnViStatus(report model.ViReport)
}

// Client is the realtime market data connection. One socket carries the
// market-wide VI stream and the per-instrument trade streams.
type Client struct {
	wss     *ws.WebSocket
	token   string
	metrics *obs.Metrics
}

func NewClient(ctx context.Context, url, token string, metrics *obs.Metrics) *Client {
	if url == "" {
		url = DefaultRealtimeURL
	}
	return &Client{
		wss:     ws.New(ctx, url),
		token:   token,
		metrics: metrics,
	}
}

func (c *Client) Start(ctx context.Context) error {
	if err := c.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

func (c *Client) Close() {
	c.wss.Close()
}

type subscribeRequest struct {
	Header struct {
		Token  string `json:"token"`
		TrType string `json:"tr_type"`
	} `json:"header"`
	Body struct {
		TrCd  string `json:"tr_cd"`
		TrKey string `json:"tr_key"`
	} `json:"body"`
}

func (c *Client) subscribePayload(trType, trCd, trKey string) subscribeRequest {
	var req subscribeRequest
	req.Header.Token = c.token
	req.Header.TrType = trType
	req.Body.TrCd = trCd
	req.Body.TrKey = trKey
	return req
}

// SubscribeVi registers the market-wide VI stream. The key "000000"
// covers every instrument; the exchange fans individual reports out on
// the same tr code.
func (c *Client) SubscribeVi(ctx context.Context) error {
	return c.subscribe(ctx, trVi, viKeyAll)
}

// SubscribeTrades registers the realtime trade stream for one
// instrument on its market segment.
func (c *Client) SubscribeTrades(ctx context.Context, market enum.Market, inst model.Instrument) error {
	return c.subscribe(ctx, market.RealtimeCode(), string(inst))
}

// UnsubscribeTrades drops the trade stream, fire and forget. Used after
// the post-VI cooldown elapses.
func (c *Client) UnsubscribeTrades(market enum.Market, inst model.Instrument) error {
	payload := c.subscribePayload(trTypeUnsubscribe, market.RealtimeCode(), string(inst))
	if err := c.wss.WriteJSON(payload); err != nil {
		return errors.Wrap(err, "write unsubscribe payload")
	}
	return nil
}

func (c *Client) subscribe(ctx context.Context, trCd, trKey string) error {
	appendIntoRegister := true
	if err := c.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := c.subscribePayload(trTypeSubscribe, trCd, trKey)
			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("tr", trCd)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[envelope](m)
			if !ok || resp.Header.TrCd != trCd || resp.Header.RspCd == "" {
				return false, nil
			}
			if resp.Header.RspCd != rspSuccess {
				return false, errors.Wrapf(exception.ErrFeedSubscribeDenied,
					"tr %s rsp %s: %s", trCd, resp.Header.RspCd, resp.Header.RspMsg)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

// Observe pumps realtime messages into the handler until the context
// ends or the stream closes.
func (c *Client) Observe(ctx context.Context, handler Handler) (unsubscribe func()) {
	ch, cancel := c.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				c.route(m, handler)
			}
		}
	}()

	return cancel
}

func (c *Client) route(m ws.Message, handler Handler) {
	env, ok := ws.ReadMessage[envelope](m)
	if !ok {
		c.metrics.IncFeedAnomaly()
		return
	}
	if env.Header.RspCd != "" {
		// Subscription echo, consumed by the waiter.
		return
	}

	recv := nowNano()
	switch env.Header.TrCd {
	case trVi:
		report, err := parseViReport(env.Body, recv)
		if err != nil {
			c.metrics.IncFeedAnomaly()
			logs.Warnf("feed: drop VI payload, err: %+v", err)
			return
		}
		handler.OnViStatus(report)
	case enum.MarketKospi.RealtimeCode(), enum.MarketKosdaq.RealtimeCode():
		q, err := parseQuote(env.Body, recv)
		if err != nil {
			c.metrics.IncFeedAnomaly()
			logs.Warnf("feed: drop trade payload, err: %+v", err)
			return
		}
		handler.OnQuote(q)
	default:
		// Unrelated tr codes share the socket; ignore.
	}
}
