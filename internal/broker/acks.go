package broker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

const (
	DefaultAckURL = "wss://openapi.ls-sec.co.kr:9443/websocket"

	trAckAccepted  = "SC0"
	trAckExecuted  = "SC1"
	trAckCancelled = "SC3"
	trAckRejected  = "SC4"

	trTypeAccountSubscribe = "1"
)

// AckHandler consumes normalized order acknowledgments.
type AckHandler func(ack model.OrderAck)

// AckStream is the account execution-report connection. The broker
// pushes acceptance, execution, cancel and reject events for every
// order on the account.
type AckStream struct {
	wss     *ws.WebSocket
	token   string
	metrics *obs.Metrics
}

func NewAckStream(ctx context.Context, url, token string, metrics *obs.Metrics) *AckStream {
	if url == "" {
		url = DefaultAckURL
	}
	return &AckStream{
		wss:     ws.New(ctx, url),
		token:   token,
		metrics: metrics,
	}
}

func (s *AckStream) Start(ctx context.Context) error {
	if err := s.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

func (s *AckStream) Close() {
	s.wss.Close()
}

type ackEnvelope struct {
	Header struct {
		TrCd   string `json:"tr_cd"`
		RspCd  string `json:"rsp_cd"`
		RspMsg string `json:"rsp_msg"`
	} `json:"header"`
	Body json.RawMessage `json:"body"`
}

type ackSubscribeRequest struct {
	Header struct {
		Token  string `json:"token"`
		TrType string `json:"tr_type"`
	} `json:"header"`
	Body struct {
		TrCd  string `json:"tr_cd"`
		TrKey string `json:"tr_key"`
	} `json:"body"`
}

// Subscribe registers all four order event streams for the account.
func (s *AckStream) Subscribe(ctx context.Context) error {
	for _, trCd := range []string{trAckAccepted, trAckExecuted, trAckCancelled, trAckRejected} {
		if err := s.subscribe(ctx, trCd); err != nil {
			return errors.Wrapf(err, "subscribe %s", trCd)
		}
	}
	return nil
}

func (s *AckStream) subscribe(ctx context.Context, trCd string) error {
	appendIntoRegister := true
	if err := s.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			var payload ackSubscribeRequest
			payload.Header.Token = s.token
			payload.Header.TrType = trTypeAccountSubscribe
			payload.Body.TrCd = trCd
			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("tr", trCd)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[ackEnvelope](m)
			if !ok || resp.Header.TrCd != trCd || resp.Header.RspCd == "" {
				return false, nil
			}
			if resp.Header.RspCd != "00000" {
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

// orderEventBody carries the order event fields shared by the SC
// streams. Quantities arrive as strings; execqty and unercqty describe
// the order level, not the single execution.
type orderEventBody struct {
	OrdNo    string `json:"ordno"`
	ShCode   string `json:"shtcode"`
	OrdQty   string `json:"ordqty"`
	ExecQty  string `json:"execqty"`
	ExecPrc  string `json:"execprc"`
	UnercQty string `json:"unercqty"`
	RejCode  string `json:"rejcode"`
}

// Observe pumps order events into the handler until the context ends.
func (s *AckStream) Observe(ctx context.Context, handler AckHandler) (unsubscribe func()) {
	ch, cancel := s.wss.Subscribe()

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
				s.route(m, handler)
			}
		}
	}()

	return cancel
}

func (s *AckStream) route(m ws.Message, handler AckHandler) {
	env, ok := ws.ReadMessage[ackEnvelope](m)
	if !ok {
		s.metrics.IncFeedAnomaly()
		return
	}
	if env.Header.RspCd != "" {
		return
	}

	switch env.Header.TrCd {
	case trAckAccepted, trAckExecuted, trAckCancelled, trAckRejected:
	default:
		return
	}

	ack, err := parseOrderEvent(env.Header.TrCd, env.Body)
	if err != nil {
		s.metrics.IncFeedAnomaly()
		logs.Warnf("broker: drop order event %s, err: %+v", env.Header.TrCd, err)
		return
	}
	handler(ack)
}

func parseOrderEvent(trCd string, raw []byte) (model.OrderAck, error) {
	var body orderEventBody
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return model.OrderAck{}, errors.Wrap(exception.ErrFeedMalformedPayload, err.Error())
	}
	if body.OrdNo == "" {
		return model.OrderAck{}, errors.Wrap(exception.ErrFeedMalformedPayload, "missing order number")
	}

	ack := model.OrderAck{
		OrderID:     strings.TrimLeft(body.OrdNo, "0"),
		Instrument:  model.Instrument(body.ShCode),
		EventTsNano: time.Now().UTC().UnixNano(),
	}
	if ack.OrderID == "" {
		ack.OrderID = "0"
	}

	switch trCd {
	case trAckAccepted:
		ack.Status = enum.OrderStatusSubmitted
	case trAckExecuted:
		ordQty := parseInt(body.OrdQty)
		unexec := parseInt(body.UnercQty)
		filled := ordQty - unexec
		if filled <= 0 {
			return model.OrderAck{}, errors.Wrapf(exception.ErrFeedMalformedPayload,
				"execution without filled quantity, ordqty %q unercqty %q", body.OrdQty, body.UnercQty)
		}
		ack.FilledQty = model.Quantity(filled)
		ack.FillPrice = model.Price(parseInt(body.ExecPrc))
		if unexec == 0 {
			ack.Status = enum.OrderStatusFilled
		} else {
			ack.Status = enum.OrderStatusPartFilled
		}
	case trAckCancelled:
		ack.Status = enum.OrderStatusCancelled
	case trAckRejected:
		ack.Status = enum.OrderStatusRejected
		ack.Reason = rejectReasonOf(body.RejCode)
	}

	return ack, nil
}

// rejectReasonOf classifies a broker rejection code for the retry
// policy. Unlisted codes stay terminal.
func rejectReasonOf(code string) enum.RejectReason {
	if strings.HasPrefix(code, "IGW") {
		return enum.RejectReasonGatewayDown
	}
	switch code {
	case "90005", "00246":
		return enum.RejectReasonThrottled
	case "00166", "01584":
		return enum.RejectReasonInsufficientFunds
	case "01011", "00139":
		return enum.RejectReasonInvalidInstrument
	case "01587", "00180":
		return enum.RejectReasonMarketClosed
	default:
		return enum.RejectReasonUnknown
	}
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.IntPart()
}
