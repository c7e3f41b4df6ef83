package broker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/sony/gobreaker"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	DefaultRestURL = "https://openapi.ls-sec.co.kr:8080"

	pathOrder = "/stock/order"

	trOrderNew    = "CSPAT00601"
	trOrderCancel = "CSPAT00801"

	bnsTpSell = "1"
	bnsTpBuy  = "2"

	ordPrcPtnLimit  = "00"
	ordPrcPtnMarket = "03"
)

// RestConfig holds the order transport settings.
type RestConfig struct {
	URL             string        `json:"url"`
	Token           string        `json:"token"`
	AccountNo       string        `json:"accountNo"`
	AccountPwd      string        `json:"accountPwd"`
	Timeout         time.Duration `json:"timeout"`
	BreakerFailures uint32        `json:"breakerFailures"`
	BreakerCooldown time.Duration `json:"breakerCooldown"`
}

func (cfg RestConfig) withDefaults() RestConfig {
	if cfg.URL == "" {
		cfg.URL = DefaultRestURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	return cfg
}

// RestClient places and cancels orders over the broker REST API. A
// circuit breaker sits in front of the transport so a dead gateway
// fails fast instead of queueing timeouts.
type RestClient struct {
	cfg     RestConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewRestClient(cfg RestConfig) *RestClient {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{Name: "broker-rest", Timeout: cfg.BreakerCooldown}
	failures := cfg.BreakerFailures
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= failures
	}
	return &RestClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

type newOrderRequest struct {
	InBlock newOrderInBlock `json:"CSPAT00601InBlock1"`
}

type newOrderInBlock struct {
	AcntNo        string `json:"AcntNo"`
	InptPwd       string `json:"InptPwd"`
	IsuNo         string `json:"IsuNo"`
	OrdQty        int64  `json:"OrdQty"`
	OrdPrc        int64  `json:"OrdPrc"`
	BnsTpCode     string `json:"BnsTpCode"`
	OrdprcPtnCode string `json:"OrdprcPtnCode"`
	MgntrnCode    string `json:"MgntrnCode"`
	LoanDt        string `json:"LoanDt"`
	OrdCndiTpCode string `json:"OrdCndiTpCode"`
}

type newOrderResponse struct {
	RspCd    string `json:"rsp_cd"`
	RspMsg   string `json:"rsp_msg"`
	OutBlock struct {
		OrdNo   int64  `json:"OrdNo"`
		OrdTime string `json:"OrdTime"`
	} `json:"CSPAT00601OutBlock2"`
}

type cancelOrderRequest struct {
	InBlock cancelOrderInBlock `json:"CSPAT00801InBlock1"`
}

type cancelOrderInBlock struct {
	OrgOrdNo int64  `json:"OrgOrdNo"`
	IsuNo    string `json:"IsuNo"`
	// OrdQty zero cancels the full remaining quantity.
	OrdQty int64 `json:"OrdQty"`
}

type cancelOrderResponse struct {
	RspCd  string `json:"rsp_cd"`
	RspMsg string `json:"rsp_msg"`
}

// PlaceOrder submits a new order and returns the broker order number.
func (r *RestClient) PlaceOrder(ctx context.Context, intent model.OrderIntent) (string, error) {
	block := newOrderInBlock{
		AcntNo:        r.cfg.AccountNo,
		InptPwd:       r.cfg.AccountPwd,
		IsuNo:         string(intent.Instrument),
		OrdQty:        int64(intent.Quantity),
		BnsTpCode:     bnsTpBuy,
		OrdprcPtnCode: ordPrcPtnMarket,
		MgntrnCode:    "000",
		OrdCndiTpCode: "0",
	}
	if intent.Side == enum.OrderSideSell {
		block.BnsTpCode = bnsTpSell
	}
	if intent.Type == enum.OrderTypeLimit {
		block.OrdprcPtnCode = ordPrcPtnLimit
		block.OrdPrc = int64(intent.Price)
	}

	raw, err := r.postTo(ctx, pathOrder, trOrderNew, newOrderRequest{InBlock: block})
	if err != nil {
		return "", err
	}

	var resp newOrderResponse
	if err := sonic.Unmarshal(raw, &resp); err != nil {
		return "", errors.Wrap(exception.ErrOrderDecodeResponseBody, err.Error())
	}
	if resp.OutBlock.OrdNo <= 0 {
		return "", errors.Wrapf(exception.ErrOrderGatewayRejected, "rsp %s: %s", resp.RspCd, resp.RspMsg)
	}

	orderID := strconv.FormatInt(resp.OutBlock.OrdNo, 10)
	logs.Infof("broker: order accepted %s ord=%s rsp=%s", intent.Instrument, orderID, resp.RspCd)
	return orderID, nil
}

// CancelOrder cancels the remaining quantity of an open order.
func (r *RestClient) CancelOrder(ctx context.Context, orderID string) error {
	ordNo, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "parse order id %q", orderID)
	}

	raw, err := r.postTo(ctx, pathOrder, trOrderCancel, cancelOrderRequest{
		InBlock: cancelOrderInBlock{OrgOrdNo: ordNo},
	})
	if err != nil {
		return err
	}

	var resp cancelOrderResponse
	if err := sonic.Unmarshal(raw, &resp); err != nil {
		return errors.Wrap(exception.ErrOrderDecodeResponseBody, err.Error())
	}
	logs.Infof("broker: cancel sent ord=%s rsp=%s", orderID, resp.RspCd)
	return nil
}

func (r *RestClient) postTo(ctx context.Context, path, trCd string, payload any) ([]byte, error) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	result, err := r.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL+path, bytes.NewReader(body))
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
		req.Header.Set("tr_cd", trCd)
		req.Header.Set("tr_cont", "N")

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "post order")
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "read response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Errorf("gateway status %d: %s", resp.StatusCode, string(raw))
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
