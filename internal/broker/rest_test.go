package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIntent() model.OrderIntent {
	return model.OrderIntent{
		ClientRef:  "ref-1",
		Instrument: "005930",
		Side:       enum.OrderSideBuy,
		Type:       enum.OrderTypeLimit,
		Price:      10_000,
		Quantity:   10,
	}
}

func TestPlaceOrder(t *testing.T) {
	var got newOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, trOrderNew, r.Header.Get("tr_cd"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"rsp_cd": "00040",
			"rsp_msg": "ok",
			"CSPAT00601OutBlock2": {"OrdNo": 20240001, "OrdTime": "0915010000"}
		}`))
	}))
	defer srv.Close()

	client := NewRestClient(RestConfig{URL: srv.URL, Token: "token-1", AccountNo: "12345678"})

	orderID, err := client.PlaceOrder(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Equal(t, "20240001", orderID)

	assert.Equal(t, "12345678", got.InBlock.AcntNo)
	assert.Equal(t, "005930", got.InBlock.IsuNo)
	assert.Equal(t, int64(10), got.InBlock.OrdQty)
	assert.Equal(t, int64(10_000), got.InBlock.OrdPrc)
	assert.Equal(t, bnsTpBuy, got.InBlock.BnsTpCode)
	assert.Equal(t, ordPrcPtnLimit, got.InBlock.OrdprcPtnCode)
}

func TestPlaceOrderSellMarket(t *testing.T) {
	var got newOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"rsp_cd": "00040", "CSPAT00601OutBlock2": {"OrdNo": 7}}`))
	}))
	defer srv.Close()

	client := NewRestClient(RestConfig{URL: srv.URL})
	intent := testIntent()
	intent.Side = enum.OrderSideSell
	intent.Type = enum.OrderTypeMarket

	_, err := client.PlaceOrder(context.Background(), intent)
	require.NoError(t, err)
	assert.Equal(t, bnsTpSell, got.InBlock.BnsTpCode)
	assert.Equal(t, ordPrcPtnMarket, got.InBlock.OrdprcPtnCode)
	assert.Zero(t, got.InBlock.OrdPrc)
}

func TestPlaceOrderGatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rsp_cd": "01587", "rsp_msg": "market closed"}`))
	}))
	defer srv.Close()

	client := NewRestClient(RestConfig{URL: srv.URL})
	_, err := client.PlaceOrder(context.Background(), testIntent())
	assert.ErrorIs(t, err, exception.ErrOrderGatewayRejected)
}

func TestCancelOrder(t *testing.T) {
	var got cancelOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, trOrderCancel, r.Header.Get("tr_cd"))
		require.NoError(t, sonic.ConfigDefault.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"rsp_cd": "00156", "rsp_msg": "ok"}`))
	}))
	defer srv.Close()

	client := NewRestClient(RestConfig{URL: srv.URL})
	require.NoError(t, client.CancelOrder(context.Background(), "20240001"))
	assert.Equal(t, int64(20240001), got.InBlock.OrgOrdNo)

	assert.Error(t, client.CancelOrder(context.Background(), "not-a-number"))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewRestClient(RestConfig{URL: srv.URL, BreakerFailures: 2})

	for i := 0; i < 5; i++ {
		_, err := client.PlaceOrder(context.Background(), testIntent())
		assert.Error(t, err)
	}

	// The breaker opens after two consecutive failures and stops
	// hitting the transport.
	assert.Equal(t, int64(2), calls.Load())
}
