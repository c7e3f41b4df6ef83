package broker

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

const (
	pathStockEtc = "/stock/etc"

	trStockList = "t8430"

	stockListAll    = "0"
	stockListKospi  = "1"
	stockListKosdaq = "2"
)

// StockInfo is one row of the instrument master.
type StockInfo struct {
	Instrument model.Instrument
	Name       string
	Market     enum.Market
	ETF        bool
}

type stockListRequest struct {
	InBlock stockListInBlock `json:"t8430InBlock"`
}

type stockListInBlock struct {
	Gubun string `json:"gubun"`
}

type stockListResponse struct {
	RspCd    string `json:"rsp_cd"`
	RspMsg   string `json:"rsp_msg"`
	OutBlock []struct {
		HName    string `json:"hname"`
		ShCode   string `json:"shcode"`
		ETFGubun string `json:"etfgubun"`
		Gubun    string `json:"gubun"`
	} `json:"t8430OutBlock"`
}

// ListInstruments fetches the instrument master for one market, or both
// when the market is unset.
func (r *RestClient) ListInstruments(ctx context.Context, market enum.Market) ([]StockInfo, error) {
	gubun := stockListAll
	switch market {
	case enum.MarketKospi:
		gubun = stockListKospi
	case enum.MarketKosdaq:
		gubun = stockListKosdaq
	}

	raw, err := r.postTo(ctx, pathStockEtc, trStockList, stockListRequest{
		InBlock: stockListInBlock{Gubun: gubun},
	})
	if err != nil {
		return nil, err
	}

	var resp stockListResponse
	if err := sonic.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "decode stock list")
	}

	out := make([]StockInfo, 0, len(resp.OutBlock))
	for _, row := range resp.OutBlock {
		if row.ShCode == "" {
			continue
		}
		m := enum.MarketKospi
		if row.Gubun == stockListKosdaq {
			m = enum.MarketKosdaq
		}
		out = append(out, StockInfo{
			Instrument: model.Instrument(row.ShCode),
			Name:       row.HName,
			Market:     m,
			ETF:        row.ETFGubun == "1",
		})
	}
	return out, nil
}
