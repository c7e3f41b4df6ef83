package feed

import (
	"encoding/json"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// envelope is the common frame of every realtime message. The body
// stays raw until the tr code picks the concrete payload.
type envelope struct {
	Header struct {
		TrCd   string `json:"tr_cd"`
		RspCd  string `json:"rsp_cd"`
		RspMsg string `json:"rsp_msg"`
	} `json:"header"`
	Body json.RawMessage `json:"body"`
}

// viBody is the VI_ realtime payload. All fields arrive as strings.
type viBody struct {
	ViGubun     string `json:"vi_gubun"`
	SviRecPrice string `json:"svi_recprice"`
	DviRecPrice string `json:"dvi_recprice"`
	ViTrgPrice  string `json:"vi_trgprice"`
	ShCode      string `json:"shcode"`
	RefShCode   string `json:"ref_shcode"`
	Time        string `json:"time"`
	ExchName    string `json:"exchname"`
}

// tradeBody is the S3_/K3_ realtime trade payload.
type tradeBody struct {
	ShCode  string `json:"shcode"`
	Price   string `json:"price"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	CVolume string `json:"cvolume"`
	Volume  string `json:"volume"`
	OfferHo string `json:"offerho"`
	BidHo   string `json:"bidho"`
	CheTime string `json:"chetime"`
}

func parseViReport(raw []byte, recvTsNano int64) (model.ViReport, error) {
	var body viBody
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return model.ViReport{}, errors.Wrap(exception.ErrFeedMalformedPayload, err.Error())
	}

	inst := body.ShCode
	if inst == "" {
		inst = body.RefShCode
	}
	if inst == "" {
		return model.ViReport{}, errors.Wrap(exception.ErrFeedMalformedPayload, "missing stock code")
	}

	status, ok := enum.ParseViCode(body.ViGubun)
	if !ok {
		return model.ViReport{}, errors.Wrapf(exception.ErrFeedUnknownCode, "vi_gubun %q", body.ViGubun)
	}

	return model.ViReport{
		Instrument:   model.Instrument(inst),
		Status:       status,
		TriggerPrice: parsePrice(body.ViTrgPrice),
		EventTsNano:  recvTsNano,
		RecvTsNano:   recvTsNano,
	}, nil
}

func parseQuote(raw []byte, recvTsNano int64) (model.Quote, error) {
	var body tradeBody
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return model.Quote{}, errors.Wrap(exception.ErrFeedMalformedPayload, err.Error())
	}
	if body.ShCode == "" {
		return model.Quote{}, errors.Wrap(exception.ErrFeedMalformedPayload, "missing stock code")
	}

	last := parsePrice(body.Price)
	if last <= 0 {
		return model.Quote{}, errors.Wrapf(exception.ErrFeedMalformedPayload, "price %q", body.Price)
	}

	return model.Quote{
		Instrument:  model.Instrument(body.ShCode),
		Bid:         parsePrice(body.BidHo),
		Ask:         parsePrice(body.OfferHo),
		Last:        last,
		Open:        parsePrice(body.Open),
		High:        parsePrice(body.High),
		TradeVolume: parseQuantity(body.CVolume),
		TotalVolume: parseQuantity(body.Volume),
		EventTsNano: recvTsNano,
		RecvTsNano:  recvTsNano,
	}, nil
}

// parsePrice reads a KRW price string. Prices on both boards are whole
// won; fractional digits would mean a corrupt payload and truncate.
func parsePrice(s string) model.Price {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return model.Price(d.IntPart())
}

func parseQuantity(s string) model.Quantity {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return model.Quantity(d.IntPart())
}

func nowNano() int64 {
	return time.Now().UTC().UnixNano()
}
