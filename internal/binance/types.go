package binance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"candlekeeper/internal/model"
)

// serverTimeResponse from GET /api/v3/time
type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// ticker24h is one entry from GET /api/v3/ticker/24hr.
type ticker24h struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

// toAssetInfo parses the decimal fields of a 24h ticker entry.
func (t ticker24h) toAssetInfo() (model.AssetInfo, error) {
	last, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return model.AssetInfo{}, fmt.Errorf("parse lastPrice: %w", err)
	}
	quote, err := decimal.NewFromString(t.QuoteVolume)
	if err != nil {
		return model.AssetInfo{}, fmt.Errorf("parse quoteVolume: %w", err)
	}
	return model.AssetInfo{
		Symbol:      t.Symbol,
		LastPrice:   last,
		QuoteVolume: quote,
	}, nil
}

// parseKline converts one raw kline array to a Candle.
//
// The wire format is fixed-position:
//
//	[openTime, open, high, low, close, volume, closeTime, quoteVolume, ...]
//
// openTime/closeTime are epoch milliseconds; prices and volumes are
// decimal strings. Only close, volume, and quoteVolume are consumed.
func parseKline(raw []any) (model.Candle, error) {
	if len(raw) < 8 {
		return model.Candle{}, fmt.Errorf("kline has %d fields, want at least 8", len(raw))
	}

	openMs, ok := raw[0].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("kline open time is %T, want number", raw[0])
	}

	closePrice, err := klineDecimal(raw, 4)
	if err != nil {
		return model.Candle{}, err
	}
	volume, err := klineDecimal(raw, 5)
	if err != nil {
		return model.Candle{}, err
	}
	quoteVolume, err := klineDecimal(raw, 7)
	if err != nil {
		return model.Candle{}, err
	}

	return model.Candle{
		OpenTime:    time.UnixMilli(int64(openMs)).UTC(),
		Close:       closePrice,
		Volume:      volume,
		QuoteVolume: quoteVolume,
	}, nil
}

// klineDecimal parses the string field at idx as a decimal.
func klineDecimal(raw []any, idx int) (decimal.Decimal, error) {
	s, ok := raw[idx].(string)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("kline field %d is %T, want string", idx, raw[idx])
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("kline field %d: %w", idx, err)
	}
	return d, nil
}
