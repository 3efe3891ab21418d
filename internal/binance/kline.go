package binance

import (
	"fmt"
	"strconv"
	"time"

	"crypto-pattern-bot/internal/market"
)

// Kline represents a candlestick
type Kline struct {
	OpenTime                 int64   `json:"openTime"`
	Open                     float64 `json:"open,string"`
	High                     float64 `json:"high,string"`
	Low                      float64 `json:"low,string"`
	Close                    float64 `json:"close,string"`
	Volume                   float64 `json:"volume,string"`
	CloseTime                int64   `json:"closeTime"`
	QuoteAssetVolume         float64 `json:"quoteAssetVolume,string"`
	NumberOfTrades           int     `json:"numberOfTrades"`
	TakerBuyBaseAssetVolume  float64 `json:"takerBuyBaseAssetVolume,string"`
	TakerBuyQuoteAssetVolume float64 `json:"takerBuyQuoteAssetVolume,string"`
}

// ToBar converts the kline to a bar stamped with its open time
func (k Kline) ToBar() market.Bar {
	return market.Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
	}
}

// ToBars converts klines to bars in the same order
func ToBars(klines []Kline) []market.Bar {
	bars := make([]market.Bar, len(klines))
	for i, k := range klines {
		bars[i] = k.ToBar()
	}
	return bars
}

// parseKline decodes one row of the /api/v3/klines array response
func parseKline(raw []interface{}) (Kline, error) {
	if len(raw) < 11 {
		return Kline{}, fmt.Errorf("kline has %d fields, want 11", len(raw))
	}

	var k Kline
	var err error
	if k.OpenTime, err = parseInt(raw[0]); err != nil {
		return Kline{}, fmt.Errorf("open time: %w", err)
	}
	floats := []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume}
	for i, dst := range floats {
		if *dst, err = parseFloat(raw[i+1]); err != nil {
			return Kline{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	if k.CloseTime, err = parseInt(raw[6]); err != nil {
		return Kline{}, fmt.Errorf("close time: %w", err)
	}
	if k.QuoteAssetVolume, err = parseFloat(raw[7]); err != nil {
		return Kline{}, fmt.Errorf("quote volume: %w", err)
	}
	trades, err := parseInt(raw[8])
	if err != nil {
		return Kline{}, fmt.Errorf("trade count: %w", err)
	}
	k.NumberOfTrades = int(trades)
	if k.TakerBuyBaseAssetVolume, err = parseFloat(raw[9]); err != nil {
		return Kline{}, fmt.Errorf("taker base volume: %w", err)
	}
	if k.TakerBuyQuoteAssetVolume, err = parseFloat(raw[10]); err != nil {
		return Kline{}, fmt.Errorf("taker quote volume: %w", err)
	}
	return k, nil
}

func parseFloat(val interface{}) (float64, error) {
	switch v := val.(type) {
	case string:
		return strconv.ParseFloat(v, 64)
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", val)
	}
}

func parseInt(val interface{}) (int64, error) {
	switch v := val.(type) {
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", val)
	}
}

// IntervalDuration returns the bar length of a Binance interval string
func IntervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "6h":
		return 6 * time.Hour, nil
	case "8h":
		return 8 * time.Hour, nil
	case "12h":
		return 12 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	case "3d":
		return 72 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
}
