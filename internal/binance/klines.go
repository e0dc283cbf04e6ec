package binance

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"candlekeeper/internal/model"
)

const (
	klineInterval = "1h"

	// klinePageLimit is the server's hard cap on records per page.
	klinePageLimit = 1000
)

// FetchHourlySeries fetches hourly candles for [start, end) in
// chronological order, paginating in pages of up to klinePageLimit hours.
// An empty page advances the cursor past its window; it means no data
// exists there, not that the fetch failed.
func (c *Client) FetchHourlySeries(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	var candles []model.Candle

	for cursor := start; cursor.Before(end); {
		pageEnd := cursor.Add(klinePageLimit * time.Hour)
		if pageEnd.After(end) {
			pageEnd = end
		}

		page, err := c.getKlines(ctx, symbol, cursor, pageEnd)
		if err != nil {
			return nil, err
		}
		candles = append(candles, page...)

		cursor = pageEnd
	}

	// The server returns each page in open-time order already; sorting
	// keeps the contract independent of that behavior.
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})

	return candles, nil
}

// getKlines fetches a single page of candles with open times in [start, end).
func (c *Client) getKlines(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", klineInterval)
	query.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	// The server treats endTime as inclusive; subtract 1ms for half-open.
	query.Set("endTime", strconv.FormatInt(end.UnixMilli()-1, 10))
	query.Set("limit", strconv.Itoa(klinePageLimit))

	var raw [][]any
	if err := c.get(ctx, "/api/v3/klines", query, weightKlines, &raw); err != nil {
		return nil, fmt.Errorf("get klines %s: %w", symbol, err)
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("parse kline %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}

	return candles, nil
}
