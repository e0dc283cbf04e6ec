package binance

import (
	"context"
	"fmt"
	"sort"

	"candlekeeper/internal/model"
)

// TestConnectivity probes the server-time endpoint.
// Returns true if the API answered with a plausible timestamp.
func (c *Client) TestConnectivity(ctx context.Context) bool {
	var resp serverTimeResponse
	if err := c.get(ctx, "/api/v3/time", nil, weightTime, &resp); err != nil {
		c.logger.Warn("connectivity probe failed", "error", err)
		return false
	}
	return resp.ServerTime > 0
}

// TopAssetsByActivity returns up to limit assets ranked by 24h quote
// volume descending. The exchange has no native rank field, so quote
// volume stands in as the liquidity proxy; ties break by symbol
// ascending to keep the ordering deterministic.
func (c *Client) TopAssetsByActivity(ctx context.Context, limit int) ([]model.AssetInfo, error) {
	var tickers []ticker24h
	if err := c.get(ctx, "/api/v3/ticker/24hr", nil, weightTicker24h, &tickers); err != nil {
		return nil, fmt.Errorf("get 24h tickers: %w", err)
	}

	assets := make([]model.AssetInfo, 0, len(tickers))
	for _, t := range tickers {
		info, err := t.toAssetInfo()
		if err != nil {
			c.logger.Debug("skipping unparsable ticker",
				"symbol", t.Symbol,
				"error", err,
			)
			continue
		}
		assets = append(assets, info)
	}

	sort.Slice(assets, func(i, j int) bool {
		if cmp := assets[i].QuoteVolume.Cmp(assets[j].QuoteVolume); cmp != 0 {
			return cmp > 0
		}
		return assets[i].Symbol < assets[j].Symbol
	})

	if limit > 0 && len(assets) > limit {
		assets = assets[:limit]
	}

	return assets, nil
}
