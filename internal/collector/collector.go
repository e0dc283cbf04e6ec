package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"candlekeeper/internal/model"
)

// MarketSource fetches hourly candles for [start, end).
type MarketSource interface {
	FetchHourlySeries(ctx context.Context, symbol string, start, end time.Time) ([]model.Candle, error)
}

// Store persists assets and collected points. BulkInsert reports how
// many rows were actually inserted; duplicates are skipped silently.
type Store interface {
	GetOrCreateAsset(ctx context.Context, symbol string) (model.Asset, error)
	BulkInsert(ctx context.Context, points []model.PricePoint) (int, error)
}

// GapFinder reports missing sub-ranges of an asset's stored series.
type GapFinder interface {
	FindBackwardGap(ctx context.Context, assetID int64, from, to time.Time) (*model.Gap, error)
	FindForwardGap(ctx context.Context, assetID int64, to time.Time) (*model.Gap, error)
	FindInternalGaps(ctx context.Context, assetID int64, from, to time.Time) ([]model.Gap, error)
	FindAllGaps(ctx context.Context, assetID int64, from, to time.Time) ([]model.Gap, error)
}

// Config holds orchestrator configuration.
type Config struct {
	MaxRetries  int           // Retries per chunk after the first attempt (default: 3)
	RetryDelay  time.Duration // Base delay between attempts, doubles each retry (default: 5s)
	ChunkSize   time.Duration // Fetch window per chunk (default: 24h)
	Concurrency int           // Max assets collected concurrently (default: 1)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		RetryDelay:  5 * time.Second,
		ChunkSize:   24 * time.Hour,
		Concurrency: 1,
	}
}

// Stats is a snapshot of collector counters.
type Stats struct {
	AssetsProcessed int64
	RecordsInserted int64
	RangesAttempted int64
	RangesFailed    int64
}

// Collector fills the missing parts of each asset's stored series.
type Collector struct {
	cfg    Config
	source MarketSource
	store  Store
	gaps   GapFinder
	logger *slog.Logger

	// Injectable for tests.
	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	assetsProcessed atomic.Int64
	recordsInserted atomic.Int64
	rangesAttempted atomic.Int64
	rangesFailed    atomic.Int64
}

// New creates a new Collector.
func New(cfg Config, source MarketSource, store Store, gaps GapFinder, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cfg:    cfg,
		source: source,
		store:  store,
		gaps:   gaps,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Stats returns current counters.
func (c *Collector) Stats() Stats {
	return Stats{
		AssetsProcessed: c.assetsProcessed.Load(),
		RecordsInserted: c.recordsInserted.Load(),
		RangesAttempted: c.rangesAttempted.Load(),
		RangesFailed:    c.rangesFailed.Load(),
	}
}

// CollectAsset makes one asset's series complete over [from, to],
// resuming from whatever already exists at either edge.
func (c *Collector) CollectAsset(ctx context.Context, symbol string, from, to time.Time) model.CollectionOutcome {
	return c.collectOne(ctx, symbol, func(ctx context.Context, assetID int64) ([]model.Gap, error) {
		return c.gaps.FindAllGaps(ctx, assetID, from, to)
	})
}

// CollectBackward backfills history for each symbol down to from. A
// zero to bounds the fill at yesterday midnight UTC, keeping scheduled
// backfills off the still-moving current day.
func (c *Collector) CollectBackward(ctx context.Context, symbols []string, from, to time.Time) []model.CollectionOutcome {
	if to.IsZero() {
		to = yesterdayMidnight(c.now())
	}
	return c.runBatch(ctx, "backward", symbols, func(ctx context.Context, assetID int64) ([]model.Gap, error) {
		gap, err := c.gaps.FindBackwardGap(ctx, assetID, from, to)
		if err != nil || gap == nil {
			return nil, err
		}
		return []model.Gap{*gap}, nil
	})
}

// CollectForward extends each symbol's series from its latest stored
// point up to to (zero means the current hour boundary). Symbols with
// no stored baseline are skipped: forward fill cannot bootstrap
// history.
func (c *Collector) CollectForward(ctx context.Context, symbols []string, to time.Time) []model.CollectionOutcome {
	if to.IsZero() {
		to = model.HourFloor(c.now())
	}
	return c.runBatch(ctx, "forward", symbols, func(ctx context.Context, assetID int64) ([]model.Gap, error) {
		gap, err := c.gaps.FindForwardGap(ctx, assetID, to)
		if err != nil || gap == nil {
			return nil, err
		}
		return []model.Gap{*gap}, nil
	})
}

// DetectAndFillGaps is the maintenance pass: fill boundary and internal
// gaps for each symbol over [from, current hour boundary].
func (c *Collector) DetectAndFillGaps(ctx context.Context, symbols []string, from time.Time) []model.CollectionOutcome {
	to := model.HourFloor(c.now())
	return c.runBatch(ctx, "gapfill", symbols, func(ctx context.Context, assetID int64) ([]model.Gap, error) {
		var found []model.Gap

		backward, err := c.gaps.FindBackwardGap(ctx, assetID, from, to)
		if err != nil {
			return nil, err
		}
		if backward != nil {
			found = append(found, *backward)
		}

		internal, err := c.gaps.FindInternalGaps(ctx, assetID, from, to)
		if err != nil {
			return nil, err
		}
		found = append(found, internal...)

		forward, err := c.gaps.FindForwardGap(ctx, assetID, to)
		if err != nil {
			return nil, err
		}
		if forward != nil {
			found = append(found, *forward)
		}

		return found, nil
	})
}

// findGapsFn produces the gap list for one resolved asset.
type findGapsFn func(ctx context.Context, assetID int64) ([]model.Gap, error)

// runBatch fans symbols out over the concurrency bound. Outcomes come
// back in input order regardless of completion order.
func (c *Collector) runBatch(ctx context.Context, op string, symbols []string, find findGapsFn) []model.CollectionOutcome {
	start := time.Now()
	outcomes := make([]model.CollectionOutcome, len(symbols))

	sem := make(chan struct{}, c.concurrency())
	var wg sync.WaitGroup

	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				outcomes[i] = model.CollectionOutcome{
					Symbol: symbol,
					Status: model.StatusFailed,
					Err:    ctx.Err(),
				}
				return
			}

			outcomes[i] = c.collectOne(ctx, symbol, find)
		}(i, symbol)
	}

	wg.Wait()

	c.logBatch(op, outcomes, time.Since(start))
	return outcomes
}

// collectOne resolves the asset, finds its gaps, and fills them.
func (c *Collector) collectOne(ctx context.Context, symbol string, find findGapsFn) model.CollectionOutcome {
	started := time.Now()
	c.assetsProcessed.Add(1)

	asset, err := c.store.GetOrCreateAsset(ctx, symbol)
	if err != nil {
		return model.CollectionOutcome{
			Symbol:   symbol,
			Status:   model.StatusFailed,
			Duration: time.Since(started),
			Err:      fmt.Errorf("resolve asset: %w", err),
		}
	}

	found, err := find(ctx, asset.ID)
	if err != nil {
		return model.CollectionOutcome{
			AssetID:  asset.ID,
			Symbol:   asset.Symbol,
			Status:   model.StatusFailed,
			Duration: time.Since(started),
			Err:      err,
		}
	}

	return c.fillGaps(ctx, asset, found, started)
}

// fillGaps fetches and persists every gap chunk in chronological order.
// A failed chunk is recorded and skipped past; the rest of the asset
// still gets collected.
func (c *Collector) fillGaps(ctx context.Context, asset model.Asset, found []model.Gap, started time.Time) model.CollectionOutcome {
	outcome := model.CollectionOutcome{
		AssetID: asset.ID,
		Symbol:  asset.Symbol,
		Status:  model.StatusSkipped,
	}

	var firstErr error

fill:
	for _, gap := range found {
		for _, r := range splitRange(gap.Range(), c.cfg.ChunkSize) {
			outcome.AttemptedRanges = append(outcome.AttemptedRanges, r)
			c.rangesAttempted.Add(1)

			inserted, err := c.fillRange(ctx, asset, r)
			outcome.RecordsCollected += inserted
			if err != nil {
				outcome.FailedRanges = append(outcome.FailedRanges, r)
				c.rangesFailed.Add(1)
				if firstErr == nil {
					firstErr = err
				}
				c.logger.Warn("range failed",
					"symbol", asset.Symbol,
					"from", r.Start,
					"to", r.End,
					"error", err,
				)
				if ctx.Err() != nil {
					break fill
				}
			}
		}
	}

	if len(outcome.AttemptedRanges) > 0 {
		switch {
		case len(outcome.FailedRanges) == 0:
			outcome.Status = model.StatusComplete
		case outcome.RecordsCollected > 0:
			outcome.Status = model.StatusPartial
			outcome.Err = firstErr
		default:
			outcome.Status = model.StatusFailed
			outcome.Err = firstErr
		}
	}

	c.recordsInserted.Add(int64(outcome.RecordsCollected))
	outcome.Duration = time.Since(started)
	return outcome
}

// fillRange fetches one chunk with retries and persists it immediately,
// so a later crash keeps what was already fetched. Returns the number
// of rows actually inserted; refetched duplicates are skipped by the
// store and not counted.
func (c *Collector) fillRange(ctx context.Context, asset model.Asset, r model.TimeRange) (int, error) {
	delay := c.cfg.RetryDelay

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying range",
				"symbol", asset.Symbol,
				"attempt", attempt,
				"delay", delay,
			)
			if err := c.sleep(ctx, delay); err != nil {
				if lastErr != nil {
					return 0, lastErr
				}
				return 0, err
			}
			delay *= 2
		}

		candles, err := c.source.FetchHourlySeries(ctx, asset.Symbol, r.Start, r.End)
		if err != nil {
			lastErr = fmt.Errorf("fetch %s: %w", asset.Symbol, err)
			continue
		}

		inserted, err := c.store.BulkInsert(ctx, toPricePoints(asset.ID, candles))
		if err != nil {
			lastErr = fmt.Errorf("persist %s: %w", asset.Symbol, err)
			continue
		}

		return inserted, nil
	}

	return 0, lastErr
}

func (c *Collector) concurrency() int {
	if c.cfg.Concurrency > 0 {
		return c.cfg.Concurrency
	}
	return 1
}

func (c *Collector) logBatch(op string, outcomes []model.CollectionOutcome, took time.Duration) {
	var complete, partial, failed, skipped, records int
	for _, o := range outcomes {
		records += o.RecordsCollected
		switch o.Status {
		case model.StatusComplete:
			complete++
		case model.StatusPartial:
			partial++
		case model.StatusFailed:
			failed++
		case model.StatusSkipped:
			skipped++
		}
	}

	c.logger.Info("collection batch complete",
		"op", op,
		"assets", len(outcomes),
		"complete", complete,
		"partial", partial,
		"failed", failed,
		"skipped", skipped,
		"records", records,
		"duration", took,
	)
}

// toPricePoints converts fetched candles into storable rows. Close maps
// to price, base volume to volume, and quote volume stands in for
// market cap (the exchange has no native market-cap field).
func toPricePoints(assetID int64, candles []model.Candle) []model.PricePoint {
	points := make([]model.PricePoint, len(candles))
	for i, k := range candles {
		points[i] = model.PricePoint{
			AssetID:   assetID,
			Timestamp: model.HourFloor(k.OpenTime),
			Price:     k.Close,
			Volume:    k.Volume,
			MarketCap: k.QuoteVolume,
		}
	}
	return points
}

// splitRange cuts r into consecutive windows of at most chunk each.
func splitRange(r model.TimeRange, chunk time.Duration) []model.TimeRange {
	if !r.End.After(r.Start) {
		return nil
	}
	if chunk <= 0 {
		return []model.TimeRange{r}
	}

	var out []model.TimeRange
	for cursor := r.Start; cursor.Before(r.End); {
		end := cursor.Add(chunk)
		if end.After(r.End) {
			end = r.End
		}
		out = append(out, model.TimeRange{Start: cursor, End: end})
		cursor = end
	}
	return out
}

// yesterdayMidnight returns 00:00 UTC of the day before now.
func yesterdayMidnight(now time.Time) time.Time {
	y := now.UTC().AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
}

// sleepCtx sleeps for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
