package gaps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"candlekeeper/internal/model"
)

// TimestampSource provides an asset's stored timestamps. The boolean
// result is false when the asset has no stored data at all.
// TimestampsInRange returns timestamps in ascending order.
type TimestampSource interface {
	EarliestTimestamp(ctx context.Context, assetID int64) (time.Time, bool, error)
	LatestTimestamp(ctx context.Context, assetID int64) (time.Time, bool, error)
	TimestampsInRange(ctx context.Context, assetID int64, from, to time.Time) ([]time.Time, error)
}

// Config holds detector configuration.
type Config struct {
	Interval   time.Duration // Expected spacing between points (default: 1h)
	Tolerance  time.Duration // Spacing slack before a hole is a gap (default: 5m)
	ForwardLag time.Duration // Staleness allowed before a forward gap opens (default: 1h)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:   time.Hour,
		Tolerance:  5 * time.Minute,
		ForwardLag: time.Hour,
	}
}

// Detector computes missing sub-ranges from stored timestamps.
type Detector struct {
	cfg    Config
	source TimestampSource
	logger *slog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// New creates a new Detector.
func New(cfg Config, source TimestampSource, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		cfg:    cfg,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// FindBackwardGap reports the missing range behind the earliest stored
// point. With no data at all the whole [from, to] window is the gap;
// with data starting after from the gap is [from, earliest). Returns
// nil when the window is already covered.
func (d *Detector) FindBackwardGap(ctx context.Context, assetID int64, from, to time.Time) (*model.Gap, error) {
	earliest, ok, err := d.source.EarliestTimestamp(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("earliest timestamp for asset %d: %w", assetID, err)
	}

	if !ok {
		if !from.Before(to) {
			return nil, nil
		}
		return newGap(assetID, from, to), nil
	}

	if earliest.After(from) {
		return newGap(assetID, from, earliest), nil
	}
	return nil, nil
}

// FindForwardGap reports the missing range past the latest stored
// point. A zero to means now. No stored data yields no gap: forward
// fill cannot bootstrap history.
func (d *Detector) FindForwardGap(ctx context.Context, assetID int64, to time.Time) (*model.Gap, error) {
	if to.IsZero() {
		to = d.now()
	}

	latest, ok, err := d.source.LatestTimestamp(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("latest timestamp for asset %d: %w", assetID, err)
	}
	if !ok {
		return nil, nil
	}

	if to.Sub(latest) > d.cfg.ForwardLag {
		return newGap(assetID, latest, to), nil
	}
	return nil, nil
}

// FindInternalGaps walks the stored timestamps in [from, to] pairwise
// and reports every spacing beyond Interval+Tolerance. A spacing
// exactly at the boundary is not a gap (strict greater-than).
func (d *Detector) FindInternalGaps(ctx context.Context, assetID int64, from, to time.Time) ([]model.Gap, error) {
	stamps, err := d.source.TimestampsInRange(ctx, assetID, from, to)
	if err != nil {
		return nil, fmt.Errorf("timestamps in range for asset %d: %w", assetID, err)
	}

	maxSpacing := d.cfg.Interval + d.cfg.Tolerance

	var found []model.Gap
	for i := 1; i < len(stamps); i++ {
		if stamps[i].Sub(stamps[i-1]) > maxSpacing {
			found = append(found, *newGap(assetID, stamps[i-1], stamps[i]))
		}
	}

	if len(found) > 0 {
		d.logger.Debug("internal gaps found",
			"asset_id", assetID,
			"count", len(found),
		)
	}

	return found, nil
}

// FindAllGaps reports the boundary gaps of [from, to]: the backward gap
// behind the earliest stored point and, when any data exists, the
// forward gap past the latest one. Gaps come back oldest first.
// Resuming an interrupted backfill only needs the edges; interior holes
// are FindInternalGaps' concern.
func (d *Detector) FindAllGaps(ctx context.Context, assetID int64, from, to time.Time) ([]model.Gap, error) {
	var found []model.Gap

	backward, err := d.FindBackwardGap(ctx, assetID, from, to)
	if err != nil {
		return nil, err
	}
	if backward != nil {
		found = append(found, *backward)
	}

	forward, err := d.FindForwardGap(ctx, assetID, to)
	if err != nil {
		return nil, err
	}
	if forward != nil {
		found = append(found, *forward)
	}

	return found, nil
}

// newGap builds a Gap spanning [start, end].
func newGap(assetID int64, start, end time.Time) *model.Gap {
	return &model.Gap{
		AssetID:      assetID,
		Start:        start,
		End:          end,
		HoursMissing: model.HoursBetween(start, end),
	}
}
