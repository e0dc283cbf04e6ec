package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// Asset identifies a tracked tradable symbol (e.g., "BTCUSDT").
type Asset struct {
	ID        int64     // Primary key (database identity)
	Symbol    string    // Exchange symbol, unique
	Rank      int32     // Activity rank (1 = most active), 0 if unranked
	CreatedAt time.Time // First sighting
}

// AssetInfo is a ranked entry from the 24h activity listing.
type AssetInfo struct {
	Symbol      string          // Exchange symbol
	LastPrice   decimal.Decimal // Most recent trade price
	QuoteVolume decimal.Decimal // 24h quote-asset volume (liquidity proxy)
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Candle is one hourly OHLCV observation as fetched from the exchange.
// Only the fields the collector consumes are carried.
type Candle struct {
	OpenTime    time.Time       // Bucket open, hour-aligned UTC
	Close       decimal.Decimal // Close price
	Volume      decimal.Decimal // Base-asset volume
	QuoteVolume decimal.Decimal // Quote-asset volume
}

// PricePoint is one stored hourly observation for an asset.
// Unique per (AssetID, Timestamp); insert-only.
type PricePoint struct {
	AssetID   int64           // Foreign key to Asset
	Timestamp time.Time       // Hour-aligned UTC
	Price     decimal.Decimal // Close price for the hour
	Volume    decimal.Decimal // Base-asset volume, zero if unknown
	MarketCap decimal.Decimal // Quote volume proxy, zero if unknown
}

// Quote is a latest-price snapshot kept warm by the live stream.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

// -----------------------------------------------------------------------------
// Collection Types
// -----------------------------------------------------------------------------

// TimeRange is a half-open time window [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Hours returns the number of whole hours spanned by the range.
func (r TimeRange) Hours() int {
	if !r.End.After(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start) / time.Hour)
}

// Gap describes a contiguous sub-range with no stored data for an asset.
// Computed on demand; never persisted.
type Gap struct {
	AssetID      int64
	Start        time.Time
	End          time.Time
	HoursMissing int
}

// Duration returns the span covered by the gap.
func (g Gap) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// Range returns the gap bounds as a TimeRange.
func (g Gap) Range() TimeRange {
	return TimeRange{Start: g.Start, End: g.End}
}

// CollectionStatus classifies the result of one per-asset collection run.
type CollectionStatus string

const (
	StatusComplete CollectionStatus = "complete" // All missing ranges filled
	StatusPartial  CollectionStatus = "partial"  // Some records collected, some ranges failed
	StatusFailed   CollectionStatus = "failed"   // No records collected, all ranges failed
	StatusSkipped  CollectionStatus = "skipped"  // Nothing missing or no baseline to extend
)

// CollectionOutcome summarizes one collection run for one asset.
// Returned to the caller as data; never persisted.
type CollectionOutcome struct {
	AssetID          int64
	Symbol           string
	Status           CollectionStatus
	RecordsCollected int         // Rows actually inserted (duplicate skips excluded)
	AttemptedRanges  []TimeRange // Every missing sub-range we tried to fill
	FailedRanges     []TimeRange // Sub-ranges that exhausted retries
	Duration         time.Duration
	Err              error // First terminal error, nil unless Status is failed/partial
}

// Error returns the outcome's error message, or "" if none.
func (o CollectionOutcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// -----------------------------------------------------------------------------
// Time Helpers
// -----------------------------------------------------------------------------

// HourFloor truncates t to the start of its hour in UTC.
func HourFloor(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// HoursBetween returns the number of whole hours from a to b.
// Returns 0 if b is not after a.
func HoursBetween(a, b time.Time) int {
	if !b.After(a) {
		return 0
	}
	return int(b.Sub(a) / time.Hour)
}
