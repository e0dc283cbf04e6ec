// Package model defines shared data types used across candlekeeper.
//
// Conventions:
//   - Prices and volumes: decimal.Decimal, exact as parsed from the exchange
//   - Timestamps: time.Time in UTC, hour-aligned for stored price points
//   - IDs: int64 for assets (database identity)
package model
