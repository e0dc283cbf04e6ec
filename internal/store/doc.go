// Package store provides PostgreSQL persistence for assets and hourly
// price points, plus the Redis latest-price cache.
//
// The store:
//   - Owns the assets and price_points tables
//   - Inserts are duplicate-tolerant (per-row ON CONFLICT DO NOTHING),
//     so re-running collection over a filled range is a no-op
//   - Timestamp queries back gap detection
//   - Price points are append-only (never updated, never deleted here)
//
// The cache keeps one JSON quote per symbol at latest:<symbol> with a
// short TTL, kept warm by the live ticker stream.
package store
