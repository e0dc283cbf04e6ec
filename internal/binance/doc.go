// Package binance provides the market-data client for the Binance public REST API.
//
// REST endpoint:
//   - Production: https://api.binance.com
//
// Key endpoints: /api/v3/time (liveness), /api/v3/ticker/24hr (activity
// ranking), /api/v3/klines (hourly candles, max 1000 per page).
//
// Every request is paced against a shared RateBudget covering both of the
// exchange's rolling 60-second quotas (request count and weighted cost).
// Transient failures retry with jittered exponential backoff; HTTP 429
// honors the server's Retry-After header verbatim.
package binance
