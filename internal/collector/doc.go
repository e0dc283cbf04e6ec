// Package collector implements the Collection Orchestrator component.
//
// The orchestrator:
//   - Makes stored hourly series complete over a requested window
//   - Fetches only the missing sub-ranges reported by the gap detector
//   - Splits large gaps into day-sized chunks and persists each chunk
//     immediately, so a crash never loses fetched data
//   - Retries each chunk with exponential backoff and keeps going past
//     failed ranges; failures surface as outcome data, not panics
//   - Re-running over a filled range is a no-op (duplicate-skip insert)
package collector
