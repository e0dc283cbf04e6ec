// Package scheduler implements the periodic collection scheduler.
//
// The scheduler:
//   - Fires forward collection on a fixed cadence (gocron, UTC)
//   - Guarantees at most one run in flight, scheduled or manual
//   - Rejects manual triggers while another run holds the slot
//   - Skips ticks that fire past the misfire grace, warning not failing
//   - Recovers a panicking run into the error state instead of
//     crashing the process
package scheduler
