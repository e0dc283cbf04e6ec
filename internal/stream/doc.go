// Package stream implements the live ticker stream component.
//
// The stream manager:
//   - Holds one WebSocket connection to the exchange combined stream
//   - Subscribes every configured symbol to its miniTicker stream
//   - Decodes ticker events and hands them to a TickHandler
//   - Reconnects with exponential backoff, reset on success
package stream
