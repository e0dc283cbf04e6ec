// Package gaps implements the Gap Detector component.
//
// The Gap Detector:
//   - Computes missing sub-ranges of an asset's stored hourly series
//   - Backward gap: window behind the earliest stored point
//   - Forward gap: window past the latest stored point, up to now
//   - Internal gaps: holes between consecutive stored timestamps
//
// Detection is read-only over the store; gaps are transient values,
// never persisted.
package gaps
