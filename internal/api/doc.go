// Package api defines wire-format types, converters and a small client for the
// reelscout HTTP API. It translates store and query models into DTOs so the
// daemon and the CLI agree on one JSON shape.
//
// # Key Types
//
// SyncRun: a run's state, counters and last error.
//
// Movie: a matched catalog title with its rating and confidence.
//
// MovieList: one page of a movie query with snapshot freshness.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Run states and confidences are exposed as their upper-case string values.
package api
