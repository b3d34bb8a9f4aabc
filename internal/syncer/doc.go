// Package syncer runs catalog synchronizations.
//
// A run moves PENDING, FETCHING, DIFFING, ENRICHING, PERSISTING and ends
// COMPLETED, or FAILED from any earlier state. Each platform has at most one
// non-terminal run: the Orchestrator keeps an in-process token per platform
// and the store backs it with a unique index, so a second trigger is rejected
// with ErrAlreadyRunning instead of queued.
//
// Only titles added since the previous snapshot are enriched, plus retained
// titles whose matched row is missing or whose last lookup hard-failed.
// Everything a run produces becomes visible in a single store commit; a
// failed or cancelled run leaves the previous snapshot in place.
package syncer
