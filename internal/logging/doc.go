// Package logging assembles structured slog loggers and formatting helpers used
// across reelscout.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so sync code tags log lines with the
// platform and run being processed. The package also provides a no-op logger
// for tests and wiring code that cannot fail.
package logging
