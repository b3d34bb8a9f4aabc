// Package services defines shared utilities consumed by the sync pipeline and
// its external source clients.
//
// Key responsibilities:
//   - Context helpers that stamp platform keys, sync run IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     transient (retry later) or permanent (operator attention needed).
//
// Use these helpers when wiring new source or pipeline code so operational
// behaviour (error handling, observability, retries) stays uniform.
package services
