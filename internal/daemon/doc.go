// Package daemon coordinates the long-running reelscout process.
//
// It wires configuration, the cache store, the sync orchestrator, and the
// scheduler into a single lifecycle with flock-based locking to prevent
// multiple instances. Background work (the HTTP API, the daily scheduler, and
// cache compaction) runs under a suture supervisor so a crashed service is
// restarted without taking the process down.
//
// Keep orchestration logic here: sync semantics live in the syncer package
// while the daemon focuses on startup, shutdown, and exposing state.
package daemon
