// Command reelscout runs the catalog sync daemon and inspects its cache.
//
// Read-only commands (runs, movies, missing, cache stats) open the SQLite
// cache directly, so they work whether or not the daemon is running. The sync
// command prefers the daemon's HTTP API and falls back to an in-process run
// when no daemon answers.
package main
