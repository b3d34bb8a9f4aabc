// Package store persists catalog snapshots, matched movies, sync runs, and TTL
// cache entries in SQLite.
//
// The store is the only shared mutable state in reelscout. A completed sync is
// committed in one transaction (CommitSync) so readers see either the previous
// snapshot or the new one, never a mix. At most one non-terminal sync run per
// platform can exist; the schema enforces this with a partial unique index and
// CreateRun reports ErrAlreadyRunning when it is violated.
//
// Expiry is lazy: readers compare storedAt+ttl against the clock. Compact is
// an optional maintenance pass that deletes expired cache entries and old run
// rows; correctness never depends on it running.
package store
