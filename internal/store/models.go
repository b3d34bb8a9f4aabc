package store

import (
	"strings"
	"time"

	"reelscout/internal/catalog"
)

// RunState represents the lifecycle stage of a sync run.
type RunState string

const (
	RunPending    RunState = "PENDING"
	RunFetching   RunState = "FETCHING"
	RunDiffing    RunState = "DIFFING"
	RunEnriching  RunState = "ENRICHING"
	RunPersisting RunState = "PERSISTING"
	RunCompleted  RunState = "COMPLETED"
	RunFailed     RunState = "FAILED"
)

var runStateSet = map[RunState]struct{}{
	RunPending:    {},
	RunFetching:   {},
	RunDiffing:    {},
	RunEnriching:  {},
	RunPersisting: {},
	RunCompleted:  {},
	RunFailed:     {},
}

// ParseRunState converts a string into a RunState.
func ParseRunState(raw string) (RunState, bool) {
	normalized := RunState(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := runStateSet[normalized]
	return normalized, ok
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Trigger values recorded on sync runs.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// SyncRun is the persisted progress record of one sync.
type SyncRun struct {
	RunID       string
	PlatformKey string
	State       RunState
	Trigger     string
	StartedAt   time.Time
	UpdatedAt   time.Time
	FinishedAt  *time.Time

	PagesFetched   int
	FetchedCount   int
	AddedCount     int
	RemovedCount   int
	RetainedCount  int
	EnrichTotal    int
	EnrichedCount  int
	MissingCount   int
	LookupFailures int
	LastError      string
}

// Duration returns elapsed run time, up to now for runs still in flight.
func (r SyncRun) Duration(now time.Time) time.Duration {
	end := now
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	if r.StartedAt.IsZero() || end.Before(r.StartedAt) {
		return 0
	}
	return end.Sub(r.StartedAt)
}

// SnapshotEntry is a stored catalog snapshot with its cache metadata.
type SnapshotEntry struct {
	catalog.Snapshot
	RunID    string
	StoredAt time.Time
	TTL      time.Duration
}

// Fresh reports whether the snapshot is still within its TTL at now.
func (e SnapshotEntry) Fresh(now time.Time) bool {
	return fresh(e.StoredAt, e.TTL, now)
}

// Age returns how long ago the snapshot was stored.
func (e SnapshotEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// CacheEntry is a generic keyed value with a TTL.
type CacheEntry struct {
	Key      string
	Value    []byte
	StoredAt time.Time
	TTL      time.Duration
}

// Fresh reports whether the entry is still valid at now.
func (e CacheEntry) Fresh(now time.Time) bool {
	return fresh(e.StoredAt, e.TTL, now)
}

// MissingTitle is a catalog record that ended its last sync without a
// confident rating.
type MissingTitle struct {
	Record       catalog.Record
	RunID        string
	LookupFailed bool
}

// MovieFilter narrows MatchedMovies results. Rating bounds exclude unrated
// titles.
type MovieFilter struct {
	Genre     string
	MinRating *float64
	MaxRating *float64
	Year      int
	RatedOnly bool
	Limit     int
	Offset    int
}

// Commit is everything a successful sync persists in one transaction.
type Commit struct {
	Snapshot    catalog.Snapshot
	SnapshotTTL time.Duration
	// Movies is the full matched set for the snapshot: carried-forward
	// retained rows plus freshly enriched ones.
	Movies   []catalog.MatchedMovie
	MovieTTL time.Duration
	Missing  []MissingTitle
	Run      *SyncRun
}
