package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SyncRun describes a sync run in a transport-friendly format.
type SyncRun struct {
	RunID           string  `json:"runId"`
	Platform        string  `json:"platform"`
	State           string  `json:"state"`
	Trigger         string  `json:"trigger"`
	StartedAt       string  `json:"startedAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
	FinishedAt      string  `json:"finishedAt,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
	PagesFetched    int     `json:"pagesFetched"`
	Fetched         int     `json:"fetched"`
	Added           int     `json:"added"`
	Removed         int     `json:"removed"`
	Retained        int     `json:"retained"`
	EnrichTotal     int     `json:"enrichTotal"`
	Enriched        int     `json:"enriched"`
	Missing         int     `json:"missing"`
	LookupFailures  int     `json:"lookupFailures"`
	LastError       string  `json:"lastError,omitempty"`
}

// Terminal reports whether the run has finished.
func (r SyncRun) Terminal() bool {
	return r.State == "COMPLETED" || r.State == "FAILED"
}

// Rating is the rating attached to a matched movie.
type Rating struct {
	Value     float64 `json:"value"`
	Count     *int    `json:"count,omitempty"`
	IMDbID    string  `json:"imdbId,omitempty"`
	SourceURL string  `json:"sourceUrl,omitempty"`
}

// Movie is a catalog title joined with its rating.
type Movie struct {
	ExternalID     string   `json:"externalId"`
	Title          string   `json:"title"`
	Year           int      `json:"year,omitempty"`
	Genres         []string `json:"genres,omitempty"`
	IMDbID         string   `json:"imdbId,omitempty"`
	Confidence     string   `json:"confidence"`
	Rating         *Rating  `json:"rating,omitempty"`
	LookupFailed   bool     `json:"lookupFailed,omitempty"`
	LastEnrichedAt string   `json:"lastEnrichedAt,omitempty"`
}

// MovieList wraps one page of a movie query.
type MovieList struct {
	Platform      string  `json:"platform"`
	Movies        []Movie `json:"movies"`
	Total         int     `json:"total"`
	Limit         int     `json:"limit"`
	Offset        int     `json:"offset"`
	SnapshotFound bool    `json:"snapshotFound"`
	Stale         bool    `json:"stale"`
	FetchedAt     string  `json:"fetchedAt,omitempty"`
}

// PlatformMovie is a matched movie together with the platform carrying it.
type PlatformMovie struct {
	Platform string `json:"platform"`
	Movie
}

// MovieLookup lists every cached platform entry for one IMDb id.
type MovieLookup struct {
	IMDbID  string          `json:"imdbId"`
	Matches []PlatformMovie `json:"matches"`
}

// MissingTitle is a catalog title without a confident rating.
type MissingTitle struct {
	ExternalID   string `json:"externalId"`
	Title        string `json:"title"`
	Year         int    `json:"year,omitempty"`
	IMDbID       string `json:"imdbId,omitempty"`
	LookupFailed bool   `json:"lookupFailed"`
}

// MissingList wraps the missing titles of one platform.
type MissingList struct {
	Platform string         `json:"platform"`
	Titles   []MissingTitle `json:"titles"`
}

// Platform describes a configured platform and its cached snapshot.
type Platform struct {
	Key            string   `json:"key"`
	Name           string   `json:"name"`
	Country        string   `json:"country"`
	Language       string   `json:"language"`
	SnapshotTitles int      `json:"snapshotTitles"`
	FetchedAt      string   `json:"fetchedAt,omitempty"`
	Stale          bool     `json:"stale"`
	LatestRun      *SyncRun `json:"latestRun,omitempty"`
}

// PlatformList wraps configured platforms.
type PlatformList struct {
	Platforms []Platform `json:"platforms"`
}

// RunList wraps a collection of runs, newest first.
type RunList struct {
	Runs []SyncRun `json:"runs"`
}

// TriggerResponse acknowledges an accepted sync request.
type TriggerResponse struct {
	RunID    string `json:"runId"`
	Platform string `json:"platform"`
}

// Health reports daemon liveness.
type Health struct {
	Status        string    `json:"status"`
	PID           int       `json:"pid"`
	StartedAt     string    `json:"startedAt,omitempty"`
	DatabasePath  string    `json:"databasePath"`
	NextScheduled string    `json:"nextScheduled,omitempty"`
	ActiveRuns    []SyncRun `json:"activeRuns"`
	Error         string    `json:"error,omitempty"`
}

// CacheStats summarizes cache store contents.
type CacheStats struct {
	Snapshots      int    `json:"snapshots"`
	MatchedMovies  int    `json:"matchedMovies"`
	RatedMovies    int    `json:"ratedMovies"`
	MissingTitles  int    `json:"missingTitles"`
	Runs           int    `json:"runs"`
	ActiveRuns     int    `json:"activeRuns"`
	CacheEntries   int    `json:"cacheEntries"`
	ExpiredEntries int    `json:"expiredEntries"`
	OldestSnapshot string `json:"oldestSnapshot,omitempty"`
	NewestSnapshot string `json:"newestSnapshot,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}
