package api

import (
	"strings"
	"time"

	"reelscout/internal/catalog"
	"reelscout/internal/query"
	"reelscout/internal/store"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromSyncRun converts a run record to its API representation.
func FromSyncRun(run *store.SyncRun, now time.Time) SyncRun {
	if run == nil {
		return SyncRun{}
	}
	dto := SyncRun{
		RunID:           run.RunID,
		Platform:        run.PlatformKey,
		State:           string(run.State),
		Trigger:         run.Trigger,
		StartedAt:       formatTime(run.StartedAt),
		UpdatedAt:       formatTime(run.UpdatedAt),
		DurationSeconds: run.Duration(now).Seconds(),
		PagesFetched:    run.PagesFetched,
		Fetched:         run.FetchedCount,
		Added:           run.AddedCount,
		Removed:         run.RemovedCount,
		Retained:        run.RetainedCount,
		EnrichTotal:     run.EnrichTotal,
		Enriched:        run.EnrichedCount,
		Missing:         run.MissingCount,
		LookupFailures:  run.LookupFailures,
		LastError:       run.LastError,
	}
	if run.FinishedAt != nil {
		dto.FinishedAt = formatTime(*run.FinishedAt)
	}
	return dto
}

// FromSyncRuns converts runs in order.
func FromSyncRuns(runs []*store.SyncRun, now time.Time) []SyncRun {
	out := make([]SyncRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromSyncRun(run, now))
	}
	return out
}

// FromMatchedMovie converts a matched movie. Ratings are dropped for NONE
// matches.
func FromMatchedMovie(movie catalog.MatchedMovie) Movie {
	movie = movie.Normalize()
	dto := Movie{
		ExternalID:     movie.Record.ExternalID,
		Title:          movie.Record.Title,
		Year:           movie.Record.Year,
		Genres:         movie.Record.Genres,
		IMDbID:         movie.Record.IMDbID,
		Confidence:     string(movie.Confidence),
		LookupFailed:   movie.LookupFailed,
		LastEnrichedAt: formatTime(movie.LastEnrichedAt),
	}
	if movie.Rating != nil {
		dto.Rating = &Rating{
			Value:     movie.Rating.Value,
			Count:     movie.Rating.Count,
			IMDbID:    movie.Rating.IMDbID,
			SourceURL: movie.Rating.SourceURL,
		}
		if dto.IMDbID == "" {
			dto.IMDbID = movie.Rating.IMDbID
		}
	}
	return dto
}

// FromQueryResult converts a query page.
func FromQueryResult(res query.Result) MovieList {
	movies := make([]Movie, 0, len(res.Movies))
	for _, m := range res.Movies {
		movies = append(movies, FromMatchedMovie(m))
	}
	return MovieList{
		Platform:      res.Platform,
		Movies:        movies,
		Total:         res.Total,
		Limit:         res.Limit,
		Offset:        res.Offset,
		SnapshotFound: res.SnapshotFound,
		Stale:         res.Stale,
		FetchedAt:     formatTime(res.FetchedAt),
	}
}

// FromMovieLookup converts the cached platform entries of one IMDb id.
func FromMovieLookup(imdbID string, movies []catalog.MatchedMovie) MovieLookup {
	matches := make([]PlatformMovie, 0, len(movies))
	for _, m := range movies {
		matches = append(matches, PlatformMovie{Platform: m.Record.PlatformKey, Movie: FromMatchedMovie(m)})
	}
	return MovieLookup{IMDbID: strings.ToLower(strings.TrimSpace(imdbID)), Matches: matches}
}

// FromMissingTitles converts the missing list of one platform.
func FromMissingTitles(platform string, titles []store.MissingTitle) MissingList {
	out := make([]MissingTitle, 0, len(titles))
	for _, t := range titles {
		out = append(out, MissingTitle{
			ExternalID:   t.Record.ExternalID,
			Title:        t.Record.Title,
			Year:         t.Record.Year,
			IMDbID:       t.Record.IMDbID,
			LookupFailed: t.LookupFailed,
		})
	}
	return MissingList{Platform: platform, Titles: out}
}

// FromStats converts cache statistics.
func FromStats(stats store.Stats) CacheStats {
	dto := CacheStats{
		Snapshots:      stats.Snapshots,
		MatchedMovies:  stats.MatchedMovies,
		RatedMovies:    stats.RatedMovies,
		MissingTitles:  stats.MissingTitles,
		Runs:           stats.Runs,
		ActiveRuns:     stats.ActiveRuns,
		CacheEntries:   stats.CacheEntries,
		ExpiredEntries: stats.ExpiredEntries,
	}
	if stats.OldestSnapshot != nil {
		dto.OldestSnapshot = formatTime(*stats.OldestSnapshot)
	}
	if stats.NewestSnapshot != nil {
		dto.NewestSnapshot = formatTime(*stats.NewestSnapshot)
	}
	return dto
}
