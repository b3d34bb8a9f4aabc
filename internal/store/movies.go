package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"reelscout/internal/catalog"
	"reelscout/internal/textutil"
)

const movieColumns = `platform_key, external_id, title, year, imdb_id, tmdb_id, genres_json,
    confidence, rating_json, lookup_failed, last_enriched_at`

// UpsertMatchedMovie inserts or replaces a single matched movie row.
func (s *Store) UpsertMatchedMovie(ctx context.Context, movie catalog.MatchedMovie, ttl time.Duration) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := prepareMovieUpsert(ctx, tx)
		if err != nil {
			return err
		}
		defer stmt.Close()
		return s.upsertMovie(ctx, stmt, movie, 0, ttl)
	})
}

func prepareMovieUpsert(ctx context.Context, tx *sql.Tx) (*sql.Stmt, error) {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matched_movies (
            platform_key, external_id, position, title, normalized_title, year, imdb_id, tmdb_id,
            genres_json, confidence, rating_value, rating_json, lookup_failed, last_enriched_at,
            stored_at, ttl_seconds
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(platform_key, external_id) DO UPDATE SET
            position = excluded.position,
            title = excluded.title,
            normalized_title = excluded.normalized_title,
            year = excluded.year,
            imdb_id = excluded.imdb_id,
            tmdb_id = excluded.tmdb_id,
            genres_json = excluded.genres_json,
            confidence = excluded.confidence,
            rating_value = excluded.rating_value,
            rating_json = excluded.rating_json,
            lookup_failed = excluded.lookup_failed,
            last_enriched_at = excluded.last_enriched_at,
            stored_at = excluded.stored_at,
            ttl_seconds = excluded.ttl_seconds`)
	if err != nil {
		return nil, fmt.Errorf("prepare matched movie upsert: %w", err)
	}
	return stmt, nil
}

func (s *Store) upsertMovie(ctx context.Context, stmt *sql.Stmt, movie catalog.MatchedMovie, position int, ttl time.Duration) error {
	movie = movie.Normalize()
	rec := movie.Record
	key := normalizeKey(rec.PlatformKey)
	if key == "" || strings.TrimSpace(rec.ExternalID) == "" {
		return fmt.Errorf("matched movie requires platform and external id (got %q/%q)", rec.PlatformKey, rec.ExternalID)
	}
	genres := rec.Genres
	if genres == nil {
		genres = []string{}
	}
	genresJSON, err := json.Marshal(genres)
	if err != nil {
		return fmt.Errorf("encode genres: %w", err)
	}
	var (
		ratingValue any
		ratingJSON  any
	)
	if movie.Rating != nil {
		payload, err := json.Marshal(movie.Rating)
		if err != nil {
			return fmt.Errorf("encode rating: %w", err)
		}
		ratingValue = movie.Rating.Value
		ratingJSON = string(payload)
	}
	var enrichedAt *time.Time
	if !movie.LastEnrichedAt.IsZero() {
		enrichedAt = &movie.LastEnrichedAt
	}
	_, err = stmt.ExecContext(ctx,
		key,
		rec.ExternalID,
		position,
		rec.Title,
		textutil.NormalizeTitle(rec.Title),
		nullableInt(rec.Year),
		nullableString(rec.IMDbID),
		nullableString(rec.TMDBID),
		string(genresJSON),
		string(movie.Confidence),
		ratingValue,
		ratingJSON,
		boolToInt(movie.LookupFailed),
		nullableTime(enrichedAt),
		formatTime(s.clock()),
		ttlSeconds(ttl),
	)
	if err != nil {
		return fmt.Errorf("upsert matched movie %s/%s: %w", key, rec.ExternalID, err)
	}
	return nil
}

// MatchedMovies returns movies for a platform ordered by rating (unrated
// last) and then title.
func (s *Store) MatchedMovies(ctx context.Context, platformKey string, filter MovieFilter) ([]catalog.MatchedMovie, error) {
	return matchedMovies(ensureContext(ctx), s.db, platformKey, filter)
}

// CountMatchedMovies counts rows matching filter, ignoring Limit and Offset.
func (s *Store) CountMatchedMovies(ctx context.Context, platformKey string, filter MovieFilter) (int, error) {
	return countMatchedMovies(ensureContext(ctx), s.db, platformKey, filter)
}

// MoviePage is one filtered page of a platform's movies together with the
// snapshot metadata it was read against.
type MoviePage struct {
	Snapshot *SnapshotSummary
	Movies   []catalog.MatchedMovie
	Total    int
}

// ReadMoviePage reads snapshot metadata, one page of movies and the total
// match count inside a single read transaction, so a commit landing
// mid-query cannot mix two runs into one page. Snapshot is nil when the
// platform has never been synced; Movies and Total are then empty.
func (s *Store) ReadMoviePage(ctx context.Context, platformKey string, filter MovieFilter) (MoviePage, error) {
	ctx = ensureContext(ctx)
	var page MoviePage
	err := retryOnBusy(ctx, func() error {
		page = MoviePage{}
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if page.Snapshot, err = snapshotSummary(ctx, tx, platformKey); err != nil {
			return err
		}
		if page.Snapshot == nil {
			return nil
		}
		if page.Movies, err = matchedMovies(ctx, tx, platformKey, filter); err != nil {
			return err
		}
		if page.Total, err = countMatchedMovies(ctx, tx, platformKey, filter); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return MoviePage{}, fmt.Errorf("read movie page: %w", err)
	}
	return page, nil
}

// MatchedMoviesByIMDb returns every cached movie carrying imdbID, either as
// the catalog's own id or as the id of its attached rating. An empty
// platformKey searches all platforms. Results are ordered by platform.
func (s *Store) MatchedMoviesByIMDb(ctx context.Context, platformKey, imdbID string) ([]catalog.MatchedMovie, error) {
	ctx = ensureContext(ctx)
	imdbID = strings.TrimSpace(imdbID)
	if imdbID == "" {
		return nil, nil
	}
	query := `SELECT ` + movieColumns + ` FROM matched_movies
        WHERE (lower(imdb_id) = lower(?) OR lower(json_extract(rating_json, '$.imdb_id')) = lower(?))`
	args := []any{imdbID, imdbID}
	if key := normalizeKey(platformKey); key != "" {
		query += ` AND platform_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY platform_key, external_id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movies by imdb id: %w", err)
	}
	return collectMovies(rows)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func matchedMovies(ctx context.Context, q queryer, platformKey string, filter MovieFilter) ([]catalog.MatchedMovie, error) {
	where, args := movieWhere(platformKey, filter)
	query := `SELECT ` + movieColumns + ` FROM matched_movies WHERE ` + where +
		` ORDER BY rating_value IS NULL, rating_value DESC, title COLLATE NOCASE, external_id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matched movies: %w", err)
	}
	return collectMovies(rows)
}

func countMatchedMovies(ctx context.Context, q queryer, platformKey string, filter MovieFilter) (int, error) {
	where, args := movieWhere(platformKey, filter)
	var count int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM matched_movies WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count matched movies: %w", err)
	}
	return count, nil
}

func collectMovies(rows *sql.Rows) ([]catalog.MatchedMovie, error) {
	defer rows.Close()
	var movies []catalog.MatchedMovie
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, movie)
	}
	return movies, rows.Err()
}

// MatchedMovieIndex returns every matched movie for a platform keyed by
// external id.
func (s *Store) MatchedMovieIndex(ctx context.Context, platformKey string) (map[string]catalog.MatchedMovie, error) {
	movies, err := s.MatchedMovies(ctx, platformKey, MovieFilter{})
	if err != nil {
		return nil, err
	}
	index := make(map[string]catalog.MatchedMovie, len(movies))
	for _, movie := range movies {
		index[movie.Record.ExternalID] = movie
	}
	return index, nil
}

func movieWhere(platformKey string, filter MovieFilter) (string, []any) {
	clauses := []string{"platform_key = ?"}
	args := []any{normalizeKey(platformKey)}
	if genre := strings.TrimSpace(filter.Genre); genre != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(matched_movies.genres_json) g WHERE lower(g.value) = lower(?))")
		args = append(args, genre)
	}
	if filter.MinRating != nil {
		clauses = append(clauses, "rating_value IS NOT NULL AND rating_value >= ?")
		args = append(args, *filter.MinRating)
	}
	if filter.MaxRating != nil {
		clauses = append(clauses, "rating_value IS NOT NULL AND rating_value <= ?")
		args = append(args, *filter.MaxRating)
	}
	if filter.RatedOnly {
		clauses = append(clauses, "rating_value IS NOT NULL")
	}
	if filter.Year > 0 {
		clauses = append(clauses, "year = ?")
		args = append(args, filter.Year)
	}
	return strings.Join(clauses, " AND "), args
}

func scanMovie(scanner interface{ Scan(dest ...any) error }) (catalog.MatchedMovie, error) {
	var (
		movie        catalog.MatchedMovie
		year         sql.NullInt64
		imdbID       sql.NullString
		tmdbID       sql.NullString
		genresJSON   string
		confidence   string
		ratingJSON   sql.NullString
		lookupFailed int
		enrichedAt   sql.NullString
	)
	rec := &movie.Record
	if err := scanner.Scan(
		&rec.PlatformKey,
		&rec.ExternalID,
		&rec.Title,
		&year,
		&imdbID,
		&tmdbID,
		&genresJSON,
		&confidence,
		&ratingJSON,
		&lookupFailed,
		&enrichedAt,
	); err != nil {
		return catalog.MatchedMovie{}, err
	}
	if year.Valid {
		rec.Year = int(year.Int64)
	}
	rec.IMDbID = imdbID.String
	rec.TMDBID = tmdbID.String
	if err := json.Unmarshal([]byte(genresJSON), &rec.Genres); err != nil {
		return catalog.MatchedMovie{}, fmt.Errorf("decode genres for %s: %w", rec.ExternalID, err)
	}
	if len(rec.Genres) == 0 {
		rec.Genres = nil
	}
	movie.Confidence = catalog.Confidence(confidence)
	if ratingJSON.Valid && ratingJSON.String != "" {
		var rating catalog.Rating
		if err := json.Unmarshal([]byte(ratingJSON.String), &rating); err != nil {
			return catalog.MatchedMovie{}, fmt.Errorf("decode rating for %s: %w", rec.ExternalID, err)
		}
		movie.Rating = &rating
	}
	movie.LookupFailed = lookupFailed != 0
	if t := parseNullTime(enrichedAt); t != nil {
		movie.LastEnrichedAt = *t
	}
	return movie.Normalize(), nil
}
