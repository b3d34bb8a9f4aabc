package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reelscout/internal/catalog"
	"reelscout/internal/config"
	"reelscout/internal/services"
	"reelscout/internal/store"
)

const (
	// DefaultLimit applies when a query passes limit <= 0.
	DefaultLimit = 50
	// MaxLimit caps a single page of results.
	MaxLimit = 500
)

// Store is the read surface the query service needs.
type Store interface {
	ReadMoviePage(ctx context.Context, platformKey string, filter store.MovieFilter) (store.MoviePage, error)
	MatchedMoviesByIMDb(ctx context.Context, platformKey, imdbID string) ([]catalog.MatchedMovie, error)
}

// Filters narrow a movie query. Rating bounds exclude unrated titles.
type Filters struct {
	Genre     string
	MinRating *float64
	MaxRating *float64
	Year      int
	RatedOnly bool
}

// Result is one page of matched movies plus snapshot metadata.
type Result struct {
	Platform      string
	Movies        []catalog.MatchedMovie
	Total         int
	Limit         int
	Offset        int
	SnapshotFound bool
	Stale         bool
	FetchedAt     time.Time
	StoredAt      time.Time
}

// Service answers movie queries from the cache store.
type Service struct {
	cfg   *config.Config
	store Store
	now   func() time.Time
}

// New constructs a query Service.
func New(cfg *config.Config, st Store) *Service {
	return &Service{cfg: cfg, store: st, now: time.Now}
}

// Query returns the first page of movies matching filters, best rated first.
func (s *Service) Query(ctx context.Context, platformKey string, filters Filters, limit int) (Result, error) {
	return s.Page(ctx, platformKey, filters, limit, 0)
}

// Page returns movies matching filters starting at offset.
func (s *Service) Page(ctx context.Context, platformKey string, filters Filters, limit, offset int) (Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	req := request{
		Platform:  platformKey,
		Genre:     filters.Genre,
		MinRating: filters.MinRating,
		MaxRating: filters.MaxRating,
		Year:      filters.Year,
		Limit:     limit,
		Offset:    offset,
	}
	if err := validateRequest(&req); err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "query", "validate", "", err)
	}
	platform, ok := s.cfg.Platform(platformKey)
	if !ok {
		return Result{}, services.Wrap(services.ErrNotFound, "query", "platform",
			fmt.Sprintf("platform %q is not configured", platformKey), nil)
	}

	result := Result{Platform: platform.Key, Limit: limit, Offset: offset}
	page, err := s.store.ReadMoviePage(ctx, platform.Key, store.MovieFilter{
		Genre:     filters.Genre,
		MinRating: filters.MinRating,
		MaxRating: filters.MaxRating,
		Year:      filters.Year,
		RatedOnly: filters.RatedOnly,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return Result{}, err
	}
	if page.Snapshot == nil {
		return result, nil
	}
	result.SnapshotFound = true
	result.FetchedAt = page.Snapshot.FetchedAt
	result.StoredAt = page.Snapshot.StoredAt
	result.Stale = !page.Snapshot.Fresh(s.now())
	result.Movies = page.Movies
	result.Total = page.Total
	return result, nil
}

// MovieByIMDb returns every cached movie carrying imdbID across configured
// platforms, or only on platformKey when it is set. No match is ErrNotFound.
func (s *Service) MovieByIMDb(ctx context.Context, imdbID, platformKey string) ([]catalog.MatchedMovie, error) {
	id, ok := catalog.NormalizeIMDbID(imdbID)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "query", "validate",
			fmt.Sprintf("imdb id %q must look like tt1234567", strings.TrimSpace(imdbID)), nil)
	}
	if platformKey = strings.TrimSpace(platformKey); platformKey != "" {
		platform, ok := s.cfg.Platform(platformKey)
		if !ok {
			return nil, services.Wrap(services.ErrNotFound, "query", "platform",
				fmt.Sprintf("platform %q is not configured", platformKey), nil)
		}
		platformKey = platform.Key
	}
	movies, err := s.store.MatchedMoviesByIMDb(ctx, platformKey, id)
	if err != nil {
		return nil, err
	}
	if len(movies) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "query", "imdb",
			fmt.Sprintf("no cached movie has imdb id %s", id), nil)
	}
	return movies, nil
}
