package enricher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"reelscout/internal/catalog"
	"reelscout/internal/config"
	"reelscout/internal/logging"
	"reelscout/internal/matcher"
	"reelscout/internal/metrics"
	"reelscout/internal/ratelimit"
	"reelscout/internal/services"
	"reelscout/internal/sources"
	"reelscout/internal/store"
	"reelscout/internal/textutil"
)

const sourceName = "ratings"

// Cache stores confident lookup outcomes between runs.
type Cache interface {
	GetEntry(ctx context.Context, key string) (*store.CacheEntry, error)
	PutEntry(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options tunes a rating Enricher.
type Options struct {
	Interval      time.Duration
	MaxConcurrent int
	Policy        ratelimit.Policy
	Breaker       ratelimit.BreakerSettings
	Cache         Cache
	CacheTTL      time.Duration
}

// Enricher resolves catalog records to ratings. It is safe for concurrent use.
type Enricher struct {
	source   sources.RatingSource
	pacer    *ratelimit.Pacer
	breaker  *ratelimit.Breaker
	policy   ratelimit.Policy
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs an Enricher around a rating source.
func New(source sources.RatingSource, opts Options, logger *slog.Logger) *Enricher {
	logger = logging.NewComponentLogger(logger, "enricher")
	return &Enricher{
		source:   source,
		pacer:    ratelimit.NewPacer(opts.Interval, opts.MaxConcurrent),
		breaker:  ratelimit.NewBreaker(sourceName, opts.Breaker, logger),
		policy:   opts.Policy,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// NewFromConfig wires an Enricher using the [ratings] and [cache] settings.
func NewFromConfig(cfg *config.Config, source sources.RatingSource, cache Cache, logger *slog.Logger) *Enricher {
	return New(source, Options{
		Interval:      cfg.RatingsInterval(),
		MaxConcurrent: cfg.Ratings.MaxConcurrent,
		Policy:        ratelimit.DefaultPolicy(cfg.Ratings.MaxAttempts),
		Breaker:       ratelimit.DefaultBreakerSettings(),
		Cache:         cache,
		CacheTTL:      cfg.LookupTTL(),
	}, logger)
}

// InFlight reports rating requests currently in progress.
func (e *Enricher) InFlight() int {
	return e.pacer.InFlight()
}

// BreakerState reports the rating source circuit state.
func (e *Enricher) BreakerState() string {
	return e.breaker.State()
}

type cachedLookup struct {
	Confidence catalog.Confidence `json:"confidence"`
	Rating     *catalog.Rating    `json:"rating,omitempty"`
	ResolvedAt time.Time          `json:"resolved_at"`
}

// Enrich resolves one record. A hard lookup failure returns the record as a
// NONE match flagged LookupFailed together with a *sources.RatingLookupFailure;
// such outcomes are never cached. Cancellation returns ctx.Err().
func (e *Enricher) Enrich(ctx context.Context, rec catalog.Record) (catalog.MatchedMovie, error) {
	movie := catalog.MatchedMovie{
		Record:         rec,
		Confidence:     catalog.ConfidenceNone,
		LastEnrichedAt: e.now().UTC(),
	}
	key := cacheKey(rec)
	if cached, ok := e.lookupCache(ctx, key); ok {
		movie.Rating = cached.Rating
		movie.Confidence = cached.Confidence
		if !cached.ResolvedAt.IsZero() {
			movie.LastEnrichedAt = cached.ResolvedAt
		}
		movie = movie.Normalize()
		metrics.EnrichmentResults.WithLabelValues(string(movie.Confidence)).Inc()
		return movie, nil
	}

	rating, confidence, err := e.resolve(ctx, rec)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return movie, ctxErr
		}
		movie.LookupFailed = true
		metrics.EnrichmentResults.WithLabelValues("failed").Inc()
		return movie, err
	}
	movie.Rating = rating
	movie.Confidence = confidence
	movie = movie.Normalize()
	metrics.EnrichmentResults.WithLabelValues(string(movie.Confidence)).Inc()
	e.storeCache(ctx, key, movie)
	return movie, nil
}

func (e *Enricher) resolve(ctx context.Context, rec catalog.Record) (*catalog.Rating, catalog.Confidence, error) {
	if id, ok := catalog.NormalizeIMDbID(rec.IMDbID); ok {
		var found *catalog.Rating
		err := e.guarded(ctx, func(ctx context.Context) error {
			var lookupErr error
			found, lookupErr = e.source.FetchRatingByID(ctx, id)
			return lookupErr
		})
		if err != nil && !sources.IsMiss(err) {
			return nil, catalog.ConfidenceNone, &sources.RatingLookupFailure{Query: "imdb:" + id, Err: err}
		}
		if found != nil {
			normalized, normErr := normalizeRating(*found)
			if normErr != nil {
				return nil, catalog.ConfidenceNone, &sources.RatingLookupFailure{Query: "imdb:" + id, Err: normErr}
			}
			// The source resolved the page by id even when it omits the link.
			if normalized.IMDbID == "" {
				normalized.IMDbID = id
			}
			if rating, confidence := matcher.Match(rec, []catalog.Rating{normalized}); confidence == catalog.ConfidenceExactID {
				return rating, confidence, nil
			}
		}
	}

	if id := strings.TrimSpace(rec.IMDbID); id != "" {
		if _, ok := catalog.NormalizeIMDbID(id); !ok {
			e.logger.Debug("ignoring malformed imdb id",
				logging.String("external_id", rec.ExternalID),
				logging.String("imdb_id", id),
			)
		}
	}

	title := textutil.NormalizeTitle(rec.Title)
	if title == "" || rec.Year <= 0 {
		return nil, catalog.ConfidenceNone, nil
	}
	query := textutil.TitleYearKey(rec.Title, rec.Year)
	var candidates []catalog.Rating
	err := e.guarded(ctx, func(ctx context.Context) error {
		var lookupErr error
		candidates, lookupErr = e.source.FetchRatingsByTitleYear(ctx, title, rec.Year)
		return lookupErr
	})
	if err != nil && !sources.IsMiss(err) {
		return nil, catalog.ConfidenceNone, &sources.RatingLookupFailure{Query: query, Err: err}
	}
	normalized := make([]catalog.Rating, 0, len(candidates))
	for _, candidate := range candidates {
		n, normErr := normalizeRating(candidate)
		if normErr != nil {
			return nil, catalog.ConfidenceNone, &sources.RatingLookupFailure{Query: query, Err: normErr}
		}
		normalized = append(normalized, n)
	}
	rating, confidence := matcher.Match(rec, normalized)
	if confidence == catalog.ConfidenceNone && len(normalized) > 1 {
		e.logger.Debug("ambiguous title/year candidates",
			logging.String("query", query),
			logging.Int("candidates", len(normalized)),
		)
	}
	return rating, confidence, nil
}

// guarded runs fn behind the pacer and breaker with retries.
func (e *Enricher) guarded(ctx context.Context, fn func(context.Context) error) error {
	return ratelimit.Retry(ctx, e.logger, sourceName, e.policy, func(ctx context.Context) error {
		release, err := e.pacer.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
		return e.breaker.Execute(func() error {
			return fn(ctx)
		})
	})
}

func (e *Enricher) lookupCache(ctx context.Context, key string) (cachedLookup, bool) {
	if e.cache == nil || key == "" {
		return cachedLookup{}, false
	}
	entry, err := e.cache.GetEntry(ctx, key)
	if err != nil {
		logging.WarnWithContext(e.logger, "rating cache read failed", "rating_cache_read_failed",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "lookup goes to the rating source"),
		)
		return cachedLookup{}, false
	}
	if entry == nil {
		return cachedLookup{}, false
	}
	var cached cachedLookup
	if err := json.Unmarshal(entry.Value, &cached); err != nil || !cached.Confidence.Valid() {
		return cachedLookup{}, false
	}
	return cached, true
}

func (e *Enricher) storeCache(ctx context.Context, key string, movie catalog.MatchedMovie) {
	if e.cache == nil || key == "" {
		return
	}
	payload, err := json.Marshal(cachedLookup{
		Confidence: movie.Confidence,
		Rating:     movie.Rating,
		ResolvedAt: movie.LastEnrichedAt,
	})
	if err != nil {
		return
	}
	if err := e.cache.PutEntry(ctx, key, payload, e.cacheTTL); err != nil {
		logging.WarnWithContext(e.logger, "rating cache write failed", "rating_cache_write_failed",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "next sync repeats this lookup"),
		)
	}
}

func cacheKey(rec catalog.Record) string {
	if id, ok := catalog.NormalizeIMDbID(rec.IMDbID); ok {
		return "rating:id:" + id
	}
	if rec.Year <= 0 || textutil.NormalizeTitle(rec.Title) == "" {
		return ""
	}
	return "rating:title:" + textutil.TitleYearKey(rec.Title, rec.Year)
}

var errSchemaDrift = errors.New("rating payload failed validation")

// normalizeRating validates a scraped rating and canonicalizes its fields.
func normalizeRating(r catalog.Rating) (catalog.Rating, error) {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return catalog.Rating{}, services.Wrap(services.ErrPermanent, sourceName, "normalize", "missing title", errSchemaDrift)
	}
	if math.IsNaN(r.Value) || r.Value < 0 || r.Value > 5 {
		return catalog.Rating{}, services.Wrap(services.ErrPermanent, sourceName, "normalize",
			fmt.Sprintf("rating %v outside 0..5 for %q", r.Value, r.Title), errSchemaDrift)
	}
	if r.Year < 0 {
		return catalog.Rating{}, services.Wrap(services.ErrPermanent, sourceName, "normalize",
			fmt.Sprintf("negative year for %q", r.Title), errSchemaDrift)
	}
	if r.Count != nil && *r.Count < 0 {
		r.Count = nil
	}
	r.IMDbID = strings.ToLower(strings.TrimSpace(r.IMDbID))
	if len(r.Genres) > 0 {
		seen := make(map[string]struct{}, len(r.Genres))
		genres := make([]string, 0, len(r.Genres))
		for _, g := range r.Genres {
			g = strings.TrimSpace(g)
			folded := strings.ToLower(g)
			if g == "" {
				continue
			}
			if _, dup := seen[folded]; dup {
				continue
			}
			seen[folded] = struct{}{}
			genres = append(genres, g)
		}
		r.Genres = genres
	}
	return r, nil
}
