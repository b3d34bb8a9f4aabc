package testsupport

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"reelscout/internal/catalog"
	"reelscout/internal/sources"
	"reelscout/internal/textutil"
)

// Movie builds a catalog record for tests.
func Movie(platform, id, title string, year int, imdbID string, genres ...string) catalog.Record {
	return catalog.Record{
		PlatformKey: platform,
		ExternalID:  id,
		Title:       title,
		Year:        year,
		IMDbID:      imdbID,
		Genres:      genres,
	}
}

// FakeCatalog serves Pages in order using the page index as cursor.
type FakeCatalog struct {
	mu    sync.Mutex
	Pages [][]catalog.Record
	// Failures are returned, in order, for requests of the given page index
	// before the page itself is served.
	Failures map[int][]error
	// Hook runs before every request; a non-nil error is returned as-is.
	Hook     func(ctx context.Context, req sources.PageRequest) error
	requests []sources.PageRequest
}

// FetchCatalogPage implements sources.CatalogSource.
func (f *FakeCatalog) FetchCatalogPage(ctx context.Context, req sources.PageRequest) (sources.Page, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	hook := f.Hook
	idx := 0
	if req.Cursor != "" {
		idx, _ = strconv.Atoi(req.Cursor)
	}
	var failure error
	if errs := f.Failures[idx]; len(errs) > 0 {
		failure = errs[0]
		f.Failures[idx] = errs[1:]
	}
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, req); err != nil {
			return sources.Page{}, err
		}
	}
	if failure != nil {
		return sources.Page{}, failure
	}
	if idx >= len(f.Pages) {
		return sources.Page{}, nil
	}
	page := sources.Page{Records: append([]catalog.Record(nil), f.Pages[idx]...)}
	if idx+1 < len(f.Pages) {
		page.NextCursor = strconv.Itoa(idx + 1)
		page.HasMore = true
	}
	return page, nil
}

// Requests returns a copy of the page requests seen so far.
func (f *FakeCatalog) Requests() []sources.PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sources.PageRequest(nil), f.requests...)
}

// FakeRatings answers rating lookups from in-memory tables.
type FakeRatings struct {
	mu sync.Mutex
	// ByID is keyed by lower-case IMDb id.
	ByID map[string]catalog.Rating
	// ByTitle is keyed by normalized title; every candidate is returned
	// regardless of year.
	ByTitle map[string][]catalog.Rating
	// Errors is keyed by lower-case IMDb id or normalized title.
	Errors map[string]error
	// Hook runs before every lookup; a non-nil error is returned as-is.
	Hook func(ctx context.Context, query string) error

	idCalls    []string
	titleCalls []string
}

// FetchRatingByID implements sources.RatingSource.
func (f *FakeRatings) FetchRatingByID(ctx context.Context, imdbID string) (*catalog.Rating, error) {
	key := strings.ToLower(strings.TrimSpace(imdbID))
	f.mu.Lock()
	f.idCalls = append(f.idCalls, key)
	err := f.Errors[key]
	rating, ok := f.ByID[key]
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		if hookErr := hook(ctx, key); hookErr != nil {
			return nil, hookErr
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &rating, nil
}

// FetchRatingsByTitleYear implements sources.RatingSource.
func (f *FakeRatings) FetchRatingsByTitleYear(ctx context.Context, title string, year int) ([]catalog.Rating, error) {
	key := textutil.NormalizeTitle(title)
	f.mu.Lock()
	f.titleCalls = append(f.titleCalls, key)
	err := f.Errors[key]
	candidates := append([]catalog.Rating(nil), f.ByTitle[key]...)
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		if hookErr := hook(ctx, key); hookErr != nil {
			return nil, hookErr
		}
	}
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// Calls returns the id and title lookups seen so far.
func (f *FakeRatings) Calls() (ids []string, titles []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.idCalls...), append([]string(nil), f.titleCalls...)
}

// TotalCalls returns the number of lookups of either kind.
func (f *FakeRatings) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.idCalls) + len(f.titleCalls)
}

var (
	_ sources.CatalogSource = (*FakeCatalog)(nil)
	_ sources.RatingSource  = (*FakeRatings)(nil)
)
