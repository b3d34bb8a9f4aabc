package sources

import (
	"context"
	"errors"
	"fmt"

	"reelscout/internal/catalog"
	"reelscout/internal/services"
)

// PageRequest identifies one catalog page.
type PageRequest struct {
	PlatformKey string
	Country     string
	Language    string
	Cursor      string
	PageSize    int
}

// Page is one page of catalog records. An empty NextCursor with HasMore false
// marks the final page.
type Page struct {
	Records    []catalog.Record
	NextCursor string
	HasMore    bool
	Total      int
}

// CatalogSource pages through a platform catalog.
type CatalogSource interface {
	FetchCatalogPage(ctx context.Context, req PageRequest) (Page, error)
}

// RatingSource looks up rating metadata.
type RatingSource interface {
	// FetchRatingByID returns nil without error when the id is unknown.
	FetchRatingByID(ctx context.Context, imdbID string) (*catalog.Rating, error)
	// FetchRatingsByTitleYear returns every candidate found for the pair.
	FetchRatingsByTitleYear(ctx context.Context, title string, year int) ([]catalog.Rating, error)
}

// FetchFailure reports a catalog page that could not be fetched after retries.
type FetchFailure struct {
	Platform string
	Page     int
	Cursor   string
	Err      error
}

func (f *FetchFailure) Error() string {
	kind := "permanent"
	if f.Transient() {
		kind = "transient"
	}
	return fmt.Sprintf("fetch %s catalog page %d (%s): %v", f.Platform, f.Page, kind, f.Err)
}

func (f *FetchFailure) Unwrap() error { return f.Err }

// Transient reports whether a later retry may succeed.
func (f *FetchFailure) Transient() bool { return services.IsTransient(f.Err) }

// RatingLookupFailure reports a rating lookup that hard-failed, as opposed to a
// confident miss.
type RatingLookupFailure struct {
	Query string
	Err   error
}

func (f *RatingLookupFailure) Error() string {
	kind := "permanent"
	if f.Transient() {
		kind = "transient"
	}
	return fmt.Sprintf("rating lookup %q (%s): %v", f.Query, kind, f.Err)
}

func (f *RatingLookupFailure) Unwrap() error { return f.Err }

// Transient reports whether a later retry may succeed.
func (f *RatingLookupFailure) Transient() bool { return services.IsTransient(f.Err) }

// IsFetchFailure reports whether err carries a FetchFailure.
func IsFetchFailure(err error) bool {
	var ff *FetchFailure
	return errors.As(err, &ff)
}

// IsRatingLookupFailure reports whether err carries a RatingLookupFailure.
func IsRatingLookupFailure(err error) bool {
	var rf *RatingLookupFailure
	return errors.As(err, &rf)
}
