// Package letterboxd looks up film ratings by scraping Letterboxd film pages.
//
// Page structure is treated as untrusted: anything the parser cannot make sense
// of is reported as a permanent failure rather than a panic or a zero rating.
package letterboxd

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reelscout/internal/catalog"
	"reelscout/internal/services"
	"reelscout/internal/sources"
	"reelscout/internal/textutil"
)

const sourceName = "letterboxd"

// Client fetches Letterboxd film pages.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

var _ sources.RatingSource = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a Letterboxd client.
func New(baseURL, userAgent string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("letterboxd base url required")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := &Client{
		baseURL:    baseURL,
		userAgent:  strings.TrimSpace(userAgent),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchRatingByID resolves an IMDb id through Letterboxd's /imdb/ redirect.
// Unknown ids and films without enough ratings return nil.
func (c *Client) FetchRatingByID(ctx context.Context, imdbID string) (*catalog.Rating, error) {
	imdbID, ok := catalog.NormalizeIMDbID(imdbID)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, sourceName, "lookup id", "invalid imdb id "+strconv.Quote(imdbID), nil)
	}
	film, err := c.fetchFilm(ctx, "/imdb/"+url.PathEscape(imdbID)+"/", "lookup id")
	if err != nil || film == nil {
		return nil, err
	}
	rating, ok := film.rating()
	if !ok {
		return nil, nil
	}
	if rating.IMDbID == "" {
		rating.IMDbID = imdbID
	}
	return &rating, nil
}

// FetchRatingsByTitleYear tries the year-qualified slug and the bare slug and
// returns every distinct rated film found.
func (c *Client) FetchRatingsByTitleYear(ctx context.Context, title string, year int) ([]catalog.Rating, error) {
	slug := textutil.Slug(title)
	if slug == "" {
		return nil, nil
	}
	paths := make([]string, 0, 2)
	if year > 0 {
		paths = append(paths, "/film/"+slug+"-"+strconv.Itoa(year)+"/")
	}
	paths = append(paths, "/film/"+slug+"/")

	var (
		out  []catalog.Rating
		seen = map[string]struct{}{}
	)
	for _, path := range paths {
		film, err := c.fetchFilm(ctx, path, "lookup title")
		if err != nil {
			return nil, err
		}
		if film == nil {
			continue
		}
		rating, ok := film.rating()
		if !ok {
			continue
		}
		key := rating.SourceURL
		if key == "" {
			key = rating.Key()
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rating)
	}
	return out, nil
}

// fetchFilm returns nil, nil when the page does not exist.
func (c *Client) fetchFilm(ctx context.Context, path, operation string) (*filmPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, sourceName, operation, "build request", err)
	}
	req.Header.Set("Accept", "text/html")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	body, err := sources.Do(ctx, c.httpClient, req, sourceName, operation)
	if err != nil {
		if sources.IsMiss(err) {
			return nil, nil
		}
		return nil, err
	}
	film, err := parseFilmPage(body)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, sourceName, operation, "parse "+path, err)
	}
	return film, nil
}
