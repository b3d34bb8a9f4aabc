package letterboxd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reelscout/internal/services"
)

const inceptionPage = `<!DOCTYPE html>
<html><head>
<meta property="og:title" content="Inception (2010)">
<meta property="og:url" content="https://letterboxd.com/film/inception/">
<meta name="twitter:data2" content="4.22 out of 5">
<script type="application/ld+json">
/* <![CDATA[ */
{"@context":"http://schema.org","@type":"Movie","name":"Inception","url":"https://letterboxd.com/film/inception/","genre":["Science Fiction","Action"],"aggregateRating":{"@type":"AggregateRating","ratingValue":4.22,"ratingCount":2100000,"bestRating":5},"releasedEvent":[{"@type":"PublicationEvent","startDate":"2010"}]}
/* ]]> */
</script>
</head><body>
<a href="http://www.imdb.com/title/tt1375666/maindetails">IMDb</a>
<a href="/films/genre/thriller/">Thriller</a>
<a href="/films/genre/action/">Action</a>
</body></html>`

const matrixPage = `<html><head>
<meta property="og:title" content="The Matrix (1999)">
<meta property="og:url" content="https://letterboxd.com/film/the-matrix/">
<meta name="twitter:data2" content="4.19 out of 5">
</head><body></body></html>`

const unratedPage = `<html><head>
<meta property="og:title" content="Obscure Short (2024)">
<meta property="og:url" content="https://letterboxd.com/film/obscure-short/">
</head></html>`

func newTestClient(t *testing.T, pages map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "reelscout-test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if body == "503" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	client, err := New(srv.URL, "reelscout-test", time.Second, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

func TestFetchRatingByID(t *testing.T) {
	client := newTestClient(t, map[string]string{"/imdb/tt1375666/": inceptionPage})
	rating, err := client.FetchRatingByID(context.Background(), "TT1375666")
	if err != nil {
		t.Fatalf("FetchRatingByID returned error: %v", err)
	}
	if rating == nil {
		t.Fatal("expected rating")
	}
	if rating.Value != 4.22 || rating.Title != "Inception" || rating.Year != 2010 {
		t.Fatalf("unexpected rating: %+v", rating)
	}
	if rating.IMDbID != "tt1375666" {
		t.Fatalf("expected imdb id from page, got %q", rating.IMDbID)
	}
	if rating.Count == nil || *rating.Count != 2100000 {
		t.Fatalf("unexpected rating count: %v", rating.Count)
	}
	if rating.SourceURL != "https://letterboxd.com/film/inception/" {
		t.Fatalf("unexpected source url %q", rating.SourceURL)
	}
	want := map[string]bool{"Science Fiction": true, "Action": true, "Thriller": true}
	if len(rating.Genres) != len(want) {
		t.Fatalf("unexpected genres %v", rating.Genres)
	}
	for _, g := range rating.Genres {
		if !want[g] {
			t.Fatalf("unexpected genre %q", g)
		}
	}
}

func TestFetchRatingByIDMiss(t *testing.T) {
	client := newTestClient(t, nil)
	rating, err := client.FetchRatingByID(context.Background(), "tt0000001")
	if err != nil {
		t.Fatalf("expected miss without error, got %v", err)
	}
	if rating != nil {
		t.Fatalf("expected nil rating, got %+v", rating)
	}
}

func TestFetchRatingByIDRejectsGarbage(t *testing.T) {
	client := newTestClient(t, nil)
	if _, err := client.FetchRatingByID(context.Background(), "1375666"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFetchRatingsByTitleYearUsesMetaFallback(t *testing.T) {
	client := newTestClient(t, map[string]string{"/film/the-matrix/": matrixPage})
	ratings, err := client.FetchRatingsByTitleYear(context.Background(), "The Matrix", 1999)
	if err != nil {
		t.Fatalf("FetchRatingsByTitleYear returned error: %v", err)
	}
	if len(ratings) != 1 {
		t.Fatalf("expected one candidate, got %d", len(ratings))
	}
	if ratings[0].Value != 4.19 || ratings[0].Year != 1999 || ratings[0].Title != "The Matrix" {
		t.Fatalf("unexpected candidate: %+v", ratings[0])
	}
}

func TestFetchRatingsByTitleYearDeduplicates(t *testing.T) {
	client := newTestClient(t, map[string]string{
		"/film/the-matrix-1999/": matrixPage,
		"/film/the-matrix/":      matrixPage,
	})
	ratings, err := client.FetchRatingsByTitleYear(context.Background(), "The Matrix", 1999)
	if err != nil {
		t.Fatalf("FetchRatingsByTitleYear returned error: %v", err)
	}
	if len(ratings) != 1 {
		t.Fatalf("expected duplicate pages to collapse, got %d", len(ratings))
	}
}

func TestUnratedFilmIsMiss(t *testing.T) {
	client := newTestClient(t, map[string]string{"/film/obscure-short/": unratedPage})
	ratings, err := client.FetchRatingsByTitleYear(context.Background(), "Obscure Short", 0)
	if err != nil {
		t.Fatalf("FetchRatingsByTitleYear returned error: %v", err)
	}
	if len(ratings) != 0 {
		t.Fatalf("expected no candidates for unrated film, got %+v", ratings)
	}
}

func TestSchemaDriftIsPermanent(t *testing.T) {
	client := newTestClient(t, map[string]string{"/imdb/tt1/": "<html><body>maintenance</body></html>"})
	_, err := client.FetchRatingByID(context.Background(), "tt1")
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, map[string]string{"/film/heat-1995/": "503"})
	_, err := client.FetchRatingsByTitleYear(context.Background(), "Heat", 1995)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
