package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelscout/internal/daemon"
)

const catalogPage = `{"data":{"popularTitles":{"totalCount":2,"pageInfo":{"endCursor":"","hasNextPage":false},"edges":[
 {"node":{"id":"tm1","objectType":"MOVIE","content":{"title":"Inception","originalReleaseYear":2010,"genres":[{"shortName":"scf"}],"externalIds":{"imdbId":"tt1375666","tmdbId":"27205"}}}},
 {"node":{"id":"tm2","objectType":"MOVIE","content":{"title":"The Matrix","originalReleaseYear":1999,"genres":[],"externalIds":{"imdbId":"","tmdbId":603}}}}
]}}}`

const inceptionFilm = `<html><head>
<meta property="og:title" content="Inception (2010)">
<meta property="og:url" content="https://letterboxd.com/film/inception/">
<meta name="twitter:data2" content="4.22 out of 5">
</head><body><a href="http://www.imdb.com/title/tt1375666/maindetails">IMDb</a></body></html>`

const matrixFilm = `<html><head>
<meta property="og:title" content="The Matrix (1999)">
<meta property="og:url" content="https://letterboxd.com/film/the-matrix/">
<meta name="twitter:data2" content="4.19 out of 5">
</head><body></body></html>`

func TestSyncLocalRunsAgainstSources(t *testing.T) {
	catalogSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogPage))
	}))
	defer catalogSrv.Close()
	films := map[string]string{
		"/imdb/tt1375666/":  inceptionFilm,
		"/film/the-matrix/": matrixFilm,
	}
	ratingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := films[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer ratingSrv.Close()

	env := setupCLITestEnv(t)
	env.cfg.Catalog.BaseURL = catalogSrv.URL
	env.cfg.Ratings.BaseURL = ratingSrv.URL
	writeTestConfig(t, env.configPath, env.cfg)

	out, stderr, err := runCLI(t, []string{"sync", "nfx"}, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, stderr)
	}
	requireContains(t, stderr, "daemon not reachable")
	requireContains(t, out, "COMPLETED")

	out, _, err = runCLI(t, []string{"movies", "nfx"}, env.configPath)
	if err != nil {
		t.Fatalf("movies: %v", err)
	}
	if strings.Index(out, "Inception") < 0 || strings.Index(out, "The Matrix") < 0 {
		t.Fatalf("expected synced titles:\n%s", out)
	}
	if strings.Index(out, "Inception") > strings.Index(out, "The Matrix") {
		t.Fatalf("expected higher rating first:\n%s", out)
	}
	requireContains(t, out, "EXACT_ID")
	requireContains(t, out, "TITLE_YEAR")

	if _, _, err := runCLI(t, []string{"sync", "hulu", "--local"}, env.configPath); err == nil {
		t.Fatal("expected unknown platform to fail")
	}
}

func TestSyncLocalRefusesWhileLockIsHeld(t *testing.T) {
	env := setupCLITestEnv(t)
	lock, err := daemon.AcquireLock(env.cfg)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer func() { _ = lock.Unlock() }()

	_, _, err = runCLI(t, []string{"sync", "nfx", "--local"}, env.configPath)
	if err == nil {
		t.Fatal("expected local sync to refuse while the lock is held")
	}
	requireContains(t, err.Error(), env.cfg.LockPath())

	runs, _, err := runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, runs, "No sync runs recorded")
}
