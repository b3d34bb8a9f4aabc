package main

import (
	"encoding/json"
	"strings"
	"testing"

	"reelscout/internal/api"
)

func TestMoviesListsBestRatedFirst(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seedCatalog(t)

	out, _, err := runCLI(t, []string{"movies", "nfx"}, env.configPath)
	if err != nil {
		t.Fatalf("movies: %v", err)
	}
	matrix := strings.Index(out, "The Matrix")
	inception := strings.Index(out, "Inception")
	obscure := strings.Index(out, "Obscure Short")
	if matrix < 0 || inception < 0 || obscure < 0 {
		t.Fatalf("missing titles in output:\n%s", out)
	}
	if !(matrix < inception && inception < obscure) {
		t.Fatalf("unexpected order:\n%s", out)
	}
	requireContains(t, out, "Showing 4 of 4 titles")
}

func TestMoviesJSONAppliesFilters(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seedCatalog(t)

	out, _, err := runCLI(t, []string{"movies", "nfx", "--genre", "sci-fi", "--min-rating", "4.25", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("movies --json: %v", err)
	}
	var list api.MovieList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if list.Total != 1 || len(list.Movies) != 1 || list.Movies[0].Title != "The Matrix" {
		t.Fatalf("unexpected result: %+v", list)
	}
	if list.Stale || !list.SnapshotFound {
		t.Fatalf("expected fresh snapshot, got %+v", list)
	}
}

func TestMoviesRejectsInvalidFilters(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"movies", "nfx", "--min-rating", "4", "--max-rating", "3"}, env.configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), "min_rating must not exceed max_rating")

	if _, _, err := runCLI(t, []string{"movies", "hulu"}, env.configPath); err == nil {
		t.Fatal("expected unknown platform error")
	}
}

func TestMoviesWithoutSnapshot(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"movies", "nfx"}, env.configPath)
	if err != nil {
		t.Fatalf("movies: %v", err)
	}
	requireContains(t, out, "No catalog cached for nfx")
}

func TestMovieLooksUpByIMDbID(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seedCatalog(t)

	out, _, err := runCLI(t, []string{"movie", "TT1375666"}, env.configPath)
	if err != nil {
		t.Fatalf("movie: %v", err)
	}
	requireContains(t, out, "Inception")
	requireContains(t, out, "EXACT_ID")

	out, _, err = runCLI(t, []string{"movie", "tt1375666", "--platform", "nfx", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("movie --json: %v", err)
	}
	var lookup api.MovieLookup
	if err := json.Unmarshal([]byte(out), &lookup); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if lookup.IMDbID != "tt1375666" || len(lookup.Matches) != 1 || lookup.Matches[0].Platform != "nfx" {
		t.Fatalf("unexpected lookup: %+v", lookup)
	}

	if _, _, err := runCLI(t, []string{"movie", "tt0000001"}, env.configPath); err == nil {
		t.Fatal("expected not found for an uncached id")
	}
	_, _, err = runCLI(t, []string{"movie", "1375666"}, env.configPath)
	if err == nil {
		t.Fatal("expected validation error for malformed id")
	}
	requireContains(t, err.Error(), "must look like tt1234567")
}

func TestMissingListsUnmatchedTitles(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seedCatalog(t)

	out, _, err := runCLI(t, []string{"missing", "nfx"}, env.configPath)
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	requireContains(t, out, "Obscure Short")
	if strings.Contains(out, "Inception") {
		t.Fatalf("rated title listed as missing:\n%s", out)
	}
}

func TestRunsAndStatusFallBackToStore(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seedCatalog(t)

	out, _, err := runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	requireContains(t, out, "seed-run")
	requireContains(t, out, "COMPLETED")

	out, _, err = runCLI(t, []string{"status", "seed-run"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "seed-run")
	requireContains(t, out, "COMPLETED")

	if _, _, err := runCLI(t, []string{"status", "nope"}, env.configPath); err == nil {
		t.Fatal("expected unknown run error")
	}
}

func TestCacheStatsAndCompact(t *testing.T) {
	env := setupCLITestEnv(t)
	env.seedCatalog(t)

	out, _, err := runCLI(t, []string{"cache", "stats", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	var stats api.CacheStats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if stats.Snapshots != 1 || stats.MatchedMovies != 4 || stats.RatedMovies != 3 || stats.Runs != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	out, _, err = runCLI(t, []string{"cache", "compact"}, env.configPath)
	if err != nil {
		t.Fatalf("cache compact: %v", err)
	}
	requireContains(t, out, "Removed 0 expired lookups and 0 old runs")
}
