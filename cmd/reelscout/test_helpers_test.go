package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelscout/internal/catalog"
	"reelscout/internal/config"
	"reelscout/internal/store"
	"reelscout/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	seededAt   time.Time
}

// setupCLITestEnv writes a config whose API bind has no listener, so
// commands that prefer the daemon fall back to the cache store.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"

	configPath := filepath.Join(base, "reelscout.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

// seedCatalog commits one completed run with four titles, one of them
// without a rating.
func (env *cliTestEnv) seedCatalog(t *testing.T) {
	t.Helper()

	st := testsupport.MustOpenStore(t, env.cfg)
	ctx := context.Background()
	now := time.Now().UTC()
	env.seededAt = now

	records := []catalog.Record{
		testsupport.Movie("nfx", "a", "Inception", 2010, "tt1375666", "Sci-Fi", "Thriller"),
		testsupport.Movie("nfx", "b", "The Matrix", 1999, "", "Sci-Fi", "Action"),
		testsupport.Movie("nfx", "c", "Obscure Short", 2021, "", "Drama"),
		testsupport.Movie("nfx", "d", "Amelie", 2001, "", "Comedy"),
	}
	movies := []catalog.MatchedMovie{
		{Record: records[0], Confidence: catalog.ConfidenceExactID, LastEnrichedAt: now,
			Rating: &catalog.Rating{IMDbID: "tt1375666", Title: "Inception", Year: 2010, Value: 4.2}},
		{Record: records[1], Confidence: catalog.ConfidenceTitleYear, LastEnrichedAt: now,
			Rating: &catalog.Rating{Title: "The Matrix", Year: 1999, Value: 4.3}},
		{Record: records[2], Confidence: catalog.ConfidenceNone, LastEnrichedAt: now},
		{Record: records[3], Confidence: catalog.ConfidenceTitleYear, LastEnrichedAt: now,
			Rating: &catalog.Rating{Title: "Amelie", Year: 2001, Value: 3.9}},
	}
	run := &store.SyncRun{RunID: "seed-run", PlatformKey: "nfx", Trigger: store.TriggerManual, StartedAt: now}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	finished := now
	run.State = store.RunCompleted
	run.FinishedAt = &finished
	run.FetchedCount = len(records)
	run.AddedCount = len(records)
	run.MissingCount = 1
	err := st.CommitSync(ctx, store.Commit{
		Run:         run,
		Snapshot:    catalog.Snapshot{PlatformKey: "nfx", FetchedAt: now, Records: records},
		SnapshotTTL: env.cfg.SnapshotTTL(),
		Movies:      movies,
		MovieTTL:    env.cfg.SnapshotTTL(),
		Missing:     []store.MissingTitle{{Record: records[2], RunID: run.RunID}},
	})
	if err != nil {
		t.Fatalf("CommitSync: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\n\n", cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.APIBind)
	fmt.Fprintf(&b, "[catalog]\nbase_url = %q\nrequest_interval_ms = 0\n\n", cfg.Catalog.BaseURL)
	fmt.Fprintf(&b, "[ratings]\nbase_url = %q\nrequest_interval_ms = 0\n\n", cfg.Ratings.BaseURL)
	b.WriteString("[sync]\nschedule_enabled = false\n\n")
	for _, p := range cfg.Platforms {
		fmt.Fprintf(&b, "[[platforms]]\nkey = %q\nname = %q\ncountry = %q\nlanguage = %q\n\n", p.Key, p.Name, p.Country, p.Language)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
