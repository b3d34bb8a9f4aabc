package fetcher_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"reelscout/internal/catalog"
	"reelscout/internal/fetcher"
	"reelscout/internal/logging"
	"reelscout/internal/ratelimit"
	"reelscout/internal/services"
	"reelscout/internal/sources"
	"reelscout/internal/testsupport"
)

func newFetcher(source sources.CatalogSource, attempts int) *fetcher.Fetcher {
	return fetcher.New(source, fetcher.Options{
		PageSize: 2,
		Policy:   ratelimit.Policy{MaxAttempts: attempts},
		Breaker:  ratelimit.BreakerSettings{ConsecutiveFailures: 100},
	}, logging.NewNop())
}

func pages() [][]catalog.Record {
	return [][]catalog.Record{
		{testsupport.Movie("", "a", "Alpha", 2001, ""), testsupport.Movie("", "b", "Beta", 2002, "")},
		{testsupport.Movie("", "c", "Gamma", 2003, ""), testsupport.Movie("", "a", "Alpha again", 2001, "")},
		{testsupport.Movie("", "d", "Delta", 2004, "")},
	}
}

func TestCollectWalksAllPagesAndDropsDuplicates(t *testing.T) {
	source := &testsupport.FakeCatalog{Pages: pages()}
	pager := newFetcher(source, 1).Fetch("NFX", "US", "en")

	var progress []fetcher.Progress
	snap, err := fetcher.Collect(context.Background(), pager, func(p fetcher.Progress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	got := snap.IDs()
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("unexpected ids %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: want %s, got %s", i, want[i], got[i])
		}
	}
	if snap.PlatformKey != "nfx" || snap.Records[0].PlatformKey != "nfx" {
		t.Fatalf("platform key not stamped: %#v", snap.Records[0])
	}
	if snap.Records[0].Title != "Alpha" {
		t.Fatalf("first occurrence must win, got %q", snap.Records[0].Title)
	}
	if pager.Duplicates() != 1 {
		t.Fatalf("expected 1 duplicate, got %d", pager.Duplicates())
	}
	if len(progress) != 3 || progress[2].Pages != 3 || progress[2].Records != 4 {
		t.Fatalf("unexpected progress %#v", progress)
	}

	reqs := source.Requests()
	if len(reqs) != 3 || reqs[0].Cursor != "" || reqs[1].Cursor != "1" || reqs[0].PageSize != 2 || reqs[0].Country != "US" {
		t.Fatalf("unexpected requests %#v", reqs)
	}
	if _, err := pager.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after last page, got %v", err)
	}
}

func TestPagerIsLazy(t *testing.T) {
	source := &testsupport.FakeCatalog{Pages: pages()}
	pager := newFetcher(source, 1).Fetch("nfx", "US", "en")
	if len(source.Requests()) != 0 {
		t.Fatal("Fetch must not issue requests")
	}
	if _, err := pager.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(source.Requests()) != 1 {
		t.Fatalf("expected one request per Next, got %d", len(source.Requests()))
	}
}

func TestTransientFailureIsRetried(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "catalog", "page", "503", nil)
	source := &testsupport.FakeCatalog{
		Pages:    pages(),
		Failures: map[int][]error{1: {transient, transient}},
	}
	snap, err := fetcher.Collect(context.Background(), newFetcher(source, 3).Fetch("nfx", "US", "en"), nil)
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if len(snap.Records) != 4 {
		t.Fatalf("expected full catalog, got %d records", len(snap.Records))
	}
	if len(source.Requests()) != 5 {
		t.Fatalf("expected 5 requests (3 pages + 2 retries), got %d", len(source.Requests()))
	}
}

func TestExhaustedRetriesYieldTransientFetchFailure(t *testing.T) {
	transient := services.Wrap(services.ErrTransient, "catalog", "page", "503", nil)
	source := &testsupport.FakeCatalog{
		Pages:    pages(),
		Failures: map[int][]error{1: {transient, transient, transient}},
	}
	pager := newFetcher(source, 2).Fetch("nfx", "US", "en")
	_, err := fetcher.Collect(context.Background(), pager, nil)

	var failure *sources.FetchFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected FetchFailure, got %v", err)
	}
	if !failure.Transient() || failure.Page != 1 || failure.Cursor != "1" || failure.Platform != "nfx" {
		t.Fatalf("unexpected failure %#v", failure)
	}
	if _, again := pager.Next(context.Background()); !errors.As(again, &failure) {
		t.Fatalf("failure must be sticky, got %v", again)
	}
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	permanent := services.Wrap(services.ErrPermanent, "catalog", "decode", "bad payload", nil)
	source := &testsupport.FakeCatalog{
		Pages:    pages(),
		Failures: map[int][]error{0: {permanent}},
	}
	_, err := fetcher.Collect(context.Background(), newFetcher(source, 5).Fetch("nfx", "US", "en"), nil)
	var failure *sources.FetchFailure
	if !errors.As(err, &failure) || failure.Transient() {
		t.Fatalf("expected permanent FetchFailure, got %v", err)
	}
	if len(source.Requests()) != 1 {
		t.Fatalf("permanent failure must not be retried, got %d requests", len(source.Requests()))
	}
}

type loopingSource struct{}

func (loopingSource) FetchCatalogPage(_ context.Context, req sources.PageRequest) (sources.Page, error) {
	return sources.Page{
		Records:    []catalog.Record{{ExternalID: "x" + req.Cursor, Title: "Loop"}},
		NextCursor: "same",
		HasMore:    true,
	}, nil
}

func TestRepeatedCursorFails(t *testing.T) {
	_, err := fetcher.Collect(context.Background(), newFetcher(loopingSource{}, 1).Fetch("nfx", "US", "en"), nil)
	var failure *sources.FetchFailure
	if !errors.As(err, &failure) || failure.Transient() {
		t.Fatalf("expected permanent FetchFailure for cursor loop, got %v", err)
	}
}

func TestCancellationStopsBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &testsupport.FakeCatalog{Pages: pages()}
	pager := newFetcher(source, 1).Fetch("nfx", "US", "en")

	if _, err := pager.Next(ctx); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	cancel()
	if _, err := pager.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(source.Requests()) != 1 {
		t.Fatalf("no request may be issued after cancellation, got %d", len(source.Requests()))
	}
}

func TestResumeFromCheckpoint(t *testing.T) {
	source := &testsupport.FakeCatalog{Pages: pages()}
	f := newFetcher(source, 1)
	pager := f.Fetch("nfx", "US", "en")
	if _, err := pager.Next(context.Background()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	cp := pager.Checkpoint()
	if cp.Page != 1 || cp.Cursor != "1" {
		t.Fatalf("unexpected checkpoint %#v", cp)
	}

	resumed := f.Resume(cp)
	records, err := resumed.Next(context.Background())
	if err != nil {
		t.Fatalf("resumed Next failed: %v", err)
	}
	if len(records) != 2 || records[0].ExternalID != "c" {
		t.Fatalf("expected page 2 after resume, got %#v", records)
	}
}
