package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"reelscout/internal/catalog"
	"reelscout/internal/config"
	"reelscout/internal/logging"
	"reelscout/internal/ratelimit"
	"reelscout/internal/services"
	"reelscout/internal/sources"
)

const sourceName = "catalog"

// Options tunes pacing and retries for a Fetcher.
type Options struct {
	PageSize int
	Interval time.Duration
	Policy   ratelimit.Policy
	Breaker  ratelimit.BreakerSettings
}

// Fetcher turns a CatalogSource into restartable page streams.
type Fetcher struct {
	source   sources.CatalogSource
	pacer    *ratelimit.Pacer
	breaker  *ratelimit.Breaker
	policy   ratelimit.Policy
	pageSize int
	logger   *slog.Logger
}

// New constructs a Fetcher. Catalog requests are strictly sequential, so the
// pacer admits one request at a time.
func New(source sources.CatalogSource, opts Options, logger *slog.Logger) *Fetcher {
	logger = logging.NewComponentLogger(logger, "fetcher")
	return &Fetcher{
		source:   source,
		pacer:    ratelimit.NewPacer(opts.Interval, 1),
		breaker:  ratelimit.NewBreaker(sourceName, opts.Breaker, logger),
		policy:   opts.Policy,
		pageSize: opts.PageSize,
		logger:   logger,
	}
}

// NewFromConfig wires a Fetcher using the [catalog] settings.
func NewFromConfig(cfg *config.Config, source sources.CatalogSource, logger *slog.Logger) *Fetcher {
	return New(source, Options{
		PageSize: cfg.Catalog.PageSize,
		Interval: cfg.CatalogInterval(),
		Policy:   ratelimit.DefaultPolicy(cfg.Catalog.MaxAttempts),
		Breaker:  ratelimit.DefaultBreakerSettings(),
	}, logger)
}

// Checkpoint records where a pager stopped. Resuming from it re-requests the
// page after the last one yielded.
type Checkpoint struct {
	PlatformKey string
	Country     string
	Language    string
	Cursor      string
	Page        int
}

// Fetch starts a new page stream for a platform.
func (f *Fetcher) Fetch(platformKey, country, language string) *Pager {
	return f.Resume(Checkpoint{
		PlatformKey: strings.ToLower(strings.TrimSpace(platformKey)),
		Country:     country,
		Language:    language,
	})
}

// Resume continues a stream from cp. Records yielded before the checkpoint
// are not remembered, so duplicates across the boundary are not detected.
func (f *Fetcher) Resume(cp Checkpoint) *Pager {
	return &Pager{
		fetcher: f,
		cp:      cp,
		seen:    make(map[string]struct{}),
		cursors: map[string]struct{}{cp.Cursor: {}},
	}
}

// Pager yields catalog pages on demand. It is not safe for concurrent use.
type Pager struct {
	fetcher    *Fetcher
	cp         Checkpoint
	seen       map[string]struct{}
	cursors    map[string]struct{}
	records    int
	duplicates int
	done       bool
	err        error
}

// Checkpoint returns the position after the last yielded page.
func (p *Pager) Checkpoint() Checkpoint {
	return p.cp
}

// Pages returns how many pages have been yielded.
func (p *Pager) Pages() int {
	return p.cp.Page
}

// Records returns how many unique records have been yielded.
func (p *Pager) Records() int {
	return p.records
}

// Duplicates returns how many records were dropped as repeated external ids.
func (p *Pager) Duplicates() int {
	return p.duplicates
}

// Next fetches the next page. It returns io.EOF once the catalog is
// exhausted and a *sources.FetchFailure when the page cannot be fetched;
// both are sticky. A cancelled context returns ctx.Err() and leaves the pager
// resumable.
func (p *Pager) Next(ctx context.Context) ([]catalog.Record, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := p.fetcher
	req := sources.PageRequest{
		PlatformKey: p.cp.PlatformKey,
		Country:     p.cp.Country,
		Language:    p.cp.Language,
		Cursor:      p.cp.Cursor,
		PageSize:    f.pageSize,
	}
	var page sources.Page
	err := ratelimit.Retry(ctx, f.logger, sourceName, f.policy, func(ctx context.Context) error {
		release, err := f.pacer.Acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
		return f.breaker.Execute(func() error {
			var fetchErr error
			page, fetchErr = f.source.FetchCatalogPage(ctx, req)
			return fetchErr
		})
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, p.fail(err)
	}

	if page.HasMore {
		if page.NextCursor == "" {
			return nil, p.fail(services.Wrap(services.ErrPermanent, sourceName, "paginate", "source reported more pages without a cursor", nil))
		}
		if _, repeated := p.cursors[page.NextCursor]; repeated {
			return nil, p.fail(services.Wrap(services.ErrPermanent, sourceName, "paginate",
				fmt.Sprintf("cursor %q repeated", page.NextCursor), nil))
		}
	}

	records := make([]catalog.Record, 0, len(page.Records))
	for _, rec := range page.Records {
		rec.PlatformKey = p.cp.PlatformKey
		if strings.TrimSpace(rec.ExternalID) == "" {
			p.duplicates++
			continue
		}
		if _, dup := p.seen[rec.ExternalID]; dup {
			p.duplicates++
			logging.WarnWithContext(f.logger, "duplicate catalog record dropped", "catalog_duplicate",
				logging.String(logging.FieldPlatform, p.cp.PlatformKey),
				logging.String("external_id", rec.ExternalID),
				logging.Int("page", p.cp.Page),
				logging.String(logging.FieldErrorHint, "the source repeated a title across pages"),
				logging.String(logging.FieldImpact, "first occurrence kept"),
			)
			continue
		}
		p.seen[rec.ExternalID] = struct{}{}
		records = append(records, rec)
	}
	p.records += len(records)
	p.cp.Page++

	if page.HasMore {
		p.cp.Cursor = page.NextCursor
		p.cursors[page.NextCursor] = struct{}{}
	} else {
		p.done = true
	}
	f.logger.Debug("catalog page fetched",
		logging.String(logging.FieldPlatform, p.cp.PlatformKey),
		logging.Int("page", p.cp.Page),
		logging.Int("records", len(records)),
		logging.Bool("last", p.done),
	)
	return records, nil
}

func (p *Pager) fail(err error) error {
	var failure *sources.FetchFailure
	if !errors.As(err, &failure) {
		failure = &sources.FetchFailure{
			Platform: p.cp.PlatformKey,
			Page:     p.cp.Page,
			Cursor:   p.cp.Cursor,
			Err:      err,
		}
	}
	p.err = failure
	return failure
}

// Progress is reported after each page during Collect.
type Progress struct {
	Pages   int
	Records int
}

// Collect drains the pager into a snapshot. Any failure, including
// cancellation, discards the partial catalog.
func Collect(ctx context.Context, p *Pager, onPage func(Progress)) (catalog.Snapshot, error) {
	var records []catalog.Record
	for {
		page, err := p.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return catalog.Snapshot{}, err
		}
		records = append(records, page...)
		if onPage != nil {
			onPage(Progress{Pages: p.Pages(), Records: p.Records()})
		}
	}
	return catalog.Snapshot{
		PlatformKey: p.cp.PlatformKey,
		FetchedAt:   time.Now().UTC(),
		Records:     records,
	}, nil
}
