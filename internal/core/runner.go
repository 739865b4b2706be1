package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leadharvest/internal/observability"
	"leadharvest/internal/pipeline"
	"leadharvest/internal/scraper"
)

type RunStatus string

const (
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"
	StatusFailed    RunStatus = "failed"
)

// ProgressEvent is delivered synchronously to the caller's callback after each
// page attempt, failed pages included; the run does not advance until the
// observer returns.
type ProgressEvent struct {
	CurrentPage   int `json:"current_page"`
	TotalPages    int `json:"total_pages"`
	ListingsFound int `json:"listings_found"`
}

// RunConfig is immutable for the duration of one run.
type RunConfig struct {
	Site     scraper.Site
	Strategy scraper.FetchStrategy
	Keyword  string
	Location string
	MaxPages int

	// ContinueOnError converts per-page fetch failures into recorded partial
	// results instead of aborting the run. Batch jobs default it on,
	// interactive requests off.
	ContinueOnError bool
	DedupBy         pipeline.KeyMode
	OnProgress      func(ProgressEvent)
}

type RunStatistics struct {
	RequestsAttempted  int                   `json:"requests_attempted"`
	RequestsSucceeded  int                   `json:"requests_succeeded"`
	RequestsFailed     int                   `json:"requests_failed"`
	FragmentsExtracted int                   `json:"fragments_extracted"`
	DuplicatesRemoved  int                   `json:"duplicates_removed"`
	InvalidRemoved     int                   `json:"invalid_removed"`
	Duration           time.Duration         `json:"duration_ns"`
	Errors             []scraper.ErrorRecord `json:"errors,omitempty"`
}

// RunResult is created at run start, mutated only by the runner, and immutable
// once returned.
type RunResult struct {
	Listings []pipeline.NormalizedListing `json:"listings"`
	Stats    RunStatistics                `json:"stats"`
	Status   RunStatus                    `json:"status"`
}

// ValidationError is caller-fixable and raised before any network activity.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid parameters: " + strings.Join(e.Problems, "; ")
}

// Runner drives one adapter across paginated result sets: strictly sequential
// pages, inter-page delay, per-strategy early stop, guaranteed adapter cleanup.
type Runner struct {
	deps       scraper.Deps
	pageDelay  time.Duration
	newAdapter func(scraper.Site, scraper.FetchStrategy) (scraper.Adapter, error)
}

func NewRunner(deps scraper.Deps, pageDelay time.Duration) *Runner {
	if pageDelay <= 0 {
		pageDelay = 3 * time.Second
	}
	return &Runner{
		deps:      deps,
		pageDelay: pageDelay,
		newAdapter: func(site scraper.Site, strategy scraper.FetchStrategy) (scraper.Adapter, error) {
			return scraper.ForTarget(site, strategy, deps)
		},
	}
}

// Run executes one scrape run. The returned error is non-nil only for failures
// that happen before any page is fetched (unknown target, invalid parameters,
// browser startup); mid-run fetch errors end up in the result's status and
// error records instead.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	ad, err := r.newAdapter(cfg.Site, cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("adapter selection: %w", err)
	}

	params := scraper.Params{Keyword: cfg.Keyword, Location: cfg.Location, MaxPages: cfg.MaxPages}
	if v := ad.ValidateParams(params); !v.Valid {
		return nil, &ValidationError{Problems: v.Errors}
	}

	started := time.Now()
	observability.IncRunStarted(string(cfg.Site))
	ad.ResetStats()

	if err := ad.Init(ctx); err != nil {
		ad.Close() // release anything partially acquired
		observability.IncError(observability.ErrorResource, "runner")
		observability.IncRunFinished(string(StatusFailed))
		return nil, err
	}
	defer ad.Close()

	var (
		accumulated []scraper.ListingFragment
		emptyStreak int
		aborted     bool
		hadErrors   bool
	)
	emptyLimit := scraper.EmptyPageLimit(cfg.Strategy)

	for page := 1; page <= cfg.MaxPages; page++ {
		frags, err := ad.FetchPage(ctx, params, page)
		observability.IncPageFetched()

		if err != nil {
			hadErrors = true
			kind := observability.ClassifyFetchError(err)
			observability.IncError(kind, "runner")
			slog.Warn("page fetch failed", "site", cfg.Site, "page", page, "kind", kind, "error", err)
			if cfg.OnProgress != nil {
				cfg.OnProgress(ProgressEvent{
					CurrentPage:   page,
					TotalPages:    cfg.MaxPages,
					ListingsFound: len(accumulated),
				})
			}
			if !cfg.ContinueOnError {
				aborted = true
				break
			}
		} else {
			observability.AddFragments(len(frags))
			accumulated = append(accumulated, frags...)

			if cfg.OnProgress != nil {
				cfg.OnProgress(ProgressEvent{
					CurrentPage:   page,
					TotalPages:    cfg.MaxPages,
					ListingsFound: len(accumulated),
				})
			}

			// An empty page is the site's de facto end-of-results signal,
			// not an error.
			if len(frags) == 0 {
				emptyStreak++
				if emptyStreak >= emptyLimit {
					slog.Info("early stop on empty pages", "site", cfg.Site, "page", page, "streak", emptyStreak)
					break
				}
			} else {
				emptyStreak = 0
			}
		}

		if page < cfg.MaxPages {
			sleepWithContext(ctx, r.pageDelay)
		}
	}

	processed := pipeline.Process(accumulated, pipeline.Options{
		BaseURL: ad.BaseURL(),
		DedupBy: cfg.DedupBy,
	})

	status := StatusCompleted
	switch {
	case aborted:
		status = StatusFailed
	case hadErrors:
		status = StatusPartial
	}

	adStats := ad.Stats()
	result := &RunResult{
		Listings: processed.Listings,
		Status:   status,
		Stats: RunStatistics{
			RequestsAttempted:  adStats.FetchAttempts,
			RequestsSucceeded:  adStats.FetchSucceeded,
			RequestsFailed:     adStats.FetchFailed,
			FragmentsExtracted: adStats.Fragments,
			DuplicatesRemoved:  processed.Stats.DuplicatesRemoved,
			InvalidRemoved:     processed.Stats.InvalidRemoved,
			Duration:           time.Since(started),
			Errors:             adStats.Errors,
		},
	}

	observability.IncRunFinished(string(status))
	observability.ObserveRunDuration(result.Stats.Duration.Seconds())
	slog.Info("run finished",
		"site", cfg.Site,
		"strategy", cfg.Strategy,
		"status", status,
		"listings", len(result.Listings),
		"duration", result.Stats.Duration)
	return result, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
