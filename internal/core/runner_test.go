package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadharvest/internal/httpx"
	"leadharvest/internal/scraper"
)

// stubAdapter scripts per-page outcomes so runner behavior can be tested
// without any network or browser.
type stubAdapter struct {
	site     scraper.Site
	strategy scraper.FetchStrategy

	// pages maps page number to scripted fragments; pageErrs to scripted
	// fetch errors. Unscripted pages come back empty.
	pages    map[int][]scraper.ListingFragment
	pageErrs map[int]error

	initErr error

	initCalls  int
	closeCalls int
	fetched    []int
	stats      scraper.Stats
}

func (a *stubAdapter) Site() scraper.Site              { return a.site }
func (a *stubAdapter) Strategy() scraper.FetchStrategy { return a.strategy }
func (a *stubAdapter) BaseURL() string                 { return "https://example.test" }

func (a *stubAdapter) ValidateParams(p scraper.Params) scraper.Validation {
	if p.Keyword == "" {
		return scraper.Validation{Errors: []string{"keyword is required"}}
	}
	return scraper.Validation{Valid: true}
}

func (a *stubAdapter) PageURL(p scraper.Params, page int) string { return "https://example.test" }

func (a *stubAdapter) FetchPage(ctx context.Context, p scraper.Params, page int) ([]scraper.ListingFragment, error) {
	a.fetched = append(a.fetched, page)
	a.stats.FetchAttempts++
	if err := a.pageErrs[page]; err != nil {
		a.stats.FetchFailed++
		a.stats.Errors = append(a.stats.Errors, scraper.ErrorRecord{
			Page: page,
			Kind: "blocked",
			At:   time.Now(),
		})
		return nil, err
	}
	frags := a.pages[page]
	a.stats.FetchSucceeded++
	a.stats.Fragments += len(frags)
	return frags, nil
}

func (a *stubAdapter) Scrape(ctx context.Context, p scraper.Params) ([]scraper.ListingFragment, error) {
	return nil, nil
}

func (a *stubAdapter) Stats() scraper.Stats { return a.stats }
func (a *stubAdapter) ResetStats()          { a.stats = scraper.Stats{} }

func (a *stubAdapter) Init(ctx context.Context) error {
	a.initCalls++
	return a.initErr
}

func (a *stubAdapter) Close() error {
	a.closeCalls++
	return nil
}

func newTestRunner(ad *stubAdapter) *Runner {
	return &Runner{
		pageDelay: time.Millisecond,
		newAdapter: func(site scraper.Site, strategy scraper.FetchStrategy) (scraper.Adapter, error) {
			ad.site = site
			ad.strategy = strategy
			return ad, nil
		},
	}
}

func listings(n int, prefix string) []scraper.ListingFragment {
	out := make([]scraper.ListingFragment, n)
	for i := range out {
		out[i] = scraper.ListingFragment{
			ExternalID: prefix + string(rune('a'+i)),
			Title:      "Engineer",
			Source:     scraper.SiteIndeed,
		}
	}
	return out
}

func TestRunCompletes(t *testing.T) {
	ad := &stubAdapter{
		pages: map[int][]scraper.ListingFragment{
			1: listings(3, "p1-"),
			2: listings(2, "p2-"),
		},
	}
	r := newTestRunner(ad)

	res, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP,
		Keyword: "engineer", Location: "remote", MaxPages: 2,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", res.Status, StatusCompleted)
	}
	if len(res.Listings) != 5 {
		t.Errorf("listings = %d, want 5", len(res.Listings))
	}
	if ad.closeCalls != 1 {
		t.Errorf("closeCalls = %d, want 1", ad.closeCalls)
	}
}

func TestRunEarlyStopHTTP(t *testing.T) {
	// Page 1 has results, pages 2 and 3 are empty; with the HTTP threshold of
	// two consecutive empty pages the run must stop after page 3.
	ad := &stubAdapter{
		pages: map[int][]scraper.ListingFragment{1: listings(2, "p1-")},
	}
	r := newTestRunner(ad)

	res, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP,
		Keyword: "engineer", Location: "remote", MaxPages: 10,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(ad.fetched) != 3 {
		t.Errorf("fetched pages %v, want exactly [1 2 3]", ad.fetched)
	}
	if res.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", res.Status, StatusCompleted)
	}
}

func TestRunEarlyStopBrowser(t *testing.T) {
	// Browser strategy stops after a single empty page.
	ad := &stubAdapter{
		pages: map[int][]scraper.ListingFragment{1: listings(2, "p1-")},
	}
	r := newTestRunner(ad)

	_, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyBrowser,
		Keyword: "engineer", Location: "remote", MaxPages: 10,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(ad.fetched) != 2 {
		t.Errorf("fetched pages %v, want exactly [1 2]", ad.fetched)
	}
}

func TestRunEmptyStreakResets(t *testing.T) {
	// empty, results, empty, empty: streak resets on page 2, stop after 4.
	ad := &stubAdapter{
		pages: map[int][]scraper.ListingFragment{2: listings(1, "p2-")},
	}
	r := newTestRunner(ad)

	_, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP,
		Keyword: "engineer", Location: "remote", MaxPages: 10,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(ad.fetched) != 4 {
		t.Errorf("fetched pages %v, want exactly [1 2 3 4]", ad.fetched)
	}
}

func TestRunAbortsOnFetchError(t *testing.T) {
	ad := &stubAdapter{
		pageErrs: map[int]error{1: &httpx.FetchError{Kind: httpx.KindBlocked, URL: "https://example.test", Err: errors.New("403")}},
	}
	r := newTestRunner(ad)

	res, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP,
		Keyword: "engineer", Location: "remote", MaxPages: 5,
		ContinueOnError: false,
	})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil (mid-run failures go to status)", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", res.Status, StatusFailed)
	}
	if len(res.Listings) != 0 {
		t.Errorf("listings = %d, want 0", len(res.Listings))
	}
	if len(res.Stats.Errors) != 1 {
		t.Errorf("error records = %d, want 1", len(res.Stats.Errors))
	}
	if len(ad.fetched) != 1 {
		t.Errorf("fetched pages %v, want exactly [1]", ad.fetched)
	}
	if ad.closeCalls != 1 {
		t.Errorf("closeCalls = %d, want 1", ad.closeCalls)
	}
}

func TestRunContinuesOnFetchError(t *testing.T) {
	ad := &stubAdapter{
		pages:    map[int][]scraper.ListingFragment{1: listings(2, "p1-"), 3: listings(1, "p3-")},
		pageErrs: map[int]error{2: &httpx.FetchError{Kind: httpx.KindUpstream, Err: errors.New("502")}},
	}
	r := newTestRunner(ad)

	res, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP,
		Keyword: "engineer", Location: "remote", MaxPages: 3,
		ContinueOnError: true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Status != StatusPartial {
		t.Errorf("Status = %q, want %q", res.Status, StatusPartial)
	}
	if len(res.Listings) != 3 {
		t.Errorf("listings = %d, want 3", len(res.Listings))
	}
	if len(ad.fetched) != 3 {
		t.Errorf("fetched pages %v, want all three", ad.fetched)
	}
}

func TestRunValidationError(t *testing.T) {
	ad := &stubAdapter{}
	r := newTestRunner(ad)

	_, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP,
		MaxPages: 3,
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Run() error = %v, want *ValidationError", err)
	}
	if ad.initCalls != 0 {
		t.Errorf("Init called %d times before validation passed", ad.initCalls)
	}
	if len(ad.fetched) != 0 {
		t.Errorf("fetched pages %v, want none", ad.fetched)
	}
}

func TestRunInitFailureReleasesAdapter(t *testing.T) {
	ad := &stubAdapter{initErr: &scraper.ResourceInitError{Err: errors.New("no chrome binary")}}
	r := newTestRunner(ad)

	_, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyBrowser,
		Keyword: "engineer", Location: "remote", MaxPages: 3,
	})
	if err == nil {
		t.Fatal("Run() error = nil, want resource init error")
	}
	var rie *scraper.ResourceInitError
	if !errors.As(err, &rie) {
		t.Errorf("Run() error = %v, want *ResourceInitError", err)
	}
	if ad.closeCalls != 1 {
		t.Errorf("closeCalls = %d, want 1 even after init failure", ad.closeCalls)
	}
	if len(ad.fetched) != 0 {
		t.Errorf("fetched pages %v, want none", ad.fetched)
	}
}

func TestRunProgressEvents(t *testing.T) {
	ad := &stubAdapter{
		pages: map[int][]scraper.ListingFragment{
			1: listings(2, "p1-"),
			2: listings(3, "p2-"),
		},
	}
	r := newTestRunner(ad)

	var events []ProgressEvent
	_, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP,
		Keyword: "engineer", Location: "remote", MaxPages: 2,
		OnProgress: func(ev ProgressEvent) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].CurrentPage != 1 || events[0].ListingsFound != 2 {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].CurrentPage != 2 || events[1].ListingsFound != 5 {
		t.Errorf("second event = %+v", events[1])
	}
	if events[1].TotalPages != 2 {
		t.Errorf("TotalPages = %d, want 2", events[1].TotalPages)
	}
}

func TestRunProgressEventsOnFailedPages(t *testing.T) {
	ad := &stubAdapter{
		pages: map[int][]scraper.ListingFragment{
			1: listings(2, "p1-"),
			3: listings(1, "p3-"),
		},
		pageErrs: map[int]error{
			2: &httpx.FetchError{Kind: httpx.KindRateLimited, URL: "https://x/2"},
		},
	}
	r := newTestRunner(ad)

	var events []ProgressEvent
	_, err := r.Run(context.Background(), RunConfig{
		Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP,
		Keyword: "engineer", Location: "remote", MaxPages: 3,
		ContinueOnError: true,
		OnProgress:      func(ev ProgressEvent) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	// The failed page still reports, with the count unchanged.
	if events[1].CurrentPage != 2 || events[1].ListingsFound != 2 {
		t.Errorf("failed-page event = %+v", events[1])
	}
	if events[2].CurrentPage != 3 || events[2].ListingsFound != 3 {
		t.Errorf("final event = %+v", events[2])
	}
}
