package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadharvest/internal/scraper"
)

var errTest = errors.New("scripted failure")

func TestBatchRunsSequentially(t *testing.T) {
	ad := &stubAdapter{
		pages: map[int][]scraper.ListingFragment{1: listings(2, "x")},
	}
	b := &Batch{runner: newTestRunner(ad), jobDelay: time.Millisecond}

	jobs := []RunConfig{
		{Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP, Keyword: "a", Location: "l", MaxPages: 1},
		{Site: scraper.SiteNaukri, Strategy: scraper.StrategyHTTP, Keyword: "b", Location: "l", MaxPages: 1},
	}

	results := b.Run(context.Background(), jobs)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("job %d error = %v", i, r.Err)
		}
		if r.Result == nil || r.Result.Status != StatusCompleted {
			t.Errorf("job %d result = %+v", i, r.Result)
		}
	}
	// Each job holds its own adapter lifecycle.
	if ad.initCalls != 2 || ad.closeCalls != 2 {
		t.Errorf("init/close = %d/%d, want 2/2", ad.initCalls, ad.closeCalls)
	}
}

func TestBatchForcesContinueOnError(t *testing.T) {
	ad := &stubAdapter{
		pages:    map[int][]scraper.ListingFragment{2: listings(1, "x")},
		pageErrs: map[int]error{1: errTest},
	}
	b := &Batch{runner: newTestRunner(ad), jobDelay: time.Millisecond}

	results := b.Run(context.Background(), []RunConfig{
		{Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP, Keyword: "a", Location: "l", MaxPages: 2},
	})
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	res := results[0].Result
	if res.Status != StatusPartial {
		t.Errorf("Status = %q, want %q (failure on page 1 must not abort)", res.Status, StatusPartial)
	}
	if len(res.Listings) != 1 {
		t.Errorf("listings = %d, want 1 from page 2", len(res.Listings))
	}
}

func TestBatchStopsOnCancelledContext(t *testing.T) {
	ad := &stubAdapter{}
	b := &Batch{runner: newTestRunner(ad), jobDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := b.Run(ctx, []RunConfig{
		{Site: scraper.SiteIndeed, Strategy: scraper.StrategyHTTP, Keyword: "a", Location: "l", MaxPages: 1},
	})
	if len(results) != 0 {
		t.Errorf("results = %d, want 0 for cancelled context", len(results))
	}
}
