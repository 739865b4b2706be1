package scraper

import (
	"context"
	"fmt"
	"time"
)

type Site string

const (
	SiteIndeed Site = "indeed"
	SiteNaukri Site = "naukri"
)

type FetchStrategy string

const (
	StrategyHTTP    FetchStrategy = "http"
	StrategyBrowser FetchStrategy = "browser"
)

// ListingFragment is a raw extracted candidate, straight off one result card.
// Missing fields stay empty; the normalization pipeline decides what survives.
type ListingFragment struct {
	ExternalID   string
	Title        string
	Organization string
	Location     string
	Compensation string
	Snippet      string
	DetailURL    string
	Source       Site
	ExtractedAt  time.Time
}

// Params is the input contract for one run, immutable for its duration.
type Params struct {
	Keyword  string
	Location string
	MaxPages int
}

type Validation struct {
	Valid  bool
	Errors []string
}

type ErrorRecord struct {
	Page    int       `json:"page"`
	URL     string    `json:"url"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Stats are the adapter's cumulative fetch counters for one run, valid after
// the run completed or aborted.
type Stats struct {
	FetchAttempts  int           `json:"fetch_attempts"`
	FetchSucceeded int           `json:"fetch_succeeded"`
	FetchFailed    int           `json:"fetch_failed"`
	Fragments      int           `json:"fragments"`
	Errors         []ErrorRecord `json:"errors,omitempty"`
}

// Adapter binds one fetch strategy, one extractor, and one URL builder for a
// target site behind a uniform contract. Adapters are stateless between runs
// except for the resettable stats counter.
type Adapter interface {
	Site() Site
	Strategy() FetchStrategy
	// BaseURL is the absolute root detail URLs resolve against.
	BaseURL() string

	ValidateParams(p Params) Validation
	PageURL(p Params, page int) string
	// FetchPage fetches and extracts one result page (1-based).
	FetchPage(ctx context.Context, p Params, page int) ([]ListingFragment, error)
	// Scrape is the end-to-end convenience run across pages 1..MaxPages.
	Scrape(ctx context.Context, p Params) ([]ListingFragment, error)

	Stats() Stats
	ResetStats()

	// Init acquires per-run resources (the browser process, for the browser
	// strategy). Close releases them and must run on every exit path.
	Init(ctx context.Context) error
	Close() error
}

func ParseStrategy(s string) (FetchStrategy, error) {
	switch FetchStrategy(s) {
	case StrategyHTTP, "":
		return StrategyHTTP, nil
	case StrategyBrowser:
		return StrategyBrowser, nil
	default:
		return "", fmt.Errorf("unknown fetch strategy %q", s)
	}
}

func ParseSite(s string) (Site, error) {
	switch Site(s) {
	case SiteIndeed, "":
		return SiteIndeed, nil
	case SiteNaukri:
		return SiteNaukri, nil
	default:
		return "", fmt.Errorf("unknown target site %q", s)
	}
}
