package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"leadharvest/internal/browser"
	"leadharvest/internal/httpx"
)

// ResourceInitError marks a browser process that failed to start. It is fatal
// for the run and is never retried page-by-page.
type ResourceInitError struct {
	Err error
}

func (e *ResourceInitError) Error() string {
	return fmt.Sprintf("browser initialization: %v", e.Err)
}

func (e *ResourceInitError) Unwrap() error {
	return e.Err
}

// siteSpec is everything site-specific an adapter composes: URL construction,
// card selector variants, and per-card field extraction.
type siteSpec struct {
	site         Site
	baseURL      string
	maxPages     int
	cardVariants []string
	buildURL     func(p Params, page int) string
	extractCard  func(s *goquery.Selection) ListingFragment
}

// extract is a pure function from a raw document to loosely-typed fragments.
// Markup drift is absorbed as an empty result, never an error. All-empty cards
// are skipped silently.
func (spec siteSpec) extract(rawHTML string) []ListingFragment {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	var frags []ListingFragment
	if cards := cardSet(doc, spec.cardVariants); cards != nil {
		cards.Each(func(_ int, s *goquery.Selection) {
			frag := spec.extractCard(s)
			if frag.Title == "" && frag.Organization == "" {
				return
			}
			frags = append(frags, frag)
		})
	}
	if len(frags) == 0 {
		frags = extractJSONLD(doc, spec.site)
	}
	return frags
}

// pageFetcher is the slice of *browser.Browser the adapter needs; injectable
// in tests.
type pageFetcher interface {
	FetchPage(ctx context.Context, url string, cardSelectors []string) (string, error)
	Close() error
}

type siteAdapter struct {
	spec     siteSpec
	strategy FetchStrategy

	httpClient *httpx.Client
	launch     func() (pageFetcher, error)
	br         pageFetcher

	mu    sync.Mutex
	stats Stats
}

func newHTTPAdapter(spec siteSpec, client *httpx.Client) *siteAdapter {
	if client == nil {
		client = httpx.NewClient()
	}
	return &siteAdapter{spec: spec, strategy: StrategyHTTP, httpClient: client}
}

func newBrowserAdapter(spec siteSpec, launch func() (pageFetcher, error)) *siteAdapter {
	return &siteAdapter{spec: spec, strategy: StrategyBrowser, launch: launch}
}

func (a *siteAdapter) Site() Site              { return a.spec.site }
func (a *siteAdapter) Strategy() FetchStrategy { return a.strategy }
func (a *siteAdapter) BaseURL() string         { return a.spec.baseURL }

func (a *siteAdapter) ValidateParams(p Params) Validation {
	var errs []string
	if strings.TrimSpace(p.Keyword) == "" {
		errs = append(errs, "keyword is required")
	}
	if strings.TrimSpace(p.Location) == "" {
		errs = append(errs, "location is required")
	}
	if p.MaxPages < 1 || p.MaxPages > a.spec.maxPages {
		errs = append(errs, fmt.Sprintf("maxPages must be between 1 and %d for %s", a.spec.maxPages, a.spec.site))
	}
	return Validation{Valid: len(errs) == 0, Errors: errs}
}

func (a *siteAdapter) PageURL(p Params, page int) string {
	return a.spec.buildURL(p, page)
}

func (a *siteAdapter) Init(ctx context.Context) error {
	if a.strategy != StrategyBrowser {
		return nil
	}
	if a.br != nil {
		return nil
	}
	br, err := a.launch()
	if err != nil {
		return &ResourceInitError{Err: err}
	}
	a.br = br
	return nil
}

func (a *siteAdapter) Close() error {
	if a.br == nil {
		return nil
	}
	err := a.br.Close()
	a.br = nil
	return err
}

func (a *siteAdapter) FetchPage(ctx context.Context, p Params, page int) ([]ListingFragment, error) {
	pageURL := a.spec.buildURL(p, page)

	a.mu.Lock()
	a.stats.FetchAttempts++
	a.mu.Unlock()

	var (
		rawHTML string
		err     error
	)
	switch a.strategy {
	case StrategyBrowser:
		if a.br == nil {
			err = &ResourceInitError{Err: errors.New("adapter not initialized")}
		} else {
			rawHTML, err = a.br.FetchPage(ctx, pageURL, a.spec.cardVariants)
		}
	default:
		var body []byte
		body, err = a.httpClient.Fetch(ctx, pageURL)
		rawHTML = string(body)
	}

	if err != nil {
		a.recordError(page, pageURL, err)
		return nil, err
	}

	frags := a.spec.extract(rawHTML)

	a.mu.Lock()
	a.stats.FetchSucceeded++
	a.stats.Fragments += len(frags)
	a.mu.Unlock()
	return frags, nil
}

// Scrape is the standalone end-to-end run: sequential pages, stopping early on
// the strategy's consecutive-empty-page threshold, continuing past page errors.
func (a *siteAdapter) Scrape(ctx context.Context, p Params) ([]ListingFragment, error) {
	if v := a.ValidateParams(p); !v.Valid {
		return nil, fmt.Errorf("invalid params: %s", strings.Join(v.Errors, "; "))
	}
	if err := a.Init(ctx); err != nil {
		return nil, err
	}
	defer a.Close()

	emptyLimit := EmptyPageLimit(a.strategy)
	var (
		all   []ListingFragment
		empty int
	)
	for page := 1; page <= p.MaxPages; page++ {
		frags, err := a.FetchPage(ctx, p, page)
		if err != nil {
			continue
		}
		if len(frags) == 0 {
			empty++
			if empty >= emptyLimit {
				break
			}
			continue
		}
		empty = 0
		all = append(all, frags...)
	}
	return all, nil
}

func (a *siteAdapter) recordError(page int, pageURL string, err error) {
	kind := "unknown"
	var fe *httpx.FetchError
	var rie *ResourceInitError
	switch {
	case errors.As(err, &fe):
		kind = string(fe.Kind)
	case errors.As(err, &rie):
		kind = "resource_init"
	}
	a.mu.Lock()
	a.stats.FetchFailed++
	a.stats.Errors = append(a.stats.Errors, ErrorRecord{
		Page:    page,
		URL:     pageURL,
		Kind:    kind,
		Message: err.Error(),
		At:      time.Now(),
	})
	a.mu.Unlock()
}

func (a *siteAdapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.stats
	out.Errors = append([]ErrorRecord(nil), a.stats.Errors...)
	return out
}

func (a *siteAdapter) ResetStats() {
	a.mu.Lock()
	a.stats = Stats{}
	a.mu.Unlock()
}

// EmptyPageLimit is the consecutive-empty-page count that signals end of
// results. Browser mode already absorbs transient render failures internally,
// so a single empty page is decisive there; HTTP mode waits for a confirming
// second one. The two thresholds are deliberately not unified.
func EmptyPageLimit(s FetchStrategy) int {
	if s == StrategyBrowser {
		return 1
	}
	return 2
}

// Deps carries the shared fetch dependencies adapters are built from.
type Deps struct {
	HTTP          *httpx.Client
	BrowserConfig browser.Config
}

// ForTarget selects one of the four concrete adapters (two sites × two fetch
// strategies) as a pure function of its inputs.
func ForTarget(site Site, strategy FetchStrategy, deps Deps) (Adapter, error) {
	var spec siteSpec
	switch site {
	case SiteIndeed:
		spec = indeedSpec()
	case SiteNaukri:
		spec = naukriSpec()
	default:
		return nil, fmt.Errorf("no adapter for site %q", site)
	}

	switch strategy {
	case StrategyHTTP:
		return newHTTPAdapter(spec, deps.HTTP), nil
	case StrategyBrowser:
		cfg := deps.BrowserConfig
		return newBrowserAdapter(spec, func() (pageFetcher, error) {
			return browser.Launch(cfg)
		}), nil
	default:
		return nil, fmt.Errorf("no adapter for strategy %q", strategy)
	}
}

// SiteForHost derives the target-site identifier from a URL's host. An
// unrecognized domain yields no adapter; callers treat that as a
// configuration error, not a runtime one.
func SiteForHost(host string) (Site, bool) {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, h := range indeedHosts {
		if host == strings.TrimPrefix(h, "www.") {
			return SiteIndeed, true
		}
	}
	for _, h := range naukriHosts {
		if host == strings.TrimPrefix(h, "www.") {
			return SiteNaukri, true
		}
	}
	return "", false
}
