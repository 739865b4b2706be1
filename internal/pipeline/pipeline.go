// Package pipeline turns raw extracted fragments into clean, deduplicated,
// storable listings. Four strictly ordered stages: Clean, Deduplicate,
// Validate, Stats. It runs over a whole run's fragment list, not per page, so
// deduplication sees the complete result set.
package pipeline

import (
	"regexp"
	"strings"
	"time"

	"leadharvest/internal/scraper"
	"leadharvest/internal/urlutil"
)

// KeyMode selects the natural key used for deduplication.
type KeyMode string

const (
	KeyExternalID KeyMode = "external_id"
	KeyDetailURL  KeyMode = "detail_url"
	KeyComposite  KeyMode = "composite"
)

type Options struct {
	// BaseURL is what relative detail URLs resolve against.
	BaseURL string
	DedupBy KeyMode
}

// NormalizedListing is a ListingFragment after cleaning. It is kept only if it
// has a title or organization, and an external id or detail URL.
type NormalizedListing struct {
	ExternalID   string    `json:"external_id,omitempty"`
	Title        string    `json:"title,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Location     string    `json:"location,omitempty"`
	Compensation string    `json:"compensation,omitempty"`
	Snippet      string    `json:"snippet,omitempty"`
	DetailURL    string    `json:"detail_url,omitempty"`
	Source       string    `json:"source"`
	ExtractedAt  time.Time `json:"extracted_at"`
}

// Fragment converts back to the raw shape, e.g. to re-run the pipeline.
func (l NormalizedListing) Fragment() scraper.ListingFragment {
	return scraper.ListingFragment{
		ExternalID:   l.ExternalID,
		Title:        l.Title,
		Organization: l.Organization,
		Location:     l.Location,
		Compensation: l.Compensation,
		Snippet:      l.Snippet,
		DetailURL:    l.DetailURL,
		Source:       scraper.Site(l.Source),
		ExtractedAt:  l.ExtractedAt,
	}
}

type Stats struct {
	Original          int `json:"original"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	InvalidRemoved    int `json:"invalid_removed"`
	Final             int `json:"final"`
}

type Result struct {
	Listings []NormalizedListing
	Stats    Stats
}

// Process runs all stages in order. Survivors keep their page-then-card order;
// only later duplicates and invalid entries are dropped.
func Process(frags []scraper.ListingFragment, opts Options) Result {
	if opts.DedupBy == "" {
		opts.DedupBy = KeyExternalID
	}

	cleaned := make([]NormalizedListing, 0, len(frags))
	for _, f := range frags {
		cleaned = append(cleaned, Clean(f, opts.BaseURL))
	}

	deduped, duplicates := Deduplicate(cleaned, opts.DedupBy)
	valid, invalid := Validate(deduped)

	return Result{
		Listings: valid,
		Stats: Stats{
			Original:          len(frags),
			DuplicatesRemoved: duplicates,
			InvalidRemoved:    invalid,
			Final:             len(valid),
		},
	}
}

// orgNoise matches trailing parentheticals carrying review-count noise,
// e.g. "Acme Corp (3,456 reviews)" or "Acme Corp (12)".
var orgNoise = regexp.MustCompile(`\s*\((?:[^)]*\breviews?\b[^)]*|[\d,.\s]+\+?)\)\s*$`)

// Clean trims and collapses whitespace on every string field, strips review
// noise from the organization, drops a leading "in " from the location, and
// resolves the detail URL against base (nulling it if resolution fails).
// Both strips run to a fixpoint so cleaning already-clean data is a no-op.
func Clean(f scraper.ListingFragment, baseURL string) NormalizedListing {
	org := collapse(f.Organization)
	for {
		next := orgNoise.ReplaceAllString(org, "")
		if next == org {
			break
		}
		org = next
	}

	loc := collapse(f.Location)
	for {
		rest, ok := strings.CutPrefix(loc, "in ")
		if !ok {
			break
		}
		loc = rest
	}

	return NormalizedListing{
		ExternalID:   collapse(f.ExternalID),
		Title:        collapse(f.Title),
		Organization: strings.TrimSpace(org),
		Location:     loc,
		Compensation: collapse(f.Compensation),
		Snippet:      collapse(f.Snippet),
		DetailURL:    urlutil.Absolutize(baseURL, f.DetailURL),
		Source:       string(f.Source),
		ExtractedAt:  f.ExtractedAt,
	}
}

// Deduplicate drops later occurrences of the configured natural key; the first
// occurrence wins. Listings with an empty key pass through untouched.
func Deduplicate(in []NormalizedListing, mode KeyMode) ([]NormalizedListing, int) {
	seen := make(map[string]struct{}, len(in))
	out := make([]NormalizedListing, 0, len(in))
	dropped := 0
	for _, l := range in {
		key := dedupKey(l, mode)
		if key == "" {
			out = append(out, l)
			continue
		}
		if _, dup := seen[key]; dup {
			dropped++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out, dropped
}

func dedupKey(l NormalizedListing, mode KeyMode) string {
	switch mode {
	case KeyDetailURL:
		return l.DetailURL
	case KeyComposite:
		if l.ExternalID == "" && l.DetailURL == "" {
			return ""
		}
		return l.ExternalID + "|" + l.DetailURL
	default:
		return l.ExternalID
	}
}

// Validate drops listings failing the keep invariant and counts the drops.
func Validate(in []NormalizedListing) ([]NormalizedListing, int) {
	out := make([]NormalizedListing, 0, len(in))
	dropped := 0
	for _, l := range in {
		if (l.Title != "" || l.Organization != "") && (l.ExternalID != "" || l.DetailURL != "") {
			out = append(out, l)
		} else {
			dropped++
		}
	}
	return out, dropped
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
