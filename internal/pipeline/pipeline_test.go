package pipeline

import (
	"fmt"
	"testing"

	"leadharvest/internal/scraper"
)

func frag(id, title, org, url string) scraper.ListingFragment {
	return scraper.ListingFragment{
		ExternalID:   id,
		Title:        title,
		Organization: org,
		DetailURL:    url,
		Source:       scraper.SiteIndeed,
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name    string
		in      scraper.ListingFragment
		baseURL string
		want    NormalizedListing
	}{
		{
			name: "collapses whitespace",
			in: scraper.ListingFragment{
				Title:        "  Senior \n\t Engineer  ",
				Organization: "Acme   Corp",
				Source:       scraper.SiteIndeed,
			},
			want: NormalizedListing{Title: "Senior Engineer", Organization: "Acme Corp", Source: "indeed"},
		},
		{
			name: "strips review count from organization",
			in: scraper.ListingFragment{
				Organization: "Acme Corp (3,456 reviews)",
				Source:       scraper.SiteIndeed,
			},
			want: NormalizedListing{Organization: "Acme Corp", Source: "indeed"},
		},
		{
			name: "strips bare numeric parenthetical",
			in: scraper.ListingFragment{
				Organization: "Acme Corp (12)",
				Source:       scraper.SiteIndeed,
			},
			want: NormalizedListing{Organization: "Acme Corp", Source: "indeed"},
		},
		{
			name: "keeps meaningful parenthetical",
			in: scraper.ListingFragment{
				Organization: "Acme (India) Ltd",
				Source:       scraper.SiteIndeed,
			},
			want: NormalizedListing{Organization: "Acme (India) Ltd", Source: "indeed"},
		},
		{
			name: "strips stacked review parentheticals",
			in: scraper.ListingFragment{
				Organization: "Acme Corp (12) (3,456 reviews)",
				Source:       scraper.SiteIndeed,
			},
			want: NormalizedListing{Organization: "Acme Corp", Source: "indeed"},
		},
		{
			name: "drops leading in from location",
			in: scraper.ListingFragment{
				Location: "in Bengaluru, Karnataka",
				Source:   scraper.SiteNaukri,
			},
			want: NormalizedListing{Location: "Bengaluru, Karnataka", Source: "naukri"},
		},
		{
			name: "drops doubled location prefix",
			in: scraper.ListingFragment{
				Location: "in in Pune",
				Source:   scraper.SiteNaukri,
			},
			want: NormalizedListing{Location: "Pune", Source: "naukri"},
		},
		{
			name:    "resolves relative detail URL",
			in:      scraper.ListingFragment{DetailURL: "/rc/clk?jk=abc", Source: scraper.SiteIndeed},
			baseURL: "https://www.indeed.com",
			want:    NormalizedListing{DetailURL: "https://www.indeed.com/rc/clk?jk=abc", Source: "indeed"},
		},
		{
			name:    "nulls unresolvable detail URL",
			in:      scraper.ListingFragment{DetailURL: "javascript:void(0)", Source: scraper.SiteIndeed},
			baseURL: "https://www.indeed.com",
			want:    NormalizedListing{DetailURL: "", Source: "indeed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clean(tt.in, tt.baseURL)
			if got != tt.want {
				t.Errorf("Clean() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDeduplicate(t *testing.T) {
	in := []NormalizedListing{
		{ExternalID: "a", Title: "First"},
		{ExternalID: "b", Title: "Second"},
		{ExternalID: "a", Title: "Dup of first"},
		{Title: "No key 1"},
		{Title: "No key 2"},
	}

	out, dropped := Deduplicate(in, KeyExternalID)
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	// First occurrence wins.
	if out[0].Title != "First" {
		t.Errorf("survivor title = %q, want %q", out[0].Title, "First")
	}
}

func TestDeduplicateModes(t *testing.T) {
	in := []NormalizedListing{
		{ExternalID: "a", DetailURL: "https://x/1"},
		{ExternalID: "b", DetailURL: "https://x/1"},
		{ExternalID: "a", DetailURL: "https://x/2"},
	}

	tests := []struct {
		mode     KeyMode
		wantKept int
	}{
		{KeyExternalID, 2},
		{KeyDetailURL, 2},
		{KeyComposite, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			out, _ := Deduplicate(in, tt.mode)
			if len(out) != tt.wantKept {
				t.Errorf("kept %d, want %d", len(out), tt.wantKept)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   NormalizedListing
		keep bool
	}{
		{"title and external id", NormalizedListing{Title: "Eng", ExternalID: "a"}, true},
		{"org and detail url", NormalizedListing{Organization: "Acme", DetailURL: "https://x/1"}, true},
		{"missing both identifiers", NormalizedListing{Title: "Eng", Organization: "Acme"}, false},
		{"missing title and org", NormalizedListing{ExternalID: "a", DetailURL: "https://x/1"}, false},
		{"empty", NormalizedListing{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := Validate([]NormalizedListing{tt.in})
			if (len(out) == 1) != tt.keep {
				t.Errorf("kept = %v, want %v", len(out) == 1, tt.keep)
			}
		})
	}
}

func TestProcessCountsAddUp(t *testing.T) {
	frags := make([]scraper.ListingFragment, 0, 15)
	for i := 0; i < 12; i++ {
		frags = append(frags, frag(fmt.Sprintf("id-%d", i), "Engineer", "Acme", ""))
	}
	// Two duplicates of id-0 and one invalid fragment.
	frags = append(frags, frag("id-0", "Engineer copy", "Acme", ""))
	frags = append(frags, frag("id-0", "Engineer copy 2", "Acme", ""))
	frags = append(frags, frag("id-99", "", "", ""))

	res := Process(frags, Options{})

	if res.Stats.Original != 15 {
		t.Errorf("Original = %d, want 15", res.Stats.Original)
	}
	if res.Stats.DuplicatesRemoved != 2 {
		t.Errorf("DuplicatesRemoved = %d, want 2", res.Stats.DuplicatesRemoved)
	}
	if res.Stats.InvalidRemoved != 1 {
		t.Errorf("InvalidRemoved = %d, want 1", res.Stats.InvalidRemoved)
	}
	if res.Stats.Final != 12 {
		t.Errorf("Final = %d, want 12", res.Stats.Final)
	}
	if got := res.Stats.Original - res.Stats.DuplicatesRemoved - res.Stats.InvalidRemoved; got != res.Stats.Final {
		t.Errorf("counts do not reconcile: %d != %d", got, res.Stats.Final)
	}
}

func TestProcessIdempotent(t *testing.T) {
	frags := []scraper.ListingFragment{
		frag("a", "  Engineer ", "Acme (45 reviews)", "/jobs/a"),
		frag("b", "Analyst", "Beta", "/jobs/b"),
		frag("a", "Engineer", "Acme", "/jobs/a"),
		frag("c", "Manager", "Gamma Corp (12) (3,456 reviews)", "/jobs/c"),
		{ExternalID: "d", Title: "Designer", Location: "in in Pune", Source: scraper.SiteNaukri},
	}

	opts := Options{BaseURL: "https://www.indeed.com"}
	first := Process(frags, opts)

	again := make([]scraper.ListingFragment, 0, len(first.Listings))
	for _, l := range first.Listings {
		again = append(again, l.Fragment())
	}
	second := Process(again, opts)

	if second.Stats.DuplicatesRemoved != 0 || second.Stats.InvalidRemoved != 0 {
		t.Fatalf("second pass dropped entries: %+v", second.Stats)
	}
	if len(second.Listings) != len(first.Listings) {
		t.Fatalf("second pass changed count: %d -> %d", len(first.Listings), len(second.Listings))
	}
	for i := range first.Listings {
		if first.Listings[i] != second.Listings[i] {
			t.Errorf("listing %d changed on second pass:\n first: %+v\nsecond: %+v", i, first.Listings[i], second.Listings[i])
		}
	}
}

func TestProcessPreservesOrder(t *testing.T) {
	frags := []scraper.ListingFragment{
		frag("c", "Third", "Org", ""),
		frag("a", "First", "Org", ""),
		frag("b", "Second", "Org", ""),
	}

	res := Process(frags, Options{})
	want := []string{"Third", "First", "Second"}
	for i, l := range res.Listings {
		if l.Title != want[i] {
			t.Errorf("position %d = %q, want %q", i, l.Title, want[i])
		}
	}
}
