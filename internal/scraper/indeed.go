package scraper

import (
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	indeedBaseURL  = "https://www.indeed.com"
	indeedMaxPages = 20
	// Indeed paginates by result offset, ten listings per page.
	indeedPageSize = 10
)

var indeedHosts = []string{"indeed.com", "in.indeed.com", "www.indeed.com"}

// Result-card variants, newest markup first. Indeed migrates card markup
// incrementally, so older variants stay in the list.
var indeedCardVariants = []string{
	"div.job_seen_beacon",
	"td.resultContent",
	"div.jobsearch-SerpJobCard",
	"a.tapItem",
}

func indeedSpec() siteSpec {
	return siteSpec{
		site:         SiteIndeed,
		baseURL:      indeedBaseURL,
		maxPages:     indeedMaxPages,
		cardVariants: indeedCardVariants,
		buildURL:     indeedPageURL,
		extractCard:  indeedCard,
	}
}

func indeedPageURL(p Params, page int) string {
	q := url.Values{}
	q.Set("q", p.Keyword)
	q.Set("l", p.Location)
	if page > 1 {
		q.Set("start", strconv.Itoa((page-1)*indeedPageSize))
	}
	return indeedBaseURL + "/jobs?" + q.Encode()
}

func indeedCard(s *goquery.Selection) ListingFragment {
	externalID := fieldAttr(s, "data-jk", "a[data-jk]", "h2.jobTitle a")
	if externalID == "" {
		externalID = s.AttrOr("data-jk", "")
	}

	return ListingFragment{
		ExternalID: externalID,
		Title: fieldText(s,
			"h2.jobTitle span[title]",
			"h2.jobTitle a",
			"a.jcs-JobTitle span",
			"h2.jobTitle",
		),
		Organization: fieldText(s,
			"[data-testid='company-name']",
			"span.companyName",
			"span.company",
		),
		Location: fieldText(s,
			"[data-testid='text-location']",
			"div.companyLocation",
			"div.location",
		),
		Compensation: fieldText(s,
			"[data-testid='attribute_snippet_testid']",
			"div.salary-snippet-container",
			"span.salaryText",
		),
		Snippet: fieldText(s,
			"div.job-snippet",
			"[data-testid='belowJobSnippet']",
			"div.summary",
		),
		DetailURL: fieldAttr(s, "href",
			"h2.jobTitle a",
			"a.jcs-JobTitle",
			"a[data-jk]",
		),
		Source:      SiteIndeed,
		ExtractedAt: time.Now(),
	}
}
