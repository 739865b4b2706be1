package scraper

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

const (
	naukriBaseURL  = "https://www.naukri.com"
	naukriMaxPages = 10
)

var naukriHosts = []string{"naukri.com", "www.naukri.com"}

var naukriCardVariants = []string{
	"div.srp-jobtuple-wrapper",
	"div.cust-job-tuple",
	"article.jobTuple",
}

func naukriSpec() siteSpec {
	return siteSpec{
		site:         SiteNaukri,
		baseURL:      naukriBaseURL,
		maxPages:     naukriMaxPages,
		cardVariants: naukriCardVariants,
		buildURL:     naukriPageURL,
		extractCard:  naukriCard,
	}
}

// naukriPageURL builds the site's slug-path scheme: free text is lower-cased
// and hyphenated into the path, e.g. "Software Engineer" in "Bengaluru" page 2
// becomes /software-engineer-jobs-in-bengaluru-2.
func naukriPageURL(p Params, page int) string {
	path := "/" + slugify(p.Keyword) + "-jobs-in-" + slugify(p.Location)
	if page > 1 {
		path += "-" + strconv.Itoa(page)
	}
	return naukriBaseURL + path
}

func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func naukriCard(s *goquery.Selection) ListingFragment {
	externalID := s.AttrOr("data-job-id", "")
	if externalID == "" {
		externalID = fieldAttr(s, "data-job-id", "div[data-job-id]", "article[data-job-id]")
	}

	return ListingFragment{
		ExternalID: externalID,
		Title: fieldText(s,
			"a.title",
			"a.jobTitle",
			"div.title a",
		),
		Organization: fieldText(s,
			"a.comp-name",
			"a.subTitle",
			"span.comp-name",
		),
		Location: fieldText(s,
			"span.locWdth",
			"li.location span",
			"span.location",
		),
		Compensation: fieldText(s,
			"span.sal-wrap span",
			"li.salary span",
			"span.salary",
		),
		Snippet: fieldText(s,
			"span.job-desc",
			"div.job-description",
			"ul.tags-gt",
		),
		DetailURL: fieldAttr(s, "href",
			"a.title",
			"a.jobTitle",
			"div.title a",
		),
		Source:      SiteNaukri,
		ExtractedAt: time.Now(),
	}
}
