package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fieldText returns the first non-empty text among the selector alternatives.
// Sites A/B-test and migrate markup incrementally, so no single selector is
// reliable long-term; the ordered list is the drift defense, not duplication.
func fieldText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if text := collapse(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// fieldAttr returns the first non-empty attribute value among the alternatives.
func fieldAttr(s *goquery.Selection, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v := strings.TrimSpace(s.Find(sel).First().AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cardSet finds listing cards by trying selector variants in order until one
// yields at least one match.
func cardSet(doc *goquery.Document, variants []string) *goquery.Selection {
	for _, sel := range variants {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}
