package scraper

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// extractJSONLD is the last extraction strategy in the chain: when every CSS
// variant comes up empty, schema.org JobPosting blocks embedded in the page
// can still carry the listings.
func extractJSONLD(doc *goquery.Document, site Site) []ListingFragment {
	var frags []ListingFragment
	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		frags = append(frags, parseJobPostings(s.Text(), site)...)
	})
	return frags
}

func parseJobPostings(raw string, site Site) []ListingFragment {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	var out []ListingFragment
	collectJobPostings(payload, site, &out)
	return out
}

func collectJobPostings(payload any, site Site, out *[]ListingFragment) {
	switch t := payload.(type) {
	case map[string]any:
		if isJobPostingType(t["@type"]) {
			if frag, ok := fragmentFromJobPosting(t, site); ok {
				*out = append(*out, frag)
			}
			return
		}
		if graph, ok := t["@graph"].([]any); ok {
			for _, item := range graph {
				collectJobPostings(item, site, out)
			}
		}
		if list, ok := t["itemListElement"].([]any); ok {
			for _, item := range list {
				if el, ok := item.(map[string]any); ok {
					collectJobPostings(el["item"], site, out)
				}
			}
		}
	case []any:
		for _, item := range t {
			collectJobPostings(item, site, out)
		}
	}
}

func isJobPostingType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

func fragmentFromJobPosting(obj map[string]any, site Site) (ListingFragment, bool) {
	frag := ListingFragment{
		Title:        jsonStr(obj["title"]),
		Organization: nestedStr(obj, "hiringOrganization", "name"),
		Location:     jobPostingLocation(obj),
		Snippet:      collapse(htmlToText(jsonStr(obj["description"]))),
		DetailURL:    jsonStr(obj["url"]),
		ExternalID:   nestedStr(obj, "identifier", "value"),
		Source:       site,
		ExtractedAt:  time.Now(),
	}
	if frag.Title == "" && frag.Organization == "" {
		return ListingFragment{}, false
	}
	return frag, true
}

func jobPostingLocation(obj map[string]any) string {
	loc := obj["jobLocation"]
	if arr, ok := loc.([]any); ok && len(arr) > 0 {
		loc = arr[0]
	}
	m, ok := loc.(map[string]any)
	if !ok {
		return ""
	}
	if addr, ok := m["address"].(map[string]any); ok {
		parts := []string{jsonStr(addr["addressLocality"]), jsonStr(addr["addressRegion"])}
		var kept []string
		for _, p := range parts {
			if p != "" {
				kept = append(kept, p)
			}
		}
		return strings.Join(kept, ", ")
	}
	return jsonStr(m["name"])
}

// htmlToText flattens embedded markup; JobPosting descriptions usually arrive
// as HTML.
func htmlToText(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	node, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return b.String()
}

func jsonStr(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func nestedStr(obj map[string]any, key, sub string) string {
	if m, ok := obj[key].(map[string]any); ok {
		return jsonStr(m[sub])
	}
	return ""
}
