package extract

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"github.com/fetchkit/browsecore/models"
)

// titleSource pairs a resolution strategy with the confidence score the
// spec assigns it. Sources are tried in order; the first non-empty value
// becomes the title.
type titleSource struct {
	name       string
	confidence float64
	find       func(*html.Node) string
}

var titleSources = []titleSource{
	{"og_title", 0.95, findMetaProperty("og:title")},
	{"twitter_title", 0.9, findMetaName("twitter:title")},
	{"title_tag", 0.85, findTitleTag},
	{"h1", 0.7, findFirstH1},
	{"json_ld_headline", 0.95, findJSONLDHeadline},
}

// resolveTitle tries each title source in spec order, recording every
// attempt (including failures) so the caller can surface a full trace.
func resolveTitle(doc *html.Node) (title string, attempts []models.TitleAttempt) {
	for _, src := range titleSources {
		val := strings.TrimSpace(src.find(doc))
		success := val != ""
		attempts = append(attempts, models.TitleAttempt{
			Source:     src.name,
			Value:      val,
			Confidence: src.confidence,
			Success:    success,
		})
		if success && title == "" {
			title = val
		}
	}
	return title, attempts
}

func findMetaProperty(prop string) func(*html.Node) string {
	return func(doc *html.Node) string {
		for _, n := range findAll(doc, "meta") {
			if attr(n, "property") == prop {
				return attr(n, "content")
			}
		}
		return ""
	}
}

func findMetaName(name string) func(*html.Node) string {
	return func(doc *html.Node) string {
		for _, n := range findAll(doc, "meta") {
			if attr(n, "name") == name {
				return attr(n, "content")
			}
		}
		return ""
	}
}

func findTitleTag(doc *html.Node) string {
	n := findFirst(doc, "title")
	if n == nil {
		return ""
	}
	return textContent(renderNodes([]*html.Node{n}))
}

func findFirstH1(doc *html.Node) string {
	n := findFirst(doc, "h1")
	if n == nil {
		return ""
	}
	return textContent(renderNodes([]*html.Node{n}))
}

// jsonLDHeadline is the subset of schema.org Article/NewsArticle we read
// the headline field from.
type jsonLDHeadline struct {
	Headline string `json:"headline"`
}

func findJSONLDHeadline(doc *html.Node) string {
	for _, n := range findAll(doc, "script") {
		if attr(n, "type") != "application/ld+json" {
			continue
		}
		raw := textContent(renderNodes([]*html.Node{n}))
		var single jsonLDHeadline
		if err := json.Unmarshal([]byte(raw), &single); err == nil && single.Headline != "" {
			return single.Headline
		}
		var list []jsonLDHeadline
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			for _, item := range list {
				if item.Headline != "" {
					return item.Headline
				}
			}
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
