package extract

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// readabilityExtract runs the Mozilla Readability algorithm on rawHTML,
// kept from purify's cleaner/readability.go almost verbatim: on any
// failure (bad URL, extraction error, or content shorter than
// minContentLength) it falls back to the raw HTML so the pipeline never
// produces an empty result.
func readabilityExtract(rawHTML, sourceURL string) (html, text string, ok bool) {
	parsed, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("extract: invalid source URL for readability, falling back to raw HTML", "url", sourceURL, "error", err)
		return rawHTML, textContent(rawHTML), false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		slog.Warn("extract: readability failed, falling back to raw HTML", "url", sourceURL, "error", err)
		return rawHTML, textContent(rawHTML), false
	}
	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		return rawHTML, textContent(rawHTML), false
	}
	return article.Content, article.TextContent, true
}
