// Package extract implements the Content Extractor (spec §4.7): a pure
// function over (html, url, selector_chain) producing title/text/markdown/
// tables, generalizing purify's cleaner/ package (readability +
// pruning + selector + markdown stages) into this system's single extract /
// extract_with_trace entry points.
package extract

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"golang.org/x/net/html"

	"github.com/fetchkit/browsecore/models"
)

// Extractor converts raw HTML into this system's PageContent shape. It is
// stateless except for the reused Markdown converter (goroutine-safe, like
// purify's cleaner.Cleaner).
type Extractor struct {
	md *converter.Converter
}

// New builds an Extractor with a shared Markdown converter.
func New() *Extractor {
	return &Extractor{md: newMarkdownConverter()}
}

// Trace carries the per-attempt detail extract_with_trace exposes.
type Trace struct {
	SelectorAttempts []models.SelectorAttempt
	TitleAttempts    []models.TitleAttempt
}

// Extract runs the full pipeline and returns only the final content.
func (e *Extractor) Extract(rawHTML, sourceURL string, selectorChain []string) (models.PageContent, error) {
	content, _, err := e.ExtractWithTrace(rawHTML, sourceURL, selectorChain)
	return content, err
}

// ExtractWithTrace runs the full pipeline and also returns every selector
// and title attempt, for the Learning Engine and Decision Trace.
func (e *Extractor) ExtractWithTrace(rawHTML, sourceURL string, selectorChain []string) (models.PageContent, Trace, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return models.PageContent{}, Trace{}, models.NewCoreError(models.ErrCodeValidationFailed, "parse HTML for extraction", err)
	}

	title, titleAttempts := resolveTitle(doc)
	mainHTML, _, selectorAttempts := resolveMainContent(doc, rawHTML, sourceURL, selectorChain)
	tables := extractTables(doc)

	md, err := toMarkdown(e.md, mainHTML, sourceURL)
	if err != nil {
		md = textContent(mainHTML)
	}

	content := models.PageContent{
		Title:    title,
		Text:     strings.TrimSpace(textContent(mainHTML)),
		Markdown: md,
		HTML:     mainHTML,
		Tables:   tables,
	}
	return content, Trace{SelectorAttempts: selectorAttempts, TitleAttempts: titleAttempts}, nil
}

// ExtractMetadata pulls page-level metadata independent of main-content
// resolution — links, images, Open Graph tags, description/author/
// language — used to populate ResultMetadata.
func ExtractMetadata(rawHTML, sourceURL string) models.ResultMetadata {
	return models.ResultMetadata{
		Description: metaContent(rawHTML, "description"),
		Author:      metaContent(rawHTML, "author"),
		Language:    htmlLang(rawHTML),
		SiteName:    extractOpenGraph(rawHTML)["site_name"],
		OpenGraph:   extractOpenGraph(rawHTML),
		Links:       extractLinks(rawHTML, sourceURL),
		Images:      extractImages(rawHTML, sourceURL),
	}
}

func htmlLang(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	n := findFirst(doc, "html")
	if n == nil {
		return ""
	}
	return attr(n, "lang")
}

// TokenSavings reports the estimated token reduction between raw HTML and
// the final cleaned content, mirroring purify's cleaner.Cleaner
// savings calculation.
func TokenSavings(rawHTML, cleaned string) (originalTokens, cleanedTokens int, savingsPercent float64) {
	originalTokens = EstimateTokens(rawHTML)
	cleanedTokens = EstimateTokens(cleaned)
	if originalTokens == 0 {
		return originalTokens, cleanedTokens, 0
	}
	savingsPercent = float64(originalTokens-cleanedTokens) / float64(originalTokens) * 100
	return originalTokens, cleanedTokens, savingsPercent
}
