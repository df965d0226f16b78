package extract

import (
	"strings"
	"testing"
)

func TestResolveTitlePrefersOGTitle(t *testing.T) {
	e := New()
	rawHTML := `<html><head>
		<meta property="og:title" content="OG Title">
		<meta name="twitter:title" content="Twitter Title">
		<title>Tag Title</title>
	</head><body><h1>H1 Title</h1><main>` + strings.Repeat("word ", 20) + `</main></body></html>`

	content, err := e.Extract(rawHTML, "https://example.com/page", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if content.Title != "OG Title" {
		t.Fatalf("title = %q, want %q", content.Title, "OG Title")
	}
}

func TestResolveTitleFallsBackToH1(t *testing.T) {
	e := New()
	rawHTML := `<html><head></head><body><h1>Only H1</h1><main>` + strings.Repeat("word ", 20) + `</main></body></html>`
	content, err := e.Extract(rawHTML, "https://example.com/page", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if content.Title != "Only H1" {
		t.Fatalf("title = %q, want %q", content.Title, "Only H1")
	}
}

func TestMainContentFallsBackToDensityHeuristic(t *testing.T) {
	e := New()
	longText := strings.Repeat("This is a long paragraph of real article content. ", 10)
	rawHTML := `<html><body>
		<nav>Home About Contact</nav>
		<div class="article-content">` + longText + `</div>
		<footer>copyright</footer>
	</body></html>`

	content, _, err := e.ExtractWithTrace(rawHTML, "https://example.com/article", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(content.Text) < minContentLength {
		t.Fatalf("expected density heuristic to recover main content, got %d chars", len(content.Text))
	}
	if strings.Contains(content.Text, "Home About Contact") {
		t.Fatal("density heuristic should have excluded the nav block")
	}
}

func TestSelectorChainPrefersCallerSupplied(t *testing.T) {
	e := New()
	rawHTML := `<html><body>
		<main>` + strings.Repeat("default main content ", 10) + `</main>
		<div class="custom">` + strings.Repeat("custom selector content ", 10) + `</div>
	</body></html>`

	_, trace, err := e.ExtractWithTrace(rawHTML, "https://example.com", []string{".custom"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(trace.SelectorAttempts) == 0 {
		t.Fatal("expected at least one selector attempt")
	}
	if trace.SelectorAttempts[0].Selector != ".custom" {
		t.Fatalf("first attempt should be the caller-supplied selector, got %q", trace.SelectorAttempts[0].Selector)
	}
	if !trace.SelectorAttempts[0].Success {
		t.Fatal("caller-supplied selector should have succeeded")
	}
}

func TestExtractTables(t *testing.T) {
	e := New()
	rawHTML := `<html><body><table>
		<tr><th>Name</th><th>Price</th></tr>
		<tr><td>Widget</td><td>$5</td></tr>
		<tr><td>Gadget</td><td>$10</td></tr>
	</table><table></table></body></html>`

	content, err := e.Extract(rawHTML, "https://example.com", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(content.Tables) != 1 {
		t.Fatalf("expected 1 non-empty table retained, got %d", len(content.Tables))
	}
	tbl := content.Tables[0]
	if len(tbl.Headers) != 2 || tbl.Headers[0] != "Name" {
		t.Fatalf("unexpected headers: %+v", tbl.Headers)
	}
	if len(tbl.Rows) != 2 || tbl.Rows[0][0] != "Widget" {
		t.Fatalf("unexpected rows: %+v", tbl.Rows)
	}
}

func TestMarkdownRoundTripKeepsContent(t *testing.T) {
	e := New()
	rawHTML := `<html><body><article>
		<h1>Title</h1>
		<p>Paragraph with a <a href="https://example.com/link">link</a>.</p>
		<ul><li>one</li><li>two</li></ul>
	</article></body></html>`

	content, err := e.Extract(rawHTML, "https://example.com", nil)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	// Re-wrap the produced markdown as HTML and re-extract; the second pass
	// must still carry the heading text and both list items.
	wrapped := "<html><body><article>" + content.Markdown + "</article></body></html>"
	second, err := e.Extract(wrapped, "https://example.com", nil)
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if !strings.Contains(second.Markdown, "Title") {
		t.Fatalf("round-tripped markdown lost the title: %q", second.Markdown)
	}
	if !strings.Contains(second.Markdown, "one") || !strings.Contains(second.Markdown, "two") {
		t.Fatalf("round-tripped markdown lost list items: %q", second.Markdown)
	}
}

func TestExtractMetadata(t *testing.T) {
	rawHTML := `<html lang="en"><head>
		<meta name="description" content="A page about widgets">
		<meta name="author" content="Jane Doe">
		<meta property="og:site_name" content="Widget Co">
	</head><body>
		<a href="/about">About</a>
		<img src="/logo.png" alt="logo">
	</body></html>`

	meta := ExtractMetadata(rawHTML, "https://example.com/page")
	if meta.Description != "A page about widgets" {
		t.Fatalf("description = %q", meta.Description)
	}
	if meta.Author != "Jane Doe" {
		t.Fatalf("author = %q", meta.Author)
	}
	if meta.Language != "en" {
		t.Fatalf("language = %q", meta.Language)
	}
	if meta.SiteName != "Widget Co" {
		t.Fatalf("site name = %q", meta.SiteName)
	}
	if len(meta.Links) != 1 || meta.Links[0] != "https://example.com/about" {
		t.Fatalf("links = %v", meta.Links)
	}
	if len(meta.Images) != 1 || meta.Images[0] != "https://example.com/logo.png" {
		t.Fatalf("images = %v", meta.Images)
	}
}
