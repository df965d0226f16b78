package extract

import (
	"bytes"
	"math"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/fetchkit/browsecore/models"
)

// minContentLength is the minimum inner-text length (characters) a main
// content candidate must reach to be accepted, per spec §4.7.
const minContentLength = 50

// defaultSelectorChain is tried after any caller-supplied chain, in order.
var defaultSelectorChain = []string{"main", "article", `[role="main"]`, "#content", ".content"}

// resolveMainContent tries chain (caller selectors first, then the built-in
// defaults) in order; the first whose inner text is >= minContentLength
// wins. If nothing in the chain qualifies, it falls back to autoExtract,
// which races go-readability against the density heuristic and keeps
// whichever recovered more signal. Every attempt — including the winning
// one — is recorded for the Learning Engine's selector-reinforcement
// bookkeeping.
func resolveMainContent(doc *html.Node, rawHTML, sourceURL string, chain []string) (winHTML string, winSelector string, attempts []models.SelectorAttempt) {
	fullChain := append(append([]string{}, chain...), defaultSelectorChain...)

	for _, sel := range fullChain {
		parsed, err := cascadia.Parse(sel)
		if err != nil {
			continue
		}
		matches := cascadia.QueryAll(doc, parsed)
		if len(matches) == 0 {
			continue
		}
		candidate := renderNodes(matches)
		text := strings.TrimSpace(textContent(candidate))
		success := len(text) >= minContentLength
		attempts = append(attempts, models.SelectorAttempt{
			Selector:    sel,
			ContentType: models.ContentMain,
			Success:     success,
			TextLength:  len(text),
		})
		if success && winHTML == "" {
			winHTML, winSelector = candidate, sel
		}
	}
	if winHTML != "" {
		return winHTML, winSelector, attempts
	}

	autoHTML, autoText, source := autoExtract(doc, rawHTML, sourceURL)
	attempts = append(attempts, models.SelectorAttempt{
		Selector:    source,
		ContentType: models.ContentMain,
		Success:     len(autoText) >= minContentLength,
		TextLength:  len(autoText),
	})
	return autoHTML, source, attempts
}

// autoExtract runs go-readability and the density heuristic concurrently
// and keeps whichever extracted more text, the same pick-the-larger-result
// rule as purify's cleaner/pipeline.go autoExtract, with one addition:
// if the longer result is more than 10x the shorter, the shorter one is
// preferred as likely less noisy (same guard purify applies).
func autoExtract(doc *html.Node, rawHTML, sourceURL string) (winHTML, winText, source string) {
	type outcome struct {
		html, text string
	}
	readCh := make(chan outcome, 1)
	densityCh := make(chan outcome, 1)

	go func() {
		h, t, _ := readabilityExtract(rawHTML, sourceURL)
		readCh <- outcome{h, t}
	}()
	go func() {
		h, t := densityHeuristic(doc)
		densityCh <- outcome{h, t}
	}()
	read := <-readCh
	density := <-densityCh

	useReadability := len(read.text) >= len(density.text)
	if useReadability && len(density.text) > minContentLength && len(read.text) > 10*len(density.text) {
		useReadability = false
	} else if !useReadability && len(read.text) > minContentLength && len(density.text) > 10*len(read.text) {
		useReadability = true
	}

	if useReadability {
		return read.html, read.text, "readability"
	}
	return density.html, density.text, "density-heuristic"
}

func renderNodes(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, n := range nodes {
		html.Render(&buf, n)
	}
	return buf.String()
}

func textContent(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}

// Signal weights for the density scorer, generalized from purify's
// cleaner/pruning.go block scorer.
const (
	wTextDensity   = 3.0
	wLinkDensity   = -2.0
	wTagWeight     = 1.5
	wClassIDWeight = 1.0
	wTextLength    = 0.5
)

var positiveClassIDPatterns = []string{"content", "article", "post", "entry", "body", "main", "text"}
var negativeClassIDPatterns = []string{
	"sidebar", "ad", "widget", "nav", "menu", "comment", "footer",
	"header", "banner", "popup", "modal", "cookie", "social", "share",
	"related", "recommend", "promo",
}

// densityHeuristic scores every top-level <body> child by text density,
// link density, tag semantics, and class/id signals, retaining blocks that
// score above zero. Falls back to the full body if nothing qualifies.
func densityHeuristic(doc *html.Node) (retainedHTML, retainedText string) {
	body := findFirst(doc, "body")
	if body == nil {
		var buf bytes.Buffer
		html.Render(&buf, doc)
		return buf.String(), textContent(buf.String())
	}

	var kept []string
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		score := scoreElement(c)
		if score > 0 {
			var buf bytes.Buffer
			html.Render(&buf, c)
			kept = append(kept, buf.String())
		}
	}
	if len(kept) == 0 {
		var buf bytes.Buffer
		html.Render(&buf, body)
		full := buf.String()
		return full, textContent(full)
	}
	joined := strings.Join(kept, "\n")
	return joined, textContent(joined)
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func scoreElement(el *html.Node) float64 {
	var buf bytes.Buffer
	html.Render(&buf, el)
	fullHTML := buf.String()
	text := strings.TrimSpace(textContent(fullHTML))
	textLen := len(text)
	totalLen := len(fullHTML)

	textDensity := 0.0
	if totalLen > 0 {
		textDensity = float64(textLen) / float64(totalLen)
	}

	linkTextLen := 0
	for _, a := range findAll(el, "a") {
		var ab bytes.Buffer
		html.Render(&ab, a)
		linkTextLen += len(strings.TrimSpace(textContent(ab.String())))
	}
	linkDensity := 0.0
	if textLen > 0 {
		linkDensity = float64(linkTextLen) / float64(textLen)
	}

	score := textDensity*wTextDensity +
		linkDensity*wLinkDensity +
		tagWeight(el.Data)*wTagWeight +
		classIDWeight(el)*wClassIDWeight +
		math.Log10(float64(textLen)+1)*wTextLength
	return score
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func tagWeight(tag string) float64 {
	switch tag {
	case "article", "main", "section":
		return 5.0
	case "nav", "footer", "aside", "header":
		return -5.0
	default:
		return 0.0
	}
}

func classIDWeight(el *html.Node) float64 {
	var class, id string
	for _, a := range el.Attr {
		switch a.Key {
		case "class":
			class = a.Val
		case "id":
			id = a.Val
		}
	}
	combined := strings.ToLower(class + " " + id)
	score := 0.0
	for _, pat := range positiveClassIDPatterns {
		if strings.Contains(combined, pat) {
			score += 3.0
			break
		}
	}
	for _, pat := range negativeClassIDPatterns {
		if strings.Contains(combined, pat) {
			score -= 3.0
			break
		}
	}
	return score
}
