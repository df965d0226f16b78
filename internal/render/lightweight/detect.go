package lightweight

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// challengeMarkers flags anti-bot interstitials, generalized from the
// purify's scraper/httpfetch.go:needsBrowser single-signal check into the
// spec's richer marker set (Cloudflare, reCAPTCHA, hCaptcha, generic
// bot-verification copy).
var challengeMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)cf-browser-verification`),
	regexp.MustCompile(`(?i)checking your browser`),
	regexp.MustCompile(`(?i)cf_chl_opt`),
	regexp.MustCompile(`(?i)g-recaptcha`),
	regexp.MustCompile(`(?i)recaptcha/api\.js`),
	regexp.MustCompile(`(?i)hcaptcha\.com`),
	regexp.MustCompile(`(?i)verify you are human`),
	regexp.MustCompile(`(?i)just a moment\.\.\.`),
	regexp.MustCompile(`(?i)ddos-guard`),
}

// HasChallengeMarkers reports whether rawHTML contains a known anti-bot
// interstitial signature. Exported so the Full Browser Renderer's bot-
// challenge wait loop can reuse the same marker set while polling a live
// page instead of a one-shot static fetch.
func HasChallengeMarkers(rawHTML string) bool {
	for _, re := range challengeMarkers {
		if re.MatchString(rawHTML) {
			return true
		}
	}
	return false
}

// shellTextThreshold is the minimum visible body-text length below which a
// page with an empty-looking root is treated as an unrendered SPA shell.
const shellTextThreshold = 1000

// detectChallenge scans rawHTML and the post-execution visible text for
// anti-bot markers or an SPA shell, setting NeedsFullBrowser so the Tiered
// Fetcher forces an up-tier attempt.
func detectChallenge(rawHTML string, doc *html.Node) (needsFullBrowser bool, reason string) {
	for _, re := range challengeMarkers {
		if re.MatchString(rawHTML) {
			return true, "challenge_marker"
		}
	}

	visible := strings.TrimSpace(visibleText(doc))
	if len(visible) < shellTextThreshold && hasEmptyAppRoot(doc) {
		return true, "spa_shell"
	}
	return false, ""
}

var appRootIDs = map[string]bool{"root": true, "app": true, "__next": true}

// hasEmptyAppRoot reports whether the document has a well-known SPA mount
// point (#root, #app, #__next) with no rendered children.
func hasEmptyAppRoot(doc *html.Node) bool {
	found := false
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" && appRootIDs[a.Val] {
					if n.FirstChild == nil {
						found = true
					}
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// visibleText concatenates text nodes under <body>, skipping <script> and
// <style> subtrees, for the shell-detection length check.
func visibleText(doc *html.Node) string {
	body := findNode(doc, "body")
	if body == nil {
		body = doc
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	return sb.String()
}

func findNode(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, tag); found != nil {
			return found
		}
	}
	return nil
}
