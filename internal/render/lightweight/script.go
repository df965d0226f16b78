package lightweight

import (
	"regexp"

	"golang.org/x/net/html"
)

// scriptSkipPatterns matches <script src> or inline content belonging to
// analytics, tag managers, social SDKs, and error trackers — categories the
// spec calls out as never worth executing in the simulated DOM. Caller-
// supplied patterns (Options.SkipPatterns) are appended at render time.
var scriptSkipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`google-analytics\.com`),
	regexp.MustCompile(`googletagmanager\.com`),
	regexp.MustCompile(`doubleclick\.net`),
	regexp.MustCompile(`connect\.facebook\.net`),
	regexp.MustCompile(`facebook\.net/.*fbevents`),
	regexp.MustCompile(`platform\.twitter\.com`),
	regexp.MustCompile(`cdn\.segment\.com`),
	regexp.MustCompile(`cdn\.mxpnl\.com`),
	regexp.MustCompile(`static\.hotjar\.com`),
	regexp.MustCompile(`fullstory\.com/s/fs\.js`),
	regexp.MustCompile(`js\.sentry-cdn\.com`),
	regexp.MustCompile(`browser\.sentry-cdn\.com`),
	regexp.MustCompile(`cdn\.amplitude\.com`),
	regexp.MustCompile(`js\.hs-scripts\.com`),
	regexp.MustCompile(`widget\.intercom\.io`),
	regexp.MustCompile(`js\.driftt\.com`),
	regexp.MustCompile(`gtag\(`),
	regexp.MustCompile(`fbq\(`),
	regexp.MustCompile(`_hsq\.push`),
}

// pageScript is one <script> tag in document order.
type pageScript struct {
	node    *html.Node
	src     string
	content string
	isModule bool
	skipped  bool
}

// collectScripts walks doc in document order, returning every <script>
// element with its source/content and a skip verdict against the built-in
// list plus extra (caller-provided) patterns.
func collectScripts(doc *html.Node, extra []*regexp.Regexp) []pageScript {
	var out []pageScript
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			s := pageScript{node: n}
			for _, a := range n.Attr {
				switch a.Key {
				case "src":
					s.src = a.Val
				case "type":
					if a.Val != "" && a.Val != "text/javascript" && a.Val != "application/javascript" {
						s.isModule = a.Val == "module"
						if a.Val != "module" {
							// non-JS type (e.g. application/json, application/ld+json) —
							// never executable, treat like a skip.
							s.skipped = true
						}
					}
				}
			}
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				s.content = n.FirstChild.Data
			}
			if !s.skipped {
				s.skipped = matchesSkipList(s.src, extra) || matchesSkipList(s.content, extra)
			}
			out = append(out, s)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func matchesSkipList(s string, extra []*regexp.Regexp) bool {
	if s == "" {
		return false
	}
	for _, re := range scriptSkipPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	for _, re := range extra {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func compileExtraPatterns(patterns []string) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			// Not a valid regex — treat it as a literal substring instead of
			// dropping the caller's pattern outright.
			re, err = regexp.Compile(regexp.QuoteMeta(p))
			if err != nil {
				continue
			}
		}
		out = append(out, re)
	}
	return out
}
