package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"

	"github.com/fetchkit/browsecore/internal/render/lightweight"
)

// pollInterval is how often the bot-challenge wait loop re-checks the page.
const pollInterval = 500 * time.Millisecond

// waitOutChallenge polls page up to maxWait, returning once the known
// challenge markers (shared with the Lightweight Renderer's detector) are no
// longer present in the HTML, or the page has navigated away from
// startURL — whichever comes first. It never returns an error: a challenge
// that never clears just means the caller keeps whatever HTML it has when
// maxWait elapses.
func waitOutChallenge(ctx context.Context, p *rod.Page, startURL string, maxWait time.Duration) (cleared bool) {
	if maxWait <= 0 {
		return true
	}
	deadline := time.Now().Add(maxWait)
	for {
		html, err := p.HTML()
		if err == nil && !lightweight.HasChallengeMarkers(html) {
			return true
		}
		if err == nil {
			if currentURL := evalStringOrEmpty(p, `() => window.location.href`); currentURL != "" && currentURL != startURL {
				return true
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
}

// lazyLoadSweep scrolls the page down in 80%-viewport steps to trigger
// infinite-scroll and lazy-image loading, reusing scraper/actions.go's
// Mouse.Scroll + 100ms settle-delay technique. It stops early once a scroll
// step no longer grows the document's scrollHeight.
func lazyLoadSweep(p *rod.Page, maxSteps int) error {
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return err
	}
	viewportHeight := res.Value.Int()
	step := int(float64(viewportHeight) * 0.8)
	if step <= 0 {
		return nil
	}

	lastHeight := scrollHeight(p)
	for i := 0; i < maxSteps; i++ {
		if err := p.Mouse.Scroll(0, float64(step), 0); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)

		h := scrollHeight(p)
		if h <= lastHeight {
			break
		}
		lastHeight = h
	}
	return nil
}

func scrollHeight(p *rod.Page) int {
	res, err := p.Eval(`() => document.documentElement.scrollHeight`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}
