package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/fetchkit/browsecore/models"
)

// actionTimeout is the per-action deadline, matching purify's scraper.
const actionTimeout = 10 * time.Second

// executeActions runs action_sequence in order against page, adapting the
// purify's switch-dispatch to this system's own models.BrowsingAction instead
// of purify's unexported models.Action. A critical action's failure
// (click, fill, select — see ActionType.Critical) aborts the remaining
// sequence; a non-critical failure (scroll, wait, extract, dismiss_banner)
// is recorded and execution continues.
func executeActions(ctx context.Context, page *rod.Page, actions []models.BrowsingAction) ([]models.ActionResult, error) {
	results := make([]models.ActionResult, 0, len(actions))
	for i, action := range actions {
		start := time.Now()
		err := executeSingleAction(ctx, page, action)
		res := models.ActionResult{
			Type:     action.Type,
			Selector: action.Selector,
			Success:  err == nil,
			Duration: time.Since(start),
		}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)

		if err != nil && action.Type.Critical() {
			return results, models.NewCoreError(models.ErrCodeInternal,
				fmt.Sprintf("action %d (%s) failed after %d completed", i, action.Type, i), err)
		}
	}
	return results, nil
}

func executeSingleAction(ctx context.Context, page *rod.Page, action models.BrowsingAction) error {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	p := page.Context(actionCtx)

	switch action.Type {
	case models.ActionNavigate:
		return execNavigate(p, action)
	case models.ActionClick:
		return execClick(p, action)
	case models.ActionFill:
		return execFill(p, action)
	case models.ActionSelect:
		return execSelect(p, action)
	case models.ActionScroll:
		return execScroll(p, action)
	case models.ActionWait:
		return execWait(p, action)
	case models.ActionExtract:
		// Extract is a no-op marker; the caller captures page state itself.
		return nil
	case models.ActionDismissBanner:
		removeOverlays(p)
		return nil
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

func execNavigate(p *rod.Page, action models.BrowsingAction) error {
	if action.URL == "" {
		return fmt.Errorf("navigate action requires a url")
	}
	if err := p.Navigate(action.URL); err != nil {
		return err
	}
	return waitFor(p, action.WaitFor)
}

func execClick(p *rod.Page, action models.BrowsingAction) error {
	if action.Selector == "" {
		return fmt.Errorf("click action requires a selector")
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func execFill(p *rod.Page, action models.BrowsingAction) error {
	if action.Selector == "" {
		return fmt.Errorf("fill action requires a selector")
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(action.Value)
}

func execSelect(p *rod.Page, action models.BrowsingAction) error {
	if action.Selector == "" {
		return fmt.Errorf("select action requires a selector")
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Select([]string{action.Value}, true, rod.SelectorTypeText)
}

// execScroll scrolls one viewport's worth of pixels, reusing purify's
// Mouse.Scroll + 100ms settle-pause technique (scraper/actions.go:execScroll)
// so lazy-loaded content has time to trigger.
func execScroll(p *rod.Page, action models.BrowsingAction) error {
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to get viewport height: %w", err)
	}
	viewportHeight := res.Value.Int()

	scrollDelta := viewportHeight
	if action.Value == "up" {
		scrollDelta = -viewportHeight
	}
	if err := p.Mouse.Scroll(0, float64(scrollDelta), 0); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	time.Sleep(100 * time.Millisecond)
	return nil
}

func execWait(p *rod.Page, action models.BrowsingAction) error {
	if action.Selector != "" {
		return p.WaitElementsMoreThan(action.Selector, 0)
	}
	return waitFor(p, action.WaitFor)
}

// waitFor implements the small vocabulary of wait_for strategies shared by
// navigate and wait actions: "load", "domcontentloaded" (DOM-stability
// fallback, per purify's Fetch-domain conflict note), "networkidle",
// or empty (no wait).
func waitFor(p *rod.Page, strategy string) error {
	switch strategy {
	case "", "domcontentloaded":
		return p.WaitDOMStable(300*time.Millisecond, 0.1)
	case "load":
		return p.WaitLoad()
	case "networkidle":
		wait := p.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
		wait()
		return nil
	default:
		return nil
	}
}

// removeOverlays injects JS to remove fixed/sticky positioned elements with
// high z-index and common cookie/consent/popup markup, adapted verbatim
// from scraper/page.go:removeOverlays (domain-agnostic, no rewrite needed).
func removeOverlays(p *rod.Page) {
	const js = `() => {
		const els = document.querySelectorAll('*');
		for (const el of els) {
			const style = window.getComputedStyle(el);
			const pos = style.position;
			if (pos === 'fixed' || pos === 'sticky') {
				const z = parseInt(style.zIndex, 10);
				if (z >= 900 || style.zIndex === 'auto') {
					el.remove();
				}
			}
		}
		const selectors = [
			'[class*="cookie"]', '[class*="consent"]', '[class*="overlay"]',
			'[id*="cookie"]', '[id*="consent"]', '[id*="overlay"]',
			'[class*="popup"]', '[id*="popup"]',
			'[class*="gdpr"]', '[id*="gdpr"]',
		];
		for (const sel of selectors) {
			document.querySelectorAll(sel).forEach(el => {
				const style = window.getComputedStyle(el);
				if (style.position === 'fixed' || style.position === 'sticky' || style.position === 'absolute') {
					el.remove();
				}
			});
		}
		document.documentElement.style.overflow = '';
		document.body.style.overflow = '';
	}`
	_, _ = p.Eval(js)
}
