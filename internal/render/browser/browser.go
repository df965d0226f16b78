// Package browser implements the Full Browser Renderer (spec §4.6): a
// stealth-flagged headless Chrome driven via go-rod, pooled per
// (tenant, session_profile), with bot-challenge waiting, lazy-load scroll
// sweeps, and session (cookie/localStorage) persistence across visits.
//
// Grounded on purify's scraper package (scraper.go's browser launch and
// stealth flags, page.go's navigate/wait/extract lifecycle, actions.go's
// action dispatch, hijack.go's resource blocking) and engine/adaptive_pool.go
// — which purify itself defines but never wires into scraper.go (it
// uses a plain rod.Pool[rod.Page] instead). This package is the first to
// actually put AdaptivePool to work, scoped per tenant and session profile
// instead of one global pool.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/fetchkit/browsecore/config"
	"github.com/fetchkit/browsecore/engine"
	"github.com/fetchkit/browsecore/internal/render/lightweight"
	"github.com/fetchkit/browsecore/models"
)

// poolKey identifies one tenant/session-profile's dedicated page pool.
type poolKey struct {
	tenant  models.TenantID
	profile string
}

// Renderer owns the browser process and one adaptive page pool per
// (tenant, session_profile).
type Renderer struct {
	browser *rod.Browser
	poolCfg engine.AdaptivePoolConfig

	mu    sync.Mutex
	pools map[poolKey]*tenantPool

	sessions        SessionStore
	userAgent       string
	botChallengeMax time.Duration
}

// New launches a headless, stealth-flagged browser. sessions may be nil, in
// which case cookie/localStorage persistence across visits is skipped.
func New(browserCfg config.BrowserConfig, poolCfg engine.AdaptivePoolConfig, sessions SessionStore, userAgent string, botChallengeMax time.Duration) (*Renderer, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-prompt-on-repost"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeRendererUnavailable, "launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewCoreError(models.ErrCodeRendererUnavailable, "connect to browser", err)
	}

	return &Renderer{
		browser:         browser,
		poolCfg:         poolCfg,
		pools:           make(map[poolKey]*tenantPool),
		sessions:        sessions,
		userAgent:       userAgent,
		botChallengeMax: botChallengeMax,
	}, nil
}

// Close drains every tenant pool and kills the browser process.
func (r *Renderer) Close() {
	r.mu.Lock()
	pools := make([]*tenantPool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.Unlock()
	for _, p := range pools {
		p.Stop()
	}
	r.browser.MustClose()
}

func (r *Renderer) poolFor(tenant models.TenantID, profile string) (*tenantPool, error) {
	key := poolKey{tenant: tenant, profile: profile}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[key]; ok {
		return p, nil
	}
	p, err := newTenantPool(r.browser, r.poolCfg)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeRendererUnavailable, "create tenant page pool", err)
	}
	r.pools[key] = p
	return p, nil
}

// Options configures a single Browse call.
type Options struct {
	WaitFor              string // "load", "domcontentloaded", "networkidle"; default "domcontentloaded"
	WaitForSelector      string // if set, additionally wait for this CSS selector to become visible
	TimeoutMs            int64
	BlockedResourceTypes []string
	BlockAds             bool
	RemoveOverlays       bool
	ScrollToLoad         bool // run the lazy-load scroll sweep after the initial wait
	ScrollMaxSteps       int  // default 10 when ScrollToLoad is set
	CaptureConsole       bool
	CaptureNetwork       bool // install request/response listeners, populating Result.Network
	CaptureNetworkBodies bool // also fetch response bodies (export_har's include_bodies)
	Actions              []models.BrowsingAction
	BotChallengeMaxMs    int64 // overrides the Renderer's default when > 0
}

// Result is the Full Browser Renderer's output.
type Result struct {
	HTML          string
	Title         string
	StatusCode    int
	FinalURL      string
	Console       []models.ConsoleMessage
	Network       []models.NetworkRequest
	ActionResults []models.ActionResult
	ChallengeSeen bool
	ChallengeCleared bool
}

// Browse acquires a pooled page for (tenant, sessionProfile), restores any
// saved session state, navigates to pageURL, runs the bot-challenge wait
// loop, the optional lazy-load sweep and caller actions, then extracts the
// rendered page and persists session state back out.
func (r *Renderer) Browse(ctx context.Context, tenant models.TenantID, sessionProfile, pageURL string, opts Options) (*Result, error) {
	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := r.poolFor(tenant, sessionProfile)
	if err != nil {
		return nil, err
	}

	handle, page, err := pool.Get()
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeRendererUnavailable, "acquire pooled page", err)
	}
	success := false
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("browser: cleanup navigate to about:blank failed", "error", navErr)
		}
		pool.Put(handle, success)
	}()

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("browser: stealth injection failed, proceeding without it", "error", err)
	}
	if r.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.userAgent}); err != nil {
			slog.Warn("browser: failed to override user agent", "error", err)
		}
	}

	origin, originErr := originOf(pageURL)

	var session *SessionState
	if r.sessions != nil {
		session, err = r.sessions.Load(ctx, tenant, sessionProfile)
		if err != nil {
			return nil, err
		}
		for _, c := range session.Cookies {
			domain := c.Domain
			if domain == "" {
				domain = hostOf(pageURL)
			}
			path := c.Path
			if path == "" {
				path = "/"
			}
			_, _ = proto.NetworkSetCookie{Name: c.Name, Value: c.Value, Domain: domain, Path: path}.Call(page)
		}
		if originErr == nil {
			if store, ok := session.LocalStorage[origin]; ok && len(store) > 0 {
				if _, err := page.EvalOnNewDocument(localStorageSeedJS(store)); err != nil {
					slog.Warn("browser: localStorage seed injection failed", "error", err)
				}
			}
		}
	}
	if opts.CaptureConsole {
		if _, err := page.EvalOnNewDocument(consoleCaptureJS); err != nil {
			slog.Warn("browser: console capture injection failed", "error", err)
		}
	}

	router := setupHijack(page, opts.BlockedResourceTypes)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	var netCap *networkCapture
	if opts.CaptureNetwork {
		netCap = captureNetwork(p, opts.CaptureNetworkBodies)
	}

	if navErr := p.Navigate(pageURL); navErr != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "navigate to target URL", navErr)
	}
	if err := waitFor(p, opts.WaitFor); err != nil {
		slog.Debug("browser: wait strategy did not converge, proceeding", "error", err)
	}
	if opts.WaitForSelector != "" {
		if el, selErr := p.Timeout(5 * time.Second).Element(opts.WaitForSelector); selErr == nil {
			_ = el.WaitVisible()
		}
	}

	challengeMax := r.botChallengeMax
	if opts.BotChallengeMaxMs > 0 {
		challengeMax = time.Duration(opts.BotChallengeMaxMs) * time.Millisecond
	}
	challengeSeen := lightweight.HasChallengeMarkers(mustHTML(p))
	challengeCleared := true
	if challengeSeen {
		challengeCleared = waitOutChallenge(ctx, p, pageURL, challengeMax)
	}

	if opts.ScrollToLoad {
		steps := opts.ScrollMaxSteps
		if steps <= 0 {
			steps = 10
		}
		if err := lazyLoadSweep(p, steps); err != nil {
			slog.Debug("browser: lazy-load sweep failed", "error", err)
		}
	}

	if opts.RemoveOverlays {
		removeOverlays(p)
	}

	var actionResults []models.ActionResult
	if len(opts.Actions) > 0 {
		actionResults, err = executeActions(ctx, page, opts.Actions)
		if err != nil {
			return nil, err
		}
	}

	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "extract page HTML", htmlErr)
	}

	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = pageURL
	}

	var console []models.ConsoleMessage
	if opts.CaptureConsole {
		console = readConsoleCapture(p)
	}

	if r.sessions != nil && originErr == nil {
		cookies, _ := p.Cookies([]string{})
		session.Cookies = make([]SessionCookie, 0, len(cookies))
		for _, c := range cookies {
			session.Cookies = append(session.Cookies, SessionCookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
		}
		if store := readLocalStorage(p); len(store) > 0 {
			if session.LocalStorage == nil {
				session.LocalStorage = make(map[string]map[string]string)
			}
			session.LocalStorage[origin] = store
		}
		if err := r.sessions.Save(ctx, tenant, sessionProfile, session); err != nil {
			slog.Warn("browser: failed to persist session state", "error", err)
		}
	}

	success = statusCode == 0 || (statusCode >= 200 && statusCode < 400)

	var network []models.NetworkRequest
	if netCap != nil {
		network = netCap.Requests()
	}

	return &Result{
		HTML:             rawHTML,
		Title:            title,
		StatusCode:       statusCode,
		FinalURL:         finalURL,
		Console:          console,
		Network:          network,
		ActionResults:    actionResults,
		ChallengeSeen:    challengeSeen,
		ChallengeCleared: challengeCleared,
	}, nil
}

// ScreenshotOptions configures a single Screenshot call.
type ScreenshotOptions struct {
	FullPage        bool
	Element         string // CSS selector; when set, only this element is captured
	WaitForSelector string
	TimeoutMs       int64
	Width           int
	Height          int
}

// ScreenshotResult is the Full Browser Renderer's screenshot output.
type ScreenshotResult struct {
	PNG      []byte
	Title    string
	FinalURL string
	Width    int
	Height   int
}

// Screenshot acquires a pooled page for (tenant, sessionProfile), navigates
// to pageURL and captures a PNG — either the full page, the viewport, or a
// single element, following the same pool/stealth/session setup Browse
// uses. Session state is not persisted back: screenshot is a read-only,
// one-shot capture in this system's contract.
func (r *Renderer) Screenshot(ctx context.Context, tenant models.TenantID, sessionProfile, pageURL string, opts ScreenshotOptions) (*ScreenshotResult, error) {
	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := r.poolFor(tenant, sessionProfile)
	if err != nil {
		return nil, err
	}

	handle, page, err := pool.Get()
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeRendererUnavailable, "acquire pooled page", err)
	}
	success := false
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("browser: cleanup navigate to about:blank failed", "error", navErr)
		}
		pool.Put(handle, success)
	}()

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("browser: stealth injection failed, proceeding without it", "error", err)
	}
	if r.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.userAgent}); err != nil {
			slog.Warn("browser: failed to override user agent", "error", err)
		}
	}

	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 800
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  width,
		Height: height,
	}); err != nil {
		slog.Warn("browser: set viewport failed", "error", err)
	}

	p := page.Context(ctx)
	if navErr := p.Navigate(pageURL); navErr != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "navigate to target URL", navErr)
	}
	if err := waitFor(p, "load"); err != nil {
		slog.Debug("browser: wait strategy did not converge, proceeding", "error", err)
	}
	if opts.WaitForSelector != "" {
		if el, err := p.Timeout(5 * time.Second).Element(opts.WaitForSelector); err == nil {
			_ = el.WaitVisible()
		}
	}

	var png []byte
	if opts.Element != "" {
		el, elErr := p.Element(opts.Element)
		if elErr != nil {
			return nil, models.NewCoreError(models.ErrCodeValidationFailed, fmt.Sprintf("element %q not found", opts.Element), elErr)
		}
		png, err = el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	} else {
		png, err = p.Screenshot(opts.FullPage, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
	}
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "capture screenshot", err)
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = pageURL
	}

	success = true
	return &ScreenshotResult{
		PNG:      png,
		Title:    title,
		FinalURL: finalURL,
		Width:    width,
		Height:   height,
	}, nil
}

func evalStringOrEmpty(p *rod.Page, js string) string {
	res, err := p.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func mustHTML(p *rod.Page) string {
	html, err := p.HTML()
	if err != nil {
		return ""
	}
	return html
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

// consoleCaptureJS overrides console.log/warn/error to push entries onto
// window.__bc_console instead of relying on a CDP Runtime event listener,
// sidestepping the same Fetch/Network domain conflicts purify's own
// comments describe for hijacked pages (scraper/page.go).
const consoleCaptureJS = `() => {
	window.__bc_console = [];
	const wrap = (level, orig) => function(...args) {
		try {
			window.__bc_console.push({level: level, text: args.map(String).join(' ')});
		} catch (e) {}
		return orig.apply(console, args);
	};
	console.log = wrap('log', console.log);
	console.warn = wrap('warn', console.warn);
	console.error = wrap('error', console.error);
}`

func readConsoleCapture(p *rod.Page) []models.ConsoleMessage {
	res, err := p.Eval(`() => JSON.stringify(window.__bc_console || [])`)
	if err != nil {
		return nil
	}
	// Parse the stringified array directly with gson rather than
	// res.Value.Unmarshal, so each entry can be walked without a
	// matching Go struct — handy since __bc_console entries are
	// free-form and may grow fields over time.
	arr := gson.New(res.Value.Str()).Arr()
	out := make([]models.ConsoleMessage, 0, len(arr))
	now := time.Now()
	for _, entry := range arr {
		out = append(out, models.ConsoleMessage{
			Level:     entry.Get("level").Str(),
			Text:      entry.Get("text").Str(),
			Timestamp: now,
		})
	}
	return out
}

func readLocalStorage(p *rod.Page) map[string]string {
	res, err := p.Eval(`() => {
		const out = {};
		for (let i = 0; i < localStorage.length; i++) {
			const k = localStorage.key(i);
			out[k] = localStorage.getItem(k);
		}
		return JSON.stringify(out);
	}`)
	if err != nil {
		return nil
	}
	var out map[string]string
	if err := res.Value.Unmarshal(&out); err != nil {
		return nil
	}
	return out
}

func localStorageSeedJS(store map[string]string) string {
	js := "() => {"
	for k, v := range store {
		js += fmt.Sprintf("try { localStorage.setItem(%q, %q); } catch (e) {}\n", k, v)
	}
	js += "}"
	return js
}
