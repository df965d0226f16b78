// Package lightweight implements the Lightweight Renderer (spec §4.5): it
// parses HTML into an in-memory DOM and executes classified, non-skip-
// listed <script> tags in a goja-hosted simulated browser environment, one
// script at a time in document order. Purify has no equivalent tier —
// this package is new, grounded on the goja-VM-with-injected-Go-builtins
// shape used elsewhere in the corpus (other_examples' sentra runtime
// executor registers Go builtins into a goja.Runtime the same way this
// package registers document/location/fetch).
package lightweight

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/fetchkit/browsecore/models"
)

const defaultAsyncWaitMS = 100

// JarProvider supplies the cookie jar for a (tenant, session_profile) pair,
// satisfied by *static.Renderer so cookies set by the static tier are
// visible to scripts run by this tier.
type JarProvider interface {
	JarFor(tenant models.TenantID, profile string) http.CookieJar
}

// Options configures a single Render call.
type Options struct {
	UserAgent    string
	SkipPatterns []string // extra skip-list patterns, matched against script src/content
	AsyncWaitMS  int       // wait after script execution before serializing the DOM; default 100
}

// Result is the Lightweight Renderer's output.
type Result struct {
	FinalURL         string
	HTML             string
	Network          []models.NetworkRequest
	ScriptErrors     []string
	NeedsFullBrowser bool
	AnomalyReason    string
}

// Renderer executes scripted HTML against a simulated DOM.
type Renderer struct {
	jars JarProvider
}

// New builds a Renderer sharing cookie jars with jars (typically the static
// tier's Renderer).
func New(jars JarProvider) *Renderer {
	return &Renderer{jars: jars}
}

// Render parses rawHTML, runs every non-skipped script sequentially in
// document order, waits AsyncWaitMS for fetch-driven mutations, then
// serializes the DOM and runs the challenge/SPA-shell detector.
func (r *Renderer) Render(ctx context.Context, tenant models.TenantID, sessionProfile, pageURL, rawHTML string, opts Options) (*Result, error) {
	waitMS := opts.AsyncWaitMS
	if waitMS == 0 {
		waitMS = defaultAsyncWaitMS
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, "parse page URL", err)
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeValidationFailed, "parse HTML for lightweight render", err)
	}

	var jar http.CookieJar
	if r.jars != nil {
		jar = r.jars.JarFor(tenant, sessionProfile)
	}

	client := &http.Client{Jar: jar}
	pr := newPageRuntime(ctx, client, jar, parsed, opts.UserAgent)

	extra := compileExtraPatterns(opts.SkipPatterns)
	scripts := collectScripts(doc, extra)

	var scriptErrors []string
	for _, s := range scripts {
		if s.skipped || s.isModule {
			continue
		}
		source, err := r.resolveScriptSource(ctx, client, parsed, s)
		if err != nil {
			scriptErrors = append(scriptErrors, err.Error())
			continue
		}
		if _, err := pr.vm.RunString(source); err != nil {
			scriptErrors = append(scriptErrors, err.Error())
		}
	}

	if waitMS > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(waitMS) * time.Millisecond):
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "serialize DOM after script execution", err)
	}
	finalHTML := buf.String()

	needsBrowser, reason := detectChallenge(finalHTML, doc)

	return &Result{
		FinalURL:         parsed.String(),
		HTML:             finalHTML,
		Network:          pr.network,
		ScriptErrors:     scriptErrors,
		NeedsFullBrowser: needsBrowser,
		AnomalyReason:    reason,
	}, nil
}

// resolveScriptSource returns the JS source to execute: inline content, or
// the body of a fetched external <script src>.
func (r *Renderer) resolveScriptSource(ctx context.Context, client *http.Client, base *url.URL, s pageScript) (string, error) {
	if s.src == "" {
		return s.content, nil
	}
	scriptURL, err := base.Parse(s.src)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scriptURL.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, 10<<20)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
