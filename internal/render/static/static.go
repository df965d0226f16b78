// Package static implements the Static Renderer (spec §4.4, the
// intelligence tier): a plain HTTP GET with a Chrome-shaped TLS
// fingerprint and a per-(tenant, session_profile) cookie jar, no script
// execution. Grounded on purify's engine/http_engine.go, generalized
// from a single global client to one scoped per tenant/session and wired
// to the rest of the pipeline's NetworkRequest/CoreError shapes.
package static

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"

	"github.com/fetchkit/browsecore/models"
)

const defaultMaxBodyBytes = 10 << 20 // 10 MB

// chromeH1Spec is a Chrome-shaped ClientHello with ALPN forced to
// http/1.1, since Go's http.Transport cannot speak h2 over a utls
// connection. Computed once at init and reused for every dial.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// Options configures a single Render call.
type Options struct {
	UserAgent         string
	Headers           map[string]string
	Cookies           []*http.Cookie
	MaxRedirects      int  // default 10
	FetchRedirectBody bool // if true, don't follow the first redirect — return its body as-is
	ProxyURL          string // http(s) proxy override; empty uses a direct connection
}

// Result is the Static Renderer's output shape.
type Result struct {
	FinalURL       string
	HTML           string
	Headers        http.Header
	CookiesSet     []*http.Cookie
	Status         int
	NetworkRequest models.NetworkRequest
}

// jarKey identifies a cookie jar scope.
type jarKey struct {
	tenant  models.TenantID
	profile string
}

// Renderer performs unscripted HTTP fetches with a shared, tenant-scoped
// cookie store.
type Renderer struct {
	mu   sync.Mutex
	jars map[jarKey]http.CookieJar
}

// New builds a Renderer using the Chrome TLS fingerprint dialer.
func New() *Renderer {
	return &Renderer{jars: make(map[jarKey]http.CookieJar)}
}

// JarFor returns the cookie jar for (tenant, profile), creating it if this
// is the first use. Exported so other tiers (the Lightweight Renderer) can
// share static's cookie state within the same session, per this system's
// requirement that cookies set by one tier are readable by the next.
func (r *Renderer) JarFor(tenant models.TenantID, profile string) http.CookieJar {
	return r.jarFor(tenant, profile)
}

func (r *Renderer) jarFor(tenant models.TenantID, profile string) http.CookieJar {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := jarKey{tenant, profile}
	jar, ok := r.jars[key]
	if !ok {
		jar, _ = cookiejar.New(nil)
		r.jars[key] = jar
	}
	return jar
}

func (r *Renderer) client(jar http.CookieJar, maxRedirects int, proxyURL string) *http.Client {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("static: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}
	return &http.Client{
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("static: too many redirects (>%d)", maxRedirects)
			}
			return nil
		},
	}
}

// Render performs the GET and returns the fetched page. Responses with status
// >= 400 and transport failures are returned as plain errors; the Tiered Fetcher
// classifies them into a FailureReason (http_error, network, timeout) when
// deciding whether to escalate tiers.
func (r *Renderer) Render(ctx context.Context, tenant models.TenantID, sessionProfile, rawURL string, opts Options) (*Result, error) {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, "parse URL", err)
	}
	jar := r.jarFor(tenant, sessionProfile)
	for _, c := range opts.Cookies {
		jar.SetCookies(parsed, []*http.Cookie{c})
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInvalidURL, "build request", err)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
	}
	httpReq.Header.Set("User-Agent", ua)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")
	for k, v := range opts.Headers {
		httpReq.Header.Set(k, v)
	}

	client := r.client(jar, opts.MaxRedirects, opts.ProxyURL)
	if opts.FetchRedirectBody {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	started := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("static: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("static: read response body: %w", err)
	}
	bodyStr := string(body)

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("static: non-2xx status %d", resp.StatusCode)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	finalParsed, err := url.Parse(finalURL)
	if err != nil {
		finalParsed = parsed
	}

	netReq := models.NetworkRequest{
		URL:         finalURL,
		Method:      http.MethodGet,
		Status:      resp.StatusCode,
		Headers:     flattenHeader(resp.Header),
		ContentType: resp.Header.Get("Content-Type"),
		Timestamp:   started,
	}

	return &Result{
		FinalURL:       finalURL,
		HTML:           bodyStr,
		Headers:        resp.Header,
		CookiesSet:     jar.Cookies(finalParsed),
		Status:         resp.StatusCode,
		NetworkRequest: netReq,
	}, nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// ExtractTitle scans HTML for the first <title> element, used as a cheap
// pre-extraction signal before the full Content Extractor runs.
func ExtractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
