package lightweight

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"golang.org/x/net/html"

	"github.com/fetchkit/browsecore/models"
)

type fakeJars struct {
	mu   sync.Mutex
	jars map[string]http.CookieJar
}

func newFakeJars() *fakeJars { return &fakeJars{jars: make(map[string]http.CookieJar)} }

func (f *fakeJars) JarFor(tenant models.TenantID, profile string) http.CookieJar {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(tenant) + "|" + profile
	jar, ok := f.jars[key]
	if !ok {
		jar, _ = cookiejar.New(nil)
		f.jars[key] = jar
	}
	return jar
}

func TestCollectScriptsSkipsAnalytics(t *testing.T) {
	rawHTML := `<html><head>
<script src="https://www.googletagmanager.com/gtm.js"></script>
<script>doSomethingReal();</script>
</head><body></body></html>`
	doc := mustParse(t, rawHTML)
	scripts := collectScripts(doc, nil)
	if len(scripts) != 2 {
		t.Fatalf("got %d scripts, want 2", len(scripts))
	}
	if !scripts[0].skipped {
		t.Fatal("googletagmanager script should be skipped")
	}
	if scripts[1].skipped {
		t.Fatal("plain inline script should not be skipped")
	}
}

func TestCollectScriptsCustomSkipPattern(t *testing.T) {
	rawHTML := `<script src="https://example.com/vendor/mystery-tracker.js"></script>`
	doc := mustParse(t, rawHTML)
	scripts := collectScripts(doc, compileExtraPatterns([]string{"mystery-tracker"}))
	if len(scripts) != 1 || !scripts[0].skipped {
		t.Fatal("caller-supplied pattern should mark the script skipped")
	}
}

func TestModuleScriptsAreSkippedAtRenderTime(t *testing.T) {
	rawHTML := `<html><body><script type="module">window.__ran = true;</script></body></html>`
	r := New(newFakeJars())
	res, err := r.Render(context.Background(), models.TenantID("t1"), "default", "https://example.com/", rawHTML, Options{})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if len(res.ScriptErrors) != 0 {
		t.Fatalf("module script should not execute or error, got %v", res.ScriptErrors)
	}
}

func TestRenderSetsDocumentCookieOnSharedJar(t *testing.T) {
	rawHTML := `<html><body><script>document.cookie = "session=abc123";</script></body></html>`
	jars := newFakeJars()
	r := New(jars)
	_, err := r.Render(context.Background(), models.TenantID("t1"), "default", "https://example.com/", rawHTML, Options{})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	jar := jars.JarFor(models.TenantID("t1"), "default")
	u := mustURL(t, "https://example.com/")
	found := false
	for _, c := range jar.Cookies(u) {
		if c.Name == "session" && c.Value == "abc123" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected document.cookie write to land in the shared jar")
	}
}

func TestFetchCapturesNetworkRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rawHTML := `<html><body><script>
fetch("` + srv.URL + `/api").then(function(r) { return r.text(); });
</script></body></html>`
	r := New(newFakeJars())
	res, err := r.Render(context.Background(), models.TenantID("t1"), "default", srv.URL+"/", rawHTML, Options{})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if len(res.Network) != 1 {
		t.Fatalf("got %d network requests, want 1", len(res.Network))
	}
	if res.Network[0].Status != 200 {
		t.Fatalf("got status %d, want 200", res.Network[0].Status)
	}
}

func TestWorkerThrowsScriptError(t *testing.T) {
	rawHTML := `<html><body><script>new Worker("x.js");</script></body></html>`
	r := New(newFakeJars())
	res, err := r.Render(context.Background(), models.TenantID("t1"), "default", "https://example.com/", rawHTML, Options{})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if len(res.ScriptErrors) != 1 {
		t.Fatalf("got %d script errors, want 1", len(res.ScriptErrors))
	}
}

func TestWebSocketThrowsScriptError(t *testing.T) {
	rawHTML := `<html><body><script>new WebSocket("wss://example.com");</script></body></html>`
	r := New(newFakeJars())
	res, err := r.Render(context.Background(), models.TenantID("t1"), "default", "https://example.com/", rawHTML, Options{})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if len(res.ScriptErrors) != 1 {
		t.Fatalf("got %d script errors, want 1", len(res.ScriptErrors))
	}
}

func TestDetectChallengeMarker(t *testing.T) {
	rawHTML := `<html><body>Checking your browser before accessing example.com</body></html>`
	doc := mustParse(t, rawHTML)
	needs, reason := detectChallenge(rawHTML, doc)
	if !needs || reason != "challenge_marker" {
		t.Fatalf("got (%v, %q), want (true, challenge_marker)", needs, reason)
	}
}

func TestDetectSPAShell(t *testing.T) {
	rawHTML := `<html><body><div id="root"></div></body></html>`
	doc := mustParse(t, rawHTML)
	needs, reason := detectChallenge(rawHTML, doc)
	if !needs || reason != "spa_shell" {
		t.Fatalf("got (%v, %q), want (true, spa_shell)", needs, reason)
	}
}

func TestDetectChallengeIgnoresOrdinaryPage(t *testing.T) {
	rawHTML := `<html><body><article>` + strings.Repeat("word ", 300) + `</article></body></html>`
	doc := mustParse(t, rawHTML)
	needs, _ := detectChallenge(rawHTML, doc)
	if needs {
		t.Fatal("ordinary long-text page should not be flagged")
	}
}

func mustParse(t *testing.T, rawHTML string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		t.Fatalf("parse HTML: %v", err)
	}
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	return u
}
