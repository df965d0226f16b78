package browser

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/models"
)

func TestBlockedResourceSetIgnoresUnknownNames(t *testing.T) {
	set := blockedResourceSet([]string{"Image", "Font", "TotallyMadeUp"})
	if len(set) != 2 {
		t.Fatalf("got %d entries, want 2", len(set))
	}
}

func TestBlockedResourceSetEmpty(t *testing.T) {
	if set := blockedResourceSet(nil); len(set) != 0 {
		t.Fatalf("got %d entries, want 0", len(set))
	}
}

func TestActionTypeCriticalSet(t *testing.T) {
	critical := []models.ActionType{models.ActionClick, models.ActionFill, models.ActionSelect}
	for _, a := range critical {
		if !a.Critical() {
			t.Fatalf("%s should be critical", a)
		}
	}
	nonCritical := []models.ActionType{models.ActionNavigate, models.ActionScroll, models.ActionWait, models.ActionExtract, models.ActionDismissBanner}
	for _, a := range nonCritical {
		if a.Critical() {
			t.Fatalf("%s should not be critical", a)
		}
	}
}

func TestKVSessionStoreRoundTrip(t *testing.T) {
	store, err := kv.Open(":memory:")
	if err != nil {
		t.Fatalf("open kv store: %v", err)
	}
	defer store.Close()

	sessions := NewKVSessionStore(store)
	ctx := context.Background()
	tenant := models.TenantID("t1")

	state, err := sessions.Load(ctx, tenant, "default")
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if state.LocalStorage == nil || len(state.Cookies) != 0 {
		t.Fatalf("expected empty initial state, got %+v", state)
	}

	state.Cookies = []SessionCookie{{Name: "session", Value: "abc123", Domain: "example.com", Path: "/"}}
	state.LocalStorage["https://example.com"] = map[string]string{"theme": "dark"}
	if err := sessions.Save(ctx, tenant, "default", state); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := sessions.Load(ctx, tenant, "default")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Cookies) != 1 || reloaded.Cookies[0].Value != "abc123" {
		t.Fatalf("cookies did not round-trip: %+v", reloaded.Cookies)
	}
	if reloaded.LocalStorage["https://example.com"]["theme"] != "dark" {
		t.Fatalf("localStorage did not round-trip: %+v", reloaded.LocalStorage)
	}
}

func TestSessionStateJSONShape(t *testing.T) {
	state := SessionState{
		Cookies:      []SessionCookie{{Name: "a", Value: "b"}},
		LocalStorage: map[string]map[string]string{"https://x.test": {"k": "v"}},
	}
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back SessionState
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Cookies[0].Name != "a" {
		t.Fatal("cookie did not survive round-trip")
	}
}

func TestOriginOf(t *testing.T) {
	origin, err := originOf("https://example.com/path?q=1")
	if err != nil {
		t.Fatalf("originOf: %v", err)
	}
	if origin != "https://example.com" {
		t.Fatalf("got %q, want https://example.com", origin)
	}
}

func TestHostOf(t *testing.T) {
	if got := hostOf("https://example.com:8443/x"); got != "example.com:8443" {
		t.Fatalf("got %q", got)
	}
}

func TestLocalStorageSeedJSIncludesEntries(t *testing.T) {
	js := localStorageSeedJS(map[string]string{"theme": "dark"})
	if !contains(js, `"theme"`) || !contains(js, `"dark"`) {
		t.Fatalf("seed JS missing expected entries: %s", js)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}

// waitOutChallenge and lazyLoadSweep drive a real *rod.Page and cannot be
// exercised without a live browser; their pure-Go helpers (blockedResourceSet,
// action dispatch, session persistence) are covered above. pollInterval is
// asserted here only to document the intended cadence.
func TestPollIntervalIsSubSecond(t *testing.T) {
	if pollInterval <= 0 || pollInterval > time.Second {
		t.Fatalf("pollInterval %v should be a short sub-second cadence", pollInterval)
	}
}
