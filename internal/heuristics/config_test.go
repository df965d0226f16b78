package heuristics

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
domain_groups:
  - name: social
    domains: [twitter.com, x.com]
    cookie_banner_selector: "#cookie-banner"
    content_selectors: ["article"]
    nav_selectors: ["nav"]
    language: en
tier_rules:
  static_domains: ["(?i)wikipedia\\.org$"]
  browser_required: ["(?i)x\\.com$"]
  content_markers: ["<article"]
  incomplete_markers: ["id=\"root\""]
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "heuristics.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0644); err != nil {
		t.Fatalf("write sample config: %v", err)
	}
	return path
}

func TestLoadAndClassify(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer cfg.Close()

	if !cfg.IsStaticDomain("en.wikipedia.org") {
		t.Fatal("expected en.wikipedia.org to classify as static")
	}
	if !cfg.IsBrowserRequired("x.com") {
		t.Fatal("expected x.com to classify as browser-required")
	}
	if cfg.IsBrowserRequired("example.com") {
		t.Fatal("unrelated domain should not be browser-required")
	}
	if !cfg.HasContentMarkers("<html><article>hi</article></html>") {
		t.Fatal("expected content marker match")
	}
	if !cfg.HasIncompleteMarkers(`<div id="root"></div>`) {
		t.Fatal("expected incomplete marker match")
	}

	group, ok := cfg.FindDomainGroup("twitter.com")
	if !ok || group.Name != "social" {
		t.Fatalf("expected twitter.com grouped under 'social', got %+v ok=%v", group, ok)
	}
}

func TestLoadFallsBackToDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	defer cfg.Close()

	if !cfg.IsStaticDomain("en.wikipedia.org") {
		t.Fatal("default config should still classify wikipedia as static")
	}
}

func TestHotReloadPicksUpChanges(t *testing.T) {
	path := writeSampleConfig(t)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer cfg.Close()

	if cfg.IsBrowserRequired("newsite.com") {
		t.Fatal("newsite.com should not yet be classified as browser-required")
	}

	updated := sampleYAML + "\n"
	updated = `
domain_groups: []
tier_rules:
  static_domains: []
  browser_required: ["(?i)newsite\\.com$"]
  content_markers: []
  incomplete_markers: []
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cfg.IsBrowserRequired("newsite.com") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("hot reload did not pick up the updated config within the deadline")
}
