// Package heuristics loads the declarative tier-selection and
// domain-grouping rules described in spec §4.14: a YAML file, hot-reloaded
// via fsnotify, with memoised compiled-regex lookups. Grounded on
// theRebelliousNerd-codenerd's internal/config (yaml.v3 load-into-struct
// idiom) and internal/core/mangle_watcher.go (fsnotify watch-loop idiom).
package heuristics

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DomainGroup bundles domains that share cookie-banner/content/nav
// selectors and language, so the Learning Engine can apply one domain's
// learned selectors to its siblings.
type DomainGroup struct {
	Name                string   `yaml:"name"`
	Domains             []string `yaml:"domains"`
	CookieBannerSelector string  `yaml:"cookie_banner_selector"`
	ContentSelectors    []string `yaml:"content_selectors"`
	NavSelectors        []string `yaml:"nav_selectors"`
	Language            string   `yaml:"language"`
}

// TierRules classifies domains and page HTML for starting-tier selection.
type TierRules struct {
	StaticDomains     []string `yaml:"static_domains"`
	BrowserRequired   []string `yaml:"browser_required"`
	ContentMarkers    []string `yaml:"content_markers"`
	IncompleteMarkers []string `yaml:"incomplete_markers"`
}

// Document is the on-disk shape of the heuristics config file.
type Document struct {
	DomainGroups []DomainGroup `yaml:"domain_groups"`
	TierRules    TierRules     `yaml:"tier_rules"`
}

// compiled holds the memoised regex sets derived from one Document, rebuilt
// whenever the document changes.
type compiled struct {
	doc               Document
	staticDomains     []*regexp.Regexp
	browserRequired   []*regexp.Regexp
	contentMarkers    []*regexp.Regexp
	incompleteMarkers []*regexp.Regexp
	groupByDomain     map[string]*DomainGroup
}

// Config is the live, hot-reloadable heuristics configuration.
type Config struct {
	mu      sync.RWMutex
	current *compiled
	path    string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	log     *slog.Logger
}

func defaultDocument() Document {
	return Document{
		TierRules: TierRules{
			StaticDomains:     []string{`(?i)wikipedia\.org$`, `(?i)docs\.`, `(?i)\.md$`},
			BrowserRequired:   []string{`(?i)twitter\.com$`, `(?i)x\.com$`, `(?i)instagram\.com$`, `(?i)linkedin\.com$`},
			ContentMarkers:    []string{`<article`, `<main`, `itemprop="articleBody"`},
			IncompleteMarkers: []string{`id="__next"`, `id="root"`, `data-reactroot`, `ng-version`, `Please enable JavaScript`},
		},
	}
}

// Load reads path (or falls back to built-in defaults if it does not exist)
// and starts watching it for changes.
func Load(path string, log *slog.Logger) (*Config, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Config{path: path, stopCh: make(chan struct{}), log: log}

	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	c.current = compile(doc)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("heuristics: fsnotify unavailable, hot-reload disabled", "error", err)
		return c, nil
	}
	c.watcher = watcher
	if err := watcher.Add(path); err != nil {
		log.Warn("heuristics: could not watch config path, hot-reload disabled", "path", path, "error", err)
		watcher.Close()
		c.watcher = nil
		return c, nil
	}
	go c.watchLoop()
	return c, nil
}

func readDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultDocument(), nil
		}
		return Document{}, fmt.Errorf("read heuristics config %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse heuristics config %s: %w", path, err)
	}
	return doc, nil
}

func compile(doc Document) *compiled {
	c := &compiled{
		doc:           doc,
		groupByDomain: make(map[string]*DomainGroup),
	}
	for i := range doc.DomainGroups {
		g := &doc.DomainGroups[i]
		for _, d := range g.Domains {
			c.groupByDomain[d] = g
		}
	}
	c.staticDomains = compileAll(doc.TierRules.StaticDomains)
	c.browserRequired = compileAll(doc.TierRules.BrowserRequired)
	c.contentMarkers = compileAll(doc.TierRules.ContentMarkers)
	c.incompleteMarkers = compileAll(doc.TierRules.IncompleteMarkers)
	return c
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue // malformed rule in a hot-reloaded file should not crash the pipeline
		}
		out = append(out, re)
	}
	return out
}

func (c *Config) watchLoop() {
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !pending {
				pending = true
				debounce.Reset(300 * time.Millisecond)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn("heuristics: watcher error", "error", err)
		case <-debounce.C:
			pending = false
			c.reload()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Config) reload() {
	doc, err := readDocument(c.path)
	if err != nil {
		c.log.Warn("heuristics: reload failed, keeping previous config", "error", err)
		return
	}
	c.mu.Lock()
	c.current = compile(doc)
	c.mu.Unlock()
	c.log.Info("heuristics: config reloaded", "path", c.path, "domain_groups", len(doc.DomainGroups))
}

// Close stops the watch loop, if running.
func (c *Config) Close() {
	close(c.stopCh)
	if c.watcher != nil {
		c.watcher.Close()
	}
}

func (c *Config) snapshot() *compiled {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// FindDomainGroup returns the shared-pattern bundle for host, if grouped.
func (c *Config) FindDomainGroup(host string) (DomainGroup, bool) {
	g, ok := c.snapshot().groupByDomain[host]
	if !ok {
		return DomainGroup{}, false
	}
	return *g, true
}

// IsStaticDomain reports whether host matches a known static-content pattern.
func (c *Config) IsStaticDomain(host string) bool {
	return matchAny(c.snapshot().staticDomains, host)
}

// IsBrowserRequired reports whether host is known to need a full browser.
func (c *Config) IsBrowserRequired(host string) bool {
	return matchAny(c.snapshot().browserRequired, host)
}

// HasContentMarkers reports whether html contains a marker indicating
// substantive content already rendered server-side.
func (c *Config) HasContentMarkers(html string) bool {
	return matchAny(c.snapshot().contentMarkers, html)
}

// HasIncompleteMarkers reports whether html contains a marker indicating a
// client-rendered shell with no content yet (e.g. a bare SPA root div).
func (c *Config) HasIncompleteMarkers(html string) bool {
	return matchAny(c.snapshot().incompleteMarkers, html)
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
