// Package pipeline is the composition root: it wires the URL Safety Gate,
// Rate Limiter, Heuristics config, API Pattern Registry, Learning Engine,
// Procedural Memory, page Cache, Content Extractor, the three render
// tiers, and the Decision Trace store into one CoreContext, and implements
// every one of spec §6's six external interfaces against it.
//
// CoreContext is built once at startup and passed explicitly to every
// caller — the HTTP handlers, the MCP tool handlers, and the trace CLI
// all share this one type instead of each re-deriving their own
// dependency graph from package-level globals.
package pipeline

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/fetchkit/browsecore/cache"
	"github.com/fetchkit/browsecore/config"
	"github.com/fetchkit/browsecore/engine"
	"github.com/fetchkit/browsecore/internal/extract"
	"github.com/fetchkit/browsecore/internal/fetcher"
	"github.com/fetchkit/browsecore/internal/heuristics"
	"github.com/fetchkit/browsecore/internal/kv"
	"github.com/fetchkit/browsecore/internal/learning"
	"github.com/fetchkit/browsecore/internal/memory"
	"github.com/fetchkit/browsecore/internal/ratelimit"
	"github.com/fetchkit/browsecore/internal/registry"
	"github.com/fetchkit/browsecore/internal/render/browser"
	"github.com/fetchkit/browsecore/internal/render/lightweight"
	"github.com/fetchkit/browsecore/internal/render/static"
	"github.com/fetchkit/browsecore/internal/safety"
	"github.com/fetchkit/browsecore/internal/trace"
	"github.com/fetchkit/browsecore/models"
)

// CoreContext bundles every collaborator and implements the six public
// operations spec §6 defines: Fetch, Screenshot, ExportHAR,
// GetDomainIntelligence, GetDomainCapabilities, BatchFetch.
type CoreContext struct {
	Config *config.Config

	KV         *kv.Store
	Gate       *safety.Gate
	Limiter    *ratelimit.Limiter
	Heuristics *heuristics.Config
	Registry   *registry.Registry
	Learning   *learning.Engine
	Memory     *memory.Memory
	Cache      *cache.Cache
	Extractor  *extract.Extractor

	Static      *static.Renderer
	Lightweight *lightweight.Renderer
	Browser     *browser.Renderer // nil if the browser failed to launch

	Fetcher *fetcher.Fetcher
	Trace   *trace.Store
}

// New builds a CoreContext from cfg. Every stateful collaborator shares the
// one *kv.Store opened at cfg.Store.Path. A browser launch failure is
// logged and tolerated — the playwright tier degrades to
// RENDERER_UNAVAILABLE rather than preventing startup, since the
// intelligence and lightweight tiers remain fully functional without it.
func New(ctx context.Context, cfg *config.Config) (*CoreContext, error) {
	store, err := kv.Open(cfg.Store.Path)
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "open kv store", err)
	}

	heur, err := heuristics.Load(cfg.Heuristics.ConfigPath, slog.Default())
	if err != nil {
		return nil, models.NewCoreError(models.ErrCodeInternal, "load heuristics config", err)
	}

	gate := safety.New()
	limiter := ratelimit.New(cfg.RateLimit.DefaultRPM, cfg.RateLimit.MinDelay)
	reg := registry.New(store)
	learn := learning.New(store)
	mem := memory.New(store)
	ch := cache.New(store)
	extractor := extract.New()
	staticR := static.New()
	lightweightR := lightweight.New(staticR)

	tenant := models.TenantID(cfg.Tenant.DefaultID)
	if err := reg.Bootstrap(ctx, tenant, time.Now()); err != nil {
		slog.Warn("pipeline: registry bootstrap failed", "error", err)
	}

	poolCfg := engine.AdaptivePoolConfig{
		MinPages:     cfg.AdaptivePool.MinPages,
		HardMax:      cfg.AdaptivePool.HardMax,
		MemThreshold: cfg.AdaptivePool.MemThreshold,
		ScaleStep:    cfg.AdaptivePool.ScaleStep,
	}
	sessions := browser.NewKVSessionStore(store)
	var browserR *browser.Renderer
	if b, berr := browser.New(cfg.Browser, poolCfg, sessions, cfg.Render.UserAgent, cfg.Render.BotChallengeMax); berr != nil {
		slog.Warn("pipeline: browser launch failed, playwright tier disabled", "error", berr)
	} else {
		browserR = b
	}

	f := fetcher.New(fetcher.Deps{
		Gate:        gate,
		Limiter:     limiter,
		Heuristics:  heur,
		Registry:    reg,
		Learning:    learn,
		Memory:      mem,
		Cache:       ch,
		Extractor:   extractor,
		Static:      staticR,
		Lightweight: lightweightR,
		Browser:     browserR,
	})

	return &CoreContext{
		Config:      cfg,
		KV:          store,
		Gate:        gate,
		Limiter:     limiter,
		Heuristics:  heur,
		Registry:    reg,
		Learning:    learn,
		Memory:      mem,
		Cache:       ch,
		Extractor:   extractor,
		Static:      staticR,
		Lightweight: lightweightR,
		Browser:     browserR,
		Fetcher:     f,
		Trace:       trace.New(store, cfg.Trace.Enabled),
	}, nil
}

// Close releases every owned resource: the browser process, the heuristics
// file watcher, and the KV store's underlying database handle.
func (c *CoreContext) Close() {
	if c.Browser != nil {
		c.Browser.Close()
	}
	c.Heuristics.Close()
	c.Limiter.Stop()
	if err := c.KV.Close(); err != nil {
		slog.Warn("pipeline: kv store close failed", "error", err)
	}
}

// Fetch is the fetch(url, opts) operation (spec §6). It delegates directly
// to the Tiered Fetcher, then persists the resulting decision trace.
func (c *CoreContext) Fetch(ctx context.Context, req models.Request) (*models.BrowseResult, error) {
	result, err := c.Fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	domain := domainOf(req.URL)
	if _, traceErr := c.Trace.Append(ctx, req.TenantID, req.URL, domain, result.DecisionTrace); traceErr != nil {
		slog.Warn("pipeline: failed to persist decision trace", "error", traceErr)
	}
	return result, nil
}

// domainOf extracts the registrable host the same way safety.Domain does,
// for operations that need a domain key but don't go through the gate
// directly (their URL validation happens on the render call itself).
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return safety.Domain(u)
}
