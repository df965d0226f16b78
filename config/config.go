package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Render       RenderConfig
	Browser      BrowserConfig
	Fetcher      FetcherConfig
	Auth         AuthConfig
	RateLimit    RateLimitConfig
	Cache        CacheConfig
	Log          LogConfig
	AdaptivePool AdaptivePoolConfig
	Tenant       TenantConfig
	Trace        TraceConfig
	Heuristics   HeuristicsConfig
	Store        StoreConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// RenderConfig controls renderer-wide defaults shared across tiers.
type RenderConfig struct {
	UserAgent        string        // RENDER_USER_AGENT
	TierTimeout      time.Duration // TIER_DEFAULT_TIMEOUT_MS
	BotChallengeMax  time.Duration // BOT_CHALLENGE_MAX_MS
	ScriptAsyncWait  time.Duration // default: 100ms, wait for fetch-driven mutations
	MaxRedirects     int           // default: 10
}

// BrowserConfig controls the headless browser and its page pool.
type BrowserConfig struct {
	Headless   bool // default: true
	NoSandbox  bool
	BrowserBin string
	PoolMax    int // BROWSER_POOL_MAX, per (tenant, session_profile); default: 4
	AcquireTimeout time.Duration // browser_acquire_timeout_ms default
}

// FetcherConfig controls Tiered Fetcher defaults.
type FetcherConfig struct {
	DefaultMaxLatency time.Duration
	MinContentLength  int
}

// AdaptivePoolConfig controls the browser page-pool sizing, kept from the
// purify's adaptive pool.
type AdaptivePoolConfig struct {
	MinPages     int
	HardMax      int
	MemThreshold float64
	ScaleStep    float64
}

// CacheConfig holds the page-cache settings read from the environment.
// The page cache built in internal/pipeline does not consult them: it has
// no entry bound and uses package cache's fixed one-hour TTL.
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration // PAGE_CACHE_TTL_MS
}

// AuthConfig controls API key authentication on the HTTP surface.
type AuthConfig struct {
	Enabled bool
	APIKeys []string
}

// RateLimitConfig controls the default per-domain rate.
type RateLimitConfig struct {
	DefaultRPM  int // RATE_LIMIT_DEFAULT_RPM
	MinDelay    time.Duration
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// TenantConfig controls tenant defaults.
type TenantConfig struct {
	DefaultID string // TENANT_ID_DEFAULT
}

// TraceConfig controls decision-trace recording.
type TraceConfig struct {
	Enabled bool // DEBUG_TRACE_ENABLED
}

// HeuristicsConfig points at the declarative rules file.
type HeuristicsConfig struct {
	ConfigPath string // HEURISTICS_CONFIG_PATH
}

// StoreConfig points at the modernc.org/sqlite-backed KV store every
// stateful package (registry, learning, memory, cache, trace) shares.
type StoreConfig struct {
	Path string // BROWSECORE_DB_PATH
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("BROWSECORE_HOST", "0.0.0.0"),
			Port: envIntOr("BROWSECORE_PORT", 8080),
			Mode: envOr("BROWSECORE_MODE", "release"),
		},
		Render: RenderConfig{
			UserAgent:       envOr("RENDER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
			TierTimeout:     envDurationMsOr("TIER_DEFAULT_TIMEOUT_MS", 10*time.Second),
			BotChallengeMax: envDurationMsOr("BOT_CHALLENGE_MAX_MS", 30*time.Second),
			ScriptAsyncWait: 100 * time.Millisecond,
			MaxRedirects:    10,
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("BROWSECORE_HEADLESS", true),
			NoSandbox:      envBoolOr("BROWSECORE_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("BROWSECORE_BROWSER_BIN"),
			PoolMax:        envIntOr("BROWSER_POOL_MAX", 4),
			AcquireTimeout: envDurationMsOr("BROWSER_ACQUIRE_TIMEOUT_MS", 15*time.Second),
		},
		Fetcher: FetcherConfig{
			DefaultMaxLatency: envDurationMsOr("FETCHER_MAX_LATENCY_MS", 20*time.Second),
			MinContentLength:  envIntOr("FETCHER_MIN_CONTENT_LENGTH", 500),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("BROWSECORE_AUTH_ENABLED", true),
			APIKeys: envSliceOr("BROWSECORE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			DefaultRPM: envIntOr("RATE_LIMIT_DEFAULT_RPM", 30),
			MinDelay:   envDurationMsOr("RATE_LIMIT_MIN_DELAY_MS", 200*time.Millisecond),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationMsOr("PAGE_CACHE_TTL_MS", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  envOr("BROWSECORE_LOG_LEVEL", "info"),
			Format: envOr("BROWSECORE_LOG_FORMAT", "json"),
		},
		AdaptivePool: AdaptivePoolConfig{
			MinPages:     envIntOr("BROWSECORE_MIN_PAGES", 2),
			HardMax:      envIntOr("BROWSECORE_HARD_MAX_PAGES", 20),
			MemThreshold: envFloatOr("BROWSECORE_MEM_THRESHOLD", 0.9),
			ScaleStep:    envFloatOr("BROWSECORE_SCALE_STEP", 0.05),
		},
		Tenant: TenantConfig{
			DefaultID: envOr("TENANT_ID_DEFAULT", "default"),
		},
		Trace: TraceConfig{
			Enabled: envBoolOr("DEBUG_TRACE_ENABLED", false),
		},
		Heuristics: HeuristicsConfig{
			ConfigPath: envOr("HEURISTICS_CONFIG_PATH", "./heuristics.yaml"),
		},
		Store: StoreConfig{
			Path: envOr("BROWSECORE_DB_PATH", "./browsecore.db"),
		},
	}
}

// --- helper functions (stdlib env-var loading, matching the ambient idiom) ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envDurationMsOr reads a plain millisecond integer (matching the
// *_MS env var naming convention) rather than a Go duration literal.
func envDurationMsOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
