package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Schema    SchemaConfig
	Runner    RunnerConfig
	Output    OutputConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls how each per-schema browser is launched.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL handed to the browser.
	Proxy string

	// Stealth injects anti-detection evasions into every page.
	Stealth bool // default: true

	// UserAgent overrides the browser user agent when set.
	UserAgent string
}

// ScraperConfig controls per-session behavior.
type ScraperConfig struct {
	// NavigationTimeout bounds navigation until DOMContentLoaded. 0 disables it.
	NavigationTimeout time.Duration // default: 0

	// ActionTimeout bounds the optional pre-extraction click.
	ActionTimeout time.Duration // default: 10s

	// SelectorTimeout is the list-container wait used when a schema has no timeoutMs.
	SelectorTimeout time.Duration // default: 5s

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string
}

// SchemaConfig locates the schema source.
type SchemaConfig struct {
	// Source is a file path or an http(s) URL.
	Source string // default: "schema.json"

	// Format is "json", "yaml" or "" to infer from the source name.
	Format string
}

// RunnerConfig controls the orchestrator.
type RunnerConfig struct {
	// Policy is "isolate" or "fail-fast".
	Policy string // default: "isolate"

	// Workers bounds concurrent browser sessions. Accepts "auto".
	Workers int // default: 1

	// SchemaDelay is the minimum delay between successive schema starts.
	SchemaDelay time.Duration // default: 0

	// MaxAttempts is the total number of attempts for transient failures.
	MaxAttempts int // default: 1

	// RetryBackoff is the base delay before the first retry.
	RetryBackoff time.Duration // default: 2s

	// SiteTimeout bounds one schema end to end. 0 disables it.
	SiteTimeout time.Duration // default: 0

	// Persist is the default persistence toggle for triggered runs.
	Persist bool // default: true
}

// OutputConfig selects and configures the snapshot sink.
type OutputConfig struct {
	// Sink is "file", "sqlite" or "redis".
	Sink string // default: "file"

	// Dir is the root directory of the file sink.
	Dir string // default: "data"

	// Prefix is prepended to every snapshot key.
	Prefix string // default: "scraped-data"

	// SQLitePath is the database file of the sqlite sink.
	SQLitePath string // default: "jobsnap.db"

	// RedisAddr is the address of the redis sink.
	RedisAddr string // default: "localhost:6379"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the snapshot cache used by GET /fetch.
type CacheConfig struct {
	MaxEntries int           // default: 16
	TTL        time.Duration // default: 1h
}

// WebhookConfig controls run notifications. Disabled when URL is empty.
type WebhookConfig struct {
	URL    string
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("JOBSNAP_HOST", "0.0.0.0"),
			Port: envIntOr("JOBSNAP_PORT", envIntOr("PORT", 8080)),
			Mode: envOr("JOBSNAP_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("JOBSNAP_HEADLESS", true),
			NoSandbox:  envBoolOr("JOBSNAP_NO_SANDBOX", false),
			BrowserBin: os.Getenv("JOBSNAP_BROWSER_BIN"),
			Proxy:      os.Getenv("JOBSNAP_PROXY"),
			Stealth:    envBoolOr("JOBSNAP_STEALTH", true),
			UserAgent:  os.Getenv("JOBSNAP_USER_AGENT"),
		},
		Scraper: ScraperConfig{
			NavigationTimeout: envDurationOr("JOBSNAP_NAV_TIMEOUT", 0),
			ActionTimeout:     envDurationOr("JOBSNAP_ACTION_TIMEOUT", 10*time.Second),
			SelectorTimeout:   envDurationOr("JOBSNAP_SELECTOR_TIMEOUT", 5*time.Second),
			BlockedResourceTypes: envSliceOr("JOBSNAP_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
		},
		Schema: SchemaConfig{
			Source: envOr("JOBSNAP_SCHEMA_SOURCE", "schema.json"),
			Format: os.Getenv("JOBSNAP_SCHEMA_FORMAT"),
		},
		Runner: RunnerConfig{
			Policy:       envOr("JOBSNAP_POLICY", "isolate"),
			Workers:      envWorkersOr("JOBSNAP_WORKERS", 1),
			SchemaDelay:  envDurationOr("JOBSNAP_SCHEMA_DELAY", 0),
			MaxAttempts:  envIntOr("JOBSNAP_MAX_ATTEMPTS", 1),
			RetryBackoff: envDurationOr("JOBSNAP_RETRY_BACKOFF", 2*time.Second),
			SiteTimeout:  envDurationOr("JOBSNAP_SITE_TIMEOUT", 0),
			Persist:      envBoolOr("JOBSNAP_PERSIST", true),
		},
		Output: OutputConfig{
			Sink:       envOr("JOBSNAP_SINK", "file"),
			Dir:        envOr("JOBSNAP_OUTPUT_DIR", "data"),
			Prefix:     envOr("JOBSNAP_OUTPUT_PREFIX", "scraped-data"),
			SQLitePath: envOr("JOBSNAP_SQLITE_PATH", "jobsnap.db"),
			RedisAddr:  envOr("JOBSNAP_REDIS_ADDR", "localhost:6379"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("JOBSNAP_AUTH_ENABLED", false),
			APIKeys: envSliceOr("JOBSNAP_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("JOBSNAP_RATE_RPS", 1.0),
			Burst:             envIntOr("JOBSNAP_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("JOBSNAP_CACHE_MAX_ENTRIES", 16),
			TTL:        envDurationOr("JOBSNAP_CACHE_TTL", time.Hour),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("JOBSNAP_WEBHOOK_URL"),
			Secret: os.Getenv("JOBSNAP_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("JOBSNAP_LOG_LEVEL", "info"),
			Format: envOr("JOBSNAP_LOG_FORMAT", "json"),
		},
	}
}

// envWorkersOr reads a worker count. "auto" sizes the pool to half the
// logical CPUs, clamped to [1, 8]: every worker drives its own browser.
func envWorkersOr(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	if v != "auto" {
		slog.Warn("invalid worker count, using auto", "key", key, "value", v)
	}
	return autoWorkers()
}

func autoWorkers() int {
	cores, err := cpu.Counts(true)
	if err != nil {
		slog.Warn("could not detect CPU cores, using 1 worker", "error", err)
		return 1
	}
	return clampWorkers(cores / 2)
}

func clampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}

// --- helper functions ---

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
