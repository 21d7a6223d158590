package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Runner.Policy != "isolate" {
		t.Errorf("Runner.Policy = %q, want isolate", cfg.Runner.Policy)
	}
	if cfg.Runner.Workers != 1 {
		t.Errorf("Runner.Workers = %d, want 1", cfg.Runner.Workers)
	}
	if cfg.Scraper.SelectorTimeout != 5*time.Second {
		t.Errorf("Scraper.SelectorTimeout = %v, want 5s", cfg.Scraper.SelectorTimeout)
	}
	if cfg.Scraper.NavigationTimeout != 0 {
		t.Errorf("Scraper.NavigationTimeout = %v, want 0", cfg.Scraper.NavigationTimeout)
	}
	if !cfg.Browser.Stealth {
		t.Error("Browser.Stealth should default to true")
	}
	if cfg.Output.Sink != "file" {
		t.Errorf("Output.Sink = %q, want file", cfg.Output.Sink)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JOBSNAP_PORT", "9090")
	t.Setenv("JOBSNAP_POLICY", "fail-fast")
	t.Setenv("JOBSNAP_WORKERS", "3")
	t.Setenv("JOBSNAP_SCHEMA_DELAY", "1500ms")
	t.Setenv("JOBSNAP_BLOCKED_RESOURCES", "Image, Stylesheet ,")
	t.Setenv("JOBSNAP_PERSIST", "false")
	t.Setenv("JOBSNAP_SCHEMA_SOURCE", "https://example.com/schema.json")

	cfg := Load()

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Runner.Policy != "fail-fast" {
		t.Errorf("Runner.Policy = %q, want fail-fast", cfg.Runner.Policy)
	}
	if cfg.Runner.Workers != 3 {
		t.Errorf("Runner.Workers = %d, want 3", cfg.Runner.Workers)
	}
	if cfg.Runner.SchemaDelay != 1500*time.Millisecond {
		t.Errorf("Runner.SchemaDelay = %v, want 1.5s", cfg.Runner.SchemaDelay)
	}
	if want := []string{"Image", "Stylesheet"}; !reflect.DeepEqual(cfg.Scraper.BlockedResourceTypes, want) {
		t.Errorf("BlockedResourceTypes = %v, want %v", cfg.Scraper.BlockedResourceTypes, want)
	}
	if cfg.Runner.Persist {
		t.Error("Runner.Persist should be false")
	}
	if cfg.Schema.Source != "https://example.com/schema.json" {
		t.Errorf("Schema.Source = %q", cfg.Schema.Source)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("JOBSNAP_PORT", "not-a-number")
	t.Setenv("JOBSNAP_HEADLESS", "maybe")
	t.Setenv("JOBSNAP_CACHE_TTL", "forever")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want fallback 8080", cfg.Server.Port)
	}
	if !cfg.Browser.Headless {
		t.Error("Browser.Headless should fall back to true")
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want fallback 1h", cfg.Cache.TTL)
	}
}

func TestEnvWorkersOr_Auto(t *testing.T) {
	t.Setenv("JOBSNAP_WORKERS", "auto")

	n := envWorkersOr("JOBSNAP_WORKERS", 1)
	if n < 1 || n > 8 {
		t.Errorf("auto workers = %d, want within [1, 8]", n)
	}
}

func TestClampWorkers(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, 1},
		{0, 1},
		{4, 4},
		{8, 8},
		{32, 8},
	}
	for _, tt := range tests {
		if got := clampWorkers(tt.in); got != tt.want {
			t.Errorf("clampWorkers(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
