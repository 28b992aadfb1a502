package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Site.BaseURL != "https://ingatlan.com" {
		t.Errorf("BaseURL = %q", cfg.Site.BaseURL)
	}
	if cfg.Site.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q", cfg.Site.UserAgent)
	}
	if cfg.Fetch.Mode != "http" {
		t.Errorf("Mode = %q, want http", cfg.Fetch.Mode)
	}
	if cfg.Fetch.ImageWorkers != 1 {
		t.Errorf("ImageWorkers = %d, want 1", cfg.Fetch.ImageWorkers)
	}
	if cfg.Fetch.RatePerSecond != 0 {
		t.Errorf("RatePerSecond = %v, want 0", cfg.Fetch.RatePerSecond)
	}
	if cfg.Store.Path != "db.json" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Webhook.URL != "" {
		t.Errorf("webhook should be disabled by default, got %q", cfg.Webhook.URL)
	}
	if len(cfg.Browser.BlockedResourceTypes) != 4 || !cfg.Browser.BlockAds {
		t.Errorf("Browser = %+v", cfg.Browser)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LISTWATCH_STORE_PATH", "/var/lib/listwatch/db.json")
	t.Setenv("LISTWATCH_TIMEOUT", "5s")
	t.Setenv("LISTWATCH_IMAGE_WORKERS", "4")
	t.Setenv("LISTWATCH_HEADLESS", "false")
	t.Setenv("LISTWATCH_RATE_RPS", "0.5")
	t.Setenv("LISTWATCH_BLOCKED_RESOURCES", " Font, ,Media ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.Path != "/var/lib/listwatch/db.json" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Fetch.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.ImageWorkers != 4 {
		t.Errorf("ImageWorkers = %d", cfg.Fetch.ImageWorkers)
	}
	if cfg.Browser.Headless {
		t.Error("Headless should be false")
	}
	if cfg.Fetch.RatePerSecond != 0.5 {
		t.Errorf("RatePerSecond = %v", cfg.Fetch.RatePerSecond)
	}
	if got := cfg.Browser.BlockedResourceTypes; len(got) != 2 || got[0] != "Font" || got[1] != "Media" {
		t.Errorf("BlockedResourceTypes = %q", got)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LISTWATCH_IMAGE_WORKERS", "many")
	t.Setenv("LISTWATCH_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Fetch.ImageWorkers != 1 {
		t.Errorf("ImageWorkers = %d, want fallback 1", cfg.Fetch.ImageWorkers)
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want fallback 30s", cfg.Fetch.Timeout)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	env := "LISTWATCH_LOG_FORMAT=tint\nLISTWATCH_WEBHOOK_URL=https://hooks.example/new\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv.Load sets process variables; register them for cleanup.
	t.Setenv("LISTWATCH_LOG_FORMAT", "")
	t.Setenv("LISTWATCH_WEBHOOK_URL", "")
	os.Unsetenv("LISTWATCH_LOG_FORMAT")
	os.Unsetenv("LISTWATCH_WEBHOOK_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Format != "tint" {
		t.Errorf("Log.Format = %q, want tint", cfg.Log.Format)
	}
	if cfg.Webhook.URL != "https://hooks.example/new" {
		t.Errorf("Webhook.URL = %q", cfg.Webhook.URL)
	}
}
