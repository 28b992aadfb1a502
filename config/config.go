package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultUserAgent is the browser identity sent with every request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:84.0) Gecko/20100101 Firefox/84.0"

// Config holds all application configuration.
type Config struct {
	Site    SiteConfig
	Fetch   FetchConfig
	Browser BrowserConfig
	Store   StoreConfig
	Webhook WebhookConfig
	Log     LogConfig
}

// SiteConfig describes the listing search being watched.
type SiteConfig struct {
	// BaseURL is the scheme and host of the listing site.
	BaseURL string // default: "https://ingatlan.com"

	// SearchPath is the filtered result list; the page number is appended
	// as the "page" query parameter.
	SearchPath string // default: "/lista/70-m2-felett+elado+xiii-ker+lakas+50-60-mFt"

	// UserAgent is sent with page and image requests.
	UserAgent string
}

// FetchConfig controls how pages and images are fetched.
type FetchConfig struct {
	// Mode selects the page engine: "http" or "browser".
	Mode string // default: "http"

	// Timeout bounds each single request.
	Timeout time.Duration // default: 30s

	// Proxy is an optional proxy URL for the HTTP engine.
	Proxy string

	// RatePerSecond paces page requests. 0 disables pacing.
	RatePerSecond float64 // default: 0

	// ImageWorkers is the number of thumbnails fetched at once per page.
	// 1 keeps image fetches sequential and in order.
	ImageWorkers int // default: 1
}

// BrowserConfig controls the Rod browser used in "browser" fetch mode.
type BrowserConfig struct {
	Headless   bool // default: true
	NoSandbox  bool // default: false
	BrowserBin string

	// BlockedResourceTypes lists resource types the tab never loads.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds drops requests to known ad and tracking domains.
	BlockAds bool // default: true
}

// StoreConfig controls the persisted listing collection.
type StoreConfig struct {
	Path string // default: "db.json"
}

// WebhookConfig controls new-listing notifications. Empty URL disables them.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration // default: 10s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json", "text" or "tint"; default: "json"
}

// Load reads configuration from the environment with sane defaults.
// A .env file in the working directory is loaded first, if present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &Config{
		Site: SiteConfig{
			BaseURL:    envOr("LISTWATCH_BASE_URL", "https://ingatlan.com"),
			SearchPath: envOr("LISTWATCH_SEARCH_PATH", "/lista/70-m2-felett+elado+xiii-ker+lakas+50-60-mFt"),
			UserAgent:  envOr("LISTWATCH_USER_AGENT", DefaultUserAgent),
		},
		Fetch: FetchConfig{
			Mode:          envOr("LISTWATCH_FETCH_MODE", "http"),
			Timeout:       envDurationOr("LISTWATCH_TIMEOUT", 30*time.Second),
			Proxy:         os.Getenv("LISTWATCH_PROXY"),
			RatePerSecond: envFloatOr("LISTWATCH_RATE_RPS", 0),
			ImageWorkers:  envIntOr("LISTWATCH_IMAGE_WORKERS", 1),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("LISTWATCH_HEADLESS", true),
			NoSandbox:  envBoolOr("LISTWATCH_NO_SANDBOX", false),
			BrowserBin: os.Getenv("LISTWATCH_BROWSER_BIN"),
			BlockedResourceTypes: envSliceOr("LISTWATCH_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			BlockAds: envBoolOr("LISTWATCH_BLOCK_ADS", true),
		},
		Store: StoreConfig{
			Path: envOr("LISTWATCH_STORE_PATH", "db.json"),
		},
		Webhook: WebhookConfig{
			URL:     os.Getenv("LISTWATCH_WEBHOOK_URL"),
			Secret:  os.Getenv("LISTWATCH_WEBHOOK_SECRET"),
			Timeout: envDurationOr("LISTWATCH_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:  envOr("LISTWATCH_LOG_LEVEL", "info"),
			Format: envOr("LISTWATCH_LOG_FORMAT", "json"),
		},
	}, nil
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
