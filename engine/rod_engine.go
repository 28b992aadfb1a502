package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/listwatch/models"
)

// RodOptions configures a RodEngine.
type RodOptions struct {
	UserAgent  string
	Timeout    time.Duration
	Headless   bool
	NoSandbox  bool
	BrowserBin string

	// BlockedResourceTypes and BlockAds configure request blocking on the tab.
	BlockedResourceTypes []string
	BlockAds             bool
}

// RodEngine renders pages in a headless Chromium. It serves result pages
// only; streamed requests are rejected, images go through HTTPEngine.
//
// One stealth tab is reused across fetches and replaced once its health
// score says so. Fetches are serialized on that tab.
type RodEngine struct {
	browser *rod.Browser
	opts    RodOptions
	logger  *slog.Logger

	mu     sync.Mutex
	tab    *rod.Page
	router *rod.HijackRouter
	health *tabHealth
}

// NewRodEngine launches the browser. Call Close to kill it.
func NewRodEngine(opts RodOptions, logger *slog.Logger) (*RodEngine, error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)
	if opts.BrowserBin != "" {
		l = l.Bin(opts.BrowserBin)
	}
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "launch browser", err)
	}
	logger.Info("browser launched", "controlURL", controlURL)

	browser, err := connectBrowser(controlURL, l.Kill)
	if err != nil {
		return nil, err
	}

	return &RodEngine{browser: browser, opts: opts, logger: logger}, nil
}

// connectBrowser attaches to the launched browser, calling kill when that
// fails so no orphaned process is left behind.
func connectBrowser(controlURL string, kill func()) (*rod.Browser, error) {
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		kill()
		return nil, models.NewCrawlError(models.ErrCodeTransport, "connect to browser", err)
	}
	return browser, nil
}

func (e *RodEngine) Name() string { return "rod" }

// Fetch navigates the tab to req.URL and returns the rendered HTML.
//
// Lifecycle: stealth and UA override are installed when the tab is opened,
// before any navigation; the status code is read after navigation from the
// navigation timing entry.
func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if req.Stream {
		return nil, fmt.Errorf("rod_engine: streamed fetch of %s not supported", req.URL)
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	page, err := e.acquireTab()
	if err != nil {
		return nil, err
	}
	res, err := e.render(page.Context(ctx), req)
	e.releaseTab(err == nil || models.IsCode(err, models.ErrCodeHTTPStatus))
	return res, err
}

// render navigates p and reads back the document.
func (e *RodEngine) render(p *rod.Page, req *FetchRequest) (*FetchResult, error) {
	if err := p.Navigate(req.URL); err != nil {
		return nil, categorizeError(err, "navigate to "+req.URL)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		e.logger.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", req.URL, "error", err)
	}

	status := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		status = res.Value.Int()
	}
	// 0 means the browser does not expose responseStatus.
	if status >= 400 {
		return nil, models.NewStatusError(req.URL, status)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "read rendered HTML of "+req.URL)
	}

	finalURL := req.URL
	if res, err := p.Eval(`() => window.location.href`); err == nil && res.Value.Str() != "" {
		finalURL = res.Value.Str()
	}

	return &FetchResult{
		Body:        []byte(html),
		StatusCode:  status,
		ContentType: "text/html",
		FinalURL:    finalURL,
		EngineName:  e.Name(),
	}, nil
}

// acquireTab returns the current tab, opening a stealth tab with the
// configured User-Agent if there is none. Callers hold e.mu.
func (e *RodEngine) acquireTab() (*rod.Page, error) {
	if e.tab != nil {
		return e.tab, nil
	}
	page, err := stealth.Page(e.browser)
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeTransport, "open browser tab", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: e.opts.UserAgent}); err != nil {
		_ = page.Close()
		return nil, models.NewCrawlError(models.ErrCodeTransport, "set user agent", err)
	}
	e.tab = page
	e.router = setupHijack(page, e.opts.BlockedResourceTypes, e.opts.BlockAds)
	e.health = newTabHealth(time.Now())
	return page, nil
}

// releaseTab scores the last fetch and closes the tab when it is due for
// retirement. Callers hold e.mu.
func (e *RodEngine) releaseTab(success bool) {
	e.health.record(success)
	if !e.health.shouldRetire(time.Now()) {
		return
	}
	e.logger.Debug("retiring browser tab",
		"errScore", e.health.errScore, "useCount", e.health.useCount)
	e.closeTab()
}

func (e *RodEngine) closeTab() {
	if e.tab == nil {
		return
	}
	if e.router != nil {
		_ = e.router.Stop()
		e.router = nil
	}
	if err := e.tab.Close(); err != nil {
		e.logger.Warn("failed to close browser tab", "error", err)
	}
	e.tab = nil
	e.health = nil
}

// Close closes the tab and kills the browser process.
func (e *RodEngine) Close() error {
	e.mu.Lock()
	e.closeTab()
	e.mu.Unlock()
	return e.browser.Close()
}

// categorizeError wraps browser failures into transport faults, keeping
// context errors visible through Unwrap.
func categorizeError(err error, msg string) *models.CrawlError {
	if errors.Is(err, context.DeadlineExceeded) {
		msg += ": timed out"
	}
	return models.NewCrawlError(models.ErrCodeTransport, msg, err)
}
