// Package app wires the crawl, reconcile and notify steps into one run.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/use-agent/listwatch/config"
	"github.com/use-agent/listwatch/crawler"
	"github.com/use-agent/listwatch/dedup"
	"github.com/use-agent/listwatch/engine"
	"github.com/use-agent/listwatch/models"
	"github.com/use-agent/listwatch/store"
	"github.com/use-agent/listwatch/webhook"
)

// Run performs one crawl of the configured search, records the listings not
// seen before and notifies the webhook about them. It never exits the
// process; pass the returned error to ExitCode.
func Run(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger) error {
	httpEngine := engine.NewHTTPEngine(engine.HTTPOptions{
		UserAgent: cfg.Site.UserAgent,
		Timeout:   cfg.Fetch.Timeout,
		Proxy:     cfg.Fetch.Proxy,
	})

	// Thumbnails are always streamed over HTTP; the browser only renders pages.
	var pages engine.Engine = httpEngine
	switch cfg.Fetch.Mode {
	case "", "http":
	case "browser":
		rod, err := engine.NewRodEngine(engine.RodOptions{
			UserAgent:  cfg.Site.UserAgent,
			Timeout:    cfg.Fetch.Timeout,
			Headless:   cfg.Browser.Headless,
			NoSandbox:  cfg.Browser.NoSandbox,
			BrowserBin: cfg.Browser.BrowserBin,

			BlockedResourceTypes: cfg.Browser.BlockedResourceTypes,
			BlockAds:             cfg.Browser.BlockAds,
		}, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := rod.Close(); err != nil {
				logger.Warn("closing browser failed", "error", err)
			}
		}()
		pages = rod
	default:
		return fmt.Errorf("app: unknown fetch mode %q", cfg.Fetch.Mode)
	}

	c := crawler.New(crawler.Options{
		Site:          cfg.Site,
		Pages:         pages,
		Images:        httpEngine,
		RatePerSecond: cfg.Fetch.RatePerSecond,
		ImageWorkers:  cfg.Fetch.ImageWorkers,
	}, logger)

	logger.Info("crawl started", "engine", pages.Name(), "search", cfg.Site.BaseURL+cfg.Site.SearchPath)
	props, err := c.Run(ctx)
	if err != nil {
		return err
	}
	defer models.CloseImages(props)

	if len(props) == 0 {
		logger.Info("The search returned without results")
		return nil
	}
	logger.Info("crawl finished", "listings", len(props))

	r := dedup.NewReconciler(store.NewJSONFile(cfg.Store.Path), logger)
	diff, err := r.Reconcile(ctx, props)
	if err != nil {
		return err
	}
	logger.Info("found new properties", "count", len(diff))

	webhook.NewNotifier(cfg.Webhook, logger).NotifyNewListings(ctx, runID, diff)
	return nil
}

// ExitCode maps a Run error to a process exit code: 0 for success, the
// HTTP status for a failed fetch, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *models.CrawlError
	if errors.As(err, &ce) {
		return ce.ExitCode()
	}
	return 1
}
