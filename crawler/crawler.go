// Package crawler walks the paginated search results and collects every
// listing with its thumbnail.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/listwatch/config"
	"github.com/use-agent/listwatch/engine"
	"github.com/use-agent/listwatch/listing"
	"github.com/use-agent/listwatch/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options configures a Crawler.
type Options struct {
	Site config.SiteConfig

	// Pages fetches result pages; Images fetches thumbnails in stream mode.
	// They may be the same engine.
	Pages  engine.Engine
	Images engine.Engine

	// RatePerSecond paces page requests. 0 means no pacing.
	RatePerSecond float64

	// ImageWorkers bounds concurrent thumbnail fetches per page. Values
	// below 1 are treated as 1.
	ImageWorkers int
}

// Crawler fetches result pages strictly in order, one at a time.
type Crawler struct {
	site    config.SiteConfig
	pages   engine.Engine
	images  engine.Engine
	parser  *listing.Parser
	limiter *rate.Limiter
	workers int
	logger  *slog.Logger
}

// New creates a Crawler.
func New(opts Options, logger *slog.Logger) *Crawler {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	workers := opts.ImageWorkers
	if workers < 1 {
		workers = 1
	}
	images := opts.Images
	if images == nil {
		images = opts.Pages
	}
	return &Crawler{
		site:    opts.Site,
		pages:   opts.Pages,
		images:  images,
		parser:  listing.NewParser(logger),
		limiter: rate.NewLimiter(limit, 1),
		workers: workers,
		logger:  logger,
	}
}

// Run crawls pages 1..N, where N is read from the pagination control of
// page 1, and returns every extracted listing in page and block order.
// The first fetch or parse fault aborts the crawl; images opened so far
// are closed and nothing is returned.
func (c *Crawler) Run(ctx context.Context) ([]models.Property, error) {
	var all []models.Property

	lastPage := 1
	for page := 1; page <= lastPage; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			models.CloseImages(all)
			return nil, err
		}

		doc, pageURL, err := c.fetchPage(ctx, page)
		if err != nil {
			models.CloseImages(all)
			return nil, err
		}

		if page == 1 {
			if lastPage, err = listing.LastPageNumber(doc); err != nil {
				return nil, fmt.Errorf("crawler: %s: %w", pageURL, err)
			}
			c.logger.Info("pagination read", "last_page", lastPage)
		}

		props, err := c.extractPage(ctx, doc, pageURL)
		if err != nil {
			models.CloseImages(all)
			return nil, err
		}
		c.logger.Debug("page crawled", "page", page, "listings", len(props))
		all = append(all, props...)
	}

	return all, nil
}

func (c *Crawler) pageURL(page int) string {
	return c.site.BaseURL + c.site.SearchPath + "?page=" + strconv.Itoa(page)
}

func (c *Crawler) fetchPage(ctx context.Context, page int) (*goquery.Document, string, error) {
	u := c.pageURL(page)
	c.logger.Debug("fetching page", "page", page, "url", u)

	res, err := c.pages.Fetch(ctx, &engine.FetchRequest{URL: u})
	if err != nil {
		return nil, "", fmt.Errorf("crawler: page %d: %w", page, err)
	}
	doc, err := listing.ParseDocument(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("crawler: page %d: %w", page, err)
	}
	return doc, u, nil
}

// extractPage turns every listing block into a property and attaches its
// thumbnail. Property order follows block order.
func (c *Crawler) extractPage(ctx context.Context, doc *goquery.Document, pageURL string) ([]models.Property, error) {
	blocks := c.parser.FindListingBlocks(doc)
	props := make([]models.Property, len(blocks))
	srcs := make([]string, len(blocks))

	for i, b := range blocks {
		p, src, err := listing.Extract(b)
		if err != nil {
			return nil, fmt.Errorf("crawler: %s: %w", pageURL, err)
		}
		props[i] = p
		srcs[i] = src
	}

	if err := c.attachImages(ctx, props, srcs, pageURL); err != nil {
		return nil, err
	}
	return props, nil
}

// attachImages fetches srcs[i] into props[i].Image for every non-empty
// source, with at most c.workers requests in flight. Each worker writes
// only its own slot.
func (c *Crawler) attachImages(ctx context.Context, props []models.Property, srcs []string, pageURL string) error {
	base, _ := url.Parse(pageURL)

	// Streams are bound to fctx, so it is cancelled only when the page
	// fails and its streams are closed anyway. gctx would end at Wait.
	fctx, cancel := context.WithCancel(ctx)

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, src := range srcs {
		if src == "" {
			continue
		}
		g.Go(func() error {
			if err := fctx.Err(); err != nil {
				return err
			}
			img, err := c.fetchImage(fctx, resolve(base, src))
			if err != nil {
				cancel()
				return fmt.Errorf("crawler: image of listing %q: %w", props[i].ID, err)
			}
			img.Src = src
			props[i].Image = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		cancel()
		models.CloseImages(props)
		return err
	}
	return nil
}

func (c *Crawler) fetchImage(ctx context.Context, src string) (*models.Image, error) {
	res, err := c.images.Fetch(ctx, &engine.FetchRequest{URL: src, Stream: true})
	if err != nil {
		return nil, err
	}
	return &models.Image{ContentType: res.ContentType, Body: res.Stream}, nil
}

// resolve makes a relative thumbnail reference absolute against the page it
// was found on. Absolute references are returned unchanged.
func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
