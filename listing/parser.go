// Package listing reads search-result pages of the listing site: it finds
// the listing blocks and the pagination control, and turns each block into
// a models.Property.
//
// The selectors and suffix widths below encode one fixed page layout. They
// are expected to break when the site changes its markup; such breakage
// surfaces as ErrCodeParse faults.
package listing

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/listwatch/layout"
	"github.com/use-agent/listwatch/models"
)

var (
	blockSel      = cascadia.MustCompile("div[data-id]")
	paginationSel = cascadia.MustCompile("div.pagination__page-number")
)

// lastPageToken is the index of the page count in the pagination text
// ("1 / 12 oldal").
const lastPageToken = 2

// Parser reads listing pages. The logger only receives diagnostics;
// results never depend on it.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseDocument parses a page body.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeParse, "parse page HTML", err)
	}
	return doc, nil
}

// FindListingBlocks returns every element carrying a listing identifier,
// in document order. An empty result is valid and means no results.
func (p *Parser) FindListingBlocks(doc *goquery.Document) []*goquery.Selection {
	sel := doc.FindMatcher(blockSel)
	blocks := make([]*goquery.Selection, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		blocks = append(blocks, s)
	})
	p.checkLayout(blocks)
	return blocks
}

// LastPageNumber reads the total page count from the pagination control.
func LastPageNumber(doc *goquery.Document) (int, error) {
	ctrl := doc.FindMatcher(paginationSel).First()
	if ctrl.Length() == 0 {
		return 0, models.NewCrawlError(models.ErrCodeParse, "pagination control not found", nil)
	}

	text := ctrl.Text()
	fields := strings.Fields(text)
	if len(fields) <= lastPageToken {
		return 0, models.NewCrawlError(models.ErrCodeParse,
			fmt.Sprintf("pagination text %q has no page count", text), nil)
	}

	last, err := strconv.Atoi(fields[lastPageToken])
	if err != nil {
		return 0, models.NewCrawlError(models.ErrCodeParse,
			fmt.Sprintf("pagination text %q has no page count", text), err)
	}
	return last, nil
}

// checkLayout warns about blocks whose markup shape differs from the
// first block on the page.
func (p *Parser) checkLayout(blocks []*goquery.Selection) {
	if len(blocks) < 2 {
		return
	}
	ref := layout.Block(blocks[0].Get(0))
	for _, b := range blocks[1:] {
		fp := layout.Block(b.Get(0))
		if layout.Drifted(ref, fp) {
			id, _ := b.Attr("data-id")
			p.logger.Warn("listing block layout differs from first block on page",
				"id", id,
				"distance", layout.Distance(ref, fp),
			)
		}
	}
}
