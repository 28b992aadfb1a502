package listing

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/listwatch/models"
)

// Trailing label widths, in characters, stripped from each field's text.
const (
	PriceSuffixWidth   = 5  // " M Ft"
	SizeSuffixWidth    = 11 // " m² terület"
	RoomsSuffixWidth   = 6  // " szoba"
	BalconySuffixWidth = 10 // " m² erkély"
)

var (
	addressSel = cascadia.MustCompile("div.listing__address")
	priceSel   = cascadia.MustCompile("div.price")
	sizeSel    = cascadia.MustCompile("div.listing__data--area-size")
	roomsSel   = cascadia.MustCompile("div.listing__data--room-count")
	balconySel = cascadia.MustCompile("div.listing__data--balcony-size")
	linkSel    = cascadia.MustCompile("a.listing__link")
	imageSel   = cascadia.MustCompile("img.listing__image")
)

// Extract builds a property from one listing block. imageSrc is the
// thumbnail URL, or "" when the block has no image; the caller decides
// whether and how to fetch it.
func Extract(block *goquery.Selection) (p models.Property, imageSrc string, err error) {
	id, ok := block.Attr("data-id")
	if !ok {
		return p, "", fieldError("", "id")
	}
	p.ID = id

	if p.Address, err = requiredText(block, addressSel, id, "address"); err != nil {
		return p, "", err
	}
	if p.Price, err = requiredText(block, priceSel, id, "price"); err != nil {
		return p, "", err
	}
	p.Price = trimSuffix(p.Price, PriceSuffixWidth)

	if p.Size, err = requiredText(block, sizeSel, id, "size"); err != nil {
		return p, "", err
	}
	p.Size = trimSuffix(p.Size, SizeSuffixWidth)

	if p.Rooms, err = requiredText(block, roomsSel, id, "rooms"); err != nil {
		return p, "", err
	}
	p.Rooms = trimSuffix(p.Rooms, RoomsSuffixWidth)

	if b := block.FindMatcher(balconySel).First(); b.Length() > 0 {
		balcony := trimSuffix(b.Text(), BalconySuffixWidth)
		p.Balcony = &balcony
	}

	link := block.FindMatcher(linkSel).First()
	href, ok := link.Attr("href")
	if !ok {
		return p, "", fieldError(id, "url")
	}
	p.URL = href

	if img := block.FindMatcher(imageSel).First(); img.Length() > 0 {
		src, ok := img.Attr("src")
		if !ok {
			return p, "", fieldError(id, "image")
		}
		imageSrc = src
	}

	return p, imageSrc, nil
}

// requiredText returns the text of the first element under block matching
// sel. A missing element is a layout violation.
func requiredText(block *goquery.Selection, sel cascadia.Selector, id, field string) (string, error) {
	el := block.FindMatcher(sel).First()
	if el.Length() == 0 {
		return "", fieldError(id, field)
	}
	return el.Text(), nil
}

// trimSuffix drops the last n characters of s. Text shorter than n
// becomes empty.
func trimSuffix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return ""
	}
	return string(r[:len(r)-n])
}

func fieldError(id, field string) *models.CrawlError {
	return models.NewCrawlError(models.ErrCodeParse,
		fmt.Sprintf("listing %q: %s element missing", id, field), nil)
}
