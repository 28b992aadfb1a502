package models

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Property is one listing snapshot as extracted from a search-results page.
//
// Image is never persisted and never takes part in identity: two properties
// describe the same listing state iff every other field is equal.
type Property struct {
	ID      string  `json:"id"`
	Address string  `json:"address"`
	Price   string  `json:"price"`
	Size    string  `json:"size"`
	Rooms   string  `json:"rooms"`
	Balcony *string `json:"balcony"`
	URL     string  `json:"url"`

	Image *Image `json:"-"`
}

// Image is the thumbnail of a listing, fetched as a raw byte stream.
// The caller owns Body and must close it.
type Image struct {
	Src         string
	ContentType string
	Body        io.ReadCloser
}

// Close releases the image stream, if any.
func (img *Image) Close() error {
	if img == nil || img.Body == nil {
		return nil
	}
	return img.Body.Close()
}

// WithoutImage returns a copy of p with the image detached.
func (p Property) WithoutImage() Property {
	p.Image = nil
	return p
}

// SameListing reports whether p and o are the same listing state.
// Every field except Image is compared, including ID.
func (p Property) SameListing(o Property) bool {
	return p.ID == o.ID &&
		p.Address == o.Address &&
		p.Price == o.Price &&
		p.Size == o.Size &&
		p.Rooms == o.Rooms &&
		equalOptional(p.Balcony, o.Balcony) &&
		p.URL == o.URL
}

// Key is a digest of exactly the fields SameListing compares, so
// p.Key() == o.Key() iff p.SameListing(o).
func (p Property) Key() string {
	h := sha256.New()
	for _, f := range []string{p.ID, p.Address, p.Price, p.Size, p.Rooms, p.URL} {
		writeField(h, f)
	}
	if p.Balcony == nil {
		h.Write([]byte{0})
	} else {
		h.Write([]byte{1})
		writeField(h, *p.Balcony)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeField writes a length-prefixed field so that no two field lists
// produce the same byte stream.
func writeField(w io.Writer, s string) {
	var n [8]byte
	l := uint64(len(s))
	for i := range n {
		n[i] = byte(l >> (8 * i))
	}
	w.Write(n[:])
	io.WriteString(w, s)
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CloseImages closes the image stream of every property in ps.
func CloseImages(ps []Property) {
	for i := range ps {
		_ = ps[i].Image.Close()
	}
}
