// Package layout fingerprints the markup structure of listing blocks so that
// upstream layout changes show up in the logs before extraction starts
// failing on them.
package layout

import (
	"hash/fnv"
	"math/bits"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// DriftThreshold is the Hamming distance above which two blocks are
// considered to have a different layout.
const DriftThreshold = 12

// Fingerprint computes a 64-bit SimHash over the given tokens.
// Each token is hashed with FNV-64a and accumulated into a bit vector.
func Fingerprint(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Drifted reports whether two block fingerprints differ by more than
// DriftThreshold bits.
func Drifted(a, b uint64) bool {
	return Distance(a, b) > DriftThreshold
}

// Block fingerprints the element structure under n: tag names with their
// sorted class lists, in document order. Text and other attributes are
// ignored, so two listings with the same markup shape share a fingerprint.
func Block(n *html.Node) uint64 {
	tags := elementTokens(n)
	if len(tags) == 0 {
		return 0
	}

	shingles := makeShingles(tags, 3)
	if len(shingles) == 0 {
		return Fingerprint(tags)
	}
	return Fingerprint(shingles)
}

// elementTokens walks n depth-first and collects one token per element.
func elementTokens(n *html.Node) []string {
	var tokens []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			tokens = append(tokens, elementToken(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return tokens
}

func elementToken(n *html.Node) string {
	var classes []string
	for _, a := range n.Attr {
		if a.Key == "class" {
			classes = strings.Fields(a.Val)
			break
		}
	}
	if len(classes) == 0 {
		return n.Data
	}
	sort.Strings(classes)
	return n.Data + "." + strings.Join(classes, ".")
}

// makeShingles creates n-gram shingles from a slice of tokens.
func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}

	shingles := make([]string, 0, len(tokens)-n+1)
	for i := 0; i <= len(tokens)-n; i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+n], "_"))
	}
	return shingles
}
