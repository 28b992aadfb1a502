package engine

import (
	"math"
	"time"
)

// Tab retirement thresholds.
const (
	tabMaxErrScore = 3.0
	tabMaxUses     = 50
	tabMaxAge      = 50 * time.Minute
)

// tabHealth scores a reused browser tab.
//
// Scoring rules:
//   - Success: errScore -= 0.5 (min 0)
//   - Failure: errScore += 1.0
//
// The tab is retired when any of errScore, use count or age reaches its
// threshold.
type tabHealth struct {
	errScore float64
	useCount int
	created  time.Time
}

func newTabHealth(now time.Time) *tabHealth {
	return &tabHealth{created: now}
}

func (h *tabHealth) record(success bool) {
	h.useCount++
	if success {
		h.errScore = math.Max(0, h.errScore-0.5)
	} else {
		h.errScore += 1.0
	}
}

func (h *tabHealth) shouldRetire(now time.Time) bool {
	return h.errScore >= tabMaxErrScore ||
		h.useCount >= tabMaxUses ||
		now.Sub(h.created) >= tabMaxAge
}
