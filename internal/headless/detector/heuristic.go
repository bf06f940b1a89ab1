// Package detector recognizes bot-challenge interstitials that a fetcher can
// return instead of the page that was asked for.
package detector

import (
	"strings"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

// Heuristic implements crawler.ChallengeDetector with marker and density rules.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. Bodies shorter than threshold are
// candidates for the script-density rule.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 4096
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// challengeMarkers only appear on interstitials. The challenge-platform
// beacon is also injected into normal pages, so it counts only alongside a
// blocking status or a short body.
var challengeMarkers = []string{
	"just a moment...",
	"checking your browser",
	"attention required! | cloudflare",
	"cf-challenge",
	"cf_chl_",
	"cf-turnstile",
}

const beaconMarker = "challenge-platform"

// IsChallenge reports whether resp looks like a challenge page.
func (h *Heuristic) IsChallenge(resp crawler.FetchResponse) bool {
	lower := strings.ToLower(resp.Body)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if strings.Contains(lower, beaconMarker) &&
		(blockingStatus(resp.StatusCode) || len(lower) < h.BodyLengthThreshold) {
		return true
	}
	if !blockingStatus(resp.StatusCode) {
		return false
	}
	if len(lower) == 0 {
		return true
	}
	return len(lower) < h.BodyLengthThreshold && scriptDensityHigh(lower)
}

func blockingStatus(code int) bool {
	return code == 403 || code == 429 || code == 503
}

// scriptDensityHigh expects an already lowercased body.
func scriptDensityHigh(lower string) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage*100/total >= 25
}
