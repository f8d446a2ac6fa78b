package search

import (
	"math"
	"strings"
	"time"

	"github.com/wxkingstar/SpecFusion/internal/storage"
)

// directHitScore is assigned to error-code and api-path matches, which skip
// relevance ranking entirely.
const directHitScore = 50

// scoreDocument composes the ranking score for one keyword-query candidate.
// ftsRank is the raw bm25() value (negative; larger magnitude = better).
func scoreDocument(doc storage.Document, query string, queryTokens []string, ftsRank float64, now time.Time) float64 {
	score := 0.0

	titleLower := strings.ToLower(doc.Title)
	if strings.Contains(titleLower, strings.ToLower(query)) {
		score += 20
	}

	if len(queryTokens) > 0 {
		hit := 0
		for _, tok := range queryTokens {
			if strings.Contains(titleLower, strings.ToLower(tok)) {
				hit++
			}
		}
		score += 5 * float64(hit) / float64(len(queryTokens))
	}

	score += math.Abs(ftsRank)

	if doc.DocType == storage.DocTypeAPIReference {
		score += 3
	}

	if !doc.LastUpdated.IsZero() {
		age := now.Sub(doc.LastUpdated)
		switch {
		case age <= 30*24*time.Hour:
			score += 3
		case age <= 90*24*time.Hour:
			score += 1
		}
	}

	score -= 0.5 * float64(doc.PathDepth)
	return score
}

// round2 rounds to two decimals for output.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
