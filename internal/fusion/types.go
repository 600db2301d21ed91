// Package fusion merges RawMatches from independent matchers into deduplicated,
// confidence-scored EvalMatches and builds the per-document EvalSummary.
package fusion

import "github.com/attackguard/attackctl/internal/matcher"

// EvalMatch is one fused, confidence-scored technique occurrence.
type EvalMatch struct {
	TechniqueID   string
	TechniqueName string
	Score         int // 0..100
	MatchedText   string
	Context       string
	StartChar     int
	EndChar       int
	MultiSource   bool
	DominantSource matcher.Source
}

// EvalSummary aggregates a document's matches.
type EvalSummary struct {
	DocumentID      string
	TotalMatches    int
	TopTechniques   []string // up to 5, by score desc, ties lexicographic
	TacticsCoverage map[string]int
	ProcessingTime  int64 // milliseconds
}

// EvalResult is the output of evaluate-document.
type EvalResult struct {
	Matches []EvalMatch
	Summary EvalSummary
}
