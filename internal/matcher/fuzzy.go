package matcher

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/attackguard/attackctl/internal/mitre"
)

// FuzzyMatcher scans text for approximate occurrences of technique names and
// keywords using edit-distance-normalized similarity.
type FuzzyMatcher struct {
	targets []fuzzyTarget
}

type fuzzyTarget struct {
	techniqueID   string
	techniqueName string
	tactics       []string
	term          string // the name or keyword being matched
}

// NewFuzzyMatcher builds the list of per-technique fuzzy targets (technique
// name plus every derived keyword).
func NewFuzzyMatcher(index *mitre.TechniqueIndex) *FuzzyMatcher {
	var targets []fuzzyTarget
	for _, t := range index.ByID {
		targets = append(targets, fuzzyTarget{techniqueID: t.ID, techniqueName: t.Name, tactics: t.Tactics, term: strings.ToLower(t.Name)})
		for _, kw := range t.Keywords {
			targets = append(targets, fuzzyTarget{techniqueID: t.ID, techniqueName: t.Name, tactics: t.Tactics, term: kw})
		}
	}
	return &FuzzyMatcher{targets: targets}
}

// FindMatches slides a window the length of each target term across the
// text and scores normalized edit-distance similarity, emitting a match
// when similarity exceeds the minimum threshold.
func (m *FuzzyMatcher) FindMatches(text string) []RawMatch {
	lower := strings.ToLower(text)
	var matches []RawMatch
	for _, target := range m.targets {
		termLen := len(target.term)
		if termLen == 0 || termLen > len(lower) {
			continue
		}
		// Skip very short terms, which dominate false positives.
		if termLen < 4 {
			continue
		}
		for start := 0; start+termLen <= len(lower); start++ {
			window := lower[start : start+termLen]
			sim := fuzzySimilarity(window, target.term)
			if sim < 0.75 {
				continue
			}
			matches = append(matches, RawMatch{
				TechniqueID:   target.techniqueID,
				TechniqueName: target.techniqueName,
				Tactics:       target.tactics,
				MatchedText:   text[start : start+termLen],
				StartChar:     start,
				EndChar:       start + termLen,
				Score:         sim,
				Source:        SourceFuzzy,
			})
		}
	}
	return matches
}

// fuzzySimilarity returns a [0,1] similarity derived from normalized
// Levenshtein edit distance.
func fuzzySimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}
