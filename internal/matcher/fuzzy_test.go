package matcher

import "testing"

func TestFuzzySimilarityIdentical(t *testing.T) {
	if sim := fuzzySimilarity("phishing", "phishing"); sim != 1 {
		t.Fatalf("expected similarity 1 for identical strings, got %v", sim)
	}
}

func TestFuzzySimilarityCloseMisspelling(t *testing.T) {
	sim := fuzzySimilarity("phising", "phishing")
	if sim < 0.75 {
		t.Fatalf("expected high similarity for close misspelling, got %v", sim)
	}
}

func TestFuzzyMatcherFindsApproximateOccurrence(t *testing.T) {
	m := NewFuzzyMatcher(buildTestIndex())
	matches := m.FindMatches("a campaign using spearphishing to deliver a payload")
	found := false
	for _, mm := range matches {
		if mm.TechniqueID == "T1566" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a fuzzy T1566 match, got %+v", matches)
	}
}
