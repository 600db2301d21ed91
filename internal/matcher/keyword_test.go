package matcher

import (
	"strings"
	"testing"

	"github.com/attackguard/attackctl/internal/mitre"
)

func buildTestIndex() *mitre.TechniqueIndex {
	return &mitre.TechniqueIndex{
		Version: "test",
		ByID: map[string]mitre.Technique{
			"T1566": {
				ID:       "T1566",
				Name:     "Phishing",
				Tactics:  []string{"initial-access"},
				Keywords: []string{"phishing", "spearphishing", "malicious attachment"},
			},
		},
		ByTactic: map[string][]string{"initial-access": {"T1566"}},
	}
}

func TestKeywordMatcherFindsOccurrence(t *testing.T) {
	m := NewKeywordMatcher(buildTestIndex())
	matches := m.FindMatches("The attackers used phishing emails to gain initial access.")
	if len(matches) == 0 {
		t.Fatalf("expected at least one match")
	}
	found := false
	for _, mm := range matches {
		if mm.TechniqueID == "T1566" && mm.Source == SourceKeyword {
			found = true
			if mm.StartChar >= mm.EndChar {
				t.Fatalf("invalid match span: %+v", mm)
			}
		}
	}
	if !found {
		t.Fatalf("expected a T1566 keyword match, got %+v", matches)
	}
}

func TestKeywordMatcherNoMatch(t *testing.T) {
	m := NewKeywordMatcher(buildTestIndex())
	matches := m.FindMatches("completely unrelated text about gardening")
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %+v", matches)
	}
}

// TestKeywordMatcherFindsBareLiteralID covers spec scenario 2: a mention of
// a technique's bare id with no other matching vocabulary nearby must still
// surface a RawMatch, and its MatchedText must uppercase back to the exact
// technique id so fusion's literal-id bonus (fuse.go) actually fires.
func TestKeywordMatcherFindsBareLiteralID(t *testing.T) {
	index := &mitre.TechniqueIndex{
		Version: "test",
		ByID: map[string]mitre.Technique{
			"T1486": {
				ID:       "T1486",
				Name:     "Data Encrypted for Impact",
				Tactics:  []string{"impact"},
				Keywords: []string{"t1486"},
			},
		},
		ByTactic: map[string][]string{"impact": {"T1486"}},
	}
	m := NewKeywordMatcher(index)
	matches := m.FindMatches("See T1486 for details.")

	found := false
	for _, mm := range matches {
		if mm.TechniqueID == "T1486" && strings.ToUpper(mm.MatchedText) == "T1486" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a literal T1486 match with matched text preserving the id, got %+v", matches)
	}
}
