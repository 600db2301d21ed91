package report

import (
	"testing"

	"github.com/attackguard/attackctl/internal/fusion"
)

func TestBuildEmptyEvalResult(t *testing.T) {
	r := Build(fusion.EvalResult{}, Source{URL: "https://example.com"}, "15.1")
	if r.Summary.MatchCount != 0 {
		t.Fatalf("expected 0 matches, got %d", r.Summary.MatchCount)
	}
	if r.Summary.HighConfidenceCount != 0 {
		t.Fatalf("expected 0 high-confidence matches")
	}
	if r.ID == "" {
		t.Fatalf("expected a generated report id")
	}
}

func TestBuildHighConfidenceCount(t *testing.T) {
	eval := fusion.EvalResult{
		Matches: []fusion.EvalMatch{
			{TechniqueID: "T1566", TechniqueName: "Phishing", Score: 90},
			{TechniqueID: "T1486", TechniqueName: "Data Encrypted for Impact", Score: 50},
		},
		Summary: fusion.EvalSummary{TacticsCoverage: map[string]int{"initial-access": 1, "impact": 1}},
	}
	r := Build(eval, Source{}, "15.1")
	if r.Summary.HighConfidenceCount != 1 {
		t.Fatalf("expected 1 high-confidence match, got %d", r.Summary.HighConfidenceCount)
	}
	if r.Summary.MatchCount != len(r.Matches) {
		t.Fatalf("summary.matchCount must equal len(matches)")
	}
	if len(r.Summary.KeyFindings) == 0 || len(r.Summary.KeyFindings) > 6 {
		t.Fatalf("expected 1-6 key findings, got %d", len(r.Summary.KeyFindings))
	}
}

func TestBuildMatchesOrderedByConfidenceDesc(t *testing.T) {
	eval := fusion.EvalResult{
		Matches: []fusion.EvalMatch{
			{TechniqueID: "T1001", Score: 40},
			{TechniqueID: "T1002", Score: 90},
			{TechniqueID: "T1003", Score: 60},
		},
	}
	r := Build(eval, Source{}, "15.1")
	for i := 1; i < len(r.Matches); i++ {
		if r.Matches[i-1].Score < r.Matches[i].Score {
			t.Fatalf("matches not ordered by confidence desc: %+v", r.Matches)
		}
	}
}
