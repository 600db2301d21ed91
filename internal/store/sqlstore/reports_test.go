package sqlstore

import (
	"testing"
	"time"

	"github.com/attackguard/attackctl/internal/fusion"
	"github.com/attackguard/attackctl/internal/matcher"
	"github.com/attackguard/attackctl/internal/report"
)

func sampleReport() report.Report {
	return report.Report{
		ID:             "report-1",
		WorkflowID:     "wf-1",
		SourceURL:      "https://example.com/doc",
		SourceFilename: "",
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		MitreVersion:   "v14",
		Summary: report.ReportSummary{
			MatchCount:          2,
			HighConfidenceCount: 1,
			TacticsBreakdown:    map[string]int{"initial-access": 2},
			TopTechniques:       []report.TopTechnique{{ID: "T1566", Name: "Phishing", Score: 90}},
			KeyFindings:         []string{"2 techniques matched the initial-access tactic."},
		},
		Matches: []fusion.EvalMatch{
			{TechniqueID: "T1566", TechniqueName: "Phishing", Score: 90, MatchedText: "phishing", DominantSource: matcher.SourceKeyword},
			{TechniqueID: "T1486", TechniqueName: "Data Encrypted for Impact", Score: 70, MatchedText: "encrypted", DominantSource: matcher.SourceTFIDF},
		},
	}
}

func TestReportRecordRoundTrip(t *testing.T) {
	want := sampleReport()

	rec, matches, err := toRecords(want)
	if err != nil {
		t.Fatalf("toRecords: %v", err)
	}
	rec.Matches = matches

	got, err := fromRecord(*rec)
	if err != nil {
		t.Fatalf("fromRecord: %v", err)
	}

	if got.ID != want.ID || got.WorkflowID != want.WorkflowID || got.SourceURL != want.SourceURL {
		t.Fatalf("identity fields mismatch: got %+v", got)
	}
	if got.Summary.MatchCount != want.Summary.MatchCount || got.Summary.HighConfidenceCount != want.Summary.HighConfidenceCount {
		t.Fatalf("summary counts mismatch: got %+v", got.Summary)
	}
	if got.Summary.TacticsBreakdown["initial-access"] != 2 {
		t.Fatalf("expected tactics breakdown to round-trip, got %+v", got.Summary.TacticsBreakdown)
	}
	if len(got.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got.Matches))
	}
	if got.Matches[0].TechniqueID != "T1566" || got.Matches[0].DominantSource != matcher.SourceKeyword {
		t.Fatalf("expected first match to round-trip with its dominant source, got %+v", got.Matches[0])
	}
}

func TestOrderClauseDefaults(t *testing.T) {
	if got := orderClause("", ""); got != "created_at DESC" {
		t.Fatalf("expected default sort by created_at desc, got %q", got)
	}
	if got := orderClause("matchCount", "asc"); got != "match_count ASC" {
		t.Fatalf("expected match_count asc, got %q", got)
	}
	if got := orderClause("url", ""); got != "source_url DESC" {
		t.Fatalf("expected source_url desc, got %q", got)
	}
}
