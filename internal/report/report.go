// Package report assembles the final persisted Report from an EvalResult.
package report

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/attackguard/attackctl/internal/fusion"
)

// Source identifies where the analyzed document came from.
type Source struct {
	URL      string
	Filename string
}

// TopTechnique is a single entry in ReportSummary.TopTechniques.
type TopTechnique struct {
	ID    string
	Name  string
	Score int
}

// ReportSummary is the report-level rollup of its matches.
type ReportSummary struct {
	MatchCount         int
	HighConfidenceCount int
	TacticsBreakdown   map[string]int
	TopTechniques      []TopTechnique
	KeyFindings        []string
}

// Report is the durable, user-visible output of one analysis run.
type Report struct {
	ID             string
	WorkflowID     string
	SourceURL      string
	SourceFilename string
	CreatedAt      time.Time
	MitreVersion   string
	Summary        ReportSummary
	Matches        []fusion.EvalMatch // ordered by confidence desc
}

const highConfidenceThreshold = 85

// Build assembles a Report from an EvalResult, source descriptor, and
// catalog version.
func Build(eval fusion.EvalResult, source Source, catalogVersion string) Report {
	matches := append([]fusion.EvalMatch(nil), eval.Matches...)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	highConf := 0
	for _, m := range matches {
		if m.Score >= highConfidenceThreshold {
			highConf++
		}
	}

	breakdown := map[string]int{}
	for tactic, count := range eval.Summary.TacticsCoverage {
		breakdown[tactic] = count
	}

	top := make([]TopTechnique, 0, 5)
	for i, m := range matches {
		if i >= 5 {
			break
		}
		top = append(top, TopTechnique{ID: m.TechniqueID, Name: m.TechniqueName, Score: m.Score})
	}

	findings := keyFindings(matches, breakdown, highConf)

	return Report{
		ID:             uuid.NewString(),
		SourceURL:      source.URL,
		SourceFilename: source.Filename,
		CreatedAt:      time.Now(),
		MitreVersion:   catalogVersion,
		Summary: ReportSummary{
			MatchCount:          len(matches),
			HighConfidenceCount: highConf,
			TacticsBreakdown:    breakdown,
			TopTechniques:       top,
			KeyFindings:         findings,
		},
		Matches: matches,
	}
}

// keyFindings produces up to 6 templated sentences. The exact wording is not
// normative; the facts that must appear are: (a) most prevalent tactic,
// (b) top technique, (c) count of high-confidence matches.
func keyFindings(matches []fusion.EvalMatch, breakdown map[string]int, highConf int) []string {
	var findings []string

	if tactic, count, ok := mostPrevalentTactic(breakdown); ok {
		findings = append(findings, sentenceForTactic(tactic, count))
	}
	if len(matches) > 0 {
		top := matches[0]
		findings = append(findings, sentenceForTopTechnique(top))
	}
	findings = append(findings, sentenceForHighConfidence(highConf))

	for tactic, count := range breakdown {
		if len(findings) >= 6 {
			break
		}
		if topTactic, _, ok := mostPrevalentTactic(breakdown); ok && tactic == topTactic {
			continue
		}
		findings = append(findings, sentenceForTactic(tactic, count))
	}
	if len(findings) > 6 {
		findings = findings[:6]
	}
	return findings
}

func mostPrevalentTactic(breakdown map[string]int) (string, int, bool) {
	var best string
	bestCount := -1
	for tactic, count := range breakdown {
		if count > bestCount || (count == bestCount && tactic < best) {
			best = tactic
			bestCount = count
		}
	}
	return best, bestCount, bestCount >= 0
}

func sentenceForTactic(tactic string, count int) string {
	return pluralSentence(tactic, count)
}

func pluralSentence(tactic string, count int) string {
	if count == 1 {
		return "1 technique matched the " + tactic + " tactic."
	}
	return strconv.Itoa(count) + " techniques matched the " + tactic + " tactic."
}

func sentenceForTopTechnique(m fusion.EvalMatch) string {
	return "The highest-confidence technique identified is " + m.TechniqueID + " (" + m.TechniqueName + ") with a score of " + strconv.Itoa(m.Score) + "."
}

func sentenceForHighConfidence(count int) string {
	if count == 1 {
		return "1 match reached high confidence (score >= 85)."
	}
	return strconv.Itoa(count) + " matches reached high confidence (score >= 85)."
}
