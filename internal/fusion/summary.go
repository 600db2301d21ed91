package fusion

import "github.com/attackguard/attackctl/internal/mitre"

// BuildSummary computes the EvalSummary for a fused, sorted match list.
// matches must already be sorted by score desc, ties by lexicographic id
// (the order Fuse returns).
func BuildSummary(documentID string, matches []EvalMatch, index *mitre.TechniqueIndex, processingTimeMs int64) EvalSummary {
	top := matches
	if len(top) > 5 {
		top = top[:5]
	}
	topIDs := make([]string, 0, len(top))
	for _, m := range top {
		topIDs = append(topIDs, m.TechniqueID)
	}

	coverage := map[string]int{}
	for _, m := range matches {
		t, ok := index.Get(m.TechniqueID)
		if !ok {
			continue
		}
		for _, tac := range t.Tactics {
			coverage[tac]++
		}
	}

	return EvalSummary{
		DocumentID:      documentID,
		TotalMatches:    len(matches),
		TopTechniques:   topIDs,
		TacticsCoverage: coverage,
		ProcessingTime:  processingTimeMs,
	}
}
