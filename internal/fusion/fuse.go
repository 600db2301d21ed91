package fusion

import (
	"sort"
	"strings"

	"github.com/attackguard/attackctl/internal/matcher"
	"github.com/attackguard/attackctl/internal/mitre"
)

const contextWindow = 200

var indicativeVocabulary = []string{
	"attack", "exploit", "vulnerability", "malware", "threat", "compromise",
	"access", "adversary", "hacker", "breach", "security", "infection",
	"backdoor", "credential", "command", "script", "payload", "execution",
	"privilege", "persistence",
}

// indicativeBloom is a fast pre-filter over the fixed indicative vocabulary:
// a context's tokens are checked against it before the exact confirmation
// lookup, avoiding a 20-way strings.Contains scan per candidate match.
var indicativeBloom = buildIndicativeBloom()
var indicativeSet = buildIndicativeSet()

func buildIndicativeBloom() *matcher.BloomFilter {
	bf := matcher.NewBloomFilter(len(indicativeVocabulary), 0.01)
	for _, w := range indicativeVocabulary {
		bf.Add([]byte(w))
	}
	return bf
}

func buildIndicativeSet() map[string]bool {
	set := make(map[string]bool, len(indicativeVocabulary))
	for _, w := range indicativeVocabulary {
		set[w] = true
	}
	return set
}

var commonTermBlacklist = map[string]bool{
	"use": true, "uses": true, "used": true, "using": true,
	"user": true, "users": true,
	"system": true, "systems": true,
	"file": true, "files": true,
	"process": true, "processes": true,
	"data": true,
	"information": true,
	"access": true, "accesses": true, "accessed": true,
	"network": true, "networks": true,
	"tool": true, "tools": true,
	"control": true, "controls": true,
	"server": true, "servers": true,
	"service": true, "services": true,
	"application": true, "applications": true,
}

type mergedGroup struct {
	techniqueID   string
	techniqueName string
	tactics       []string
	start, end    int
	perSignal     map[matcher.Source]float64
	matchedText   string
}

// Fuse groups RawMatches by technique id, merges overlapping ranges,
// computes the confidence score per merged group, extracts context, and
// keeps only the highest-scoring EvalMatch per technique id.
func Fuse(raw []matcher.RawMatch, fullText string, index *mitre.TechniqueIndex) []EvalMatch {
	byTechnique := map[string][]matcher.RawMatch{}
	for _, m := range raw {
		byTechnique[m.TechniqueID] = append(byTechnique[m.TechniqueID], m)
	}

	best := map[string]EvalMatch{}
	for techniqueID, matches := range byTechnique {
		groups := mergeOverlapping(matches)
		for _, g := range groups {
			em := scoreGroup(g, fullText, index)
			if cur, ok := best[techniqueID]; !ok || em.Score > cur.Score {
				best[techniqueID] = em
			}
		}
	}

	out := make([]EvalMatch, 0, len(best))
	for _, em := range best {
		out = append(out, em)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TechniqueID < out[j].TechniqueID
	})
	return out
}

// mergeOverlapping groups matches for a single technique whose character
// ranges overlap into one merged group each.
func mergeOverlapping(matches []matcher.RawMatch) []mergedGroup {
	sort.Slice(matches, func(i, j int) bool { return matches[i].StartChar < matches[j].StartChar })
	var groups []mergedGroup
	for _, m := range matches {
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			if m.StartChar <= last.end {
				if m.EndChar > last.end {
					last.end = m.EndChar
				}
				if m.StartChar < last.start {
					last.start = m.StartChar
					last.matchedText = m.MatchedText
				}
				mergeSignal(last, m)
				continue
			}
		}
		g := mergedGroup{
			techniqueID:   m.TechniqueID,
			techniqueName: m.TechniqueName,
			tactics:       m.Tactics,
			start:         m.StartChar,
			end:           m.EndChar,
			perSignal:     map[matcher.Source]float64{},
			matchedText:   m.MatchedText,
		}
		mergeSignal(&g, m)
		groups = append(groups, g)
	}
	return groups
}

func mergeSignal(g *mergedGroup, m matcher.RawMatch) {
	if cur, ok := g.perSignal[m.Source]; !ok || m.Score > cur {
		g.perSignal[m.Source] = m.Score
	}
}

func dominantSource(perSignal map[matcher.Source]float64) matcher.Source {
	var best matcher.Source
	bestScore := -1.0
	for src, score := range perSignal {
		if score > bestScore {
			bestScore = score
			best = src
		}
	}
	return best
}

// scoreGroup computes the integer 0-100 confidence score for a merged group
// per the fixed scoring formula: base from dominant source, multi-source
// bonus, indicative-vocabulary/tactic bonus, common-term penalty, short-match
// penalty, literal-id bonus, clamped to [0,100].
func scoreGroup(g mergedGroup, fullText string, index *mitre.TechniqueIndex) EvalMatch {
	dominant := dominantSource(g.perSignal)
	score := 0.0
	switch dominant {
	case matcher.SourceKeyword:
		score = g.perSignal[matcher.SourceKeyword] * 80
	case matcher.SourceTFIDF:
		score = g.perSignal[matcher.SourceTFIDF] * 80
	case matcher.SourceFuzzy:
		score = g.perSignal[matcher.SourceFuzzy] * 70
	}

	multiSource := len(g.perSignal) >= 2
	if multiSource {
		score += 10
	}

	context := extractContext(fullText, g.start, g.end, contextWindow)
	if containsIndicativeTerm(context) || containsTactic(context, g.tactics) {
		score += 10
	}

	lowerMatched := strings.ToLower(g.matchedText)
	if commonTermBlacklist[lowerMatched] {
		score -= 15
	}
	if len(g.matchedText) < 4 {
		score -= 20
	}
	if strings.ToUpper(g.matchedText) == g.techniqueID {
		score += 20
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return EvalMatch{
		TechniqueID:    g.techniqueID,
		TechniqueName:  g.techniqueName,
		Score:          int(score),
		MatchedText:    g.matchedText,
		Context:        context,
		StartChar:      g.start,
		EndChar:        g.end,
		MultiSource:    multiSource,
		DominantSource: dominant,
	}
}

// containsTactic reports whether context mentions any of the technique's
// tactic short-names (e.g. "initial-access"), the alternative trigger for the
// indicative bonus independent of the fixed word list.
func containsTactic(context string, tactics []string) bool {
	lower := strings.ToLower(context)
	for _, t := range tactics {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func containsIndicativeTerm(context string) bool {
	lower := strings.ToLower(context)
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if !indicativeBloom.MayContain([]byte(tok)) {
			continue
		}
		if indicativeSet[tok] {
			return true
		}
	}
	return false
}

// extractContext returns the [s-W/2, e+W/2] slice of fullText, extended
// outward (up to 100 chars either way) to the nearest sentence boundary.
func extractContext(fullText string, s, e, window int) string {
	runes := []rune(fullText)
	n := len(runes)
	half := window / 2
	start := s - half
	if start < 0 {
		start = 0
	}
	end := e + half
	if end > n {
		end = n
	}
	start = extendToBoundary(runes, start, -1, 100)
	end = extendToBoundary(runes, end, 1, 100)
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return string(runes[start:end])
}

// extendToBoundary walks up to maxExtend runes in dir (-1 or +1) from pos
// looking for a sentence boundary (". ", "! ", "? ", or a paragraph break).
func extendToBoundary(runes []rune, pos, dir, maxExtend int) int {
	n := len(runes)
	steps := 0
	i := pos
	for steps < maxExtend {
		if dir < 0 {
			if i <= 0 {
				return 0
			}
			i--
		} else {
			if i >= n {
				return n
			}
			i++
		}
		steps++
		if isBoundaryAt(runes, i, dir) {
			return i
		}
	}
	return pos
}

func isBoundaryAt(runes []rune, i, dir int) bool {
	n := len(runes)
	if dir < 0 {
		// boundary is just after the punctuation; i points at the space.
		if i+1 < n && (runes[i] == ' ') && i > 0 {
			switch runes[i-1] {
			case '.', '!', '?':
				return true
			}
		}
		if i >= 2 && runes[i] == '\n' && runes[i-1] == '\n' {
			return true
		}
	} else {
		if i > 0 && runes[i-1] == ' ' {
			switch {
			case i >= 2 && (runes[i-2] == '.' || runes[i-2] == '!' || runes[i-2] == '?'):
				return true
			}
		}
		if i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return true
		}
	}
	return false
}
