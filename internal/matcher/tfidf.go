package matcher

import (
	"math"
	"regexp"
	"strings"

	"github.com/attackguard/attackctl/internal/mitre"
)

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

const (
	tfidfWindowSize   = 500
	tfidfWindowStride = 250
	tfidfThreshold    = 0.2
)

type techniqueVector struct {
	id      string
	name    string
	tactics []string
	vec     map[string]float64
	norm    float64
}

// TFIDFMatcher scores sliding windows of document text against a per-
// technique tf-idf vector built from each technique's name+description+
// keywords, treated as one "document" per technique.
type TFIDFMatcher struct {
	vectors []techniqueVector
	idf     map[string]float64
}

// NewTFIDFMatcher builds the corpus-wide idf table and per-technique vectors.
func NewTFIDFMatcher(index *mitre.TechniqueIndex) *TFIDFMatcher {
	docs := make(map[string][]string, index.Len())
	for id, t := range index.ByID {
		text := t.Name + " " + t.Description + " " + strings.Join(t.Keywords, " ")
		docs[id] = tokenize(text)
	}
	n := len(docs)
	df := map[string]int{}
	for _, tokens := range docs {
		seen := map[string]bool{}
		for _, tok := range tokens {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			df[tok]++
		}
	}
	idf := map[string]float64{}
	for tok, d := range df {
		idf[tok] = math.Log(float64(n+1)/float64(d+1)) + 1
	}

	m := &TFIDFMatcher{idf: idf}
	for id, tokens := range docs {
		t := index.ByID[id]
		vec := tfVector(tokens, idf)
		m.vectors = append(m.vectors, techniqueVector{
			id:      id,
			name:    t.Name,
			tactics: t.Tactics,
			vec:     vec,
			norm:    vectorNorm(vec),
		})
	}
	return m
}

func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

func tfVector(tokens []string, idf map[string]float64) map[string]float64 {
	counts := map[string]int{}
	for _, tok := range tokens {
		counts[tok]++
	}
	vec := make(map[string]float64, len(counts))
	for tok, c := range counts {
		tf := float64(c) / float64(len(tokens))
		vec[tok] = tf * idf[tok]
	}
	return vec
}

func vectorNorm(vec map[string]float64) float64 {
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	return math.Sqrt(sumSq)
}

func cosineSimilarity(a, b map[string]float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	// iterate the smaller map
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for tok, v := range small {
		if bv, ok := big[tok]; ok {
			dot += v * bv
		}
	}
	return dot / (normA * normB)
}

// FindMatches slides a window across text, scoring each window's tf-idf
// vector against every technique vector by cosine similarity.
func (m *TFIDFMatcher) FindMatches(text string) []RawMatch {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	var matches []RawMatch
	for start := 0; start < n; start += tfidfWindowStride {
		end := start + tfidfWindowSize
		if end > n {
			end = n
		}
		window := string(runes[start:end])
		tokens := tokenize(window)
		if len(tokens) == 0 {
			if end == n {
				break
			}
			continue
		}
		winVec := tfVector(tokens, m.idf)
		winNorm := vectorNorm(winVec)
		for _, tv := range m.vectors {
			sim := cosineSimilarity(winVec, tv.vec, winNorm, tv.norm)
			if sim <= tfidfThreshold {
				continue
			}
			sentence, sStart, sEnd := bestMatchingSentence(window, tv.name)
			matches = append(matches, RawMatch{
				TechniqueID:   tv.id,
				TechniqueName: tv.name,
				Tactics:       tv.tactics,
				MatchedText:   sentence,
				StartChar:     start + sStart,
				EndChar:       start + sEnd,
				Score:         sim,
				Source:        SourceTFIDF,
			})
		}
		if end == n {
			break
		}
	}
	return matches
}

// bestMatchingSentence splits window into sentences and returns the one
// sharing the most tokens with the technique name, along with its offsets
// relative to window.
func bestMatchingSentence(window, techniqueName string) (string, int, int) {
	nameTokens := map[string]bool{}
	for _, tok := range tokenize(techniqueName) {
		nameTokens[tok] = true
	}
	sentences := splitSentences(window)
	if len(sentences) == 0 {
		return window, 0, len(window)
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		score := 0
		for _, tok := range tokenize(s.text) {
			if nameTokens[tok] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	best := sentences[bestIdx]
	return best.text, best.start, best.end
}

type sentenceSpan struct {
	text       string
	start, end int
}

func splitSentences(text string) []sentenceSpan {
	var spans []sentenceSpan
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			spans = append(spans, sentenceSpan{text: text[start:end], start: start, end: end})
			start = end
		}
	}
	if start < len(text) {
		spans = append(spans, sentenceSpan{text: text[start:], start: start, end: len(text)})
	}
	return spans
}
