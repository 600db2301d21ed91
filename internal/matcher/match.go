// Package matcher produces RawMatch candidates from document text using
// independent keyword, TF-IDF, and fuzzy signals.
package matcher

// Source tags which signal produced a RawMatch.
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceTFIDF   Source = "tfidf"
	SourceFuzzy   Source = "fuzzy"
)

// RawMatch is one candidate technique occurrence produced by a single matcher.
type RawMatch struct {
	TechniqueID   string
	TechniqueName string
	Tactics       []string
	MatchedText   string
	StartChar     int
	EndChar       int
	Score         float64 // in [0,1]
	Source        Source
}

// Matcher finds candidate technique occurrences in text.
type Matcher interface {
	FindMatches(text string) []RawMatch
}
