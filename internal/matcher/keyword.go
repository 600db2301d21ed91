package matcher

import (
	"strings"

	"github.com/attackguard/attackctl/internal/mitre"
)

// acNode is one node of the compiled multi-pattern automaton.
type acNode struct {
	next map[byte]*acNode
	fail *acNode
	out  []keywordHit
}

// keywordHit is the payload attached to an automaton node: which technique
// this keyword belongs to.
type keywordHit struct {
	techniqueID string
	keywordLen  int
}

// KeywordMatcher scans lowercased text for every occurrence of every
// technique's derived keyword set using an Aho-Corasick automaton, built
// once from the full TechniqueIndex.
type KeywordMatcher struct {
	root  *acNode
	index *mitre.TechniqueIndex
}

// NewKeywordMatcher builds the automaton over all techniques' keywords.
func NewKeywordMatcher(index *mitre.TechniqueIndex) *KeywordMatcher {
	root := &acNode{next: make(map[byte]*acNode)}

	for _, t := range index.ByID {
		for _, kw := range t.Keywords {
			if kw == "" {
				continue
			}
			cur := root
			for i := 0; i < len(kw); i++ {
				b := kw[i]
				nxt, ok := cur.next[b]
				if !ok {
					nxt = &acNode{next: make(map[byte]*acNode)}
					cur.next[b] = nxt
				}
				cur = nxt
			}
			cur.out = append(cur.out, keywordHit{techniqueID: t.ID, keywordLen: len(kw)})
		}
	}
	buildFailureLinks(root)
	return &KeywordMatcher{root: root, index: index}
}

func buildFailureLinks(root *acNode) {
	queue := make([]*acNode, 0, len(root.next))
	for _, n := range root.next {
		n.fail = root
		queue = append(queue, n)
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for b, nxt := range n.next {
			f := n.fail
			for f != nil && f.next[b] == nil {
				f = f.fail
			}
			if f == nil {
				nxt.fail = root
			} else {
				nxt.fail = f.next[b]
			}
			if nxt.fail != nil && len(nxt.fail.out) > 0 {
				nxt.out = append(nxt.out, nxt.fail.out...)
			}
			queue = append(queue, nxt)
		}
	}
}

// FindMatches scans the lowercased text for every keyword occurrence.
func (m *KeywordMatcher) FindMatches(text string) []RawMatch {
	lower := strings.ToLower(text)
	data := []byte(lower)
	var matches []RawMatch
	n := m.root
	for i := 0; i < len(data); i++ {
		b := data[i]
		for n != nil && n.next[b] == nil {
			n = n.fail
		}
		if n == nil {
			n = m.root
			continue
		}
		n = n.next[b]
		if len(n.out) == 0 {
			continue
		}
		for _, hit := range n.out {
			start := i - hit.keywordLen + 1
			if start < 0 {
				continue
			}
			t, ok := m.index.Get(hit.techniqueID)
			if !ok {
				continue
			}
			score := minF(1, float64(hit.keywordLen)/20)*0.8 + 0.2
			matches = append(matches, RawMatch{
				TechniqueID:   t.ID,
				TechniqueName: t.Name,
				Tactics:       t.Tactics,
				MatchedText:   text[start : i+1],
				StartChar:     start,
				EndChar:       i + 1,
				Score:         score,
				Source:        SourceKeyword,
			})
		}
	}
	return matches
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
