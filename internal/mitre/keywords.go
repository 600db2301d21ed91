package mitre

import (
	"regexp"
	"strings"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "into": true, "can": true, "may": true,
	"are": true, "was": true, "were": true, "has": true, "have": true,
	"had": true, "not": true, "but": true, "which": true, "their": true,
	"its": true, "they": true, "them": true, "also": true, "such": true,
	"these": true, "those": true, "use": true, "used": true, "using": true,
	"will": true, "been": true, "other": true, "more": true, "most": true,
	"via": true, "when": true, "then": true, "than": true, "some": true,
	"all": true,
}

var techVocabulary = map[string]bool{
	"malware": true, "exploit": true, "payload": true, "backdoor": true,
	"shellcode": true, "rootkit": true, "keylogger": true, "ransomware": true,
	"trojan": true, "phishing": true, "credential": true, "privilege": true,
	"registry": true, "powershell": true, "binary": true, "executable": true,
	"script": true, "process": true, "injection": true, "persistence": true,
	"obfuscation": true, "encryption": true, "exfiltration": true,
}

var fileSuffixes = []string{".exe", ".dll", ".bat", ".ps1", ".sh", ".bin", ".vbs", ".py"}

var mixedCasePattern = regexp.MustCompile(`[a-z][A-Z]|[A-Z]{2,}[a-z]`)
var digitPattern = regexp.MustCompile(`\d`)
var tokenPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9._-]*`)

// deriveKeywords populates Technique.Keywords by tokenizing name+description,
// dropping stop-words and tokens of length <= 2, then union-ing in
// heuristically extracted technical terms.
func deriveKeywords(techniques map[string]Technique) {
	for id, t := range techniques {
		seen := map[string]bool{}
		var keywords []string
		add := func(tok string) {
			if tok == "" || seen[tok] {
				return
			}
			seen[tok] = true
			keywords = append(keywords, tok)
		}

		// Always include the bare external id so a literal mention like
		// "T1486" surfaces a match on its own, even when the surrounding
		// text shares no vocabulary with the technique's description.
		add(strings.ToLower(t.ID))

		combined := t.Name + " " + t.Description
		for _, tok := range tokenPattern.FindAllString(combined, -1) {
			lower := strings.ToLower(tok)
			if isTechnicalTerm(tok) {
				add(lower)
				continue
			}
			if len(lower) <= 2 || stopWords[lower] {
				continue
			}
			add(lower)
		}
		t.Keywords = keywords
		techniques[id] = t
	}
}

func isTechnicalTerm(tok string) bool {
	lower := strings.ToLower(tok)
	if techVocabulary[lower] {
		return true
	}
	if mixedCasePattern.MatchString(tok) && digitPattern.MatchString(tok) {
		return true
	}
	if mixedCasePattern.MatchString(tok) {
		return true
	}
	if digitPattern.MatchString(tok) {
		return true
	}
	for _, suf := range fileSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}
