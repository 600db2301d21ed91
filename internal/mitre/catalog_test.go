package mitre

import "testing"

const sampleBundle = `{
  "spec_version": "2.1",
  "objects": [
    {
      "type": "x-mitre-tactic",
      "id": "tactic--1",
      "name": "Initial Access",
      "x_mitre_shortname": "initial-access"
    },
    {
      "type": "attack-pattern",
      "id": "attack-pattern--1",
      "name": "Phishing",
      "description": "Adversaries may send phishing messages to gain access.",
      "kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "initial-access"}],
      "external_references": [{"source_name": "mitre-attack", "external_id": "T1566", "url": "https://attack.mitre.org/techniques/T1566"}]
    },
    {
      "type": "attack-pattern",
      "id": "attack-pattern--2",
      "name": "Spearphishing Attachment",
      "description": "Adversaries may send spearphishing emails with a malicious attachment.",
      "kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "initial-access"}],
      "external_references": [{"source_name": "mitre-attack", "external_id": "T1566.001"}]
    },
    {
      "type": "course-of-action",
      "id": "course-of-action--1",
      "name": "User Training",
      "description": "Train users to recognize phishing."
    },
    {
      "type": "relationship",
      "relationship_type": "mitigates",
      "source_ref": "course-of-action--1",
      "target_ref": "attack-pattern--1"
    }
  ]
}`

func TestParseBundleBasic(t *testing.T) {
	idx, version, err := ParseBundle([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("ParseBundle failed: %v", err)
	}
	if version != "2.1" {
		t.Fatalf("version = %q, want 2.1", version)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 techniques, got %d", idx.Len())
	}
	t1566, ok := idx.Get("T1566")
	if !ok {
		t.Fatalf("T1566 not found")
	}
	if len(t1566.Tactics) != 1 || t1566.Tactics[0] != "initial-access" {
		t.Fatalf("T1566 tactics = %v", t1566.Tactics)
	}
	if len(t1566.Mitigations) != 1 || t1566.Mitigations[0].Name != "User Training" {
		t.Fatalf("T1566 mitigations = %v", t1566.Mitigations)
	}
	if len(t1566.SubTechniqueIDs) != 1 || t1566.SubTechniqueIDs[0] != "T1566.001" {
		t.Fatalf("T1566 sub-techniques = %v", t1566.SubTechniqueIDs)
	}
	sub, ok := idx.Get("T1566.001")
	if !ok || sub.ParentID != "T1566" {
		t.Fatalf("T1566.001 parent = %q", sub.ParentID)
	}
	ids := idx.TechniqueIDsForTactic("initial-access")
	if len(ids) != 2 {
		t.Fatalf("initial-access technique ids = %v", ids)
	}
}

func TestParseBundleMalformed(t *testing.T) {
	if _, _, err := ParseBundle([]byte(`{"spec_version":"2.1"}`)); err != ErrMalformedCatalog {
		t.Fatalf("expected ErrMalformedCatalog, got %v", err)
	}
}

func TestParseBundleDropsCyclicSubTechnique(t *testing.T) {
	techniques := map[string]Technique{
		"T1000":     {ID: "T1000", ParentID: "T1000.001"},
		"T1000.001": {ID: "T1000.001", ParentID: "T1000"},
	}
	dropCyclicSubTechniques(techniques)
	if len(techniques) != 0 {
		t.Fatalf("expected cyclic techniques dropped, got %v", techniques)
	}
}

func TestDeriveKeywordsDropsStopWordsAndShortTokens(t *testing.T) {
	techniques := map[string]Technique{
		"T1001": {ID: "T1001", Name: "Phishing", Description: "The attacker may use a malicious payload to gain access."},
	}
	deriveKeywords(techniques)
	kws := techniques["T1001"].Keywords
	for _, kw := range kws {
		if kw == "the" || kw == "may" || len(kw) <= 2 {
			t.Fatalf("stopword/short token leaked into keywords: %v", kws)
		}
	}
	found := false
	for _, kw := range kws {
		if kw == "malicious" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'malicious' in keywords, got %v", kws)
	}
}

func TestDeriveKeywordsIncludesLiteralID(t *testing.T) {
	techniques := map[string]Technique{
		"T1486": {ID: "T1486", Name: "Data Encrypted for Impact", Description: "Adversaries may encrypt data."},
	}
	deriveKeywords(techniques)
	kws := techniques["T1486"].Keywords
	found := false
	for _, kw := range kws {
		if kw == "t1486" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the lowercased external id among keywords, got %v", kws)
	}
}
