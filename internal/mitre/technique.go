// Package mitre parses the MITRE ATT&CK STIX bundle into an indexed
// technique catalog and fetches/caches that bundle with change detection.
package mitre

// Mitigation is a reference to a mitigation STIX object associated with a
// technique via a "mitigates" relationship.
type Mitigation struct {
	ID          string
	Name        string
	Description string
}

// Technique is one ATT&CK technique or sub-technique.
type Technique struct {
	ID              string // T#### or T####.###
	Name            string
	Description     string
	Tactics         []string // tactic short-names
	Platforms       []string
	DataSources     []string
	Detection       string
	Mitigations     []Mitigation
	URL             string
	Keywords        []string // derived, used by matchers
	ParentID        string   // empty for top-level techniques
	SubTechniqueIDs []string // ordered, populated after grouping
}

// IsSubTechnique reports whether this technique is a sub-technique of a parent.
func (t Technique) IsSubTechnique() bool { return t.ParentID != "" }

// TechniqueIndex is the immutable, queryable view of a parsed catalog.
type TechniqueIndex struct {
	Version    string
	ByID       map[string]Technique
	ByTactic   map[string][]string // tactic short-name -> technique ids
}

// Get looks up a technique by its external id.
func (idx *TechniqueIndex) Get(id string) (Technique, bool) {
	t, ok := idx.ByID[id]
	return t, ok
}

// TechniqueIDsForTactic returns the technique ids belonging to a tactic.
func (idx *TechniqueIndex) TechniqueIDsForTactic(tactic string) []string {
	return idx.ByTactic[tactic]
}

// Len returns the number of techniques in the index.
func (idx *TechniqueIndex) Len() int { return len(idx.ByID) }
